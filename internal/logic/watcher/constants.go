package watcher

// LabelOwnerUserID carries the owning user's id on user-owned objects.
const LabelOwnerUserID = "workbench.dev/owner-id"

// SystemUserID is the sentinel ownership identity for kinds that are not
// owned by a user (build runs, quotas, priority classes).
const SystemUserID = "system"
