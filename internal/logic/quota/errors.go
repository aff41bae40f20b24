package quota

import "errors"

var (
	ErrMissingID     = errors.New("quota has no id")
	ErrCreateQuota   = errors.New("create quota")
	ErrUpdateQuota   = errors.New("update quota")
	ErrDeleteQuota   = errors.New("delete quota")
	ErrGetQuota      = errors.New("get quota")
	ErrPriorityClass = errors.New("priority class")
)
