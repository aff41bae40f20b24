package sessions

// State is a session's lifecycle state as reported in its manifest status.
type State string

const (
	StateNotReady   State = "NotReady"
	StateRunning    State = "Running"
	StateHibernated State = "Hibernated"
	StateFailed     State = "Failed"
)

// ResourceClass is the read-only projection of a resource class definition.
type ResourceClass struct {
	ID   string
	Name string
}

// ResourcePool is the read-only projection of a resource pool definition.
type ResourcePool struct {
	ID   string
	Name string
}

// Usage is a sampled resource consumption snapshot of a session pod.
type Usage struct {
	CPUCores    float64
	MemoryBytes float64
}
