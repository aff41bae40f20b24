package quota

// GPUKind selects the device-plugin resource vendor for GPU limits.
type GPUKind string

const (
	GPUKindNVIDIA GPUKind = "NVIDIA"
	GPUKindAMD    GPUKind = "AMD"
)

// ResourceKey returns the quota hard-limit key for the vendor's GPU resource.
func (g GPUKind) ResourceKey() string {
	if g == GPUKindAMD {
		return "requests.amd.com/gpu"
	}

	return "requests.nvidia.com/gpu"
}

// Quota is a namespace-scoped hard ceiling on aggregate compute consumption.
// Once created, ID is stable and equals the paired PriorityClass name.
type Quota struct {
	ID string
	// CPU is fractional cores.
	CPU float64
	// MemoryGB is decimal gigabytes (10^9 bytes).
	MemoryGB int64
	GPU      int64
	GPUKind  GPUKind
}

// PriorityClassRef identifies a created PriorityClass, carrying the UID
// needed for the ResourceQuota's owner reference.
type PriorityClassRef struct {
	Name string
	UID  string
}
