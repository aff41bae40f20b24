package k8s

import (
	"encoding/json"
	"fmt"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	schedulingv1 "k8s.io/api/scheduling/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"

	"github.com/skillcoder/quota-watcher-controller/internal/logic/quota"
	"github.com/skillcoder/quota-watcher-controller/internal/logic/watcher"
)

var (
	resourceQuotaGVK = watcher.GVK{Version: "v1", Kind: "ResourceQuota"}
	priorityClassGVK = watcher.GVK{Group: "scheduling.k8s.io", Version: "v1", Kind: "PriorityClass"}
)

const (
	// Memory is decimal gigabytes on the wire, not binary.
	bytesPerGB = int64(1_000_000_000)

	hardKeyCPU    = "requests.cpu"
	hardKeyMemory = "requests.memory"

	priorityClassValue       = 100
	priorityClassDescription = "Scheduling tier backing a workbench compute quota"
)

func formatCPU(cores float64) string {
	return strconv.FormatFloat(cores, 'f', -1, 64)
}

func hardLimits(q quota.Quota) corev1.ResourceList {
	hard := corev1.ResourceList{
		corev1.ResourceName(hardKeyCPU):    resource.MustParse(formatCPU(q.CPU)),
		corev1.ResourceName(hardKeyMemory): *resource.NewQuantity(q.MemoryGB*bytesPerGB, resource.DecimalSI),
	}

	if q.GPU > 0 {
		hard[corev1.ResourceName(q.GPUKind.ResourceKey())] = *resource.NewQuantity(q.GPU, resource.DecimalSI)
	}

	return hard
}

func scopeSelector(priorityClassName string) *corev1.ScopeSelector {
	return &corev1.ScopeSelector{
		MatchExpressions: []corev1.ScopedResourceSelectorRequirement{{
			ScopeName: corev1.ResourceQuotaScopePriorityClass,
			Operator:  corev1.ScopeSelectorOpIn,
			Values:    []string{priorityClassName},
		}},
	}
}

// resourceQuotaFor builds the wire object for a quota. The owner reference
// points from the namespaced quota to the cluster-scoped priority class so
// deleting the class cascades to the quota; the reverse direction is not
// representable.
func resourceQuotaFor(q quota.Quota, namespace string, owner quota.PriorityClassRef) (*unstructured.Unstructured, error) {
	rq := &corev1.ResourceQuota{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "ResourceQuota",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      q.ID,
			Namespace: namespace,
			OwnerReferences: []metav1.OwnerReference{{
				APIVersion: "scheduling.k8s.io/v1",
				Kind:       "PriorityClass",
				Name:       owner.Name,
				UID:        types.UID(owner.UID),
			}},
		},
		Spec: corev1.ResourceQuotaSpec{
			Hard:          hardLimits(q),
			ScopeSelector: scopeSelector(owner.Name),
		},
	}

	return toUnstructured(rq)
}

// priorityClassFor builds the wire object for the fixed-policy scheduling
// tier paired with a quota.
func priorityClassFor(name string) (*unstructured.Unstructured, error) {
	preemption := corev1.PreemptNever
	pc := &schedulingv1.PriorityClass{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "scheduling.k8s.io/v1",
			Kind:       "PriorityClass",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
		},
		Value:            priorityClassValue,
		GlobalDefault:    false,
		PreemptionPolicy: &preemption,
		Description:      priorityClassDescription,
	}

	return toUnstructured(pc)
}

func toUnstructured(obj runtime.Object) (*unstructured.Unstructured, error) {
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, fmt.Errorf("convert to unstructured: %w", err)
	}

	return &unstructured.Unstructured{Object: content}, nil
}

// quotaFromUnstructured translates a live ResourceQuota back to the domain
// model. An object missing the required cpu or memory hard-limit keys was
// not created by this subsystem and fails validation instead of being
// silently defaulted.
func quotaFromUnstructured(raw *unstructured.Unstructured) (*quota.Quota, error) {
	hard, found, err := unstructured.NestedStringMap(raw.Object, "spec", "hard")
	if err != nil || !found {
		return nil, &ForeignQuotaError{Reason: "spec.hard missing"}
	}

	cpuStr, ok := hard[hardKeyCPU]
	if !ok {
		return nil, &ForeignQuotaError{Reason: hardKeyCPU + " missing"}
	}

	memStr, ok := hard[hardKeyMemory]
	if !ok {
		return nil, &ForeignQuotaError{Reason: hardKeyMemory + " missing"}
	}

	cpuQty, err := resource.ParseQuantity(cpuStr)
	if err != nil {
		return nil, &ForeignQuotaError{Reason: fmt.Sprintf("unparseable %s: %v", hardKeyCPU, err)}
	}

	memQty, err := resource.ParseQuantity(memStr)
	if err != nil {
		return nil, &ForeignQuotaError{Reason: fmt.Sprintf("unparseable %s: %v", hardKeyMemory, err)}
	}

	// Memory limits are written in whole gigabytes; anything else was put
	// there by someone else and must not be truncated into a wrong value.
	if memQty.Value()%bytesPerGB != 0 {
		return nil, &ForeignQuotaError{Reason: fmt.Sprintf("%s not a whole number of GB: %s", hardKeyMemory, memStr)}
	}

	q := &quota.Quota{
		ID:       raw.GetName(),
		CPU:      cpuQty.AsApproximateFloat64(),
		MemoryGB: memQty.Value() / bytesPerGB,
		GPUKind:  quota.GPUKindNVIDIA,
	}

	for _, kind := range []quota.GPUKind{quota.GPUKindNVIDIA, quota.GPUKindAMD} {
		gpuStr, ok := hard[kind.ResourceKey()]
		if !ok {
			continue
		}

		gpuQty, err := resource.ParseQuantity(gpuStr)
		if err != nil {
			return nil, &ForeignQuotaError{Reason: fmt.Sprintf("unparseable %s: %v", kind.ResourceKey(), err)}
		}

		q.GPU = gpuQty.Value()
		q.GPUKind = kind
	}

	return q, nil
}

// quotaPatch builds the merge patch updating only the hard limits and scope
// selector of an existing ResourceQuota. Vendor GPU keys not in use are set
// to null so a reduced quota does not leave a stale limit behind.
func quotaPatch(q quota.Quota) ([]byte, error) {
	hard := map[string]any{
		hardKeyCPU:    formatCPU(q.CPU),
		hardKeyMemory: strconv.FormatInt(q.MemoryGB*bytesPerGB, 10),
	}

	for _, kind := range []quota.GPUKind{quota.GPUKindNVIDIA, quota.GPUKindAMD} {
		hard[kind.ResourceKey()] = nil
	}

	if q.GPU > 0 {
		hard[q.GPUKind.ResourceKey()] = strconv.FormatInt(q.GPU, 10)
	}

	patch := map[string]any{
		"spec": map[string]any{
			"hard": hard,
			"scopeSelector": map[string]any{
				"matchExpressions": []any{
					map[string]any{
						"scopeName": string(corev1.ResourceQuotaScopePriorityClass),
						"operator":  string(corev1.ScopeSelectorOpIn),
						"values":    []any{q.ID},
					},
				},
			},
		},
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("marshal quota patch: %w", err)
	}

	return body, nil
}
