package k8s

import (
	"context"
	"fmt"
	"log/slog"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/skillcoder/quota-watcher-controller/internal/logic/sessions"
)

type usageSampler struct {
	logger  *slog.Logger
	clients map[string]metricsv.Interface
}

// NewUsageSampler creates the session usage sampler over per-cluster metrics
// clientsets. Clusters without a metrics API simply have no entry.
func NewUsageSampler(logger *slog.Logger, clients map[string]metricsv.Interface) sessions.UsageSampler {
	return &usageSampler{
		logger:  logger,
		clients: clients,
	}
}

var _ sessions.UsageSampler = (*usageSampler)(nil)

// SessionUsageQuery sums the container CPU and memory usage of the session's
// pod, which carries the session's own name.
func (s *usageSampler) SessionUsageQuery(
	ctx context.Context,
	clusterID, namespace, name string,
) (*sessions.Usage, error) {
	client, ok := s.clients[clusterID]
	if !ok {
		return nil, fmt.Errorf("no metrics client for cluster %q", clusterID)
	}

	podMetrics, err := client.MetricsV1beta1().PodMetricses(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("get pod metrics: %w", errNotFound)
		}

		return nil, fmt.Errorf("get pod metrics: %w", err)
	}

	usage := &sessions.Usage{}

	for i := range podMetrics.Containers {
		container := &podMetrics.Containers[i]

		if cpu := container.Usage.Cpu(); cpu != nil {
			usage.CPUCores += cpu.AsApproximateFloat64()
		}

		if memory := container.Usage.Memory(); memory != nil {
			usage.MemoryBytes += float64(memory.Value())
		}
	}

	return usage, nil
}
