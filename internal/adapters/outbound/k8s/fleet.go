package k8s

import (
	"fmt"

	"github.com/skillcoder/quota-watcher-controller/internal/logic/watcher"
)

// Fleet holds one connection per cluster, fixed at startup.
type Fleet struct {
	conns map[string]*Connection
}

// NewFleet creates a fleet from the given connections, keyed by cluster id.
func NewFleet(conns ...*Connection) *Fleet {
	byID := make(map[string]*Connection, len(conns))
	for _, conn := range conns {
		byID[conn.ClusterID()] = conn
	}

	return &Fleet{conns: byID}
}

// Connection returns the connection for a cluster id.
func (f *Fleet) Connection(clusterID string) (*Connection, error) {
	conn, ok := f.conns[clusterID]
	if !ok {
		return nil, fmt.Errorf("unknown cluster %q", clusterID)
	}

	return conn, nil
}

// Clusters returns the watcher's view of the fleet.
func (f *Fleet) Clusters() map[string]watcher.Cluster {
	clusters := make(map[string]watcher.Cluster, len(f.conns))
	for id, conn := range f.conns {
		clusters[id] = watcher.Cluster{
			ID:        id,
			Namespace: conn.Namespace(),
			Client:    conn,
		}
	}

	return clusters
}
