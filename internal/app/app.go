package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/client-go/tools/clientcmd"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/skillcoder/quota-watcher-controller/internal/adapters/outbound/k8s"
	"github.com/skillcoder/quota-watcher-controller/internal/adapters/outbound/resourcesapi"
	"github.com/skillcoder/quota-watcher-controller/internal/config"
	"github.com/skillcoder/quota-watcher-controller/internal/infra/appstate"
	"github.com/skillcoder/quota-watcher-controller/internal/infra/cronparser"
	"github.com/skillcoder/quota-watcher-controller/internal/infra/objectcache"
	"github.com/skillcoder/quota-watcher-controller/internal/infra/pinger"
	"github.com/skillcoder/quota-watcher-controller/internal/infra/shutdown"
	"github.com/skillcoder/quota-watcher-controller/internal/infra/supervisor"
	"github.com/skillcoder/quota-watcher-controller/internal/httpserver"
	"github.com/skillcoder/quota-watcher-controller/internal/logic/quota"
	"github.com/skillcoder/quota-watcher-controller/internal/logic/sessions"
	"github.com/skillcoder/quota-watcher-controller/internal/logic/watcher"
)

// primaryClusterID names the cluster the controller itself runs against.
const primaryClusterID = "default"

var sessionGVK = watcher.GVK{Group: "workbench.dev", Version: "v1alpha1", Kind: "Session"}

// trackedKinds is the fixed set of kinds the watcher mirrors.
func trackedKinds() []watcher.TrackedKind {
	return []watcher.TrackedKind{
		{GVK: sessionGVK, Resource: "sessions"},
		{
			GVK:         watcher.GVK{Group: "shipwright.io", Version: "v1beta1", Kind: "BuildRun"},
			Resource:    "buildruns",
			SystemOwned: true,
		},
		{
			GVK:         watcher.GVK{Version: "v1", Kind: "ResourceQuota"},
			Resource:    "resourcequotas",
			SystemOwned: true,
		},
		{
			GVK:           watcher.GVK{Group: "scheduling.k8s.io", Version: "v1", Kind: "PriorityClass"},
			Resource:      "priorityclasses",
			ClusterScoped: true,
			SystemOwned:   true,
		},
	}
}

// App holds the wired components of the controller process.
type App struct {
	logger        *slog.Logger
	cfg           *config.Config
	appState      *appstate.AppState
	pingers       *pinger.Runner
	watch         *watcher.Service
	quotas        *quota.Service
	tasks         *supervisor.Supervisor
	httpServer    *httpserver.Server
	metricsServer *httpserver.MetricsServer
}

// New creates a new application instance with all dependencies wired.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	appState *appstate.AppState,
	pingers *pinger.Runner,
) (*App, error) {
	kinds := trackedKinds()

	fleet, metricsClients, err := buildFleet(logger, cfg, kinds)
	if err != nil {
		return nil, fmt.Errorf("build cluster fleet: %w", err)
	}

	cache := objectcache.New(logger)

	resources := resourcesapi.New(logger, cfg.ResourceAPIURL, cfg.ResourceAPIToken)
	usage := k8s.NewUsageSampler(logger, metricsClients)
	handler := sessions.NewHandler(logger, resources, usage, sessionGVK)

	watch := watcher.New(
		logger,
		cache,
		fleet.Clusters(),
		kinds,
		handler,
		cfg.ResyncInterval,
		cfg.WatchBackoff,
		cfg.ResyncSchedule,
		cfg.ResyncTZ,
		cronparser.New(),
	)

	quotas := quota.New(
		logger,
		k8s.NewResourceQuotaClient(logger, fleet),
		k8s.NewPriorityClassClient(logger, fleet),
	)

	tasks := supervisor.New(logger, cfg.MaxTaskBackoff)

	return &App{
		logger:        logger,
		cfg:           cfg,
		appState:      appState,
		pingers:       pingers,
		watch:         watch,
		quotas:        quotas,
		tasks:         tasks,
		httpServer:    httpserver.New(logger, appState, tasks, cfg.HTTPPort),
		metricsServer: httpserver.NewMetricsServer(logger, cfg.MetricsPort),
	}, nil
}

// buildFleet creates one connection per configured cluster. The primary
// cluster is strict: a malformed object there aborts the listing instead of
// being skipped.
func buildFleet(
	logger *slog.Logger,
	cfg *config.Config,
	kinds []watcher.TrackedKind,
) (*k8s.Fleet, map[string]metricsv.Interface, error) {
	if cfg.ClusterMode == config.ClusterModeMemory {
		conn := k8s.NewMemoryConnection(logger, primaryClusterID, cfg.Namespace, kinds)

		return k8s.NewFleet(conn), map[string]metricsv.Interface{}, nil
	}

	primaryConfig, err := clientcmd.BuildConfigFromFlags(cfg.KubeMaster, cfg.KubeConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("build primary cluster config: %w", err)
	}

	primary, err := k8s.NewLiveConnection(
		logger, primaryConfig, primaryClusterID, cfg.Namespace, kinds, cfg.CallTimeout, true,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect primary cluster: %w", err)
	}

	conns := []*k8s.Connection{primary}
	metricsClients := make(map[string]metricsv.Interface)

	if client, err := metricsv.NewForConfig(primaryConfig); err == nil {
		metricsClients[primaryClusterID] = client
	}

	if cfg.ClusterConfigDir != "" {
		entries, err := os.ReadDir(cfg.ClusterConfigDir)
		if err != nil {
			return nil, nil, fmt.Errorf("read cluster config dir: %w", err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			path := filepath.Join(cfg.ClusterConfigDir, entry.Name())
			clusterID := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))

			restConfig, err := clientcmd.BuildConfigFromFlags("", path)
			if err != nil {
				return nil, nil, fmt.Errorf("build config for cluster %s: %w", clusterID, err)
			}

			conn, err := k8s.NewLiveConnection(
				logger, restConfig, clusterID, cfg.Namespace, kinds, cfg.CallTimeout, false,
			)
			if err != nil {
				return nil, nil, fmt.Errorf("connect cluster %s: %w", clusterID, err)
			}

			conns = append(conns, conn)

			if client, err := metricsv.NewForConfig(restConfig); err == nil {
				metricsClients[clusterID] = client
			}
		}
	}

	return k8s.NewFleet(conns...), metricsClients, nil
}

// Quotas exposes the quota repository for the API surface embedding this
// process.
func (a *App) Quotas() *quota.Service {
	return a.quotas
}

// Run starts all components and blocks until the context is cancelled, then
// shuts them down gracefully.
func (a *App) Run(originCtx context.Context) error {
	ctx, cancel := context.WithCancel(originCtx)
	defer cancel()

	go shutdown.New(a.logger, a.appState).HandleSignals(ctx, cancel)

	if err := a.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	if err := a.metricsServer.Start(ctx); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	a.pingers.Register(a.watch)
	a.pingers.Register(a.httpServer)
	a.pingers.Register(a.metricsServer)
	a.pingers.Start(ctx)

	a.startWatcherTasks(ctx)

	if err := a.appState.SetRunning(ctx); err != nil {
		return fmt.Errorf("set running application state: %w", err)
	}

	a.logger.InfoContext(ctx, "controller running",
		"clusters", len(a.watch.Clusters()),
		"kinds", len(a.watch.Kinds()),
	)

	<-ctx.Done()

	if err := a.appState.SetTerminating(originCtx); err != nil {
		a.logger.ErrorContext(originCtx, "failed to set terminating state", "reason", err)
	}

	return shutdown.GracefulShutdown(originCtx, a.logger, []shutdown.Shutdowner{
		a.appState,
		a.httpServer,
		a.metricsServer,
		a.pingers,
		a.tasks,
	})
}

// startWatcherTasks registers one resync task per cluster and one watch task
// per (cluster, kind) with the supervisor.
func (a *App) startWatcherTasks(ctx context.Context) {
	for clusterID := range a.watch.Clusters() {
		a.tasks.Start(ctx, watcher.ResyncTaskName(clusterID), func(taskCtx context.Context) error {
			return a.watch.RunResyncCommand(taskCtx, clusterID)
		})

		for _, kind := range a.watch.Kinds() {
			a.tasks.Start(ctx, watcher.WatchTaskName(clusterID, kind), func(taskCtx context.Context) error {
				return a.watch.RunWatchCommand(taskCtx, clusterID, kind)
			})
		}
	}
}
