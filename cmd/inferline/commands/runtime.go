package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/inferline/inferline/pkg/build"
	"github.com/inferline/inferline/pkg/codegen"
	"github.com/inferline/inferline/pkg/config"
	"github.com/inferline/inferline/pkg/gate"
	"github.com/inferline/inferline/pkg/pipeline"
	"github.com/inferline/inferline/pkg/telemetry"
	"github.com/inferline/inferline/pkg/workspace"
)

// runtime bundles the long-lived collaborators a command needs:
// settings, telemetry, and the workspace store.
type runtime struct {
	settings *config.Settings
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	store    *workspace.Store
	manager  *workspace.Manager
}

// newRuntime loads settings, applies the global flags, and opens the
// workspace store. Pass withStore=false for commands that only parse
// plans and never touch the store.
func newRuntime(ctx context.Context, withStore bool) (*runtime, error) {
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return nil, err
	}
	if quiet {
		settings.Telemetry.Logging.Mode = telemetry.LogModeQuiet
	}
	if logLevel != "" {
		settings.Telemetry.Logging.Level = logLevel
	}

	logger := telemetry.NewLogger(settings.Telemetry.Logging)

	metrics, err := telemetry.NewMetrics(settings.Telemetry.Metrics)
	if err != nil {
		return nil, fmt.Errorf("initialize metrics: %w", err)
	}
	tracer, err := telemetry.NewTracer(settings.Telemetry.Tracing,
		settings.Telemetry.ServiceName, settings.Telemetry.ServiceVersion)
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}

	rt := &runtime{
		settings: settings,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
	}

	if withStore {
		if err := os.MkdirAll(filepath.Dir(settings.StorePath), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		store, err := workspace.NewStore(workspace.StoreConfig{Path: settings.StorePath})
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		rt.store = store
		rt.manager = workspace.NewManager(settings.WorkspaceRoot, store, logger)
	}

	return rt, nil
}

// newBuilder wires a full builder on top of the runtime.
func (rt *runtime) newBuilder() (*build.Builder, error) {
	gates, err := rt.newGates()
	if err != nil {
		return nil, err
	}
	driver := pipeline.NewDriver(pipeline.DefaultRegistry(), rt.logger, rt.metrics, rt.tracer)
	runner, err := codegen.NewRunner(codegen.DefaultGenerators(), rt.logger, rt.metrics, rt.tracer)
	if err != nil {
		return nil, err
	}
	return build.NewBuilder(rt.manager, driver, runner, gates,
		rt.logger, rt.metrics, rt.tracer, nil), nil
}

// newGates assembles the gate chain: Rego policies first, then the
// graph structure check.
func (rt *runtime) newGates() ([]gate.Gate, error) {
	policyGate, err := gate.NewPolicyGate(rt.logger)
	if err != nil {
		return nil, err
	}
	if len(rt.settings.PolicyPaths) > 0 {
		if err := policyGate.LoadPolicies(rt.settings.PolicyPaths); err != nil {
			return nil, err
		}
	}
	return []gate.Gate{policyGate, gate.NewGraphGate(rt.logger)}, nil
}

// Close releases the runtime's resources.
func (rt *runtime) Close(ctx context.Context) {
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.WithError(err).Warn("failed to close workspace store")
		}
	}
	if err := rt.tracer.Shutdown(ctx); err != nil {
		rt.logger.WithError(err).Warn("failed to shut down tracer")
	}
	if err := rt.metrics.Shutdown(); err != nil {
		rt.logger.WithError(err).Warn("failed to shut down metrics")
	}
	if err := rt.logger.Close(); err != nil {
		fmt.Println("failed to close logger:", err)
	}
}
