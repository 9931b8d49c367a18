// Command flowd is the flow-engine daemon: it loads configuration, wires
// together the identity resolver, stores, queue, locker, broker publisher,
// scheduler, executor, connection monitor, performance monitor, and the
// HTTP surface, then serves until signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/newtron-network/flowmesh/pkg/audit"
	"github.com/newtron-network/flowmesh/pkg/auth"
	"github.com/newtron-network/flowmesh/pkg/broker"
	"github.com/newtron-network/flowmesh/pkg/config"
	"github.com/newtron-network/flowmesh/pkg/devicelock"
	"github.com/newtron-network/flowmesh/pkg/dialer"
	"github.com/newtron-network/flowmesh/pkg/executor"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
	"github.com/newtron-network/flowmesh/pkg/httpapi"
	"github.com/newtron-network/flowmesh/pkg/identity"
	"github.com/newtron-network/flowmesh/pkg/logging"
	"github.com/newtron-network/flowmesh/pkg/metrics"
	"github.com/newtron-network/flowmesh/pkg/monitor"
	"github.com/newtron-network/flowmesh/pkg/navigation"
	"github.com/newtron-network/flowmesh/pkg/perf"
	"github.com/newtron-network/flowmesh/pkg/queue"
	"github.com/newtron-network/flowmesh/pkg/scheduler"
	"github.com/newtron-network/flowmesh/pkg/store"
)

// deviceLockTTL bounds how long the executor's exclusive per-device lock
// may be held before another process assumes it abandoned (spec §5).
const deviceLockTTL = 5 * time.Minute

// auditMaxSizeBytes/auditMaxBackups bound the audit log's on-disk footprint,
// mirroring the teacher's settings-driven rotation defaults.
const (
	auditMaxSizeBytes = 50 * 1024 * 1024
	auditMaxBackups   = 5
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowd: loading config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		logging.WithField("level", cfg.LogLevel).Warn("flowd: unrecognized log level, keeping default")
	}
	if cfg.LogFormat == "json" {
		logging.SetJSONFormat()
	}
	logging.WithField("config", cfg.String()).Info("flowd: starting")

	dataDir := filepath.Join(cfg.DataDir, "data")
	configDir := filepath.Join(cfg.DataDir, "config")

	resolver, err := identity.New(filepath.Join(dataDir, "device_identity_map.json"))
	if err != nil {
		fatal("initializing identity resolver", err)
	}

	auditPath := filepath.Join(cfg.DataDir, "audit", "audit.log")
	auditLogger, err := audit.NewFileLogger(auditPath, audit.RotationConfig{
		MaxSize:    auditMaxSizeBytes,
		MaxBackups: auditMaxBackups,
	})
	if err != nil {
		logging.WithField("error", err).Warn("flowd: could not initialize audit logging")
	} else {
		audit.SetDefaultLogger(auditLogger)
		defer auditLogger.Close()
	}

	flows := store.NewFlowStore(configDir)
	actions := store.NewActionStore(dataDir)
	sensors := store.NewSensorStore(dataDir)
	history := store.NewHistoryStore(dataDir)
	navGraphs := navigation.NewManager(configDir)

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	cmdQueue := queue.New(redisClient)
	locks := devicelock.New(redisClient, deviceLockTTL)
	publisher := broker.NewRedisPublisher(redisClient)

	mon := monitor.New(dialer.New(cfg.Timeouts.Connect), cfg.Monitor, cfg.Timeouts)

	exec := executor.New(executor.Dependencies{
		Devices: mon,
		Actions: actions,
		Sensors: sensors,
		History: history,
		Queue:   cmdQueue,
		Locks:   locks,
		Broker:  publisher,
	})

	instExec := &instrumentedExecutor{inner: exec}
	sched := scheduler.New(instExec, cfg.Scheduler.QueueDepthBound)
	perfMon := perf.New(sched, publisher, perf.DefaultConfig())
	instExec.perf = perfMon

	mon.OnConnect(func(stableID string) {
		metrics.SetDeviceOnline(stableID, true)
		metrics.RecordReconnectAttempt(stableID, true)
		logging.WithDevice(stableID).Info("flowd: device online")
	})
	mon.OnConnect(func(stableID string) {
		_ = audit.Log(audit.NewEvent("monitor", stableID, string(audit.EventTypeConnect)).WithSuccess())
	})
	mon.OnDisconnect(func(stableID string) {
		metrics.SetDeviceOnline(stableID, false)
		logging.WithDevice(stableID).Warn("flowd: device offline")
	})
	mon.OnDisconnect(func(stableID string) {
		_ = audit.Log(audit.NewEvent("monitor", stableID, string(audit.EventTypeDisconnect)).WithSuccess())
	})
	mon.SetReplay(func(ctx context.Context, stableID string) {
		replayPending(ctx, cmdQueue, flows, sched, mon, stableID)
	})
	mon.SetRediscover(func(ctx context.Context, stableID string) {
		logging.WithDevice(stableID).Warn("flowd: device still offline after repeated retries, flagging for rediscovery")
	})
	migrator := identity.NewMigrator(dataDir, configDir)
	resolver.OnRebind(func(stableID, oldConnID, newConnID string) {
		logging.WithDevice(stableID).WithField("old_connection_id", oldConnID).
			WithField("new_connection_id", newConnID).Info("flowd: device rebound to a new connection")
		report := migrator.Migrate(stableID, oldConnID, newConnID, false)
		logging.WithDevice(stableID).WithField("sensors", report.Sensors).
			WithField("actions", report.Actions).WithField("flows", report.Flows).
			Info("flowd: rebind migration complete")
		sensors.InvalidateCache(stableID)
		mon.Watch(stableID, newConnID)
	})

	var checker *auth.Checker
	if cfg.AuthPolicyPath != "" {
		policy, err := auth.LoadPolicy(cfg.AuthPolicyPath)
		if err != nil {
			fatal("loading auth policy", err)
		}
		checker = auth.NewChecker(policy)
		logging.WithField("policy", cfg.AuthPolicyPath).Info("flowd: permission enforcement enabled")
	}

	srv := &httpapi.Server{
		Resolver:   resolver,
		Flows:      flows,
		Actions:    actions,
		Sensors:    sensors,
		History:    history,
		Scheduler:  sched,
		Monitor:    mon,
		Perf:       perfMon,
		Navigation: navGraphs,
		Checker:    checker,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", srv.Router())

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: metrics.InstrumentHandler(mux),
	}

	go func() {
		logging.WithField("addr", cfg.HTTPAddr).Info("flowd: HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.WithField("error", err).Error("flowd: HTTP server exited")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logging.Logger.Info("flowd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sched.Stop()
}

// instrumentedExecutor adapts executor.Executor to scheduler.Executor,
// additionally feeding every run's outcome to the performance monitor and
// Prometheus — the wiring-layer call site pkg/metrics's design calls for
// (see DESIGN.md), so pkg/scheduler/pkg/executor stay free of either
// dependency.
type instrumentedExecutor struct {
	inner *executor.Executor
	perf  *perf.Monitor
}

func (e *instrumentedExecutor) Execute(ctx context.Context, flow *flowmodel.Flow) (*flowmodel.FlowExecutionResult, error) {
	result, err := e.inner.Execute(ctx, flow)
	if result != nil {
		metrics.RecordFlowExecution(flow.StableDeviceID, result.Success, time.Duration(result.ExecutionTimeMS*float64(time.Millisecond)))
		if e.perf != nil {
			e.perf.RecordExecution(ctx, flow, result)
		}
	}
	return result, err
}

// replayPending drains every command queued for a device while it was
// offline, claiming and replaying each in turn once the connection monitor
// observes it back online (spec §4.9's SetReplay hook, §8 scenario 1).
// Replay proceeds sequentially and the failure of one claimed command does
// not stop the rest from being attempted.
func replayPending(ctx context.Context, q *queue.Queue, flows *store.FlowStore, sched *scheduler.Scheduler, mon *monitor.Monitor, stableID string) {
	pending, err := q.GetPending(ctx, stableID)
	if err != nil {
		logging.WithDevice(stableID).WithField("error", err).Warn("flowd: replay: listing pending commands failed")
		return
	}
	for _, queued := range pending {
		cmd, err := q.MarkProcessing(ctx, queued.CommandID)
		if err != nil {
			logging.WithDevice(stableID).WithField("error", err).Warn("flowd: replay: claiming command failed")
			continue
		}
		if cmd == nil {
			// Already claimed, cancelled, or expired between listing and claiming.
			continue
		}
		replayCommand(ctx, q, flows, sched, mon, stableID, cmd)
	}
}

// replayCommand executes one claimed command according to its type and
// reports the outcome back to the queue. An unrecognized command type is
// itself a replay failure rather than being silently dropped, so it is
// retried or terminally failed through the normal retry budget instead of
// being orphaned in the processing set.
func replayCommand(ctx context.Context, q *queue.Queue, flows *store.FlowStore, sched *scheduler.Scheduler, mon *monitor.Monitor, stableID string, cmd *flowmodel.QueuedCommand) {
	var err error
	switch cmd.CommandType {
	case "execute_flow":
		err = replayExecuteFlow(flows, sched, stableID, cmd.Payload)
	case "launch_app":
		err = replayLaunchApp(ctx, mon, stableID, cmd.Payload)
	default:
		err = fmt.Errorf("no replay handler for command type %q", cmd.CommandType)
	}
	if err != nil {
		logging.WithDevice(stableID).WithField("command_type", cmd.CommandType).WithField("error", err).
			Warn("flowd: replay: command failed")
		_ = q.MarkFailed(ctx, cmd.CommandID, err.Error())
		return
	}
	_ = q.MarkCompleted(ctx, cmd.CommandID)
}

func replayExecuteFlow(flows *store.FlowStore, sched *scheduler.Scheduler, stableID, flowID string) error {
	flow, err := flows.Get(stableID, flowID)
	if err != nil {
		return err
	}
	return sched.Enqueue(flow)
}

func replayLaunchApp(ctx context.Context, mon *monitor.Monitor, stableID, pkg string) error {
	tr, err := mon.Transport(stableID)
	if err != nil {
		return err
	}
	surfaced, err := tr.LaunchApp(ctx, pkg)
	if err != nil {
		return err
	}
	if !surfaced {
		return fmt.Errorf("app %s did not surface", pkg)
	}
	return nil
}

func fatal(op string, err error) {
	fmt.Fprintf(os.Stderr, "flowd: %s: %v\n", op, err)
	os.Exit(1)
}
