// Package perf implements the Performance Monitor from spec §4.10,
// grounded on original_source/performance_monitor.py (SPEC_FULL.md §4):
// it keeps a bounded execution history per device, raises cooldown-gated
// alerts when queue depth, execution/interval ratio, or failure rate
// cross a threshold, and exposes aggregate metrics for a device.
package perf

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newtron-network/flowmesh/pkg/broker"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
	"github.com/newtron-network/flowmesh/pkg/logging"
)

// QueueDepther reports how many flows are currently queued for a device,
// implemented by *scheduler.Scheduler.
type QueueDepther interface {
	GetQueueDepth(stableID string) int
}

// Config carries the alert thresholds and history bounds from spec §4.10.
type Config struct {
	QueueDepthWarning   int
	QueueDepthCritical  int
	BacklogRatio        float64
	FailureRateWarning  float64
	FailureRateCritical float64
	AlertCooldown       time.Duration
	HistorySize         int
	AlertHistorySize    int
	FailureRateWindow   int
	MinSamplesForRate   int
}

// DefaultConfig returns the thresholds from spec §4.10.
func DefaultConfig() Config {
	return Config{
		QueueDepthWarning:   5,
		QueueDepthCritical:  10,
		BacklogRatio:        0.5,
		FailureRateWarning:  0.2,
		FailureRateCritical: 0.5,
		AlertCooldown:       5 * time.Minute,
		HistorySize:         100,
		AlertHistorySize:    50,
		FailureRateWindow:   20,
		MinSamplesForRate:   10,
	}
}

type execRecord struct {
	flowID          string
	success         bool
	executionTimeMS float64
	timestamp       time.Time
	errorMessage    string
}

// SlowFlow is one entry of GetMetrics' slowest_flows ranking.
type SlowFlow struct {
	FlowID         string  `json:"flow_id"`
	AvgTimeMS      float64 `json:"avg_time_ms"`
	ExecutionCount int     `json:"execution_count"`
}

// Metrics is the GetMetrics response shape (spec §4.10).
type Metrics struct {
	StableDeviceID     string                     `json:"stable_device_id"`
	NoData             bool                       `json:"no_data,omitempty"`
	QueueDepth         int                        `json:"queue_depth"`
	TotalExecutions    int                        `json:"total_executions"`
	SuccessRate        float64                    `json:"success_rate"`
	RecentSuccessRate  float64                    `json:"recent_success_rate"`
	AvgExecutionTimeMS float64                    `json:"avg_execution_time_ms"`
	SlowestFlows       []SlowFlow                 `json:"slowest_flows"`
	RecentAlerts       []flowmodel.PerformanceAlert `json:"recent_alerts"`
	LastExecution      *time.Time                 `json:"last_execution,omitempty"`
}

// Monitor tracks per-device execution history and raises alerts.
type Monitor struct {
	depther QueueDepther
	pub     broker.Publisher
	cfg     Config
	now     func() time.Time

	mu          sync.Mutex
	history     map[string][]execRecord
	alerts      map[string][]flowmodel.PerformanceAlert
	lastAlertAt map[string]time.Time
}

// New builds a Monitor that reads queue depth from depther and, if pub is
// non-nil, publishes error/critical alerts to it.
func New(depther QueueDepther, pub broker.Publisher, cfg Config) *Monitor {
	return &Monitor{
		depther:     depther,
		pub:         pub,
		cfg:         cfg,
		now:         time.Now,
		history:     make(map[string][]execRecord),
		alerts:      make(map[string][]flowmodel.PerformanceAlert),
		lastAlertAt: make(map[string]time.Time),
	}
}

// RecordExecution appends result to flow's device history and evaluates the
// three alert rules (spec §4.10). ctx is used only for the alert publish.
func (m *Monitor) RecordExecution(ctx context.Context, flow *flowmodel.Flow, result *flowmodel.FlowExecutionResult) {
	stableID := flow.StableDeviceID

	m.mu.Lock()
	rec := execRecord{
		flowID:          result.FlowID,
		success:         result.Success,
		executionTimeMS: result.ExecutionTimeMS,
		timestamp:       m.now(),
		errorMessage:    result.ErrorMessage,
	}
	hist := append(m.history[stableID], rec)
	if len(hist) > m.cfg.HistorySize {
		hist = hist[len(hist)-m.cfg.HistorySize:]
	}
	m.history[stableID] = hist
	m.mu.Unlock()

	m.checkQueueDepth(ctx, stableID)
	m.checkBacklog(ctx, flow, result)
	m.checkFailureRate(ctx, stableID)

	logging.WithDevice(stableID).WithField("component", "perf").
		Debugf("recorded execution for %s: success=%v time=%.0fms", result.FlowID, result.Success, result.ExecutionTimeMS)
}

func (m *Monitor) checkQueueDepth(ctx context.Context, stableID string) {
	if m.depther == nil {
		return
	}
	depth := m.depther.GetQueueDepth(stableID)
	switch {
	case depth >= m.cfg.QueueDepthCritical:
		m.createAlert(ctx, stableID, flowmodel.SeverityCritical,
			fmt.Sprintf("queue backlog: %d flows waiting", depth),
			[]string{
				"increase update intervals for low-priority flows",
				"disable unused flows",
				"consider splitting sensors across multiple devices",
				fmt.Sprintf("current queue: %d flows (critical threshold: %d)", depth, m.cfg.QueueDepthCritical),
			}, "", "queue_depth", float64(depth))
	case depth >= m.cfg.QueueDepthWarning:
		m.createAlert(ctx, stableID, flowmodel.SeverityWarning,
			fmt.Sprintf("queue depth: %d flows waiting", depth),
			[]string{
				"review flow update intervals",
				"consider disabling low-priority flows",
				fmt.Sprintf("current queue: %d flows (warning threshold: %d)", depth, m.cfg.QueueDepthWarning),
			}, "", "queue_depth", float64(depth))
	}
}

func (m *Monitor) checkBacklog(ctx context.Context, flow *flowmodel.Flow, result *flowmodel.FlowExecutionResult) {
	if !result.Success || flow.UpdateIntervalSeconds <= 0 {
		return
	}
	executionTimeS := result.ExecutionTimeMS / 1000
	ratio := executionTimeS / float64(flow.UpdateIntervalSeconds)
	if ratio <= m.cfg.BacklogRatio {
		return
	}
	m.createAlert(ctx, flow.StableDeviceID, flowmodel.SeverityWarning,
		fmt.Sprintf("slow flow: %s takes %.1fs but updates every %ds", flow.Name, executionTimeS, flow.UpdateIntervalSeconds),
		[]string{
			fmt.Sprintf("increase update interval to %ds or more", int(executionTimeS*2.5)),
			"optimize flow steps (reduce waits, remove unnecessary steps)",
			"consider splitting into multiple faster flows",
			fmt.Sprintf("current ratio: %.0f%% (threshold: %.0f%%)", ratio*100, m.cfg.BacklogRatio*100),
		}, flow.FlowID, "execution_time_ratio", ratio)
}

func (m *Monitor) checkFailureRate(ctx context.Context, stableID string) {
	m.mu.Lock()
	hist := m.history[stableID]
	m.mu.Unlock()

	if len(hist) < m.cfg.MinSamplesForRate {
		return
	}
	recent := hist
	if len(recent) > m.cfg.FailureRateWindow {
		recent = recent[len(recent)-m.cfg.FailureRateWindow:]
	}
	failures := 0
	for _, r := range recent {
		if !r.success {
			failures++
		}
	}
	rate := float64(failures) / float64(len(recent))

	switch {
	case rate >= m.cfg.FailureRateCritical:
		m.createAlert(ctx, stableID, flowmodel.SeverityCritical,
			fmt.Sprintf("high failure rate: %.0f%% of recent flows failed", rate*100),
			[]string{
				"check device connection (transport may be unstable)",
				"review flow validation steps",
				"check for app crashes or permission issues",
				"review recent error messages in flow history",
				fmt.Sprintf("recent failures: %d/%d", failures, len(recent)),
			}, "", "failure_rate", rate)
	case rate >= m.cfg.FailureRateWarning:
		m.createAlert(ctx, stableID, flowmodel.SeverityWarning,
			fmt.Sprintf("elevated failure rate: %.0f%%", rate*100),
			[]string{
				"monitor device connection stability",
				"review flow validation logic",
				fmt.Sprintf("recent failures: %d/%d", failures, len(recent)),
			}, "", "failure_rate", rate)
	}
}

// createAlert applies the 5-minute stable_id+metric_name cooldown, stores
// the alert in the device's bounded history, and publishes error/critical
// alerts to the broker.
func (m *Monitor) createAlert(ctx context.Context, stableID string, severity flowmodel.AlertSeverity, message string, recommendations []string, flowID, metricName string, metricValue float64) {
	key := stableID + ":" + metricName
	now := m.now()

	m.mu.Lock()
	if last, ok := m.lastAlertAt[key]; ok && now.Sub(last) < m.cfg.AlertCooldown {
		m.mu.Unlock()
		return
	}
	m.lastAlertAt[key] = now

	alert := flowmodel.PerformanceAlert{
		StableDeviceID:  stableID,
		Severity:        severity,
		Message:         message,
		Recommendations: recommendations,
		MetricName:      metricName,
		MetricValue:     metricValue,
		FlowID:          flowID,
		Timestamp:       now,
	}
	list := append(m.alerts[stableID], alert)
	if len(list) > m.cfg.AlertHistorySize {
		list = list[len(list)-m.cfg.AlertHistorySize:]
	}
	m.alerts[stableID] = list
	m.mu.Unlock()

	logging.WithDevice(stableID).WithField("component", "perf").
		Warnf("%s: %s", severity, message)

	if m.pub != nil && (severity == flowmodel.SeverityError || severity == flowmodel.SeverityCritical) {
		if err := m.pub.PublishAlert(ctx, &alert); err != nil {
			logging.WithDevice(stableID).Warnf("publish alert failed: %v", err)
		}
	}
}

// GetMetrics returns the aggregate metrics for a device (spec §4.10).
func (m *Monitor) GetMetrics(stableID string) Metrics {
	m.mu.Lock()
	hist := append([]execRecord(nil), m.history[stableID]...)
	alerts := append([]flowmodel.PerformanceAlert(nil), m.alerts[stableID]...)
	m.mu.Unlock()

	queueDepth := 0
	if m.depther != nil {
		queueDepth = m.depther.GetQueueDepth(stableID)
	}

	if len(hist) == 0 {
		return Metrics{StableDeviceID: stableID, NoData: true, QueueDepth: queueDepth}
	}

	total := len(hist)
	successes := 0
	var sumTime float64
	for _, r := range hist {
		if r.success {
			successes++
		}
		sumTime += r.executionTimeMS
	}

	recentN := 10
	if recentN > total {
		recentN = total
	}
	recent := hist[total-recentN:]
	recentSuccesses := 0
	for _, r := range recent {
		if r.success {
			recentSuccesses++
		}
	}

	recentAlerts := alerts
	if len(recentAlerts) > 5 {
		recentAlerts = recentAlerts[len(recentAlerts)-5:]
	}

	lastExec := hist[total-1].timestamp

	return Metrics{
		StableDeviceID:     stableID,
		QueueDepth:         queueDepth,
		TotalExecutions:    total,
		SuccessRate:        float64(successes) / float64(total),
		RecentSuccessRate:  float64(recentSuccesses) / float64(len(recent)),
		AvgExecutionTimeMS: sumTime / float64(total),
		SlowestFlows:       slowestFlows(hist, 5),
		RecentAlerts:       recentAlerts,
		LastExecution:      &lastExec,
	}
}

func slowestFlows(hist []execRecord, limit int) []SlowFlow {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range hist {
		sums[r.flowID] += r.executionTimeMS
		counts[r.flowID]++
	}

	flows := make([]SlowFlow, 0, len(sums))
	for flowID, sum := range sums {
		flows = append(flows, SlowFlow{
			FlowID:         flowID,
			AvgTimeMS:      sum / float64(counts[flowID]),
			ExecutionCount: counts[flowID],
		})
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].AvgTimeMS > flows[j].AvgTimeMS })
	if len(flows) > limit {
		flows = flows[:limit]
	}
	return flows
}
