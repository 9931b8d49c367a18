package flowmodel

import "time"

// FlowStepLog records the outcome of one executed Step.
type FlowStepLog struct {
	StepIndex int                    `json:"step_index"`
	Kind      StepKind               `json:"kind"`
	Start     time.Time              `json:"start"`
	End       time.Time              `json:"end"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// DurationMS returns the step's wall-clock duration in milliseconds.
func (l *FlowStepLog) DurationMS() float64 {
	return float64(l.End.Sub(l.Start).Microseconds()) / 1000.0
}

// FlowExecutionResult is the terminal outcome of one flow run.
type FlowExecutionResult struct {
	FlowID          string        `json:"flow_id"`
	ExecutionID     string        `json:"execution_id"`
	Success         bool          `json:"success"`
	ExecutionTimeMS float64       `json:"execution_time_ms"`
	ExecutedSteps   int           `json:"executed_steps"`
	TotalSteps      int           `json:"total_steps"`
	StepLogs        []FlowStepLog `json:"step_logs"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
}

// AlertSeverity tiers a PerformanceAlert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// PerformanceAlert is raised by the performance monitor when a metric
// crosses a threshold.
type PerformanceAlert struct {
	StableDeviceID  string        `json:"stable_device_id"`
	Severity        AlertSeverity `json:"severity"`
	Message         string        `json:"message"`
	Recommendations []string      `json:"recommendations"`
	MetricName      string        `json:"metric_name"`
	MetricValue     float64       `json:"metric_value"`
	FlowID          string        `json:"flow_id,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}
