package flowmodel

import "time"

// CommandStatus is the lifecycle state of a QueuedCommand.
type CommandStatus string

const (
	CommandPending    CommandStatus = "pending"
	CommandProcessing CommandStatus = "processing"
	CommandCompleted  CommandStatus = "completed"
	CommandFailed     CommandStatus = "failed"
	CommandExpired    CommandStatus = "expired"
)

// DefaultCommandTTL is the default time-to-live for a queued command.
const DefaultCommandTTL = time.Hour

// DefaultMaxRetries is the default retry budget for a queued command.
const DefaultMaxRetries = 3

// QueuedCommand is a durable unit of work awaiting delivery to a device.
type QueuedCommand struct {
	CommandID      string        `json:"command_id"`
	TargetStableID string        `json:"target_stable_id"`
	CommandType    string        `json:"command_type"`
	Payload        string        `json:"payload"`
	Priority       int           `json:"priority"`
	CreatedAt      time.Time     `json:"created_at"`
	ExpiresAt      time.Time     `json:"expires_at"`
	Status         CommandStatus `json:"status"`
	RetryCount     int           `json:"retry_count"`
	MaxRetries     int           `json:"max_retries"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	ProcessingAt   time.Time     `json:"processing_at,omitempty"`
}

// IsExpired reports whether the command's TTL has elapsed as of now.
// A command whose expires_at equals now is classified as expired, per §8.
func (c *QueuedCommand) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
