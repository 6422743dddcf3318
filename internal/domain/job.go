package domain

import "time"

// JobStatus enumerates the delivery lifecycle of a send unit.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	// JobSending marks a unit claimed by a worker. Claims older than the
	// worker's processing deadline are reclaimed as pending.
	JobSending JobStatus = "sending"
	JobSent    JobStatus = "sent"
	JobFailed  JobStatus = "failed"
)

const (
	// MaxSendAttempts bounds the attempt series for one send unit.
	MaxSendAttempts = 3
	// RetryBackoff is the fixed delay before a transient failure is retried.
	RetryBackoff = 60 * time.Second
	// SendDeadline bounds one delivery attempt; a hung attempt past this is
	// treated as a transient failure and becomes reclaimable.
	SendDeadline = 5 * time.Minute
)

// EmailJob is both the durable send unit and the audit record of its
// attempt series. Exactly one exists per CampaignTarget; it is never
// deleted.
type EmailJob struct {
	ID               int64      `json:"id" db:"id"`
	CampaignTargetID int64      `json:"campaign_target_id" db:"campaign_target_id"`
	Status           JobStatus  `json:"status" db:"status"`
	ScheduledAt      time.Time  `json:"scheduled_at" db:"scheduled_at"`
	Attempts         int        `json:"attempts" db:"attempts"`
	LastError        string     `json:"error_message" db:"error_message"`
	FirstAttemptAt   *time.Time `json:"first_attempt_at" db:"first_attempt_at"`
	CompletedAt      *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}
