package domain

import "time"

// TargetStatus is the per-(campaign,target) engagement status. The values
// form a total order and only ever advance along it: a transition request
// names a target state and the applied result is the maximum of the current
// and requested states. Out-of-order and duplicate tracking notifications
// therefore converge to the same final value regardless of arrival order.
type TargetStatus string

const (
	StatusPending   TargetStatus = "pending"
	StatusSent      TargetStatus = "sent"
	StatusOpened    TargetStatus = "opened"
	StatusClicked   TargetStatus = "clicked"
	StatusSubmitted TargetStatus = "submitted"
)

var statusRank = map[TargetStatus]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusOpened:    2,
	StatusClicked:   3,
	StatusSubmitted: 4,
}

// Rank returns the position of s in the status order. Unknown values rank
// below pending so they can never displace a real status.
func (s TargetStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// MaxStatus returns the later of two statuses under the engagement order.
func MaxStatus(a, b TargetStatus) TargetStatus {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// CampaignTarget is the join record between a campaign and a target. It
// carries the tracking token binding every email and interaction for the
// pair, and the monotonic engagement status.
type CampaignTarget struct {
	ID         int64        `json:"id" db:"id"`
	CampaignID int64        `json:"campaign_id" db:"campaign_id"`
	TargetID   int64        `json:"target_id" db:"target_id"`
	Token      string       `json:"tracking_token" db:"tracking_token"`
	Status     TargetStatus `json:"status" db:"status"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}
