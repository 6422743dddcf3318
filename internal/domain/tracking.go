package domain

import "time"

// EventKind enumerates the types of recorded interactions.
type EventKind string

const (
	EventEmailSent           EventKind = "email_sent"
	EventEmailOpened         EventKind = "email_opened"
	EventLinkClicked         EventKind = "link_clicked"
	EventFormSubmitted       EventKind = "form_submitted"
	EventCredentialsCaptured EventKind = "credentials_captured"
)

// Event is an immutable record of one physical interaction that resolved
// to a valid token. Every such request appends a new Event; deduplication
// is a reporting concern. An interaction with an unknown or malformed
// token records nothing.
type Event struct {
	ID               int64             `json:"id" db:"id"`
	CampaignTargetID int64             `json:"campaign_target_id" db:"campaign_target_id"`
	Kind             EventKind         `json:"event_type" db:"event_type"`
	IPAddress        string            `json:"ip_address" db:"ip_address"`
	UserAgent        string            `json:"user_agent" db:"user_agent"`
	Browser          string            `json:"browser" db:"browser"`
	OS               string            `json:"os" db:"os"`
	DeviceType       string            `json:"device_type" db:"device_type"`
	FormData         map[string]string `json:"form_data,omitempty" db:"form_data"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
}

// RequestMeta carries the network and client metadata of one inbound
// tracking request.
type RequestMeta struct {
	IPAddress  string
	UserAgent  string
	Browser    string
	OS         string
	DeviceType string
}
