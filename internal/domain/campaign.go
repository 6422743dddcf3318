package domain

import (
	"fmt"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// DelayPolicy enumerates per-email delay strategies for dispatch.
type DelayPolicy string

const (
	// DelayNone schedules every target at the launch instant.
	DelayNone DelayPolicy = "none"
	// DelayFixed applies the same fixed offset to every target. The offset
	// is independent per target, not a cumulative stagger, so total campaign
	// duration stays bounded regardless of list size.
	DelayFixed DelayPolicy = "fixed"
	// DelayRandom draws each target's delay independently and uniformly
	// from [MinDelaySeconds, MaxDelaySeconds].
	DelayRandom DelayPolicy = "random"
)

// Campaign represents a phishing simulation campaign with its delivery
// configuration. Content (template, landing page) lives in the stores
// referenced by ID and path.
type Campaign struct {
	ID              int64          `json:"id" db:"id"`
	Name            string         `json:"name" db:"name"`
	TemplateID      int64          `json:"email_template_id" db:"email_template_id"`
	TargetListID    int64          `json:"target_list_id" db:"target_list_id"`
	LandingDomain   string         `json:"landing_domain" db:"landing_domain"`
	LandingPath     string         `json:"landing_path" db:"landing_path"`
	RedirectURL     string         `json:"redirect_url" db:"redirect_url"`
	FromName        string         `json:"from_name" db:"from_name"`
	FromEmail       string         `json:"from_email" db:"from_email"`
	ReplyTo         string         `json:"reply_to" db:"reply_to"`
	Status          CampaignStatus `json:"status" db:"status"`
	DelayPolicy     DelayPolicy    `json:"delay_policy" db:"delay_policy"`
	MinDelaySeconds int            `json:"min_email_delay" db:"min_email_delay"`
	MaxDelaySeconds int            `json:"max_email_delay" db:"max_email_delay"`
	ScheduledLaunch *time.Time     `json:"scheduled_launch" db:"scheduled_launch"`
	StartedAt       *time.Time     `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at" db:"completed_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted
}

// ValidateDelay checks the delay policy settings for consistency.
func (c *Campaign) ValidateDelay() error {
	switch c.DelayPolicy {
	case DelayNone:
		return nil
	case DelayFixed:
		if c.MinDelaySeconds < 0 {
			return fmt.Errorf("fixed delay must be non-negative, got %d", c.MinDelaySeconds)
		}
		return nil
	case DelayRandom:
		if c.MinDelaySeconds < 0 || c.MaxDelaySeconds < c.MinDelaySeconds {
			return fmt.Errorf("random delay requires 0 <= min <= max, got [%d,%d]",
				c.MinDelaySeconds, c.MaxDelaySeconds)
		}
		return nil
	default:
		return fmt.Errorf("unknown delay policy %q", c.DelayPolicy)
	}
}

// Target is one recipient of simulated phishing emails. The profile fields
// exist purely for template substitution; the engine never mutates targets.
type Target struct {
	ID         int64  `json:"id" db:"id"`
	Email      string `json:"email" db:"email"`
	Salutation string `json:"salutation" db:"salutation"`
	FirstName  string `json:"first_name" db:"first_name"`
	LastName   string `json:"last_name" db:"last_name"`
	Position   string `json:"position" db:"position"`
	Department string `json:"department" db:"department"`
}

// TemplateVars builds the variable map for template rendering.
func (t *Target) TemplateVars() map[string]any {
	return map[string]any{
		"salutation": t.Salutation,
		"first_name": t.FirstName,
		"last_name":  t.LastName,
		"email":      t.Email,
		"position":   t.Position,
		"department": t.Department,
	}
}
