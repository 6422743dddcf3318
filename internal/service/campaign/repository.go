package campaign

import (
	"context"
	"time"

	"github.com/phishly/phishly/internal/domain"
)

// Repository defines the data access contract for campaigns and their
// dispatch/tracking state. Implementations must be safe for concurrent
// use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id int64) (*domain.Campaign, error)

	// List returns campaigns matching the filter, newest first, plus the
	// unpaginated total.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign in draft status and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (int64, error)

	// Transition atomically moves a campaign between statuses. Returns
	// ErrInvalidTransition when the campaign is not in any of the from
	// statuses, ErrNotFound when it does not exist.
	Transition(ctx context.Context, id int64, from []domain.CampaignStatus, to domain.CampaignStatus) error

	// Schedule sets the launch time and moves the campaign to scheduled.
	// Subject to the same transition rules as Transition.
	Schedule(ctx context.Context, id int64, from []domain.CampaignStatus, at time.Time) error

	// Targets returns the campaign's per-target dispatch state.
	Targets(ctx context.Context, campaignID int64) ([]domain.CampaignTarget, error)

	// Jobs returns the campaign's send units with their outcomes.
	Jobs(ctx context.Context, campaignID int64) ([]domain.EmailJob, error)

	// Events returns the campaign's event log, oldest first.
	Events(ctx context.Context, campaignID int64, limit, offset int) ([]domain.Event, error)

	// Stats aggregates target statuses and job outcomes for reporting.
	Stats(ctx context.Context, campaignID int64) (*Stats, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// Stats is the per-campaign reporting rollup.
type Stats struct {
	Targets    int `json:"targets"`
	Pending    int `json:"pending"`
	Sent       int `json:"sent"`
	Opened     int `json:"opened"`
	Clicked    int `json:"clicked"`
	Submitted  int `json:"submitted"`
	JobsFailed int `json:"jobs_failed"`
}
