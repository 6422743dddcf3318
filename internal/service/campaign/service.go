package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phishly/phishly/internal/domain"
	"github.com/phishly/phishly/internal/pkg/logger"
)

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// CreateInput holds the fields for a new campaign.
type CreateInput struct {
	Name            string             `json:"name"`
	TemplateID      int64              `json:"template_id"`
	TargetListID    int64              `json:"target_list_id"`
	LandingDomain   string             `json:"landing_domain"`
	LandingPath     string             `json:"landing_path"`
	RedirectURL     string             `json:"redirect_url"`
	FromName        string             `json:"from_name"`
	FromEmail       string             `json:"from_email"`
	ReplyTo         string             `json:"reply_to"`
	DelayPolicy     domain.DelayPolicy `json:"delay_policy"`
	MinDelaySeconds int                `json:"min_email_delay"`
	MaxDelaySeconds int                `json:"max_email_delay"`
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if input.TemplateID == 0 {
		return nil, fmt.Errorf("template_id is required")
	}
	if input.TargetListID == 0 {
		return nil, fmt.Errorf("target_list_id is required")
	}
	if input.FromEmail == "" || !strings.Contains(input.FromEmail, "@") {
		return nil, fmt.Errorf("valid from_email is required")
	}
	if input.DelayPolicy == "" {
		input.DelayPolicy = domain.DelayNone
	}

	c := &domain.Campaign{
		Name:            input.Name,
		TemplateID:      input.TemplateID,
		TargetListID:    input.TargetListID,
		LandingDomain:   input.LandingDomain,
		LandingPath:     input.LandingPath,
		RedirectURL:     input.RedirectURL,
		FromName:        input.FromName,
		FromEmail:       input.FromEmail,
		ReplyTo:         input.ReplyTo,
		Status:          domain.CampaignDraft,
		DelayPolicy:     input.DelayPolicy,
		MinDelaySeconds: input.MinDelaySeconds,
		MaxDelaySeconds: input.MaxDelaySeconds,
	}
	if err := c.ValidateDelay(); err != nil {
		return nil, err
	}

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	logger.Info("campaign created", "campaign_id", id, "name", c.Name)
	return c, nil
}

// Launch schedules the campaign for dispatch. A nil launch time means
// now; the scheduler picks it up on its next poll. Only draft and
// scheduled campaigns can be launched.
func (s *Service) Launch(ctx context.Context, id int64, at *time.Time) error {
	launch := time.Now()
	if at != nil {
		launch = *at
	}
	err := s.repo.Schedule(ctx, id,
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled}, launch)
	if err != nil {
		return err
	}
	logger.Info("campaign launch requested", "campaign_id", id, "launch_at", launch.Format(time.RFC3339))
	return nil
}

// Pause freezes a running campaign. Queued send units stay queued; the
// workers simply stop claiming them until the campaign resumes.
func (s *Service) Pause(ctx context.Context, id int64) error {
	err := s.repo.Transition(ctx, id,
		[]domain.CampaignStatus{domain.CampaignRunning}, domain.CampaignPaused)
	if err != nil {
		return err
	}
	logger.Info("campaign paused", "campaign_id", id)
	return nil
}

// Resume puts a paused campaign back into dispatch.
func (s *Service) Resume(ctx context.Context, id int64) error {
	err := s.repo.Transition(ctx, id,
		[]domain.CampaignStatus{domain.CampaignPaused}, domain.CampaignRunning)
	if err != nil {
		return err
	}
	logger.Info("campaign resumed", "campaign_id", id)
	return nil
}

// Targets returns per-target dispatch and tracking state.
func (s *Service) Targets(ctx context.Context, id int64) ([]domain.CampaignTarget, error) {
	return s.repo.Targets(ctx, id)
}

// Jobs returns the campaign's send units and their outcomes.
func (s *Service) Jobs(ctx context.Context, id int64) ([]domain.EmailJob, error) {
	return s.repo.Jobs(ctx, id)
}

// Events returns the campaign's event log.
func (s *Service) Events(ctx context.Context, id int64, limit, offset int) ([]domain.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.Events(ctx, id, limit, offset)
}

// Stats returns the reporting rollup for a campaign.
func (s *Service) Stats(ctx context.Context, id int64) (*Stats, error) {
	return s.repo.Stats(ctx, id)
}
