package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/phishly/phishly/internal/domain"
	"github.com/phishly/phishly/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, name, template_id, target_list_id,
	COALESCE(landing_domain, ''), COALESCE(landing_path, ''), COALESCE(redirect_url, ''),
	COALESCE(from_name, ''), from_email, COALESCE(reply_to, ''),
	status, delay_policy, min_email_delay, max_email_delay,
	scheduled_launch, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.Name, &c.TemplateID, &c.TargetListID,
		&c.LandingDomain, &c.LandingPath, &c.RedirectURL,
		&c.FromName, &c.FromEmail, &c.ReplyTo,
		&c.Status, &c.DelayPolicy, &c.MinDelaySeconds, &c.MaxDelaySeconds,
		&c.ScheduledLaunch, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id int64) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, f.Status)
		argIdx++
	}
	if f.Search != "" {
		where = append(where, fmt.Sprintf("name ILIKE $%d", argIdx))
		args = append(args, "%"+f.Search+"%")
		argIdx++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM campaigns WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM campaigns
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, campaignColumns, cond, argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO campaigns (
			name, template_id, target_list_id,
			landing_domain, landing_path, redirect_url,
			from_name, from_email, reply_to,
			status, delay_policy, min_email_delay, max_email_delay,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING id
	`, c.Name, c.TemplateID, c.TargetListID,
		c.LandingDomain, c.LandingPath, c.RedirectURL,
		c.FromName, c.FromEmail, c.ReplyTo,
		c.Status, c.DelayPolicy, c.MinDelaySeconds, c.MaxDelaySeconds,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create campaign: %w", err)
	}
	return id, nil
}

func (r *CampaignRepo) Transition(ctx context.Context, id int64, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, to, pq.Array(fromStrs))
	if err != nil {
		return fmt.Errorf("transition campaign: %w", err)
	}
	return r.transitionOutcome(ctx, id, result)
}

func (r *CampaignRepo) Schedule(ctx context.Context, id int64, from []domain.CampaignStatus, at time.Time) error {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'scheduled', scheduled_launch = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, at, pq.Array(fromStrs))
	if err != nil {
		return fmt.Errorf("schedule campaign: %w", err)
	}
	return r.transitionOutcome(ctx, id, result)
}

// transitionOutcome maps a zero-row conditional update to the right
// sentinel: missing campaign or disallowed transition.
func (r *CampaignRepo) transitionOutcome(ctx context.Context, id int64, result sql.Result) error {
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("transition check: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return campaign.ErrInvalidTransition
}

func (r *CampaignRepo) Targets(ctx context.Context, campaignID int64) ([]domain.CampaignTarget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, target_id, token, status, created_at
		FROM campaign_targets
		WHERE campaign_id = $1
		ORDER BY id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign targets: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignTarget
	for rows.Next() {
		var ct domain.CampaignTarget
		if err := rows.Scan(&ct.ID, &ct.CampaignID, &ct.TargetID, &ct.Token, &ct.Status, &ct.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Jobs(ctx context.Context, campaignID int64) ([]domain.EmailJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT j.id, j.campaign_target_id, j.status, j.scheduled_at, j.attempts,
		       COALESCE(j.error_message, ''), j.first_attempt_at, j.completed_at, j.created_at
		FROM email_jobs j
		JOIN campaign_targets ct ON ct.id = j.campaign_target_id
		WHERE ct.campaign_id = $1
		ORDER BY j.id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailJob
	for rows.Next() {
		var j domain.EmailJob
		if err := rows.Scan(&j.ID, &j.CampaignTargetID, &j.Status, &j.ScheduledAt, &j.Attempts,
			&j.LastError, &j.FirstAttemptAt, &j.CompletedAt, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Events(ctx context.Context, campaignID int64, limit, offset int) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.campaign_target_id, e.kind,
		       COALESCE(e.ip_address, ''), COALESCE(e.user_agent, ''),
		       COALESCE(e.browser, ''), COALESCE(e.os, ''), COALESCE(e.device_type, ''),
		       e.form_data, e.created_at
		FROM events e
		JOIN campaign_targets ct ON ct.id = e.campaign_target_id
		WHERE ct.campaign_id = $1
		ORDER BY e.created_at ASC, e.id ASC
		LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("campaign events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Stats(ctx context.Context, campaignID int64) (*campaign.Stats, error) {
	st := &campaign.Stats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'opened' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'clicked' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'submitted' THEN 1 ELSE 0 END), 0)
		FROM campaign_targets
		WHERE campaign_id = $1
	`, campaignID).Scan(&st.Targets, &st.Pending, &st.Sent, &st.Opened, &st.Clicked, &st.Submitted)
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN j.status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM email_jobs j
		JOIN campaign_targets ct ON ct.id = j.campaign_target_id
		WHERE ct.campaign_id = $1
	`, campaignID).Scan(&st.JobsFailed)
	if err != nil {
		return nil, fmt.Errorf("campaign job stats: %w", err)
	}
	return st, nil
}
