package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/phishly/phishly/internal/domain"
	"github.com/phishly/phishly/internal/tracking"
)

// TrackingRepo implements tracking.Store and tracking.CampaignSource
// against PostgreSQL. It is the only write path for events and the only
// status raiser outside the send workers.
type TrackingRepo struct{ db *sql.DB }

// NewTrackingRepo creates a Postgres-backed tracking store.
func NewTrackingRepo(db *sql.DB) *TrackingRepo { return &TrackingRepo{db: db} }

// CampaignTargetByToken resolves a token to its CampaignTarget. Unknown
// tokens map to tracking.ErrUnknownToken.
func (r *TrackingRepo) CampaignTargetByToken(ctx context.Context, token string) (*domain.CampaignTarget, error) {
	ct := &domain.CampaignTarget{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, target_id, token, status, created_at
		FROM campaign_targets
		WHERE token = $1
	`, token).Scan(&ct.ID, &ct.CampaignID, &ct.TargetID, &ct.Token, &ct.Status, &ct.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, tracking.ErrUnknownToken
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	return ct, nil
}

// CampaignByToken resolves a token to its campaign, for landing page
// selection and redirects.
func (r *TrackingRepo) CampaignByToken(ctx context.Context, token string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = (SELECT campaign_id FROM campaign_targets WHERE token = $1)
	`, token))
	if err == sql.ErrNoRows {
		return nil, tracking.ErrUnknownToken
	}
	if err != nil {
		return nil, fmt.Errorf("campaign by token: %w", err)
	}
	return c, nil
}

// AppendEvent inserts one event row. Form data is stored as JSONB.
func (r *TrackingRepo) AppendEvent(ctx context.Context, ev *domain.Event) error {
	var formJSON []byte
	if len(ev.FormData) > 0 {
		var err error
		if formJSON, err = json.Marshal(ev.FormData); err != nil {
			return fmt.Errorf("marshal form data: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (
			campaign_target_id, kind, ip_address, user_agent,
			browser, os, device_type, form_data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, ev.CampaignTargetID, ev.Kind, ev.IPAddress, ev.UserAgent,
		ev.Browser, ev.OS, ev.DeviceType, nullableJSON(formJSON))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// RaiseStatus advances the target status to the maximum of its current
// value and the requested one. The rank comparison runs inside the
// UPDATE, so concurrent out-of-order notifications can never regress a
// status.
func (r *TrackingRepo) RaiseStatus(ctx context.Context, campaignTargetID int64, to domain.TargetStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_targets
		SET status = $2
		WHERE id = $1
		  AND CASE status
		        WHEN 'pending'   THEN 0
		        WHEN 'sent'      THEN 1
		        WHEN 'opened'    THEN 2
		        WHEN 'clicked'   THEN 3
		        WHEN 'submitted' THEN 4
		      END
		    < CASE $2
		        WHEN 'pending'   THEN 0
		        WHEN 'sent'      THEN 1
		        WHEN 'opened'    THEN 2
		        WHEN 'clicked'   THEN 3
		        WHEN 'submitted' THEN 4
		      END
	`, campaignTargetID, to)
	if err != nil {
		return fmt.Errorf("raise status: %w", err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// scanEvent reads one event row, decoding the JSONB form data column.
func scanEvent(row interface{ Scan(...any) error }) (*domain.Event, error) {
	ev := &domain.Event{}
	var formJSON []byte
	err := row.Scan(&ev.ID, &ev.CampaignTargetID, &ev.Kind,
		&ev.IPAddress, &ev.UserAgent,
		&ev.Browser, &ev.OS, &ev.DeviceType,
		&formJSON, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(formJSON) > 0 {
		if err := json.Unmarshal(formJSON, &ev.FormData); err != nil {
			return nil, fmt.Errorf("decode form data: %w", err)
		}
	}
	return ev, nil
}
