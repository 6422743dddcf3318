package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phishly/phishly/internal/domain"
	"github.com/phishly/phishly/internal/tracking"
)

func setupTrackingRepo(t *testing.T) (*TrackingRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTrackingRepo(db), mock
}

func TestTrackingRepo_CampaignTargetByToken(t *testing.T) {
	repo, mock := setupTrackingRepo(t)

	mock.ExpectQuery("SELECT id, campaign_id, target_id, token, status, created_at").
		WithArgs("tok-abc").
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "target_id", "token", "status", "created_at"}).
			AddRow(int64(21), int64(7), int64(101), "tok-abc", "sent", time.Now()))

	ct, err := repo.CampaignTargetByToken(context.Background(), "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, int64(21), ct.ID)
	assert.Equal(t, domain.StatusSent, ct.Status)
}

func TestTrackingRepo_UnknownToken(t *testing.T) {
	repo, mock := setupTrackingRepo(t)

	mock.ExpectQuery("SELECT id, campaign_id, target_id, token, status, created_at").
		WithArgs("bogus").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.CampaignTargetByToken(context.Background(), "bogus")
	assert.ErrorIs(t, err, tracking.ErrUnknownToken)
}

func TestTrackingRepo_AppendEventWithFormData(t *testing.T) {
	repo, mock := setupTrackingRepo(t)

	mock.ExpectExec("INSERT INTO events").
		WithArgs(int64(21), "credentials_captured", "10.0.0.9", "test-agent",
			"Chrome", "Windows", "desktop", []byte(`{"password":"hunter2"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AppendEvent(context.Background(), &domain.Event{
		CampaignTargetID: 21,
		Kind:             domain.EventCredentialsCaptured,
		IPAddress:        "10.0.0.9",
		UserAgent:        "test-agent",
		Browser:          "Chrome",
		OS:               "Windows",
		DeviceType:       "desktop",
		FormData:         map[string]string{"password": "hunter2"},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingRepo_AppendEventWithoutFormData(t *testing.T) {
	repo, mock := setupTrackingRepo(t)

	mock.ExpectExec("INSERT INTO events").
		WithArgs(int64(21), "email_opened", "10.0.0.9", "test-agent",
			"Chrome", "Windows", "desktop", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AppendEvent(context.Background(), &domain.Event{
		CampaignTargetID: 21,
		Kind:             domain.EventEmailOpened,
		IPAddress:        "10.0.0.9",
		UserAgent:        "test-agent",
		Browser:          "Chrome",
		OS:               "Windows",
		DeviceType:       "desktop",
	})
	assert.NoError(t, err)
}

// RaiseStatus compares ranks inside the UPDATE, so a lower target status
// simply affects zero rows.
func TestTrackingRepo_RaiseStatus(t *testing.T) {
	repo, mock := setupTrackingRepo(t)

	mock.ExpectExec("UPDATE campaign_targets").
		WithArgs(int64(21), "opened").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RaiseStatus(context.Background(), 21, domain.StatusOpened)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingRepo_RaiseStatusNoRegression(t *testing.T) {
	repo, mock := setupTrackingRepo(t)

	// Target already clicked; raising to opened matches zero rows and is
	// still not an error.
	mock.ExpectExec("UPDATE campaign_targets").
		WithArgs(int64(21), "opened").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RaiseStatus(context.Background(), 21, domain.StatusOpened)
	assert.NoError(t, err)
}
