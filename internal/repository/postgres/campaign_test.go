package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phishly/phishly/internal/domain"
	"github.com/phishly/phishly/internal/service/campaign"
)

func setupMockDB(t *testing.T) (*CampaignRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCampaignRepo(db), mock
}

var campaignCols = []string{
	"id", "name", "template_id", "target_list_id",
	"landing_domain", "landing_path", "redirect_url",
	"from_name", "from_email", "reply_to",
	"status", "delay_policy", "min_email_delay", "max_email_delay",
	"scheduled_launch", "created_at", "updated_at",
}

func campaignRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(campaignCols).AddRow(
		int64(7), "Q3 Audit", int64(1), int64(2),
		"phish.example", "login", "https://intranet.example/ok",
		"IT Support", "it@corp.example", "helpdesk@corp.example",
		"draft", "none", 0, 0,
		nil, now, now,
	)
}

func TestCampaignRepo_Get(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM campaigns").
		WithArgs(int64(7)).
		WillReturnRows(campaignRow())

	c, err := repo.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.ID)
	assert.Equal(t, "Q3 Audit", c.Name)
	assert.Equal(t, domain.CampaignDraft, c.Status)
	assert.Equal(t, "helpdesk@corp.example", c.ReplyTo)
	assert.Nil(t, c.ScheduledLaunch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_GetNotFound(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM campaigns").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(campaignCols))

	_, err := repo.Get(context.Background(), 404)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCampaignRepo_Create(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery("INSERT INTO campaigns").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := repo.Create(context.Background(), &domain.Campaign{
		Name: "Test", TemplateID: 1, TargetListID: 2,
		FromEmail: "it@corp.example", Status: domain.CampaignDraft,
		DelayPolicy: domain.DelayNone,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestCampaignRepo_TransitionSuccess(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Transition(context.Background(), 7,
		[]domain.CampaignStatus{domain.CampaignRunning}, domain.CampaignPaused)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_TransitionInvalid(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Transition(context.Background(), 7,
		[]domain.CampaignStatus{domain.CampaignRunning}, domain.CampaignPaused)
	assert.ErrorIs(t, err, campaign.ErrInvalidTransition)
}

func TestCampaignRepo_TransitionNotFound(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.Transition(context.Background(), 404,
		[]domain.CampaignStatus{domain.CampaignRunning}, domain.CampaignPaused)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCampaignRepo_Schedule(t *testing.T) {
	repo, mock := setupMockDB(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Schedule(context.Background(), 7,
		[]domain.CampaignStatus{domain.CampaignDraft}, at)
	assert.NoError(t, err)
}

func TestCampaignRepo_Stats(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count", "pending", "sent", "opened", "clicked", "submitted"}).
			AddRow(10, 2, 3, 2, 2, 1))
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"failed"}).AddRow(1))

	st, err := repo.Stats(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 10, st.Targets)
	assert.Equal(t, 3, st.Sent)
	assert.Equal(t, 1, st.Submitted)
	assert.Equal(t, 1, st.JobsFailed)
}

func TestCampaignRepo_Targets(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT id, campaign_id, target_id, token, status, created_at").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "target_id", "token", "status", "created_at"}).
			AddRow(int64(1), int64(7), int64(101), "tokA", "sent", time.Now()).
			AddRow(int64(2), int64(7), int64(102), "tokB", "clicked", time.Now()))

	targets, err := repo.Targets(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, domain.StatusClicked, targets[1].Status)
}
