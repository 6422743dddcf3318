package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/phishly/phishly/internal/domain"
	"github.com/phishly/phishly/internal/pkg/distlock"
	"github.com/phishly/phishly/internal/pkg/logger"
	"github.com/phishly/phishly/internal/token"
)

const (
	// DefaultPollInterval is how often the scheduler checks for campaigns
	// whose launch time has arrived.
	DefaultPollInterval = 15 * time.Second

	// completionCheckInterval is how often running campaigns are checked
	// for having drained their job queue.
	completionCheckInterval = 30 * time.Second

	// launchLockTTL bounds how long one scheduler instance may hold a
	// campaign launch lock.
	launchLockTTL = 10 * time.Minute
)

// Scheduler polls for campaigns whose launch time has arrived, materializes
// their dispatch state (one CampaignTarget with a token per target, one
// EmailJob per pending CampaignTarget), and marks drained campaigns
// completed. Multiple instances coordinate through distributed locks.
type Scheduler struct {
	db          *sql.DB
	redisClient *redis.Client // optional; nil falls back to PG advisory locks
	tokens      token.Generator
	workerID    string

	pollInterval time.Duration
	rnd          *rand.Rand

	// Stats
	campaignsLaunched int64
	jobsEnqueued      int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// New creates a scheduler. The token generator must be the same one used
// by the tracking layer so tokens resolve across services.
func New(db *sql.DB, tokens token.Generator) *Scheduler {
	return &Scheduler{
		db:           db,
		tokens:       tokens,
		workerID:     fmt.Sprintf("scheduler-%s", uuid.New().String()[:8]),
		pollInterval: DefaultPollInterval,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRedisClient switches campaign launch locking to Redis. Without it
// the scheduler uses PostgreSQL advisory locks.
func (s *Scheduler) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

// SetPollInterval overrides the default poll interval.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// Start begins the polling loops.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	logger.Info("scheduler starting", "worker_id", s.workerID, "poll_interval", s.pollInterval.String())

	s.wg.Add(2)
	go s.launchLoop()
	go s.completionLoop()
	return nil
}

// Stop halts the loops and waits for in-flight work to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	logger.Info("scheduler stopped",
		"campaigns_launched", atomic.LoadInt64(&s.campaignsLaunched),
		"jobs_enqueued", atomic.LoadInt64(&s.jobsEnqueued))
}

func (s *Scheduler) launchLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.processDueCampaigns()
		}
	}
}

func (s *Scheduler) completionLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(completionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.completeDrainedCampaigns()
		}
	}
}

// processDueCampaigns finds scheduled campaigns whose launch time has
// arrived and launches each one.
func (s *Scheduler) processDueCampaigns() {
	ctx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_list_id, delay_policy, min_email_delay, max_email_delay,
		       COALESCE(scheduled_launch, NOW())
		FROM campaigns
		WHERE status = 'scheduled'
		  AND (scheduled_launch IS NULL OR scheduled_launch <= NOW())
		ORDER BY scheduled_launch ASC NULLS FIRST
		LIMIT 10
	`)
	if err != nil {
		logger.Error("fetching due campaigns failed", "error", err.Error())
		return
	}
	defer rows.Close()

	type dueCampaign struct {
		c      domain.Campaign
		launch time.Time
	}
	var due []dueCampaign
	for rows.Next() {
		var d dueCampaign
		if err := rows.Scan(&d.c.ID, &d.c.TargetListID, &d.c.DelayPolicy,
			&d.c.MinDelaySeconds, &d.c.MaxDelaySeconds, &d.launch); err != nil {
			logger.Error("scanning due campaign failed", "error", err.Error())
			continue
		}
		due = append(due, d)
	}

	for _, d := range due {
		s.launchCampaign(ctx, &d.c, d.launch)
	}
}

// launchCampaign moves one campaign to running and enqueues its send
// units. Safe to run concurrently across instances and safe to re-run:
// existing CampaignTargets and jobs are never duplicated, and targets
// already past pending are never re-enqueued.
func (s *Scheduler) launchCampaign(ctx context.Context, c *domain.Campaign, launch time.Time) {
	lock := distlock.NewLock(s.redisClient, s.db, fmt.Sprintf("campaign:launch:%d", c.ID), launchLockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Error("campaign launch lock failed", "campaign_id", c.ID, "error", err.Error())
		return
	}
	if !acquired {
		return
	}
	defer lock.Release(ctx)

	result, err := s.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'running', updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
	`, c.ID)
	if err != nil {
		logger.Error("marking campaign running failed", "campaign_id", c.ID, "error", err.Error())
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		// Another instance got here first, or the campaign was paused.
		return
	}

	if err := s.ensureCampaignTargets(ctx, c); err != nil {
		logger.Error("materializing campaign targets failed", "campaign_id", c.ID, "error", err.Error())
		return
	}

	queued, err := s.enqueuePending(ctx, c, launch)
	if err != nil {
		logger.Error("enqueuing send units failed", "campaign_id", c.ID, "error", err.Error())
		return
	}

	if queued == 0 {
		// Nothing to send. An empty target list completes immediately.
		var remaining int
		s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM email_jobs j
			JOIN campaign_targets ct ON ct.id = j.campaign_target_id
			WHERE ct.campaign_id = $1 AND j.status IN ('pending', 'sending')
		`, c.ID).Scan(&remaining)
		if remaining == 0 {
			s.db.ExecContext(ctx, `
				UPDATE campaigns SET status = 'completed', updated_at = NOW() WHERE id = $1
			`, c.ID)
			logger.Info("campaign completed with no eligible targets", "campaign_id", c.ID)
			return
		}
	}

	atomic.AddInt64(&s.campaignsLaunched, 1)
	atomic.AddInt64(&s.jobsEnqueued, int64(queued))
	logger.Info("campaign launched", "campaign_id", c.ID, "jobs_enqueued", queued)
}

// ensureCampaignTargets creates the CampaignTarget row, with its token,
// for every target on the campaign's list. Existing rows are left alone
// so tokens stay stable across repeated launches.
func (s *Scheduler) ensureCampaignTargets(ctx context.Context, c *domain.Campaign) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id FROM targets t
		WHERE t.list_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM campaign_targets ct
			WHERE ct.campaign_id = $2 AND ct.target_id = t.id
		  )
		ORDER BY t.id
	`, c.TargetListID, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var targetIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		targetIDs = append(targetIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, targetID := range targetIDs {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO campaign_targets (campaign_id, target_id, token, status, created_at)
			VALUES ($1, $2, $3, 'pending', NOW())
			ON CONFLICT (campaign_id, target_id) DO NOTHING
		`, c.ID, targetID, s.tokens.Token(c.ID, targetID))
		if err != nil {
			return err
		}
	}
	return nil
}

// enqueuePending creates one EmailJob per pending CampaignTarget that
// does not already have one, with send times per the delay policy.
func (s *Scheduler) enqueuePending(ctx context.Context, c *domain.Campaign, launch time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ct.id FROM campaign_targets ct
		WHERE ct.campaign_id = $1
		  AND ct.status = 'pending'
		  AND NOT EXISTS (SELECT 1 FROM email_jobs j WHERE j.campaign_target_id = ct.id)
		ORDER BY ct.id
	`, c.ID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var ctIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		ctIDs = append(ctIDs, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	times := sendTimes(c, len(ctIDs), launch, s.rnd)
	queued := 0
	for i, ctID := range ctIDs {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO email_jobs (campaign_target_id, status, scheduled_at, attempts, created_at)
			VALUES ($1, 'pending', $2, 0, NOW())
		`, ctID, times[i])
		if err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

// completeDrainedCampaigns marks running campaigns completed once every
// job has reached a terminal state.
func (s *Scheduler) completeDrainedCampaigns() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id,
		       COALESCE(SUM(CASE WHEN j.status = 'sent' THEN 1 ELSE 0 END), 0) AS sent,
		       COALESCE(SUM(CASE WHEN j.status = 'failed' THEN 1 ELSE 0 END), 0) AS failed
		FROM campaigns c
		JOIN campaign_targets ct ON ct.campaign_id = c.id
		JOIN email_jobs j ON j.campaign_target_id = ct.id
		WHERE c.status = 'running'
		GROUP BY c.id
		HAVING COALESCE(SUM(CASE WHEN j.status IN ('pending', 'sending') THEN 1 ELSE 0 END), 0) = 0
	`)
	if err != nil {
		logger.Error("completion check failed", "error", err.Error())
		return
	}
	defer rows.Close()

	for rows.Next() {
		var campaignID int64
		var sent, failed int
		if err := rows.Scan(&campaignID, &sent, &failed); err != nil {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `
			UPDATE campaigns SET status = 'completed', updated_at = NOW()
			WHERE id = $1 AND status = 'running'
		`, campaignID); err == nil {
			logger.Info("campaign completed", "campaign_id", campaignID, "sent", sent, "failed", failed)
		}
	}
}
