package worker

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/phishly/phishly/internal/domain"
	"github.com/phishly/phishly/internal/mailing"
	"github.com/phishly/phishly/internal/pkg/logger"
)

// DefaultPollInterval is how long an idle worker waits before polling the
// job queue again.
const DefaultPollInterval = 2 * time.Second

// SendPool runs N workers that each claim one EmailJob at a time, render
// the email for its target, transmit it, and record the outcome. Claiming
// uses FOR UPDATE SKIP LOCKED so instances never contend on the same job,
// and jobs stuck in 'sending' past the attempt deadline are reclaimed.
type SendPool struct {
	db           *sql.DB
	sender       mailing.Sender
	renderer     *mailing.Renderer
	limiter      *RateLimiter
	workerID     string
	numWorkers   int
	pollInterval time.Duration

	// Stats
	totalSent    int64
	totalFailed  int64
	totalRetried int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewSendPool creates a worker pool. The limiter may be nil-backed to
// disable rate limiting.
func NewSendPool(db *sql.DB, sender mailing.Sender, renderer *mailing.Renderer, limiter *RateLimiter, numWorkers int) *SendPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &SendPool{
		db:           db,
		sender:       sender,
		renderer:     renderer,
		limiter:      limiter,
		workerID:     fmt.Sprintf("sender-%s", uuid.New().String()[:8]),
		numWorkers:   numWorkers,
		pollInterval: DefaultPollInterval,
	}
}

// SetPollInterval overrides the idle poll interval.
func (p *SendPool) SetPollInterval(d time.Duration) {
	p.pollInterval = d
}

// Start launches the workers.
func (p *SendPool) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	logger.Info("send pool starting", "worker_id", p.workerID, "workers", p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop signals the workers and waits for in-flight sends to finish.
func (p *SendPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	logger.Info("send pool stopped",
		"sent", atomic.LoadInt64(&p.totalSent),
		"failed", atomic.LoadInt64(&p.totalFailed),
		"retried", atomic.LoadInt64(&p.totalRetried))
}

// Stats returns send counters.
func (p *SendPool) Stats() map[string]int64 {
	return map[string]int64{
		"sent":    atomic.LoadInt64(&p.totalSent),
		"failed":  atomic.LoadInt64(&p.totalFailed),
		"retried": atomic.LoadInt64(&p.totalRetried),
	}
}

func (p *SendPool) worker(workerNum int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
			job, err := p.claimJob()
			if err != nil {
				logger.Error("claiming job failed", "worker", workerNum, "error", err.Error())
				time.Sleep(time.Second)
				continue
			}
			if job == nil {
				select {
				case <-p.ctx.Done():
					return
				case <-time.After(p.pollInterval):
				}
				continue
			}
			p.processJob(job)
		}
	}
}

// claimedJob is one send unit with everything needed to render and
// transmit it.
type claimedJob struct {
	JobID            int64
	CampaignTargetID int64
	Attempts         int
	Token            string
	TargetStatus     domain.TargetStatus
	Campaign         domain.Campaign
	Target           domain.Target
	Tpl              mailing.Template
}

// claimJob atomically claims the next eligible job. Eligible means:
// scheduled time arrived, campaign still running (pausing a campaign
// freezes its queue in place), and either pending or stuck in 'sending'
// past the attempt deadline. Returns nil with no error when the queue is
// empty.
func (p *SendPool) claimJob() (*claimedJob, error) {
	ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	row := p.db.QueryRowContext(ctx, `
		WITH claimed AS (
			UPDATE email_jobs
			SET status = 'sending',
			    worker_id = $1,
			    locked_at = NOW(),
			    first_attempt_at = COALESCE(first_attempt_at, NOW())
			WHERE id IN (
				SELECT j.id FROM email_jobs j
				JOIN campaign_targets ct ON ct.id = j.campaign_target_id
				JOIN campaigns c ON c.id = ct.campaign_id
				WHERE j.scheduled_at <= NOW()
				  AND c.status = 'running'
				  AND (j.status = 'pending'
				       OR (j.status = 'sending' AND j.locked_at < NOW() - INTERVAL '5 minutes'))
				ORDER BY j.scheduled_at ASC
				LIMIT 1
				FOR UPDATE OF j SKIP LOCKED
			)
			RETURNING id, campaign_target_id, attempts
		)
		SELECT cl.id, cl.campaign_target_id, cl.attempts,
		       ct.token, ct.status,
		       c.id, c.name, COALESCE(c.landing_domain, ''), c.landing_path, c.redirect_url,
		       c.from_name, c.from_email, COALESCE(c.reply_to, ''),
		       t.id, t.email, COALESCE(t.salutation, ''), COALESCE(t.first_name, ''),
		       COALESCE(t.last_name, ''), COALESCE(t.position, ''), COALESCE(t.department, ''),
		       tpl.subject, tpl.body_html, COALESCE(tpl.body_text, '')
		FROM claimed cl
		JOIN campaign_targets ct ON ct.id = cl.campaign_target_id
		JOIN campaigns c ON c.id = ct.campaign_id
		JOIN targets t ON t.id = ct.target_id
		JOIN templates tpl ON tpl.id = c.template_id
	`, p.workerID)

	var job claimedJob
	err := row.Scan(
		&job.JobID, &job.CampaignTargetID, &job.Attempts,
		&job.Token, &job.TargetStatus,
		&job.Campaign.ID, &job.Campaign.Name, &job.Campaign.LandingDomain, &job.Campaign.LandingPath, &job.Campaign.RedirectURL,
		&job.Campaign.FromName, &job.Campaign.FromEmail, &job.Campaign.ReplyTo,
		&job.Target.ID, &job.Target.Email, &job.Target.Salutation, &job.Target.FirstName,
		&job.Target.LastName, &job.Target.Position, &job.Target.Department,
		&job.Tpl.Subject, &job.Tpl.BodyHTML, &job.Tpl.BodyText,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// processJob renders and transmits one claimed job and records the
// outcome. Never returns an error: every failure path ends in either a
// retry or a terminal failed job.
func (p *SendPool) processJob(job *claimedJob) {
	// A target already at or past 'sent' received this email; a stale
	// duplicate claim must not send it again.
	if job.TargetStatus.Rank() >= domain.StatusSent.Rank() {
		p.discardDuplicate(job)
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, domain.SendDeadline)
	defer cancel()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			p.markFailed(job, fmt.Errorf("rate limit wait: %w", err))
			return
		}
	}

	rendered, err := p.renderer.Render(job.Tpl, &job.Campaign, &job.Target, job.Token)
	if err != nil {
		p.markFailed(job, fmt.Errorf("render: %w", err))
		return
	}

	err = p.sender.Send(ctx, &mailing.Message{
		To:        job.Target.Email,
		FromName:  job.Campaign.FromName,
		FromEmail: job.Campaign.FromEmail,
		ReplyTo:   job.Campaign.ReplyTo,
		Subject:   rendered.Subject,
		BodyHTML:  rendered.BodyHTML,
		BodyText:  rendered.BodyText,
	})
	if err != nil {
		p.markFailed(job, err)
		return
	}
	p.markSent(job)
}

// discardDuplicate closes a job whose email already went out.
func (p *SendPool) discardDuplicate(job *claimedJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.db.ExecContext(ctx, `
		UPDATE email_jobs
		SET status = 'sent', completed_at = NOW()
		WHERE id = $1
	`, job.JobID)
	logger.Warn("duplicate send discarded",
		"job_id", job.JobID, "campaign_target_id", job.CampaignTargetID)
}

// sentRecordAttempts is how many times the sent outcome is written before
// giving up. The email is already on the wire at this point, so losing the
// record means a duplicate send after the stale-claim reclaim.
const sentRecordAttempts = 3

// markSent records a successful delivery: terminal job state, an
// email_sent event, and the pending-to-sent status transition, all in one
// transaction so a partial write cannot strand the target at 'pending'
// behind a terminal job. Outcome recording uses a fresh context so a pool
// shutdown mid-send still persists the result.
func (p *SendPool) markSent(job *claimedJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	for attempt := 1; attempt <= sentRecordAttempts; attempt++ {
		if err = p.recordSent(ctx, job); err == nil {
			atomic.AddInt64(&p.totalSent, 1)
			logger.Info("email sent",
				"job_id", job.JobID,
				"campaign_id", job.Campaign.ID,
				"email", job.Target.Email)
			return
		}
		logger.Warn("recording sent outcome failed",
			"job_id", job.JobID, "attempt", attempt, "error", err.Error())
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}
	logger.Error("sent outcome lost, job stays claimed for reclaim",
		"job_id", job.JobID,
		"campaign_target_id", job.CampaignTargetID,
		"error", err.Error())
}

func (p *SendPool) recordSent(ctx context.Context, job *claimedJob) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE email_jobs
		SET status = 'sent', completed_at = NOW(), error_message = ''
		WHERE id = $1
	`, job.JobID); err != nil {
		return fmt.Errorf("job: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (campaign_target_id, kind, created_at)
		VALUES ($1, 'email_sent', NOW())
	`, job.CampaignTargetID); err != nil {
		return fmt.Errorf("event: %w", err)
	}
	// Monotonic guard: only a pending target advances to sent.
	if _, err := tx.ExecContext(ctx, `
		UPDATE campaign_targets
		SET status = 'sent'
		WHERE id = $1 AND status = 'pending'
	`, job.CampaignTargetID); err != nil {
		return fmt.Errorf("target status: %w", err)
	}
	return tx.Commit()
}

// markFailed records a failed attempt. Attempts below the cap are pushed
// back onto the queue with a backoff; the rest become terminal failures.
func (p *SendPool) markFailed(job *claimedJob, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if job.Attempts+1 >= domain.MaxSendAttempts {
		_, err := p.db.ExecContext(ctx, `
			UPDATE email_jobs
			SET status = 'failed', attempts = attempts + 1,
			    error_message = $2, completed_at = NOW()
			WHERE id = $1
		`, job.JobID, cause.Error())
		if err != nil {
			logger.Error("marking job failed errored", "job_id", job.JobID, "error", err.Error())
			return
		}
		atomic.AddInt64(&p.totalFailed, 1)
		logger.Error("send permanently failed",
			"job_id", job.JobID,
			"campaign_id", job.Campaign.ID,
			"email", job.Target.Email,
			"attempts", job.Attempts+1,
			"error", cause.Error())
		return
	}

	_, err := p.db.ExecContext(ctx, `
		UPDATE email_jobs
		SET status = 'pending', attempts = attempts + 1,
		    error_message = $2, scheduled_at = NOW() + $3 * INTERVAL '1 second',
		    locked_at = NULL
		WHERE id = $1
	`, job.JobID, cause.Error(), int(domain.RetryBackoff.Seconds()))
	if err != nil {
		logger.Error("requeueing job failed", "job_id", job.JobID, "error", err.Error())
		return
	}
	atomic.AddInt64(&p.totalRetried, 1)
	logger.Warn("send failed, retrying",
		"job_id", job.JobID,
		"attempt", job.Attempts+1,
		"error", cause.Error())
}
