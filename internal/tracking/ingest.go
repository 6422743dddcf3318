// Package tracking is the public trust boundary of the engine: it turns
// anonymous pixel loads, link clicks, and form posts into durable events
// and monotonic status transitions, keyed solely by tracking token.
package tracking

import (
	"context"
	"errors"
	"strings"

	"github.com/phishly/phishly/internal/domain"
	"github.com/phishly/phishly/internal/pkg/logger"
)

// ErrUnknownToken is returned by Store implementations when a token does
// not resolve to a campaign target.
var ErrUnknownToken = errors.New("unknown tracking token")

// Store is the persistence surface the ingestor writes through. Status
// writes must be atomic compare-and-set-to-max so racing writers converge.
type Store interface {
	CampaignTargetByToken(ctx context.Context, token string) (*domain.CampaignTarget, error)
	AppendEvent(ctx context.Context, ev *domain.Event) error
	RaiseStatus(ctx context.Context, campaignTargetID int64, to domain.TargetStatus) error
}

// passwordMarkers are the field-name substrings identifying a credential
// submission. Matched case-insensitively against whole field names.
var passwordMarkers = map[string]bool{
	"password": true,
	"passwd":   true,
	"pass":     true,
	"pwd":      true,
	"secret":   true,
}

// Ingestor applies tracking interactions. Every method is safe for
// concurrent use and absorbs all failures: an unresolvable token is a
// silent no-op so callers cannot probe token validity, and internal
// errors are logged, never surfaced.
type Ingestor struct {
	store Store
}

// NewIngestor creates an ingestor over the given store.
func NewIngestor(store Store) *Ingestor {
	return &Ingestor{store: store}
}

// RegisterOpen records an email-open interaction.
func (i *Ingestor) RegisterOpen(ctx context.Context, token string, meta domain.RequestMeta) {
	i.register(ctx, token, domain.EventEmailOpened, domain.StatusOpened, meta, nil)
}

// RegisterClick records a landing-page click interaction.
func (i *Ingestor) RegisterClick(ctx context.Context, token string, meta domain.RequestMeta) {
	i.register(ctx, token, domain.EventLinkClicked, domain.StatusClicked, meta, nil)
}

// RegisterSubmission records a form post. Field names are inspected for
// password-like markers; a match records the submission as captured
// credentials. The full field set is persisted with the event.
func (i *Ingestor) RegisterSubmission(ctx context.Context, token string, fields map[string]string, meta domain.RequestMeta) {
	kind := domain.EventFormSubmitted
	for name := range fields {
		if passwordMarkers[strings.ToLower(name)] {
			kind = domain.EventCredentialsCaptured
			break
		}
	}
	i.register(ctx, token, kind, domain.StatusSubmitted, meta, fields)
}

func (i *Ingestor) register(ctx context.Context, token string, kind domain.EventKind, to domain.TargetStatus, meta domain.RequestMeta, fields map[string]string) {
	if token == "" {
		return
	}

	ct, err := i.store.CampaignTargetByToken(ctx, token)
	if errors.Is(err, ErrUnknownToken) {
		logger.Warn("tracking request with unresolved token",
			"token", token, "kind", string(kind), "ip", meta.IPAddress)
		return
	}
	if err != nil {
		logger.Error("token lookup failed", "token", token, "error", err.Error())
		return
	}

	ev := &domain.Event{
		CampaignTargetID: ct.ID,
		Kind:             kind,
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		Browser:          meta.Browser,
		OS:               meta.OS,
		DeviceType:       meta.DeviceType,
		FormData:         fields,
	}
	if err := i.store.AppendEvent(ctx, ev); err != nil {
		logger.Error("append event failed",
			"campaign_target_id", ct.ID, "kind", string(kind), "error", err.Error())
		// Fall through: the status transition is still worth attempting.
	}

	if err := i.store.RaiseStatus(ctx, ct.ID, to); err != nil {
		logger.Error("status transition failed",
			"campaign_target_id", ct.ID, "to", string(to), "error", err.Error())
		return
	}

	logger.Info("tracking interaction recorded",
		"kind", string(kind), "campaign_id", ct.CampaignID, "token", token)
}
