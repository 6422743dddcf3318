package tracking

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phishly/phishly/internal/domain"
)

// memStore is an in-memory Store for unit testing.
type memStore struct {
	mu      sync.Mutex
	byToken map[string]*domain.CampaignTarget
	events  []*domain.Event
}

func newMemStore() *memStore {
	return &memStore{byToken: make(map[string]*domain.CampaignTarget)}
}

func (m *memStore) add(ct *domain.CampaignTarget) {
	m.byToken[ct.Token] = ct
}

func (m *memStore) CampaignTargetByToken(_ context.Context, token string) (*domain.CampaignTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct, ok := m.byToken[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	cp := *ct
	return &cp, nil
}

func (m *memStore) AppendEvent(_ context.Context, ev *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) RaiseStatus(_ context.Context, id int64, to domain.TargetStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ct := range m.byToken {
		if ct.ID == id {
			ct.Status = domain.MaxStatus(ct.Status, to)
		}
	}
	return nil
}

func (m *memStore) status(token string) domain.TargetStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byToken[token].Status
}

func (m *memStore) eventKinds() []domain.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]domain.EventKind, len(m.events))
	for i, ev := range m.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

var meta = domain.RequestMeta{IPAddress: "10.0.0.9", UserAgent: "test-agent"}

func TestIngestor_OpenAdvancesStatus(t *testing.T) {
	store := newMemStore()
	store.add(&domain.CampaignTarget{ID: 1, CampaignID: 5, Token: "tok1", Status: domain.StatusSent})
	ing := NewIngestor(store)

	ing.RegisterOpen(context.Background(), "tok1", meta)

	assert.Equal(t, domain.StatusOpened, store.status("tok1"))
	assert.Equal(t, []domain.EventKind{domain.EventEmailOpened}, store.eventKinds())
}

// Replaying the same open records a second event but leaves the status
// where it is.
func TestIngestor_DuplicateOpenIdempotentStatus(t *testing.T) {
	store := newMemStore()
	store.add(&domain.CampaignTarget{ID: 1, CampaignID: 5, Token: "tok1", Status: domain.StatusSent})
	ing := NewIngestor(store)

	ing.RegisterOpen(context.Background(), "tok1", meta)
	ing.RegisterOpen(context.Background(), "tok1", meta)

	assert.Len(t, store.eventKinds(), 2)
	assert.Equal(t, domain.StatusOpened, store.status("tok1"))
}

// A click notification arriving before its open must win: opened ranks
// below clicked and the status never regresses.
func TestIngestor_OutOfOrderClickThenOpen(t *testing.T) {
	store := newMemStore()
	store.add(&domain.CampaignTarget{ID: 1, CampaignID: 5, Token: "tok1", Status: domain.StatusPending})
	ing := NewIngestor(store)

	ing.RegisterClick(context.Background(), "tok1", meta)
	ing.RegisterOpen(context.Background(), "tok1", meta)

	assert.Equal(t, domain.StatusClicked, store.status("tok1"))
	assert.Equal(t,
		[]domain.EventKind{domain.EventLinkClicked, domain.EventEmailOpened},
		store.eventKinds())
}

func TestIngestor_UnknownTokenIsSilentNoop(t *testing.T) {
	store := newMemStore()
	store.add(&domain.CampaignTarget{ID: 1, CampaignID: 5, Token: "tok1", Status: domain.StatusSent})
	ing := NewIngestor(store)

	ing.RegisterOpen(context.Background(), "no-such-token", meta)
	ing.RegisterClick(context.Background(), "no-such-token", meta)
	ing.RegisterSubmission(context.Background(), "no-such-token", map[string]string{"a": "b"}, meta)

	assert.Empty(t, store.eventKinds())
	assert.Equal(t, domain.StatusSent, store.status("tok1"))
}

func TestIngestor_EmptyTokenIgnored(t *testing.T) {
	store := newMemStore()
	ing := NewIngestor(store)
	ing.RegisterOpen(context.Background(), "", meta)
	assert.Empty(t, store.eventKinds())
}

func TestIngestor_SubmissionClassification(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		want   domain.EventKind
	}{
		{"passwd field", map[string]string{"user": "jane", "passwd": "hunter2"}, domain.EventCredentialsCaptured},
		{"uppercase PASSWORD", map[string]string{"PASSWORD": "x"}, domain.EventCredentialsCaptured},
		{"pwd field", map[string]string{"pwd": "x"}, domain.EventCredentialsCaptured},
		{"secret field", map[string]string{"secret": "x"}, domain.EventCredentialsCaptured},
		{"plain comment form", map[string]string{"user": "jane", "comment": "hello"}, domain.EventFormSubmitted},
		{"empty form", map[string]string{}, domain.EventFormSubmitted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.add(&domain.CampaignTarget{ID: 1, CampaignID: 5, Token: "tok1", Status: domain.StatusClicked})
			NewIngestor(store).RegisterSubmission(context.Background(), "tok1", tt.fields, meta)

			kinds := store.eventKinds()
			require.Len(t, kinds, 1)
			assert.Equal(t, tt.want, kinds[0])
			assert.Equal(t, domain.StatusSubmitted, store.status("tok1"))
		})
	}
}

func TestIngestor_SubmissionPersistsFields(t *testing.T) {
	store := newMemStore()
	store.add(&domain.CampaignTarget{ID: 1, CampaignID: 5, Token: "tok1", Status: domain.StatusClicked})
	fields := map[string]string{"username": "jane", "password": "hunter2"}

	NewIngestor(store).RegisterSubmission(context.Background(), "tok1", fields, meta)

	require.Len(t, store.events, 1)
	assert.Equal(t, fields, store.events[0].FormData)
	assert.Equal(t, "10.0.0.9", store.events[0].IPAddress)
}

func TestIngestor_ConcurrentInterleavings(t *testing.T) {
	store := newMemStore()
	store.add(&domain.CampaignTarget{ID: 1, CampaignID: 5, Token: "tok1", Status: domain.StatusPending})
	ing := NewIngestor(store)

	var wg sync.WaitGroup
	ops := []func(){
		func() { ing.RegisterOpen(context.Background(), "tok1", meta) },
		func() { ing.RegisterClick(context.Background(), "tok1", meta) },
		func() { ing.RegisterOpen(context.Background(), "tok1", meta) },
		func() {
			ing.RegisterSubmission(context.Background(), "tok1", map[string]string{"x": "y"}, meta)
		},
	}
	for _, op := range ops {
		wg.Add(1)
		go func(f func()) { defer wg.Done(); f() }(op)
	}
	wg.Wait()

	// The final status is the maximum of everything requested, whatever
	// the interleaving.
	assert.Equal(t, domain.StatusSubmitted, store.status("tok1"))
	assert.Len(t, store.eventKinds(), 4)
}
