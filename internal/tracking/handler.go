package tracking

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/phishly/phishly/internal/domain"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// ingestTimeout bounds the persistence work of one tracking request; the
// response goes out regardless.
const ingestTimeout = 10 * time.Second

// CampaignSource resolves the campaign behind a token, for landing page
// selection and post-submission redirects. Implementations return
// ErrUnknownToken for tokens that do not resolve.
type CampaignSource interface {
	CampaignByToken(ctx context.Context, token string) (*domain.Campaign, error)
}

// Handler is the public HTTP surface of the tracking service. Every
// response is identical for resolved and unresolved tokens.
type Handler struct {
	ingest    *Ingestor
	pages     *PageDir
	campaigns CampaignSource
}

// NewHandler creates the tracking HTTP handler.
func NewHandler(ingest *Ingestor, pages *PageDir, campaigns CampaignSource) *Handler {
	return &Handler{ingest: ingest, pages: pages, campaigns: campaigns}
}

// Routes builds the public router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.handleHealth)
	r.Get("/track/open", h.handleOpen)
	r.Post("/api/submit", h.handleSubmit)
	r.Get("/*", h.handleLanding)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleOpen serves the tracking pixel. The pixel is returned no matter
// what the token resolves to.
func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ingestTimeout)
	defer cancel()

	h.ingest.RegisterOpen(ctx, r.URL.Query().Get("t"), requestMeta(r))

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// handleLanding serves landing page content and records the click.
// Static assets bypass tracking entirely.
func (h *Handler) handleLanding(w http.ResponseWriter, r *http.Request) {
	urlPath := chi.URLParam(r, "*")
	token := r.URL.Query().Get("t")

	if IsStaticAsset(urlPath) {
		h.servePage(w, r, token, urlPath)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ingestTimeout)
	defer cancel()
	h.ingest.RegisterClick(ctx, token, requestMeta(r))

	h.servePage(w, r, token, urlPath)
}

// handleSubmit records a form post and answers generically. The response
// never distinguishes a resolved token from an unknown one.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	token := r.URL.Query().Get("t")
	if token == "" {
		token = r.PostFormValue("t")
	}

	fields := make(map[string]string, len(r.PostForm))
	for name := range r.PostForm {
		if name == "t" || name == "_token" {
			continue
		}
		fields[name] = r.PostFormValue(name)
	}

	ctx, cancel := context.WithTimeout(r.Context(), ingestTimeout)
	defer cancel()
	h.ingest.RegisterSubmission(ctx, token, fields, requestMeta(r))

	if c, err := h.campaigns.CampaignByToken(ctx, token); err == nil && c.RedirectURL != "" {
		http.Redirect(w, r, c.RedirectURL, http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"success","message":"Form received"}`))
}

// servePage resolves the landing page for the token's campaign (or the
// anonymous deployment) and streams it.
func (h *Handler) servePage(w http.ResponseWriter, r *http.Request, token, urlPath string) {
	var campaignID int64
	if token != "" {
		if c, err := h.campaigns.CampaignByToken(r.Context(), token); err == nil {
			campaignID = c.ID
		}
	}

	file, err := h.pages.Resolve(campaignID, urlPath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, file)
}
