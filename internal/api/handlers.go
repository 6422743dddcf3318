package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/phishly/phishly/internal/pkg/httputil"
	"github.com/phishly/phishly/internal/service/campaign"
)

// Handlers holds the admin API endpoint implementations.
type Handlers struct {
	campaigns *campaign.Service
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

func campaignID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), input)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	campaigns, total, err := h.campaigns.List(r.Context(), campaign.ListFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaigns": campaigns, "total": total})
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}
	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, c)
}

// LaunchCampaign schedules a campaign for dispatch. An empty body or a
// missing launch_at means launch on the scheduler's next poll.
func (h *Handlers) LaunchCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}

	var body struct {
		LaunchAt string `json:"launch_at"`
	}
	if r.ContentLength > 0 && !httputil.Decode(w, r, &body) {
		return
	}

	var at *time.Time
	if body.LaunchAt != "" {
		parsed, err := time.Parse(time.RFC3339, body.LaunchAt)
		if err != nil {
			httputil.BadRequest(w, "launch_at must be RFC 3339")
			return
		}
		at = &parsed
	}

	if err := h.campaigns.Launch(r.Context(), id, at); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "scheduled"})
}

func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}
	if err := h.campaigns.Pause(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "paused"})
}

func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}
	if err := h.campaigns.Resume(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "running"})
}

func (h *Handlers) CampaignStats(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}
	st, err := h.campaigns.Stats(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, st)
}

func (h *Handlers) CampaignTargets(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}
	targets, err := h.campaigns.Targets(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"targets": targets})
}

func (h *Handlers) CampaignJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}
	jobs, err := h.campaigns.Jobs(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"jobs": jobs})
}

func (h *Handlers) CampaignEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	events, err := h.campaigns.Events(r.Context(), id, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"events": events})
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.NotFound(w, "campaign not found")
	case errors.Is(err, campaign.ErrInvalidTransition):
		httputil.Error(w, http.StatusConflict, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
