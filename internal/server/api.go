package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/l0p7/worryhero/internal/cachestore"
	"github.com/l0p7/worryhero/internal/generator"
	"github.com/l0p7/worryhero/internal/invalidation"
	"github.com/l0p7/worryhero/internal/profile"
	"github.com/l0p7/worryhero/internal/runtime"
)

const maxPhotoBody = 16 << 20

// Presenter supplies read-only views of acquisition state.
type Presenter interface {
	Snapshot() runtime.View
	Asset(id string) (payload string, state runtime.State, known bool)
}

// Photos is the personalization record as the API needs it.
type Photos interface {
	Photos() []string
	Step() profile.Step
	Degraded() bool
	Save(ctx context.Context, photos []string) (cachestore.PutOutcome, error)
}

// Resetter performs confirmed invalidations.
type Resetter interface {
	ResetIdentity(ctx context.Context, confirm invalidation.Confirmer) (bool, profile.Step, error)
	ResetAssets(ctx context.Context, confirm invalidation.Confirmer) (bool, error)
}

// API implements AppHTTP over the runtime.
type API struct {
	presenter Presenter
	photos    Photos
	resetter  Resetter
	logger    *slog.Logger
}

// NewAPI returns the HTTP facade for the presentation layer.
func NewAPI(logger *slog.Logger, presenter Presenter, photos Photos, resetter Resetter) (*API, error) {
	if presenter == nil || photos == nil || resetter == nil {
		return nil, errors.New("server: presenter, photos and resetter required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		presenter: presenter,
		photos:    photos,
		resetter:  resetter,
		logger:    logger.With(slog.String("agent", "api")),
	}, nil
}

func (a *API) ServeAssets(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.presenter.Snapshot())
}

// ServeAsset writes the decoded image for a resolved item. Loading items get
// 202 so clients can poll; placeholders and unknown ids get 404.
func (a *API) ServeAsset(w http.ResponseWriter, r *http.Request, id string) {
	payload, state, known := a.presenter.Asset(id)
	if !known {
		a.WriteError(w, http.StatusNotFound, fmt.Sprintf("item %q not found", id))
		return
	}
	switch state {
	case runtime.StateLoading:
		w.Header().Set("Retry-After", "1")
		a.writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "state": state})
		return
	case runtime.StatePlaceholder:
		a.writeJSON(w, http.StatusNotFound, map[string]any{"id": id, "state": state})
		return
	}

	mimeType, data, err := generator.DecodeDataURI(payload)
	if err != nil {
		a.logger.Error("cached asset undecodable", slog.String("item_id", id), slog.Any("error", err))
		a.WriteError(w, http.StatusInternalServerError, "asset undecodable")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		a.logger.Debug("asset write aborted", slog.String("item_id", id), slog.Any("error", err))
	}
}

func (a *API) ServeInFlight(w http.ResponseWriter, _ *http.Request) {
	view := a.presenter.Snapshot()
	a.writeJSON(w, http.StatusOK, map[string]any{"inFlight": view.InFlight, "count": len(view.InFlight)})
}

func (a *API) ServeProfile(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.profilePayload())
}

type photosRequest struct {
	Photos []string `json:"photos"`
}

// ServePhotos replaces the user's photos. Only the first three are kept.
func (a *API) ServePhotos(w http.ResponseWriter, r *http.Request) {
	var req photosRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPhotoBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.WriteError(w, http.StatusRequestEntityTooLarge, "photos too large")
			return
		}
		a.WriteError(w, http.StatusBadRequest, "invalid photos payload")
		return
	}
	if len(req.Photos) == 0 {
		a.WriteError(w, http.StatusBadRequest, "at least one photo required")
		return
	}
	outcome, err := a.photos.Save(r.Context(), req.Photos)
	if err != nil {
		if errors.Is(err, profile.ErrInvalidPhoto) {
			a.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("photo save failed", slog.Any("error", err))
		a.WriteError(w, http.StatusInternalServerError, "photo save failed")
		return
	}
	payload := a.profilePayload()
	if outcome == cachestore.Degraded {
		payload["warning"] = "storage full: photos are kept for this session only"
	}
	a.writeJSON(w, http.StatusOK, payload)
}

// ServeReset runs a confirmed reset. Confirmation is given with
// ?confirm=yes; without it nothing happens and the prompt is returned.
func (a *API) ServeReset(w http.ResponseWriter, r *http.Request, target string) {
	confirm := invalidation.Answer(confirmed(r))
	switch target {
	case "profile":
		ok, step, err := a.resetter.ResetIdentity(r.Context(), confirm)
		if err != nil {
			a.logger.Error("identity reset failed", slog.Any("error", err))
			a.WriteError(w, http.StatusInternalServerError, "identity reset failed")
			return
		}
		if !ok {
			a.writeJSON(w, http.StatusPreconditionRequired, map[string]any{"confirmed": false, "prompt": invalidation.IdentityPrompt})
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"confirmed": true, "step": step})
	case "assets":
		ok, err := a.resetter.ResetAssets(r.Context(), confirm)
		if err != nil {
			a.logger.Error("asset reset failed", slog.Any("error", err))
			a.WriteError(w, http.StatusInternalServerError, "asset reset failed")
			return
		}
		if !ok {
			a.writeJSON(w, http.StatusPreconditionRequired, map[string]any{"confirmed": false, "prompt": invalidation.AssetsPrompt})
			return
		}
		a.writeJSON(w, http.StatusAccepted, map[string]any{"confirmed": true, "restarted": true})
	default:
		a.WriteError(w, http.StatusNotFound, fmt.Sprintf("reset target %q not found", target))
	}
}

func (a *API) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	view := a.presenter.Snapshot()
	resolved := 0
	for _, item := range view.Items {
		if item.State == runtime.StateResolved {
			resolved++
		}
	}
	status := map[string]any{
		"status":     "ok",
		"generation": view.Generation,
		"items":      len(view.Items),
		"resolved":   resolved,
		"inFlight":   len(view.InFlight),
		"observedAt": time.Now().UTC(),
	}
	if view.LastRun != nil {
		status["lastRun"] = view.LastRun
	}
	a.writeJSON(w, http.StatusOK, status)
}

func (a *API) WriteError(w http.ResponseWriter, status int, message string) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	a.writeJSON(w, status, map[string]any{"error": message})
}

func (a *API) profilePayload() map[string]any {
	photos := a.photos.Photos()
	if photos == nil {
		photos = []string{}
	}
	payload := map[string]any{
		"step":   a.photos.Step(),
		"count":  len(photos),
		"photos": photos,
	}
	if a.photos.Degraded() {
		payload["degraded"] = true
	}
	return payload
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("response encode failed", slog.Any("error", err))
	}
}

func confirmed(r *http.Request) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("confirm"))) {
	case "yes", "true", "1":
		return true
	}
	return false
}
