package daemon

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"anibridge-plex/internal/library"
	"anibridge-plex/internal/logging"
	"anibridge-plex/internal/webhook"
)

const secretHeader = "X-Webhook-Secret"

// Handler returns the daemon's HTTP routes.
func (d *Daemon) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(withTraceID)
	router.Use(d.withLogging)

	router.Post("/webhook", d.handleWebhook)
	router.Get("/healthz", d.handleHealth)
	router.Route("/api", func(r chi.Router) {
		r.Get("/status", d.handleStatus)
		r.Get("/sections", d.handleSections)
		r.Get("/pending", d.handlePending)
	})
	return router
}

func (d *Daemon) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context(), d.logger)
	if !d.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	payload, err := webhook.FromRequest(r)
	if err != nil {
		logger.Debug("rejected webhook", logging.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	queued, keys, err := d.provider.ShouldSync(payload)
	switch {
	case errors.Is(err, webhook.ErrInvalidPayload),
		errors.Is(err, webhook.ErrMissingAccount),
		errors.Is(err, webhook.ErrMissingRatingKey):
		logger.Debug("rejected webhook", logging.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logging.ErrorWithContext(logger, "webhook handling failed", "webhook_failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "webhook handling failed")
		return
	}
	if !queued {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	event := string(payload.Event)
	for _, key := range keys {
		if err := d.queue.EnqueuePending(r.Context(), key, event); err != nil {
			logging.ErrorWithContext(logger, "enqueue webhook key failed", "webhook_enqueue_failed",
				logging.RatingKey(key),
				logging.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "enqueue failed")
			return
		}
	}
	logger.Info("webhook queued", logging.Any("keys", keys))
	d.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": keys})
}

// authorized checks the optional shared secret. Plex cannot send custom
// headers, so the secret may also arrive as ?secret=.
func (d *Daemon) authorized(r *http.Request) bool {
	secret := d.cfg.Server.WebhookSecret
	if secret == "" {
		return true
	}
	got := r.Header.Get(secretHeader)
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Status())
}

func (d *Daemon) handleSections(w http.ResponseWriter, _ *http.Request) {
	sections, err := d.provider.Sections()
	if errors.Is(err, library.ErrNotInitialized) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

func (d *Daemon) handlePending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	pending, err := d.queue.PendingKeys(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
