// Package handlers exposes the HTTP surface of the autopost service: health, the manual run
// trigger, and the quote-card image route.
package handlers

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/autopost"
	"github.com/PortNumber53/quote-autopost/internal/logging"
	"github.com/PortNumber53/quote-autopost/internal/middleware"
	"github.com/PortNumber53/quote-autopost/internal/models"
	"github.com/PortNumber53/quote-autopost/internal/quotecard"
)

// AutopostRunner is the part of autopost.Runner the manual trigger needs.
type AutopostRunner interface {
	RunWithOptions(ctx context.Context, opts autopost.Options) (autopost.Result, error)
}

// QuoteLookup loads a quote projection; (nil, nil) means not found.
type QuoteLookup interface {
	QuoteByID(ctx context.Context, id int64) (*models.Quote, error)
}

type Handler struct {
	runner AutopostRunner
	quotes QuoteLookup
	cards  *quotecard.Renderer
	log    *zap.Logger
}

func New(runner AutopostRunner, quotes QuoteLookup, cards *quotecard.Renderer, log *zap.Logger) *Handler {
	if cards == nil {
		cards = &quotecard.Renderer{}
	}
	return &Handler{runner: runner, quotes: quotes, cards: cards, log: logging.OrNop(log).Named("http")}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type runRequest struct {
	Platform    string `json:"platform"`
	BaseSiteURL string `json:"baseSiteUrl"`
}

// RunAutopost is the operator's "post now" button: it always bypasses the time gate and
// returns the run outcome. Infrastructure failures answer 500 with the same outcome body.
func (h *Handler) RunAutopost(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "autopost runner is not configured")
		return
	}

	res, err := h.runner.RunWithOptions(r.Context(), autopost.Options{
		Force:       true,
		Platform:    body.Platform,
		BaseSiteURL: body.BaseSiteURL,
	})
	h.log.Info("manual_run",
		zap.String("operator", middleware.AdminSubject(r.Context())),
		zap.String("status", string(res.Status)),
		zap.String("reason", res.Reason),
		zap.String("platform", string(res.Platform)),
		zap.Int64("queueId", res.QueueID),
	)
	switch {
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, res)
	case res.Reason == "unknown_platform":
		writeJSON(w, http.StatusBadRequest, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// QuoteCard renders /api/quote-cards/{id}.png.
func (h *Handler) QuoteCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.quotes == nil {
		writeError(w, http.StatusServiceUnavailable, "quote store is not configured")
		return
	}
	q, err := h.quotes.QuoteByID(r.Context(), id)
	if err != nil {
		h.log.Error("quote_lookup_failed", zap.Int64("quoteId", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load quote")
		return
	}
	if q == nil {
		writeError(w, http.StatusNotFound, "quote not found")
		return
	}

	var buf bytes.Buffer
	if err := h.cards.WritePNG(&buf, quotecard.Card{Text: q.Text, Author: q.AuthorName, Reference: q.ReferenceName}); err != nil {
		h.log.Error("quote_card_render_failed", zap.Int64("quoteId", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render quote card")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(buf.Bytes())
	}
}
