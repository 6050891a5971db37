// File: internal/server/handlers.go
package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dealwire/internal/harvest"
	"github.com/xkilldash9x/dealwire/internal/publish"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publisher runs signed publish requests.
type Publisher interface {
	Publish(ctx context.Context, query url.Values) (publish.Result, error)
}

// FlashSaler serves flash-sale listings.
type FlashSaler interface {
	FlashSale(ctx context.Context, max int, fresh bool) ([]harvest.Item, error)
}

// Handlers holds the endpoint implementations.
type Handlers struct {
	log       *zap.Logger
	publisher Publisher
	harvester FlashSaler
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, publisher Publisher, harvester FlashSaler) *Handlers {
	return &Handlers{
		log:       logger.Named("handlers"),
		publisher: publisher,
		harvester: harvester,
	}
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type publishResponse struct {
	OK     bool           `json:"ok"`
	Result publish.Result `json:"result"`
}

type itemsResponse struct {
	OK    bool           `json:"ok"`
	Error string         `json:"error,omitempty"`
	Items []harvest.Item `json:"items"`
}

// HandleRoot answers liveness probes from the hosting platform.
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	h.respondText(w, http.StatusOK, "OK - dealwire activo")
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondText(w, http.StatusOK, "OK")
}

// HandlePublish verifies and runs a publish request carried in the query
// string.
func (h *Handlers) HandlePublish(w http.ResponseWriter, r *http.Request) {
	res, err := h.publisher.Publish(r.Context(), r.URL.Query())
	if err != nil {
		code := publish.CodeOf(err)
		status := publishStatus(code)
		if status >= http.StatusInternalServerError {
			h.log.Warn("Publish request failed.", zap.String("code", string(code)), zap.Error(err))
		}
		if code == publish.CodeBusy {
			w.Header().Set("Retry-After", "30")
		}
		h.respondJSON(w, status, errorResponse{Error: string(code)})
		return
	}
	h.respondJSON(w, http.StatusOK, publishResponse{OK: true, Result: res})
}

// publishStatus maps an error code to its HTTP status.
func publishStatus(code publish.Code) int {
	switch code {
	case publish.CodeBadSignature:
		return http.StatusUnauthorized
	case publish.CodeMissingTitleOrURL:
		return http.StatusBadRequest
	case publish.CodeChallenge, publish.CodeBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleFlashSale returns the current flash-sale listing. max selects the
// number of items and fresh=1 skips the cache.
func (h *Handlers) HandleFlashSale(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	max, _ := strconv.Atoi(q.Get("max"))
	fresh, _ := strconv.ParseBool(q.Get("fresh"))

	items, err := h.harvester.FlashSale(r.Context(), max, fresh)
	switch {
	case errors.Is(err, harvest.ErrAntiBot):
		h.log.Warn("Flash sale blocked by anti-bot page.", zap.Error(err))
		h.respondJSON(w, http.StatusServiceUnavailable, itemsResponse{Error: string(publish.CodeChallenge), Items: []harvest.Item{}})
	case err != nil:
		h.log.Error("Flash sale scrape failed.", zap.Error(err))
		h.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: string(publish.CodeServerError)})
	default:
		if items == nil {
			items = []harvest.Item{}
		}
		h.respondJSON(w, http.StatusOK, itemsResponse{OK: true, Items: items})
	}
}

func (h *Handlers) respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
