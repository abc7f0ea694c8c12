package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"docproof/internal/transport/http/shared"
	"docproof/pkg/domain"
	dErrors "docproof/pkg/domain-errors"
	"docproof/pkg/platform/audit"
	"docproof/pkg/platform/middleware/admin"
	"docproof/pkg/requestcontext"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditReader reads the audit trail.
type AuditReader interface {
	ListByFingerprint(ctx context.Context, fp domain.Fingerprint) ([]audit.Entry, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// RebuildFunc resets the secondary index and replays the event log,
// returning how many events were applied.
type RebuildFunc func(ctx context.Context) (int, error)

// AdminHandler exposes operator endpoints behind the admin token.
type AdminHandler struct {
	logger   *slog.Logger
	token    string
	rebuild  RebuildFunc
	auditLog AuditReader
}

func NewAdminHandler(token string, rebuild RebuildFunc, auditLog AuditReader, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AdminHandler{logger: logger, token: token, rebuild: rebuild, auditLog: auditLog}
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(h.token, h.logger))
		r.Post("/v1/admin/index/rebuild", h.handleRebuild)
		if h.auditLog != nil {
			r.Get("/v1/admin/audit", h.handleAuditTrail)
		}
	})
}

func (h *AdminHandler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// A rebuild that stops halfway leaves the index empty or partial, so it
	// runs to completion even if the caller goes away.
	n, err := h.rebuild(context.WithoutCancel(ctx))
	if err != nil {
		logFailure(ctx, h.logger, "index_rebuild", err)
		shared.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "index rebuild requested",
		"event", "index_rebuilt",
		"log_type", "audit",
		"replayed", n,
		"request_id", requestcontext.RequestID(ctx),
	)
	shared.WriteJSON(w, http.StatusOK, rebuildResponse{Replayed: n})
}

// handleAuditTrail lists entries for ?fingerprint=, or the most recent
// entries across the registry when it is absent.
func (h *AdminHandler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		entries []audit.Entry
		err     error
	)
	if raw := r.URL.Query().Get("fingerprint"); raw != "" {
		fp, parseErr := domain.ParseFingerprint(raw)
		if parseErr != nil {
			logFailure(ctx, h.logger, "audit_trail", parseErr)
			shared.WriteError(w, parseErr)
			return
		}
		entries, err = h.auditLog.ListByFingerprint(ctx, fp)
	} else {
		limit, limitErr := parseLimit(r.URL.Query().Get("limit"))
		if limitErr != nil {
			logFailure(ctx, h.logger, "audit_trail", limitErr)
			shared.WriteError(w, limitErr)
			return
		}
		entries, err = h.auditLog.ListRecent(ctx, limit)
	}
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "audit log unavailable")
		logFailure(ctx, h.logger, "audit_trail", err)
		shared.WriteError(w, err)
		return
	}

	resp := auditResponse{Entries: make([]auditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toAuditEntryResponse(e))
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultAuditLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
	}
	return min(n, maxAuditLimit), nil
}
