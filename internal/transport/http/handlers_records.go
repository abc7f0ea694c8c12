package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docproof/internal/blob"
	"docproof/internal/platform/middleware"
	"docproof/internal/registry/models"
	"docproof/internal/registry/service"
	"docproof/internal/transport/http/shared"
	"docproof/pkg/domain"
	dErrors "docproof/pkg/domain-errors"
	"docproof/pkg/platform/middleware/auth"
	"docproof/pkg/requestcontext"
)

//go:generate mockgen -source=handlers_records.go -destination=mocks/mocks.go -package=mocks LedgerService

// LedgerService is the write and lookup surface of the registry ledger.
type LedgerService interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Record, error)
	Get(ctx context.Context, raw string) (*models.Record, error)
	Revoke(ctx context.Context, raw string, actor domain.Identity) (*models.Record, error)
	Transfer(ctx context.Context, raw string, actor domain.Identity, newOwner string) (*models.Record, error)
}

// RecordsHandler serves record registration and lifecycle endpoints.
type RecordsHandler struct {
	logger         *slog.Logger
	ledger         LedgerService
	blobs          blob.Store
	tokens         auth.TokenValidator
	algorithm      domain.HashAlgorithm
	maxUploadBytes int64
	writeLimit     func(http.Handler) http.Handler
}

type RecordsOption func(*RecordsHandler)

// WithWriteLimit installs a limiter on the authenticated write routes. It
// runs after identity resolution so it can key on the caller.
func WithWriteLimit(mw func(http.Handler) http.Handler) RecordsOption {
	return func(h *RecordsHandler) { h.writeLimit = mw }
}

func NewRecordsHandler(
	ledger LedgerService,
	blobs blob.Store,
	tokens auth.TokenValidator,
	algorithm domain.HashAlgorithm,
	maxUploadBytes int64,
	logger *slog.Logger,
	opts ...RecordsOption,
) *RecordsHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &RecordsHandler{
		logger:         logger,
		ledger:         ledger,
		blobs:          blobs,
		tokens:         tokens,
		algorithm:      algorithm,
		maxUploadBytes: maxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the record routes on r.
func (h *RecordsHandler) Register(r chi.Router) {
	r.Get("/v1/records/{fingerprint}", h.handleGet)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity(h.tokens, h.logger))
		if h.writeLimit != nil {
			r.Use(h.writeLimit)
		}
		r.With(middleware.ContentTypeJSON).Post("/v1/records", h.handleCreate)
		r.Post("/v1/documents", h.handleUpload)
		r.Post("/v1/records/{fingerprint}/revoke", h.handleRevoke)
		r.With(middleware.ContentTypeJSON).Post("/v1/records/{fingerprint}/transfer", h.handleTransfer)
	})
}

func (h *RecordsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createRecordRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "create", err)
		return
	}

	rec, err := h.ledger.Create(ctx, service.CreateRequest{
		Fingerprint: req.Fingerprint,
		MetadataRef: req.MetadataRef,
		Owner:       req.Owner,
		Issuer:      requestcontext.Actor(ctx),
	})
	if err != nil {
		h.fail(ctx, w, "create", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toRecordResponse(rec))
}

// handleUpload stores the body as a blob and registers its fingerprint with
// the blob reference as metadata. The owner query parameter defaults to the
// caller.
func (h *RecordsHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.blobs == nil {
		h.fail(ctx, w, "upload", dErrors.New(dErrors.CodeBadRequest, "document upload is not enabled"))
		return
	}
	data, err := shared.ReadBody(w, r, h.maxUploadBytes)
	if err != nil {
		h.fail(ctx, w, "upload", err)
		return
	}

	actor := requestcontext.Actor(ctx)
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = actor.String()
	}
	fp := domain.DeriveFingerprintWith(h.algorithm, data)

	ref, err := h.blobs.Store(ctx, data)
	if err != nil {
		h.fail(ctx, w, "upload", err)
		return
	}
	rec, err := h.ledger.Create(ctx, service.CreateRequest{
		Fingerprint: fp.String(),
		MetadataRef: ref,
		Owner:       owner,
		Issuer:      actor,
	})
	if err != nil {
		h.fail(ctx, w, "upload", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toRecordResponse(rec))
}

func (h *RecordsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.ledger.Get(ctx, chi.URLParam(r, "fingerprint"))
	if err != nil {
		h.fail(ctx, w, "get", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *RecordsHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.ledger.Revoke(ctx, chi.URLParam(r, "fingerprint"), requestcontext.Actor(ctx))
	if err != nil {
		h.fail(ctx, w, "revoke", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *RecordsHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req transferRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "transfer", err)
		return
	}
	rec, err := h.ledger.Transfer(ctx, chi.URLParam(r, "fingerprint"), requestcontext.Actor(ctx), req.NewOwner)
	if err != nil {
		h.fail(ctx, w, "transfer", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *RecordsHandler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	logFailure(ctx, h.logger, op, err)
	shared.WriteError(w, err)
}

// logFailure logs server-side failures at error level and caller mistakes
// at warn.
func logFailure(ctx context.Context, logger *slog.Logger, op string, err error) {
	attrs := []any{
		"operation", op,
		"error", err,
		"code", string(dErrors.CodeOf(err)),
		"request_id", requestcontext.RequestID(ctx),
	}
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", attrs...)
		return
	}
	logger.WarnContext(ctx, "request rejected", attrs...)
}
