package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docproof/internal/platform/middleware"
	"docproof/internal/registry/models"
	"docproof/internal/transport/http/shared"
	"docproof/internal/verification"
	"docproof/pkg/domain"
)

// VerificationService answers public verification and listing queries.
type VerificationService interface {
	Verify(ctx context.Context, raw string) (*verification.Result, error)
	VerifyContent(ctx context.Context, content []byte) (*verification.Result, error)
	VerifyBatch(ctx context.Context, raws []string) ([]verification.Result, error)
	ListByOwner(ctx context.Context, raw string) ([]*models.Record, error)
	ListByIssuer(ctx context.Context, raw string) ([]*models.Record, error)
	OwnershipHistory(ctx context.Context, raw string) ([]*models.Record, error)
	Stats(ctx context.Context) (*verification.Stats, error)
	VerificationCount(ctx context.Context, raw string) (int64, error)
}

// VerificationHandler serves the unauthenticated read side.
type VerificationHandler struct {
	logger         *slog.Logger
	verifier       VerificationService
	maxUploadBytes int64
}

func NewVerificationHandler(verifier VerificationService, maxUploadBytes int64, logger *slog.Logger) *VerificationHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &VerificationHandler{logger: logger, verifier: verifier, maxUploadBytes: maxUploadBytes}
}

func (h *VerificationHandler) Register(r chi.Router) {
	r.Get("/v1/verify/{fingerprint}", h.handleVerify)
	r.Post("/v1/verify/content", h.handleVerifyContent)
	r.With(middleware.ContentTypeJSON).Post("/v1/verify/batch", h.handleVerifyBatch)
	r.Get("/v1/owners/{owner}/records", h.handleListByOwner)
	r.Get("/v1/owners/{owner}/history", h.handleOwnershipHistory)
	r.Get("/v1/issuers/{issuer}/records", h.handleListByIssuer)
	r.Get("/v1/stats", h.handleStats)
	r.Get("/v1/stats/{fingerprint}", h.handleVerificationCount)
}

// handleVerify always answers 200 for a well-formed request; a negative
// verdict is data, not an error.
func (h *VerificationHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.verifier.Verify(ctx, chi.URLParam(r, "fingerprint"))
	if err != nil {
		h.fail(ctx, w, "verify", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toVerifyResponse(res))
}

func (h *VerificationHandler) handleVerifyContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := shared.ReadBody(w, r, h.maxUploadBytes)
	if err != nil {
		h.fail(ctx, w, "verify_content", err)
		return
	}
	res, err := h.verifier.VerifyContent(ctx, data)
	if err != nil {
		h.fail(ctx, w, "verify_content", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toVerifyResponse(res))
}

func (h *VerificationHandler) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req batchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, "verify_batch", err)
		return
	}
	results, err := h.verifier.VerifyBatch(ctx, req.Fingerprints)
	if err != nil {
		h.fail(ctx, w, "verify_batch", err)
		return
	}
	resp := batchResponse{Results: make([]verifyResponse, len(results))}
	for i := range results {
		resp.Results[i] = toVerifyResponse(&results[i])
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *VerificationHandler) handleListByOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := chi.URLParam(r, "owner")
	recs, err := h.verifier.ListByOwner(ctx, owner)
	if err != nil {
		h.fail(ctx, w, "list_by_owner", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, listResponse{Owner: owner, Records: toRecordList(recs)})
}

func (h *VerificationHandler) handleOwnershipHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := chi.URLParam(r, "owner")
	recs, err := h.verifier.OwnershipHistory(ctx, owner)
	if err != nil {
		h.fail(ctx, w, "ownership_history", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, listResponse{Owner: owner, Records: toRecordList(recs)})
}

func (h *VerificationHandler) handleListByIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer := chi.URLParam(r, "issuer")
	recs, err := h.verifier.ListByIssuer(ctx, issuer)
	if err != nil {
		h.fail(ctx, w, "list_by_issuer", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, listResponse{Issuer: issuer, Records: toRecordList(recs)})
}

func (h *VerificationHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.verifier.Stats(ctx)
	if err != nil {
		h.fail(ctx, w, "stats", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, statsResponse{
		TotalRecords:       stats.TotalRecords,
		TotalVerifications: stats.TotalVerifications,
	})
}

func (h *VerificationHandler) handleVerificationCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fp, err := domain.ParseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		h.fail(ctx, w, "verification_count", err)
		return
	}
	n, err := h.verifier.VerificationCount(ctx, fp.String())
	if err != nil {
		h.fail(ctx, w, "verification_count", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, countResponse{Fingerprint: fp.String(), Verifications: n})
}

func (h *VerificationHandler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	logFailure(ctx, h.logger, op, err)
	shared.WriteError(w, err)
}
