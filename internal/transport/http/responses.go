package httptransport

import (
	"time"

	"github.com/google/uuid"

	"docproof/internal/registry/models"
	"docproof/internal/verification"
	"docproof/pkg/platform/audit"
)

type recordResponse struct {
	Fingerprint string    `json:"fingerprint"`
	MetadataRef string    `json:"metadata_ref"`
	Owner       string    `json:"owner"`
	Issuer      string    `json:"issuer"`
	CreatedAt   time.Time `json:"created_at"`
	Active      bool      `json:"active"`
	Version     int64     `json:"version"`
}

func toRecordResponse(rec *models.Record) *recordResponse {
	if rec == nil {
		return nil
	}
	return &recordResponse{
		Fingerprint: rec.Fingerprint.String(),
		MetadataRef: rec.MetadataRef,
		Owner:       rec.Owner.String(),
		Issuer:      rec.Issuer.String(),
		CreatedAt:   rec.CreatedAt,
		Active:      rec.Active,
		Version:     rec.Version,
	}
}

func toRecordList(recs []*models.Record) []*recordResponse {
	out := make([]*recordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordResponse(rec))
	}
	return out
}

type verifyResponse struct {
	Input       string          `json:"input"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Valid       bool            `json:"valid"`
	Reason      string          `json:"reason,omitempty"`
	Record      *recordResponse `json:"record,omitempty"`
}

func toVerifyResponse(r *verification.Result) verifyResponse {
	return verifyResponse{
		Input:       r.Input,
		Fingerprint: r.Fingerprint.String(),
		Valid:       r.Valid,
		Reason:      string(r.Reason),
		Record:      toRecordResponse(r.Record),
	}
}

type listResponse struct {
	Owner   string            `json:"owner,omitempty"`
	Issuer  string            `json:"issuer,omitempty"`
	Records []*recordResponse `json:"records"`
}

type createRecordRequest struct {
	Fingerprint string `json:"fingerprint"`
	MetadataRef string `json:"metadata_ref"`
	Owner       string `json:"owner"`
}

type transferRequest struct {
	NewOwner string `json:"new_owner"`
}

type batchRequest struct {
	Fingerprints []string `json:"fingerprints"`
}

type batchResponse struct {
	Results []verifyResponse `json:"results"`
}

type statsResponse struct {
	TotalRecords       int64 `json:"total_records"`
	TotalVerifications int64 `json:"total_verifications"`
}

type countResponse struct {
	Fingerprint   string `json:"fingerprint"`
	Verifications int64  `json:"verifications"`
}

type rebuildResponse struct {
	Replayed int `json:"replayed"`
}

type auditEntryResponse struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	Outcome       string    `json:"outcome"`
	Actor         string    `json:"actor,omitempty"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	Owner         string    `json:"owner,omitempty"`
	PreviousOwner string    `json:"previous_owner,omitempty"`
	Issuer        string    `json:"issuer,omitempty"`
	Version       int64     `json:"version"`
	EventID       string    `json:"event_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
}

func toAuditEntryResponse(e audit.Entry) auditEntryResponse {
	resp := auditEntryResponse{
		ID:            e.ID.String(),
		Timestamp:     e.Timestamp,
		Action:        string(e.Action),
		Outcome:       string(e.Outcome),
		Actor:         e.Actor.String(),
		Fingerprint:   e.Fingerprint.String(),
		Owner:         e.Owner.String(),
		PreviousOwner: e.PreviousOwner.String(),
		Issuer:        e.Issuer.String(),
		Version:       e.Version,
		Reason:        e.Reason,
		RequestID:     e.RequestID,
	}
	if e.EventID != uuid.Nil {
		resp.EventID = e.EventID.String()
	}
	return resp
}

type auditResponse struct {
	Entries []auditEntryResponse `json:"entries"`
}
