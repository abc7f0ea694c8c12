package httptransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"docproof/internal/blob"
	ratelimit "docproof/internal/ratelimit/middleware"
	ratelimitmodels "docproof/internal/ratelimit/models"
	"docproof/internal/ratelimit/store/bucket"
	"docproof/internal/registry/models"
	"docproof/internal/registry/service"
	"docproof/internal/transport/http/mocks"
	"docproof/pkg/domain"
	dErrors "docproof/pkg/domain-errors"
	"docproof/pkg/platform/middleware/auth"
	"docproof/pkg/testutil"
)

const testFingerprint = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

type RecordsHandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	ledger  *mocks.MockLedgerService
	blobs   *blob.InMemory
	handler *RecordsHandler
	router  chi.Router
}

func TestRecordsHandlerSuite(t *testing.T) {
	suite.Run(t, new(RecordsHandlerSuite))
}

func (s *RecordsHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ledger = mocks.NewMockLedgerService(s.ctrl)
	s.blobs = blob.NewInMemory()
	tokens := auth.ValidatorFunc(func(token string) (domain.Identity, error) {
		if token != "alice-token" {
			return "", dErrors.New(dErrors.CodeUnauthenticated, "bad token")
		}
		return "alice", nil
	})
	s.handler = NewRecordsHandler(s.ledger, s.blobs, tokens, domain.HashSHA256, 64, nil)
	s.router = chi.NewRouter()
	s.handler.Register(s.router)
}

func (s *RecordsHandlerSuite) record(owner string) *models.Record {
	return &models.Record{
		Fingerprint: domain.MustParseFingerprint(testFingerprint),
		MetadataRef: "ipfs://doc",
		Owner:       domain.Identity(owner),
		Issuer:      "alice",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Active:      true,
	}
}

func (s *RecordsHandlerSuite) TestCreate() {
	s.Run("issuer comes from the authenticated caller", func() {
		s.ledger.EXPECT().Create(gomock.Any(), service.CreateRequest{
			Fingerprint: testFingerprint,
			MetadataRef: "ipfs://doc",
			Owner:       "bob",
			Issuer:      "alice",
		}).Return(s.record("bob"), nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", map[string]string{
			"fingerprint":  testFingerprint,
			"metadata_ref": "ipfs://doc",
			"owner":        "bob",
		})
		rr := testutil.DoRequest(s.router, testutil.WithBearer(req, "alice-token"))

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[recordResponse](s.T(), rr)
		s.Equal("bob", resp.Owner)
		s.Equal("alice", resp.Issuer)
		s.True(resp.Active)
		s.EqualValues(0, resp.Version)
	})

	s.Run("missing token never reaches the ledger", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", map[string]string{"fingerprint": testFingerprint})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthenticated")
	})

	s.Run("invalid token is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", map[string]string{"fingerprint": testFingerprint})
		rr := testutil.DoRequest(s.router, testutil.WithBearer(req, "forged"))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("malformed JSON is a bad request", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/records", `{"fingerprint":`)
		rr := testutil.DoRequest(s.router, testutil.WithBearer(req, "alice-token"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("duplicate maps to conflict", func() {
		s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeDuplicateFingerprint, "fingerprint already registered"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", map[string]string{
			"fingerprint": testFingerprint,
			"owner":       "bob",
		})
		rr := testutil.DoRequest(s.router, testutil.WithBearer(req, "alice-token"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "duplicate_fingerprint")
	})

	s.Run("storage outage is retryable", func() {
		s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeStorageUnavailable, "storage unavailable"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", map[string]string{
			"fingerprint": testFingerprint,
			"owner":       "bob",
		})
		rr := testutil.DoRequest(s.router, testutil.WithBearer(req, "alice-token"))
		testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
		s.Equal("1", rr.Header().Get("Retry-After"))
	})
}

func (s *RecordsHandlerSuite) TestUpload() {
	content := []byte("test")

	s.Run("stores the blob and registers its fingerprint", func() {
		s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req service.CreateRequest) (*models.Record, error) {
				s.Equal(testFingerprint, req.Fingerprint)
				s.Equal(blob.RefFor(content), req.MetadataRef)
				s.Equal("alice", req.Owner)
				return s.record("alice"), nil
			})

		req := testutil.WithActor(testutil.NewRawRequest(s.T(), http.MethodPost, "/v1/documents", content), "alice")
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.handleUpload), req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)

		stored, err := s.blobs.Fetch(context.Background(), blob.RefFor(content))
		s.Require().NoError(err)
		s.Equal(content, stored)
	})

	s.Run("owner query overrides the caller", func() {
		s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req service.CreateRequest) (*models.Record, error) {
				s.Equal("carol", req.Owner)
				return s.record("carol"), nil
			})

		req := testutil.WithActor(testutil.NewRawRequest(s.T(), http.MethodPost, "/v1/documents?owner=carol", content), "alice")
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.handleUpload), req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	})

	s.Run("oversized body is rejected before the ledger", func() {
		big := make([]byte, 65)
		req := testutil.WithActor(testutil.NewRawRequest(s.T(), http.MethodPost, "/v1/documents", big), "alice")
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.handleUpload), req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *RecordsHandlerSuite) TestGet() {
	s.ledger.EXPECT().Get(gomock.Any(), testFingerprint).Return(s.record("bob"), nil)
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/records/"+testFingerprint))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "owner", "bob")

	s.ledger.EXPECT().Get(gomock.Any(), "nope").
		Return(nil, dErrors.New(dErrors.CodeInvalidFingerprint, "fingerprint must be 64 hexadecimal characters"))
	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/records/nope"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_fingerprint_format")
}

func (s *RecordsHandlerSuite) TestRevoke() {
	revoked := s.record("bob")
	revoked.Active = false
	revoked.Version = 1
	s.ledger.EXPECT().Revoke(gomock.Any(), testFingerprint, domain.Identity("alice")).Return(revoked, nil)

	req := testutil.NewRequest(s.T(), http.MethodPost, "/v1/records/"+testFingerprint+"/revoke")
	rr := testutil.DoRequest(s.router, testutil.WithBearer(req, "alice-token"))
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[recordResponse](s.T(), rr)
	s.False(resp.Active)
	s.EqualValues(1, resp.Version)

	s.ledger.EXPECT().Revoke(gomock.Any(), testFingerprint, domain.Identity("alice")).
		Return(nil, dErrors.New(dErrors.CodeAlreadyRevoked, "record already revoked"))
	req = testutil.NewRequest(s.T(), http.MethodPost, "/v1/records/"+testFingerprint+"/revoke")
	rr = testutil.DoRequest(s.router, testutil.WithBearer(req, "alice-token"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "already_revoked")
}

func (s *RecordsHandlerSuite) TestTransfer() {
	s.ledger.EXPECT().Transfer(gomock.Any(), testFingerprint, domain.Identity("alice"), "carol").
		Return(nil, dErrors.New(dErrors.CodeUnauthorized, "only the issuer or owner may transfer"))

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records/"+testFingerprint+"/transfer", map[string]string{"new_owner": "carol"})
	rr := testutil.DoRequest(s.router, testutil.WithBearer(req, "alice-token"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
}

func TestRecordsHandler_UploadDisabledWithoutBlobStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewRecordsHandler(mocks.NewMockLedgerService(ctrl), nil, nil, domain.HashSHA256, 64, nil)

	req := testutil.WithActor(testutil.NewRawRequest(t, http.MethodPost, "/v1/documents", []byte("x")), "alice")
	rr := testutil.DoRequest(http.HandlerFunc(h.handleUpload), req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "bad_request", testutil.UnmarshalErrorResponse(t, rr)["error"])
}

func TestRecordsHandler_WriteLimitKeysOnCaller(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	ledger.EXPECT().Revoke(gomock.Any(), testFingerprint, domain.Identity("alice")).
		Return(&models.Record{Fingerprint: domain.MustParseFingerprint(testFingerprint)}, nil)

	tokens := auth.ValidatorFunc(func(token string) (domain.Identity, error) {
		return domain.ParseIdentity(token)
	})
	limiter := ratelimit.New(bucket.NewInMemoryBucketStore()).
		ByActor(ratelimitmodels.Class{Name: "writes", Limit: 1, Window: time.Minute})
	router := chi.NewRouter()
	NewRecordsHandler(ledger, nil, tokens, domain.HashSHA256, 64, nil, WithWriteLimit(limiter)).Register(router)

	revoke := func(token string) *httptest.ResponseRecorder {
		req := testutil.NewRequest(t, http.MethodPost, "/v1/records/"+testFingerprint+"/revoke")
		return testutil.DoRequest(router, testutil.WithBearer(req, token))
	}

	require.Equal(t, http.StatusOK, revoke("alice").Code)
	rr := revoke("alice")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate_limit_exceeded", testutil.UnmarshalErrorResponse(t, rr)["error"])

	// Unauthenticated requests are rejected before they consume the budget.
	req := testutil.NewRequest(t, http.MethodPost, "/v1/records/"+testFingerprint+"/revoke")
	assert.Equal(t, http.StatusUnauthorized, testutil.DoRequest(router, req).Code)
}
