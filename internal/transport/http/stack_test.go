package httptransport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"docproof/internal/blob"
	"docproof/internal/index"
	idxmem "docproof/internal/index/store/memory"
	"docproof/internal/notifier"
	"docproof/internal/platform/identity"
	"docproof/internal/platform/metrics"
	"docproof/internal/registry/service"
	regmem "docproof/internal/registry/store/memory"
	"docproof/internal/verification"
	"docproof/pkg/domain"
	"docproof/pkg/platform/audit/publisher"
	auditmem "docproof/pkg/platform/audit/store/memory"
)

const testAdminToken = "admin-token"

// stack is a fully wired in-memory registry behind the real router.
type stack struct {
	store    *regmem.InMemory
	ledger   *service.Ledger
	index    *index.Index
	notifier *notifier.Notifier
	verifier *verification.Service
	tokens   *identity.TokenService
	handler  http.Handler
}

func newStack(t testing.TB) *stack {
	t.Helper()

	store := regmem.New()
	n := notifier.New(store, notifier.WithPollInterval(10*time.Millisecond))
	idx := index.New(idxmem.New(), index.WithEventSource(store))
	require.NoError(t, n.Register(idx))

	auditStore := auditmem.NewInMemoryStore()
	auditPublisher := publisher.New(auditStore)
	t.Cleanup(func() { _ = auditPublisher.Close() })
	require.NoError(t, n.Register(notifier.AuditSink(auditPublisher)))

	ledger, err := service.New(store, service.WithNotifier(n), service.WithAuditPublisher(auditPublisher))
	require.NoError(t, err)
	verifier, err := verification.New(ledger, idx)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = n.Run(ctx) }()
	go func() { _ = verifier.Run(ctx) }()

	tokens := identity.NewTokenService("test-signing-key", "docproof", "docproof-registry")
	reg := prometheus.NewRegistry()

	health := NewHealthHandler(map[string]HealthCheck{
		"ledger": func(ctx context.Context) error { _, err := store.Count(ctx); return err },
	})
	h := NewRouter(
		RouterConfig{Metrics: metrics.New(reg), Gatherer: reg},
		health,
		NewRecordsHandler(ledger, blob.NewInMemory(), tokens, domain.HashSHA256, 1<<20, nil),
		NewVerificationHandler(verifier, 1<<20, nil),
		NewAdminHandler(testAdminToken, func(ctx context.Context) (int, error) {
			return idx.Rebuild(ctx, store)
		}, auditStore, nil),
	)

	return &stack{
		store:    store,
		ledger:   ledger,
		index:    idx,
		notifier: n,
		verifier: verifier,
		tokens:   tokens,
		handler:  h,
	}
}

func (s *stack) token(t testing.TB, actor string) string {
	t.Helper()
	tok, err := s.tokens.IssueToken(domain.Identity(actor), time.Hour)
	require.NoError(t, err)
	return tok
}

// caughtUp waits until the index consumer has seen every logged event.
func (s *stack) caughtUp(t testing.TB) {
	t.Helper()
	require.Eventually(t, func() bool {
		events, err := s.store.ReadFrom(context.Background(), 0, 0)
		if err != nil || len(events) == 0 {
			return err == nil
		}
		cursor, _ := s.notifier.Cursor("index")
		return cursor >= events[len(events)-1].Sequence
	}, 2*time.Second, 5*time.Millisecond)
}
