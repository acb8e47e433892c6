package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	day   = 24 * time.Hour
	month = 30 * day
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type serviceFixture struct {
	cfg     Config
	clock   *fakeClock
	store   *MemoryStore
	sink    *recordingSink
	metrics *Metrics
	svc     *Service
}

func newServiceFixture(t *testing.T, store Store, mem *MemoryStore) *serviceFixture {
	t.Helper()

	cfg := testConfig()
	cfg.MaxAge = month
	cfg.UpdateAge = day

	f := &serviceFixture{
		cfg:     cfg,
		clock:   newFakeClock(t0),
		store:   mem,
		sink:    &recordingSink{},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	if store == nil {
		store = mem
	}
	f.svc = NewService(cfg, store, WithClock(f.clock), WithErrorSink(f.sink), WithMetrics(f.metrics))
	return f
}

func newMemFixture(t *testing.T) *serviceFixture {
	t.Helper()
	return newServiceFixture(t, nil, NewMemoryStore(testHasher()))
}

// withAges rebuilds the service under different lifetimes, keeping the
// fixture's store, clock and sink.
func (f *serviceFixture) withAges(maxAge, updateAge time.Duration) *serviceFixture {
	f.cfg.MaxAge = maxAge
	f.cfg.UpdateAge = updateAge
	f.svc = NewService(f.cfg, f.store, WithClock(f.clock), WithErrorSink(f.sink), WithMetrics(f.metrics))
	return f
}

func (f *serviceFixture) resolves(outcome string) float64 {
	return testutil.ToFloat64(f.metrics.resolves.WithLabelValues(outcome))
}

func TestResolve_NoCookieIsAnonymous(t *testing.T) {
	t.Parallel()

	f := newMemFixture(t)
	view, err := f.svc.Resolve(context.Background(), newFakeCookies(f.cfg))
	if err != nil || view != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", view, err)
	}
	if got := f.resolves(OutcomeAnonymous); got != 1 {
		t.Fatalf("anonymous count=%v, want 1", got)
	}
}

func TestResolve_ExpiredIsAnonymousAndClearsCookies(t *testing.T) {
	t.Parallel()

	f := newMemFixture(t)
	tok, row := seedSession(t, f.store, "u1", t0.Add(-month-time.Hour), t0.Add(-time.Hour))
	cookies := newFakeCookies(f.cfg).withToken(tok)

	view, err := f.svc.Resolve(context.Background(), cookies)
	if err != nil || view != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", view, err)
	}
	if cookies.deletes != 1 {
		t.Fatalf("expected cookies cleared, got %d deletes", cookies.deletes)
	}
	if _, err := f.store.GetByID(context.Background(), row.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired row removed, got %v", err)
	}
	if got := f.resolves(OutcomeRejected); got != 1 {
		t.Fatalf("rejected count=%v, want 1", got)
	}
}

func TestResolve_NotDueIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newMemFixture(t)
	tok, row := seedSession(t, f.store, "u1", t0, t0.Add(month))
	f.clock.Set(t0.Add(12 * time.Hour))

	cookies := newFakeCookies(f.cfg).withToken(tok)
	first, err := f.svc.Resolve(context.Background(), cookies)
	if err != nil || first == nil {
		t.Fatalf("Resolve(1): (%+v, %v)", first, err)
	}
	second, err := f.svc.Resolve(context.Background(), cookies)
	if err != nil || second == nil {
		t.Fatalf("Resolve(2): (%+v, %v)", second, err)
	}

	if !first.Session.ExpiresAt.Equal(row.ExpiresAt) || !second.Session.ExpiresAt.Equal(row.ExpiresAt) {
		t.Fatalf("expiresAt changed: %v, %v (stored %v)", first.Session.ExpiresAt, second.Session.ExpiresAt, row.ExpiresAt)
	}
	if cookies.sets != 0 {
		t.Fatalf("expected no cookie rewrite, got %d", cookies.sets)
	}
	if got := f.resolves(OutcomeLive); got != 2 {
		t.Fatalf("live count=%v, want 2", got)
	}
}

func TestResolve_ThirtyDayOneDayScenario(t *testing.T) {
	t.Parallel()

	f := newMemFixture(t)
	tok, row := seedSession(t, f.store, "u1", t0, t0.Add(month))

	now := t0.Add(28*day + 23*time.Hour)
	f.clock.Set(now)

	cookies := newFakeCookies(f.cfg).withToken(tok)
	view, err := f.svc.Resolve(context.Background(), cookies)
	if err != nil || view == nil {
		t.Fatalf("Resolve: (%+v, %v)", view, err)
	}

	want := now.Add(month)
	if !view.Session.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt=%v, want %v", view.Session.ExpiresAt, want)
	}
	if view.User.ID != "u1" || view.Session.ID != row.ID {
		t.Fatalf("unexpected view %+v", view)
	}
	if cookies.sets != 1 || cookies.lastToken != tok || cookies.lastDontRemember {
		t.Fatalf("unexpected cookie rewrite: sets=%d token=%q dontRemember=%v", cookies.sets, cookies.lastToken, cookies.lastDontRemember)
	}
	if cookies.lastMaxAge != month {
		t.Fatalf("cookie maxAge=%v, want %v", cookies.lastMaxAge, month)
	}

	stored, err := f.store.GetByID(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !stored.ExpiresAt.Equal(want) || !stored.UpdatedAt.Equal(now) {
		t.Fatalf("stored row not extended: %+v", stored)
	}
	if got := f.resolves(OutcomeRefreshed); got != 1 {
		t.Fatalf("refreshed count=%v, want 1", got)
	}
}

func TestResolve_UpdateAgeNotBelowMaxAgeExtendsEveryRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		updateAge time.Duration
	}{
		{name: "equal", updateAge: time.Hour},
		{name: "greater", updateAge: 2 * time.Hour},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newMemFixture(t).withAges(time.Hour, tc.updateAge)
			tok, row := seedSession(t, f.store, "u1", t0, t0.Add(time.Hour))

			now := t0.Add(59 * time.Minute)
			f.clock.Set(now)

			cookies := newFakeCookies(f.cfg).withToken(tok)
			view, err := f.svc.Resolve(context.Background(), cookies)
			if err != nil || view == nil {
				t.Fatalf("Resolve: (%+v, %v)", view, err)
			}
			if want := now.Add(time.Hour); !view.Session.ExpiresAt.Equal(want) {
				t.Fatalf("expiresAt=%v, want %v (was %v)", view.Session.ExpiresAt, want, row.ExpiresAt)
			}
			if cookies.sets != 1 {
				t.Fatalf("expected one cookie rewrite, got %d", cookies.sets)
			}

			// Immediately again: still due.
			f.clock.Set(now.Add(time.Second))
			again, err := f.svc.Resolve(context.Background(), cookies)
			if err != nil || again == nil {
				t.Fatalf("Resolve(2): (%+v, %v)", again, err)
			}
			if !again.Session.ExpiresAt.After(view.Session.ExpiresAt) {
				t.Fatalf("second request did not extend: %v", again.Session.ExpiresAt)
			}
			if got := f.resolves(OutcomeRefreshed); got != 2 {
				t.Fatalf("refreshed count=%v, want 2", got)
			}
		})
	}
}

func TestResolve_DontRememberNeverExtends(t *testing.T) {
	t.Parallel()

	f := newMemFixture(t)
	tok, row := seedSession(t, f.store, "u1", t0, t0.Add(month))
	f.clock.Set(t0.Add(29 * day))

	cookies := newFakeCookies(f.cfg).withToken(tok).withDontRemember()
	view, err := f.svc.Resolve(context.Background(), cookies)
	if err != nil || view == nil {
		t.Fatalf("Resolve: (%+v, %v)", view, err)
	}
	if !view.Session.ExpiresAt.Equal(row.ExpiresAt) {
		t.Fatalf("expiresAt changed to %v", view.Session.ExpiresAt)
	}
	if cookies.sets != 0 {
		t.Fatalf("expected no cookie rewrite, got %d", cookies.sets)
	}
}

// deleteBeforeUpdateStore simulates a revoke landing between validate and refresh.
type deleteBeforeUpdateStore struct {
	*MemoryStore
}

func (s deleteBeforeUpdateStore) UpdateExpiry(ctx context.Context, id string, exp, now time.Time) (UpdateResult, error) {
	if err := s.MemoryStore.DeleteByID(ctx, id); err != nil {
		return UpdateResult{}, err
	}
	return s.MemoryStore.UpdateExpiry(ctx, id, exp, now)
}

func TestResolve_ConcurrentRevokeIsTreatedAsExpiry(t *testing.T) {
	t.Parallel()

	mem := NewMemoryStore(testHasher())
	f := newServiceFixture(t, deleteBeforeUpdateStore{mem}, mem)
	tok, _ := seedSession(t, mem, "u1", t0, t0.Add(month))
	f.clock.Set(t0.Add(29 * day))

	cookies := newFakeCookies(f.cfg).withToken(tok)
	view, err := f.svc.Resolve(context.Background(), cookies)
	if err != nil || view != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", view, err)
	}
	if cookies.deletes != 1 || cookies.sets != 0 {
		t.Fatalf("expected cookies cleared only: deletes=%d sets=%d", cookies.deletes, cookies.sets)
	}
	if f.sink.count() != 0 {
		t.Fatalf("race must not be reported as an error")
	}
	if got := f.resolves(OutcomeRaced); got != 1 {
		t.Fatalf("raced count=%v, want 1", got)
	}
}

type brokenStore struct {
	*MemoryStore
}

var errBroken = errors.New("connection reset")

func (brokenStore) FindByToken(context.Context, string) (View, error) { return View{}, errBroken }
func (brokenStore) ListForUser(context.Context, string) ([]View, error) {
	return nil, errBroken
}
func (brokenStore) DeleteAllForUser(context.Context, string) error { return errBroken }

func TestResolve_StoreFailureIsInternal(t *testing.T) {
	t.Parallel()

	mem := NewMemoryStore(testHasher())
	f := newServiceFixture(t, brokenStore{mem}, mem)

	view, err := f.svc.Resolve(context.Background(), newFakeCookies(f.cfg).withToken("anything"))
	if view != nil {
		t.Fatalf("expected nil view, got %+v", view)
	}
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if errors.Is(err, errBroken) {
		t.Fatalf("internal cause must not leak to callers")
	}
	if f.sink.count() != 1 {
		t.Fatalf("expected cause reported once, got %d", f.sink.count())
	}
	if got := f.resolves(OutcomeInternal); got != 1 {
		t.Fatalf("internal count=%v, want 1", got)
	}
}

func TestRevokeOne(t *testing.T) {
	t.Parallel()

	f := newMemFixture(t)
	_, mine := seedSession(t, f.store, "alice", t0, t0.Add(month))
	_, theirs := seedSession(t, f.store, "bob", t0, t0.Add(month))
	ctx := context.Background()

	if err := f.svc.RevokeOne(ctx, "missing", "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := f.svc.RevokeOne(ctx, "", "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for empty id, got %v", err)
	}
	if err := f.svc.RevokeOne(ctx, theirs.ID, "alice"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.store.GetByID(ctx, theirs.ID); err != nil {
		t.Fatalf("foreign session must be untouched: %v", err)
	}
	if err := f.svc.RevokeOne(ctx, mine.ID, "alice"); err != nil {
		t.Fatalf("RevokeOne: %v", err)
	}
	if _, err := f.store.GetByID(ctx, mine.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected revoked row gone, got %v", err)
	}

	if got := testutil.ToFloat64(f.metrics.revokes.WithLabelValues("one", "forbidden")); got != 1 {
		t.Fatalf("forbidden revokes=%v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.revokes.WithLabelValues("one", "ok")); got != 1 {
		t.Fatalf("ok revokes=%v, want 1", got)
	}
}

func TestRevokeAll_ThenListIsEmpty(t *testing.T) {
	t.Parallel()

	f := newMemFixture(t)
	for i := 0; i < 3; i++ {
		seedSession(t, f.store, "alice", t0.Add(time.Duration(i)*time.Minute), t0.Add(month))
	}
	_, other := seedSession(t, f.store, "bob", t0, t0.Add(month))
	ctx := context.Background()

	if err := f.svc.RevokeAll(ctx, "alice"); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	list, err := f.svc.ListActive(ctx, "alice")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}
	if _, err := f.store.GetByID(ctx, other.ID); err != nil {
		t.Fatalf("other user's session must survive: %v", err)
	}
}

func TestRevokeAll_StoreFailure(t *testing.T) {
	t.Parallel()

	mem := NewMemoryStore(testHasher())
	f := newServiceFixture(t, brokenStore{mem}, mem)

	if err := f.svc.RevokeAll(context.Background(), "alice"); !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if f.sink.count() != 1 {
		t.Fatalf("expected failure reported")
	}
}

func TestListActive_FiltersExpiredAndOrders(t *testing.T) {
	t.Parallel()

	f := newMemFixture(t)
	_, second := seedSession(t, f.store, "alice", t0.Add(2*time.Minute), t0.Add(month))
	_, first := seedSession(t, f.store, "alice", t0.Add(time.Minute), t0.Add(month))
	_, stale := seedSession(t, f.store, "alice", t0.Add(-month), t0.Add(-time.Second))

	list, err := f.svc.ListActive(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 live sessions, got %d", len(list))
	}
	if list[0].Session.ID != first.ID || list[1].Session.ID != second.ID {
		t.Fatalf("unexpected order: %s, %s", list[0].Session.ID, list[1].Session.ID)
	}
	if _, err := f.store.GetByID(context.Background(), stale.ID); err != nil {
		t.Fatalf("listing must not delete stale rows: %v", err)
	}
}

func TestIssue_RememberAndDontRemember(t *testing.T) {
	t.Parallel()

	f := newMemFixture(t)
	ctx := context.Background()
	if err := f.store.PutUser(ctx, User{ID: "alice"}); err != nil {
		t.Fatalf("PutUser: %v", err)
	}

	cookies := newFakeCookies(f.cfg)
	view, err := f.svc.Issue(ctx, "alice", false, IssueMeta{IPAddress: "203.0.113.7", UserAgent: "ua"}, cookies)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !view.Session.ExpiresAt.Equal(t0.Add(month)) || view.Session.IPAddress != "203.0.113.7" {
		t.Fatalf("unexpected session %+v", view.Session)
	}
	if cookies.lastDontRemember || cookies.lastMaxAge != month {
		t.Fatalf("unexpected cookie: dontRemember=%v maxAge=%v", cookies.lastDontRemember, cookies.lastMaxAge)
	}

	resolved, err := f.svc.Resolve(ctx, cookies)
	if err != nil || resolved == nil || resolved.Session.ID != view.Session.ID {
		t.Fatalf("issued session does not resolve: (%+v, %v)", resolved, err)
	}

	short := newFakeCookies(f.cfg)
	if _, err := f.svc.Issue(ctx, "alice", true, IssueMeta{}, short); err != nil {
		t.Fatalf("Issue(dontRemember): %v", err)
	}
	if !short.lastDontRemember {
		t.Fatalf("expected dont-remember cookie")
	}
	if _, ok := short.ReadSignedCookie(f.cfg.DontRememberCookieName()); !ok {
		t.Fatalf("expected marker cookie set")
	}
}
