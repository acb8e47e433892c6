package session

import (
	"context"
	"errors"
	"strings"

	"sessiond/cmd/security/token"
)

// Service implements the session lifecycle: resolve with throttled sliding
// refresh, the "don't remember me" exemption, listing and revocation.
//
// It holds no mutable state; concurrent requests are arbitrated by the store.
type Service struct {
	cfg       Config
	store     Store
	clock     Clock
	sink      ErrorSink
	metrics   *Metrics
	validator *Validator
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithErrorSink sets where internal failures are reported.
func WithErrorSink(sink ErrorSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithMetrics enables outcome counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService constructs a Service over store.
func NewService(cfg Config, store Store, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg,
		store: store,
		clock: SystemClock{},
		sink:  discardSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = NewValidator(store, s.clock, s.sink)
	return s
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// Resolve returns the caller's live session, extending it when due.
//
// (nil, nil) means the request is anonymous: no cookie, an unknown or
// expired token, or a session deleted concurrently with its refresh.
// Store failures return ErrInternal after being reported to the sink.
func (s *Service) Resolve(ctx context.Context, cookies CookieTransport) (*View, error) {
	const op = "session.Resolve"

	rawToken, ok := cookies.ReadSignedCookie(cookies.SessionCookieName())
	if !ok {
		s.metrics.resolved(OutcomeAnonymous)
		return nil, nil
	}
	_, dontRemember := cookies.ReadSignedCookie(cookies.DontRememberCookieName())

	view, err := s.validator.Validate(ctx, rawToken, cookies)
	if err != nil {
		if errors.Is(err, ErrInternal) {
			return nil, s.fail(ctx, err)
		}
		s.metrics.resolved(OutcomeRejected)
		return nil, nil
	}

	now := s.clock.Now()
	if dontRemember || !ShouldRefresh(view.Session.ExpiresAt, s.cfg.MaxAge, s.cfg.UpdateAge, now) {
		s.metrics.resolved(OutcomeLive)
		return &view, nil
	}

	res, err := s.store.UpdateExpiry(ctx, view.Session.ID, NextExpiry(s.cfg.MaxAge, now), now)
	if err != nil {
		return nil, s.fail(ctx, internalErr(op+".update_expiry", err))
	}
	if res.Gone {
		cookies.DeleteSessionCookie()
		s.metrics.resolved(OutcomeRaced)
		return nil, nil
	}

	if err := cookies.SetSessionCookie(rawToken, false, res.Session.ExpiresAt.Sub(now)); err != nil {
		return nil, s.fail(ctx, internalErr(op+".set_cookie", err))
	}

	view.Session = res.Session
	s.metrics.resolved(OutcomeRefreshed)
	return &view, nil
}

func (s *Service) fail(ctx context.Context, err error) error {
	s.sink.Report(ctx, err)
	s.metrics.resolved(OutcomeInternal)
	return ErrInternal
}

// RevokeOne deletes sessionID if it belongs to requestingUserID.
//
// Returns ErrSessionNotFound for unknown ids and ErrForbidden when the
// session is owned by someone else; the row is left untouched in both cases.
func (s *Service) RevokeOne(ctx context.Context, sessionID, requestingUserID string) (err error) {
	const op = "session.RevokeOne"
	defer func() { s.metrics.revoked("one", err) }()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return opErr(op, ErrSessionNotFound)
	}

	row, err := s.store.GetByID(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return opErr(op, ErrSessionNotFound)
	}
	if err != nil {
		return s.report(ctx, internalErr(op, err))
	}
	if row.UserID != requestingUserID {
		return opErr(op, ErrForbidden)
	}

	if err := s.store.DeleteByID(ctx, sessionID); err != nil {
		return s.report(ctx, internalErr(op, err))
	}
	return nil
}

// RevokeAll deletes every session of requestingUserID.
func (s *Service) RevokeAll(ctx context.Context, requestingUserID string) (err error) {
	const op = "session.RevokeAll"
	defer func() { s.metrics.revoked("all", err) }()

	if err := s.store.DeleteAllForUser(ctx, requestingUserID); err != nil {
		return s.report(ctx, internalErr(op, err))
	}
	return nil
}

// ListActive returns the live sessions of requestingUserID ordered by
// creation time. Expired rows are skipped but not deleted.
func (s *Service) ListActive(ctx context.Context, requestingUserID string) ([]View, error) {
	const op = "session.ListActive"

	all, err := s.store.ListForUser(ctx, requestingUserID)
	if err != nil {
		return nil, s.report(ctx, internalErr(op, err))
	}

	now := s.clock.Now()
	out := make([]View, 0, len(all))
	for _, v := range all {
		if v.Session.Live(now) {
			out = append(out, v)
		}
	}
	sortViews(out)
	return out, nil
}

// IssueMeta is request metadata recorded on a new session.
type IssueMeta struct {
	IPAddress string
	UserAgent string
}

// Issue creates a session for an already authenticated user and sets its
// cookies. With dontRemember the session is never extended and its cookie
// does not outlive the browser session.
func (s *Service) Issue(ctx context.Context, userID string, dontRemember bool, meta IssueMeta, cookies CookieTransport) (View, error) {
	const op = "session.Issue"

	w, ok := s.store.(Writer)
	if !ok {
		return View{}, s.report(ctx, internalErr(op, errors.New("store does not support writes")))
	}

	rawToken, err := token.NewOpaqueToken(s.cfg.TokenBytes)
	if err != nil {
		return View{}, s.report(ctx, internalErr(op, err))
	}

	now := s.clock.Now()
	if _, err := w.Create(ctx, CreateInput{
		UserID:    userID,
		Token:     rawToken,
		ExpiresAt: NextExpiry(s.cfg.MaxAge, now),
		Now:       now,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}); err != nil {
		return View{}, s.report(ctx, internalErr(op, err))
	}

	view, err := s.store.FindByToken(ctx, rawToken)
	if err != nil {
		return View{}, s.report(ctx, internalErr(op, err))
	}

	if err := cookies.SetSessionCookie(rawToken, dontRemember, view.Session.ExpiresAt.Sub(now)); err != nil {
		return View{}, s.report(ctx, internalErr(op, err))
	}
	return view, nil
}

// report sends err to the sink and returns it unchanged.
func (s *Service) report(ctx context.Context, err error) error {
	s.sink.Report(ctx, err)
	return err
}
