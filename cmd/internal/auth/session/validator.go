package session

import (
	"context"
	"errors"
	"strings"
)

// Validator checks a raw session token against the store.
type Validator struct {
	store Store
	clock Clock
	sink  ErrorSink
}

// NewValidator constructs a Validator. Nil clock and sink fall back to
// SystemClock and a discarding sink.
func NewValidator(store Store, clock Clock, sink ErrorSink) *Validator {
	if clock == nil {
		clock = SystemClock{}
	}
	if sink == nil {
		sink = discardSink{}
	}
	return &Validator{store: store, clock: clock, sink: sink}
}

// Validate returns the live view for rawToken.
//
// Unknown tokens and expired sessions clear the cookies on the transport.
// Expired rows are deleted on a best-effort basis; a failed delete is
// reported to the sink and does not change the outcome.
func (v *Validator) Validate(ctx context.Context, rawToken string, cookies CookieTransport) (View, error) {
	const op = "session.Validate"

	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return View{}, opErr(op, ErrNoCredential)
	}

	view, err := v.store.FindByToken(ctx, rawToken)
	if errors.Is(err, ErrSessionNotFound) {
		clearCookies(cookies)
		return View{}, opErr(op, ErrSessionNotFound)
	}
	if err != nil {
		return View{}, internalErr(op, err)
	}

	if !view.Session.Live(v.clock.Now()) {
		if err := v.store.DeleteByID(ctx, view.Session.ID); err != nil {
			v.sink.Report(ctx, internalErr(op+".delete_expired", err))
		}
		clearCookies(cookies)
		return View{}, opErr(op, ErrSessionExpired)
	}

	return view, nil
}

func clearCookies(cookies CookieTransport) {
	if cookies != nil {
		cookies.DeleteSessionCookie()
	}
}
