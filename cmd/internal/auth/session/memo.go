package session

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Resolver is satisfied by *Service.
type Resolver interface {
	Resolve(ctx context.Context, cookies CookieTransport) (*View, error)
}

// RequestMemo deduplicates session resolution within one request.
// Concurrent calls with the same key share one execution; successful
// results (including anonymous) are reused for the rest of the request.
// Failures are never cached.
type RequestMemo struct {
	group singleflight.Group

	mu   sync.Mutex
	done map[string]*View
}

// NewRequestMemo returns an empty memo.
func NewRequestMemo() *RequestMemo {
	return &RequestMemo{done: make(map[string]*View)}
}

type memoCtxKey struct{}

// WithRequestMemo attaches a fresh memo to ctx unless one is present.
func WithRequestMemo(ctx context.Context) context.Context {
	if MemoFromContext(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, memoCtxKey{}, NewRequestMemo())
}

// MemoFromContext returns the memo attached to ctx, or nil.
func MemoFromContext(ctx context.Context) *RequestMemo {
	m, _ := ctx.Value(memoCtxKey{}).(*RequestMemo)
	return m
}

// Do runs fn once per key for the lifetime of the memo.
func (m *RequestMemo) Do(key string, fn func() (*View, error)) (*View, error) {
	m.mu.Lock()
	if v, ok := m.done[key]; ok {
		m.mu.Unlock()
		return cloneView(v), nil
	}
	m.mu.Unlock()

	res, err, _ := m.group.Do(key, func() (any, error) {
		m.mu.Lock()
		if v, ok := m.done[key]; ok {
			m.mu.Unlock()
			return v, nil
		}
		m.mu.Unlock()

		v, err := fn()
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.done[key] = v
		m.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	v, _ := res.(*View)
	return cloneView(v), nil
}

// ResolveMemoized resolves through the memo in ctx when present and key is
// non-empty; otherwise it calls r directly.
func ResolveMemoized(ctx context.Context, r Resolver, key string, cookies CookieTransport) (*View, error) {
	m := MemoFromContext(ctx)
	if m == nil || key == "" {
		return r.Resolve(ctx, cookies)
	}
	return m.Do(key, func() (*View, error) {
		return r.Resolve(ctx, cookies)
	})
}

func cloneView(v *View) *View {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
