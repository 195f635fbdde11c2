// Package auctionlock hands out one serialization token per auction.
//
// Holding the token for auction A never blocks callers working on auction B; the
// index mutex below only guards the token map for the duration of a lookup.
package auctionlock

import "sync"

type token struct {
	mu   sync.Mutex
	refs int
}

// Tokens is a keyed mutex. The zero value is ready to use.
type Tokens struct {
	mu     sync.Mutex
	tokens map[string]*token
}

// New returns an empty token set.
func New() *Tokens {
	return &Tokens{tokens: make(map[string]*token)}
}

// Acquire blocks until the caller holds the token for auctionID and returns the
// function that releases it. Release must be called exactly once.
func (t *Tokens) Acquire(auctionID string) (release func()) {
	t.mu.Lock()
	if t.tokens == nil {
		t.tokens = make(map[string]*token)
	}
	tok, ok := t.tokens[auctionID]
	if !ok {
		tok = &token{}
		t.tokens[auctionID] = tok
	}
	tok.refs++
	t.mu.Unlock()

	tok.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			tok.mu.Unlock()

			t.mu.Lock()
			tok.refs--
			if tok.refs == 0 {
				delete(t.tokens, auctionID)
			}
			t.mu.Unlock()
		})
	}
}

// Len reports how many tokens are currently held or awaited.
func (t *Tokens) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tokens)
}
