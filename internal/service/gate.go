package service

import "context"

// TokenPool bounds how many callers may hold a token at once. It is a
// buffered channel of tokens: Acquire takes one, Release puts it back.
type TokenPool struct {
	tokens chan struct{}
}

// NewTokenPool creates a pool with n tokens; n < 1 is treated as 1.
func NewTokenPool(n int) *TokenPool {
	if n < 1 {
		n = 1
	}
	p := &TokenPool{tokens: make(chan struct{}, n)}
	for i := 0; i < n; i++ {
		p.tokens <- struct{}{}
	}
	return p
}

// Acquire blocks until a token is free or ctx is done.
func (p *TokenPool) Acquire(ctx context.Context) error {
	select {
	case <-p.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a token taken by Acquire.
func (p *TokenPool) Release() {
	select {
	case p.tokens <- struct{}{}:
	default:
		panic("service: TokenPool.Release without Acquire")
	}
}

// Size is the total number of tokens.
func (p *TokenPool) Size() int {
	return cap(p.tokens)
}

// InUse is the number of tokens currently held.
func (p *TokenPool) InUse() int {
	return cap(p.tokens) - len(p.tokens)
}
