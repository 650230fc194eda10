// Package token reads SPL mint and balance state for the checkout.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/viewheel/backend/internal/notify"
)

// MintLookupError means the mint account could not be read, so the
// precision needed to price a payment is unknown.
type MintLookupError struct {
	Mint solana.PublicKey
	Err  error
}

func (e *MintLookupError) Error() string {
	return fmt.Sprintf("failed to load mint %s: %v", e.Mint, e.Err)
}

func (e *MintLookupError) Unwrap() error { return e.Err }

// Reader loads mint decimals and owner balances. Decimals are cached per
// mint for the reader's lifetime; balances are cached per token account and
// replaced on every successful load.
type Reader struct {
	chain    Chain
	notifier notify.Notifier

	mu       sync.RWMutex
	decimals map[solana.PublicKey]uint8
	balances map[solana.PublicKey]uint64
}

// NewReader creates a reader. A nil notifier discards notices.
func NewReader(chain Chain, notifier notify.Notifier) *Reader {
	return &Reader{
		chain:    chain,
		notifier: notifier,
		decimals: make(map[solana.PublicKey]uint8),
		balances: make(map[solana.PublicKey]uint64),
	}
}

func (r *Reader) notify(ctx context.Context, n notify.Notice) {
	if r.notifier != nil {
		r.notifier.Notify(ctx, n)
	}
}

// LoadDecimals returns the mint's precision, fetching it once.
func (r *Reader) LoadDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	if d, ok := r.Decimals(mint); ok {
		return d, nil
	}

	d, err := r.chain.MintDecimals(ctx, mint)
	if err != nil {
		lookupErr := &MintLookupError{Mint: mint, Err: err}
		r.notify(ctx, notify.Error("Failed to load $VIEWS mint metadata (decimals).", err))
		return 0, lookupErr
	}

	r.mu.Lock()
	r.decimals[mint] = d
	r.mu.Unlock()
	return d, nil
}

// Decimals returns the cached precision for mint.
func (r *Reader) Decimals(mint solana.PublicKey) (uint8, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decimals[mint]
	return d, ok
}

// LoadBalance reads the owner's balance of mint from its associated token
// account. A missing account is a zero balance.
func (r *Reader) LoadBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ata, err := AssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, err
	}

	amount, err := r.chain.TokenBalance(ctx, ata)
	if errors.Is(err, ErrAccountNotFound) {
		amount, err = 0, nil
	}
	if err != nil {
		r.notify(ctx, notify.Error("Failed to load $VIEWS balance.", err))
		return 0, fmt.Errorf("loading balance of %s: %w", ata, err)
	}

	r.mu.Lock()
	r.balances[ata] = amount
	r.mu.Unlock()
	return amount, nil
}

// Balance returns the last loaded balance for owner and mint.
func (r *Reader) Balance(owner, mint solana.PublicKey) (uint64, bool) {
	ata, err := AssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.balances[ata]
	return b, ok
}

// Load fetches decimals and, when owner is set, the balance concurrently.
// Failures have already been reported as notices; the joined error is
// returned for callers that want it.
func (r *Reader) Load(ctx context.Context, owner *solana.PublicKey, mint solana.PublicKey) error {
	var g errgroup.Group
	var decErr, balErr error

	g.Go(func() error {
		_, decErr = r.LoadDecimals(ctx, mint)
		return nil
	})
	if owner != nil {
		g.Go(func() error {
			_, balErr = r.LoadBalance(ctx, *owner, mint)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(decErr, balErr)
}
