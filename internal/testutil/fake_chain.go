// fake_chain.go - In-memory Solana chain and wallet for checkout tests
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/viewheel/backend/internal/token"
)

// FakeChain implements token.Chain from in-memory maps
type FakeChain struct {
	mu sync.Mutex

	Mints     map[solana.PublicKey]uint8
	Balances  map[solana.PublicKey]uint64 // token account -> raw amount
	Blockhash solana.Hash

	MintErr      error
	BalanceErr   error
	BlockhashErr error

	MintCalls    int
	BalanceCalls int
}

// NewFakeChain creates an empty chain with a fixed blockhash
func NewFakeChain() *FakeChain {
	return &FakeChain{
		Mints:     make(map[solana.PublicKey]uint8),
		Balances:  make(map[solana.PublicKey]uint64),
		Blockhash: solana.HashFromBytes([]byte("fake-blockhash-fake-blockhash-00")),
	}
}

// AddMint registers a mint with the given decimals
func (f *FakeChain) AddMint(mint solana.PublicKey, decimals uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Mints[mint] = decimals
}

// Fund creates (or overwrites) owner's associated token account for mint
func (f *FakeChain) Fund(owner, mint solana.PublicKey, amount uint64) solana.PublicKey {
	ata, err := token.AssociatedTokenAddress(owner, mint)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Balances[ata] = amount
	return ata
}

func (f *FakeChain) MintDecimals(_ context.Context, mint solana.PublicKey) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MintCalls++
	if f.MintErr != nil {
		return 0, f.MintErr
	}
	d, ok := f.Mints[mint]
	if !ok {
		return 0, token.ErrAccountNotFound
	}
	return d, nil
}

func (f *FakeChain) TokenBalance(_ context.Context, account solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BalanceCalls++
	if f.BalanceErr != nil {
		return 0, f.BalanceErr
	}
	b, ok := f.Balances[account]
	if !ok {
		return 0, token.ErrAccountNotFound
	}
	return b, nil
}

func (f *FakeChain) AccountExists(_ context.Context, account solana.PublicKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Balances[account]
	return ok, nil
}

func (f *FakeChain) LatestBlockhash(_ context.Context) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BlockhashErr != nil {
		return solana.Hash{}, f.BlockhashErr
	}
	return f.Blockhash, nil
}

var _ token.Chain = (*FakeChain)(nil)

// FakeWallet signs nothing; it records submitted transactions and hands back
// deterministic signatures.
type FakeWallet struct {
	mu sync.Mutex

	Key        solana.PublicKey
	ConnectErr error
	SendErr    error
	ConfirmErr error

	// Block, when set, is waited on inside SignAndSend
	Block chan struct{}

	Sent      []*solana.Transaction
	Confirmed []solana.Signature
}

// NewFakeWallet creates a wallet with a fresh random key
func NewFakeWallet() *FakeWallet {
	return &FakeWallet{Key: solana.NewWallet().PublicKey()}
}

func (w *FakeWallet) Connect(_ context.Context) (solana.PublicKey, error) {
	if w.ConnectErr != nil {
		return solana.PublicKey{}, w.ConnectErr
	}
	return w.Key, nil
}

func (w *FakeWallet) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if w.Block != nil {
		select {
		case <-w.Block:
		case <-ctx.Done():
			return solana.Signature{}, ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.SendErr != nil {
		return solana.Signature{}, w.SendErr
	}
	w.Sent = append(w.Sent, tx)
	var sig solana.Signature
	sig[0] = byte(len(w.Sent))
	sig[1] = 0x5a
	return sig, nil
}

func (w *FakeWallet) Confirm(_ context.Context, sig solana.Signature) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ConfirmErr != nil {
		return w.ConfirmErr
	}
	w.Confirmed = append(w.Confirmed, sig)
	return nil
}

// SentCount returns the number of submitted transactions
func (w *FakeWallet) SentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.Sent)
}

// ErrRejected mimics a wallet/user rejection
var ErrRejected = errors.New("User rejected the request.")
