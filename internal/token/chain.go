package token

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	tokenprog "github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrAccountNotFound is returned when an account does not exist on chain.
var ErrAccountNotFound = errors.New("account not found")

// Chain is the read side of the network the reader and checkout depend on.
type Chain interface {
	MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
	// TokenBalance returns the raw amount held by an SPL token account,
	// or ErrAccountNotFound.
	TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// RPCChain implements Chain over a JSON-RPC endpoint.
type RPCChain struct {
	client *rpc.Client
}

// NewRPCChain creates a chain reader for the given RPC endpoint.
func NewRPCChain(endpoint string) *RPCChain {
	return &RPCChain{client: rpc.New(endpoint)}
}

// Client exposes the underlying RPC client for wallets sharing the connection.
func (c *RPCChain) Client() *rpc.Client {
	return c.client
}

func (c *RPCChain) accountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	out, err := c.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, ErrAccountNotFound
	}
	return out.Value.Data.GetBinary(), nil
}

// MintDecimals reads the mint account and returns its decimal precision.
func (c *RPCChain) MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	data, err := c.accountData(ctx, mint)
	if err != nil {
		return 0, err
	}
	var m tokenprog.Mint
	if err := bin.NewBinDecoder(data).Decode(&m); err != nil {
		return 0, fmt.Errorf("decoding mint %s: %w", mint, err)
	}
	return m.Decimals, nil
}

// TokenBalance reads an SPL token account and returns its raw amount.
func (c *RPCChain) TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	data, err := c.accountData(ctx, account)
	if err != nil {
		return 0, err
	}
	var acc tokenprog.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return 0, fmt.Errorf("decoding token account %s: %w", account, err)
	}
	return acc.Amount, nil
}

// AccountExists reports whether the account is present at confirmed commitment.
func (c *RPCChain) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := c.accountData(ctx, account)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LatestBlockhash fetches a finalized recent blockhash.
func (c *RPCChain) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, err
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, errors.New("empty blockhash response")
	}
	return out.Value.Blockhash, nil
}

// AssociatedTokenAddress derives the owner's associated token account for mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("deriving associated token account: %w", err)
	}
	return ata, nil
}
