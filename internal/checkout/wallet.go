package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sethvargo/go-retry"
)

// DefaultPollInterval is how often KeypairWallet asks for signature status.
const DefaultPollInterval = 500 * time.Millisecond

// KeypairWallet signs with a local keygen file and talks to the network
// over RPC. It is meant for operator tooling, not for end users.
type KeypairWallet struct {
	key          solana.PrivateKey
	client       *rpc.Client
	PollInterval time.Duration
}

// NewKeypairWallet loads a solana-keygen JSON key file.
func NewKeypairWallet(path string, client *rpc.Client) (*KeypairWallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading keypair %s: %w", path, err)
	}
	return &KeypairWallet{key: key, client: client, PollInterval: DefaultPollInterval}, nil
}

func (w *KeypairWallet) Connect(_ context.Context) (solana.PublicKey, error) {
	return w.key.PublicKey(), nil
}

func (w *KeypairWallet) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	owner := w.key.PublicKey()
	_, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(owner) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("signing: %w", err)
	}

	return w.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentFinalized,
	})
}

// Confirm polls until the signature reaches confirmed commitment, the
// transaction fails, or ctx ends. There is no other deadline.
func (w *KeypairWallet) Confirm(ctx context.Context, sig solana.Signature) error {
	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return retry.Do(ctx, retry.NewConstant(interval), func(ctx context.Context) error {
		out, err := w.client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
			return retry.RetryableError(errNotLanded)
		}

		status := out.Value[0]
		if status.Err != nil {
			return fmt.Errorf("transaction failed: %v", status.Err)
		}
		switch status.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return nil
		}
		return retry.RetryableError(errNotLanded)
	})
}

var errNotLanded = errors.New("transaction not confirmed yet")
