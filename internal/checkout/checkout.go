// Package checkout builds, submits and confirms the single $VIEWS transfer
// that pays for an ad slot.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
	tokenprog "github.com/gagliardetto/solana-go/programs/token"

	"github.com/viewheel/backend/internal/config"
	"github.com/viewheel/backend/internal/models"
	"github.com/viewheel/backend/internal/notify"
	"github.com/viewheel/backend/internal/token"
)

// DefaultLabel is shown when no label is configured.
const DefaultLabel = "Livestream Ad Slot"

// Wallet is the signing capability. Implementations hold the key; the
// checkout only ever sees public keys and signatures.
type Wallet interface {
	Connect(ctx context.Context) (solana.PublicKey, error)
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature) error
}

// Options configures one checkout.
type Options struct {
	// Amount in whole tokens.
	Amount int64
	// OnPaid runs after confirmation, before Pay returns.
	OnPaid func(solana.Signature)
	// MintAddress and TreasuryAddress override the configured values.
	MintAddress     string
	TreasuryAddress string
	Label           string
	Disabled        bool
	// BeforePay must succeed before any transaction is built.
	BeforePay func(ctx context.Context) error
}

// Checkout orchestrates one payment at a time.
type Checkout struct {
	chain    token.Chain
	reader   *token.Reader
	wallet   Wallet
	notifier notify.Notifier
	logger   *slog.Logger
	opts     Options

	mint     *solana.PublicKey
	treasury *solana.PublicKey

	mu       sync.Mutex
	payer    *solana.PublicKey
	inFlight bool
}

// New creates a checkout. Mint and treasury fall back to cfg when the
// options leave them empty; unparsable addresses leave payment disabled.
// A nil reader gets a private one.
func New(cfg config.SolanaConfig, chain token.Chain, reader *token.Reader, wallet Wallet, opts Options, notifier notify.Notifier, logger *slog.Logger) *Checkout {
	if opts.Label == "" {
		opts.Label = DefaultLabel
	}
	if opts.MintAddress == "" {
		opts.MintAddress = cfg.MintAddress
	}
	if opts.TreasuryAddress == "" {
		opts.TreasuryAddress = cfg.TreasuryAddress
	}
	if reader == nil {
		reader = token.NewReader(chain, notifier)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Checkout{
		chain:    chain,
		reader:   reader,
		wallet:   wallet,
		notifier: notifier,
		logger:   logger.With("component", "checkout"),
		opts:     opts,
		mint:     parseKey(opts.MintAddress),
		treasury: parseKey(opts.TreasuryAddress),
	}

	if opts.TreasuryAddress == "" {
		c.notify(context.Background(), notify.Notice{
			Level:       notify.LevelError,
			Title:       "Treasury address is not configured.",
			Description: "Payments are disabled until a treasury is set.",
		})
	}
	return c
}

func parseKey(s string) *solana.PublicKey {
	if s == "" {
		return nil
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return nil
	}
	return &pk
}

func (c *Checkout) notify(ctx context.Context, n notify.Notice) {
	if c.notifier != nil {
		c.notifier.Notify(ctx, n)
	}
}

// Connect asks the wallet for its key and loads the payer's balance.
func (c *Checkout) Connect(ctx context.Context) (solana.PublicKey, error) {
	pk, err := c.wallet.Connect(ctx)
	if err != nil {
		c.notify(ctx, notify.Error("Wallet connection failed", err))
		return solana.PublicKey{}, err
	}
	c.mu.Lock()
	c.payer = &pk
	c.mu.Unlock()

	_ = c.Load(ctx)
	return pk, nil
}

// Load reads mint decimals and, once connected, the payer's balance.
// Failures are reported as notices and returned joined.
func (c *Checkout) Load(ctx context.Context) error {
	if c.mint == nil {
		return nil
	}
	return c.reader.Load(ctx, c.payerKey(), *c.mint)
}

func (c *Checkout) payerKey() *solana.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payer
}

// Busy reports whether a payment is in flight.
func (c *Checkout) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// CanPay reports whether a payment may be started.
func (c *Checkout) CanPay() bool {
	if c.opts.Disabled || c.opts.Amount <= 0 {
		return false
	}
	if c.mint == nil || c.treasury == nil || c.payerKey() == nil {
		return false
	}
	_, ok := c.reader.Decimals(*c.mint)
	return ok
}

// Quote describes the pending payment for display.
func (c *Checkout) Quote() models.Quote {
	q := models.Quote{
		Label:    c.opts.Label,
		Amount:   c.opts.Amount,
		Mint:     c.opts.MintAddress,
		Treasury: c.opts.TreasuryAddress,
		CanPay:   c.CanPay(),
	}
	if c.mint == nil {
		return q
	}
	if d, ok := c.reader.Decimals(*c.mint); ok {
		q.Decimals = &d
		if c.opts.Amount > 0 {
			if base, err := token.ToBaseUnits(uint64(c.opts.Amount), d); err == nil {
				q.AmountBaseUnits = &base
			}
		}
	}
	if payer := c.payerKey(); payer != nil {
		q.Payer = payer.String()
		if b, ok := c.reader.Balance(*payer, *c.mint); ok {
			q.Balance = &b
			if q.Decimals != nil {
				q.BalanceDisplay = token.FormatAmount(b, *q.Decimals)
			}
		}
	}
	return q
}

// Pay transfers the configured amount to the treasury and waits for
// confirmation. It returns ErrPaymentInFlight immediately if another
// payment is running.
func (c *Checkout) Pay(ctx context.Context) (solana.Signature, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return solana.Signature{}, ErrPaymentInFlight
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	if !c.CanPay() {
		c.notify(ctx, notify.Error("Payment failed", ErrNotReady))
		return solana.Signature{}, ErrNotReady
	}

	if c.opts.BeforePay != nil {
		if err := c.opts.BeforePay(ctx); err != nil {
			c.notify(ctx, notify.Error("Cannot proceed to payment", err))
			return solana.Signature{}, &BeforePayError{Err: err}
		}
	}

	sig, err := c.transfer(ctx)
	if err != nil {
		c.logger.Warn("payment failed", "error", err)
		c.notify(ctx, notify.Error("Payment failed", errors.Unwrap(err)))
		return solana.Signature{}, err
	}

	c.notify(ctx, notify.Notice{Level: notify.LevelSuccess, Title: "Payment confirmed"})
	if c.opts.OnPaid != nil {
		c.opts.OnPaid(sig)
	}

	payer := c.payerKey()
	if _, err := c.reader.LoadBalance(ctx, *payer, *c.mint); err != nil {
		c.logger.Debug("balance refresh failed", "error", err)
	}
	return sig, nil
}

// transfer runs the checked steps between the hook and confirmation.
// Returned errors wrap the user-facing cause.
func (c *Checkout) transfer(ctx context.Context) (solana.Signature, error) {
	payer := *c.payerKey()
	mint := *c.mint
	decimals, _ := c.reader.Decimals(mint)

	amount, err := token.ToBaseUnits(uint64(c.opts.Amount), decimals)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("pricing: %w", err)
	}

	payerATA, err := token.AssociatedTokenAddress(payer, mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("payer account: %w", err)
	}
	treasuryATA, err := token.AssociatedTokenAddress(*c.treasury, mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("treasury account: %w", err)
	}

	if err := c.requireAccount(ctx, RolePayer, payerATA); err != nil {
		return solana.Signature{}, err
	}
	if err := c.requireAccount(ctx, RoleTreasury, treasuryATA); err != nil {
		return solana.Signature{}, err
	}

	// advisory only; an unknown balance is left to the network
	if balance, ok := c.reader.Balance(payer, mint); ok && balance < amount {
		return solana.Signature{}, fmt.Errorf("balance %d < %d: %w", balance, amount, ErrInsufficientBalance)
	}

	ix := tokenprog.NewTransferCheckedInstruction(
		amount,
		decimals,
		payerATA,
		mint,
		treasuryATA,
		payer,
		[]solana.PublicKey{},
	).Build()

	blockhash, err := c.chain.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("fetching blockhash: %w", err)
	}

	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("building transaction: %w", err)
	}

	sig, err := c.wallet.SignAndSend(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("submitting: %w", &SubmitError{Err: err})
	}
	c.notify(ctx, notify.Notice{
		Level:       notify.LevelInfo,
		Title:       "Payment submitted",
		Description: "Signature: " + shortSignature(sig),
	})
	c.logger.Info("payment submitted", "signature", sig.String(), "amount", amount)

	if err := c.wallet.Confirm(ctx, sig); err != nil {
		return solana.Signature{}, fmt.Errorf("confirming: %w", &ConfirmError{Signature: sig, Err: err})
	}
	return sig, nil
}

func (c *Checkout) requireAccount(ctx context.Context, role AccountRole, account solana.PublicKey) error {
	exists, err := c.chain.AccountExists(ctx, account)
	if err != nil {
		return fmt.Errorf("checking %s account: %w", role, err)
	}
	if !exists {
		return fmt.Errorf("%s account: %w", role, &AccountNotFoundError{Role: role, Account: account})
	}
	return nil
}

func shortSignature(sig solana.Signature) string {
	s := sig.String()
	if len(s) > 8 {
		return s[:8] + "…"
	}
	return s
}
