package checkout

import (
	"errors"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrNotReady is returned by Pay while CanPay reports false.
	ErrNotReady = errors.New("checkout is not ready: connect a wallet and wait for token metadata")

	// ErrPaymentInFlight is returned, without side effects, when Pay is
	// called while an earlier payment has not finished.
	ErrPaymentInFlight = errors.New("a payment is already in progress")

	// ErrInsufficientBalance is the optimistic client-side check. The
	// network's verdict on the submitted transfer remains authoritative.
	ErrInsufficientBalance = errors.New("Insufficient $VIEWS balance for this payment.")
)

// AccountRole names which side of the transfer is missing its token account.
type AccountRole string

const (
	RolePayer    AccountRole = "payer"
	RoleTreasury AccountRole = "treasury"
)

// AccountNotFoundError means an associated token account does not exist.
type AccountNotFoundError struct {
	Role    AccountRole
	Account solana.PublicKey
}

func (e *AccountNotFoundError) Error() string {
	if e.Role == RoleTreasury {
		return "Treasury token account (ATA) not found. Contact the team to set it up before accepting payments."
	}
	return "Your $VIEWS token account was not found. Make sure you hold $VIEWS in this wallet."
}

// BeforePayError wraps a failed pre-payment hook. Its message is the hook's, verbatim.
type BeforePayError struct {
	Err error
}

func (e *BeforePayError) Error() string { return e.Err.Error() }
func (e *BeforePayError) Unwrap() error { return e.Err }

// SubmitError means the wallet or network refused the transaction.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string { return e.Err.Error() }
func (e *SubmitError) Unwrap() error { return e.Err }

// ConfirmError means the transaction was submitted but never confirmed.
type ConfirmError struct {
	Signature solana.Signature
	Err       error
}

func (e *ConfirmError) Error() string { return e.Err.Error() }

func (e *ConfirmError) Unwrap() error { return e.Err }
