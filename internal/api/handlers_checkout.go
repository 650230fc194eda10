// handlers_checkout.go - Payment quote handler
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"

	"github.com/viewheel/backend/internal/checkout"
	"github.com/viewheel/backend/internal/config"
	"github.com/viewheel/backend/internal/models"
	"github.com/viewheel/backend/internal/notify"
	"github.com/viewheel/backend/internal/token"
)

var errWatchOnly = errors.New("quote wallet cannot sign")

// watchWallet stands in for a browser wallet whose address is known but
// which the server can never sign with.
type watchWallet struct {
	key solana.PublicKey
}

func (w watchWallet) Connect(context.Context) (solana.PublicKey, error) { return w.key, nil }

func (w watchWallet) SignAndSend(context.Context, *solana.Transaction) (solana.Signature, error) {
	return solana.Signature{}, errWatchOnly
}

func (w watchWallet) Confirm(context.Context, solana.Signature) error { return errWatchOnly }

// CheckoutHandlerImpl implements the CheckoutHandler interface
type CheckoutHandlerImpl struct {
	cfg    config.SolanaConfig
	chain  token.Chain
	reader *token.Reader
	log    *slog.Logger
}

// NewCheckoutHandler creates a quote handler. The reader caches mint
// decimals across requests.
func NewCheckoutHandler(cfg config.SolanaConfig, chain token.Chain, reader *token.Reader, log *slog.Logger) CheckoutHandler {
	if log == nil {
		log = slog.Default()
	}
	if reader == nil {
		reader = token.NewReader(chain, nil)
	}
	return &CheckoutHandlerImpl{cfg: cfg, chain: chain, reader: reader, log: log}
}

type quoteResponse struct {
	models.Quote
	Notices []notify.Notice `json:"notices"`
}

// HandleQuote returns what the checkout would show for ?amount= whole
// tokens and an optional ?wallet= address.
func (h *CheckoutHandlerImpl) HandleQuote(c echo.Context) error {
	amount, err := strconv.ParseInt(c.QueryParam("amount"), 10, 64)
	if err != nil || amount <= 0 {
		return NewValidationError("amount", "amount must be a positive whole number of tokens")
	}

	var wallet checkout.Wallet
	if s := c.QueryParam("wallet"); s != "" {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return NewValidationError("wallet", "wallet is not a valid address")
		}
		wallet = watchWallet{key: pk}
	}

	ctx := c.Request().Context()
	notices := &notify.Recorder{}
	co := checkout.New(h.cfg, h.chain, h.reader, wallet, checkout.Options{Amount: amount}, notices, h.log)
	if wallet != nil {
		if _, err := co.Connect(ctx); err != nil {
			return NewInternalError("failed to read wallet", err)
		}
	} else {
		_ = co.Load(ctx)
	}

	resp := quoteResponse{Quote: co.Quote(), Notices: notices.Notices()}
	return c.JSON(http.StatusOK, resp)
}
