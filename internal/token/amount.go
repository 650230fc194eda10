package token

import (
	"errors"
	"math/big"
	"math/bits"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// MaxDecimals is the largest precision an SPL mint can declare that still
// leaves room for whole-token amounts in a uint64.
const MaxDecimals = 19

var ErrAmountOverflow = errors.New("amount does not fit in a token amount")

// ToBaseUnits scales a whole-token amount by 10^decimals without rounding.
func ToBaseUnits(amount uint64, decimals uint8) (uint64, error) {
	if decimals > MaxDecimals {
		return 0, ErrAmountOverflow
	}
	result := amount
	for i := uint8(0); i < decimals; i++ {
		hi, lo := bits.Mul64(result, 10)
		if hi != 0 {
			return 0, ErrAmountOverflow
		}
		result = lo
	}
	return result, nil
}

// FormatAmount renders a raw amount in whole tokens with at most four
// fractional digits, trailing zeros dropped.
func FormatAmount(raw uint64, decimals uint8) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
	return d.Truncate(4).String()
}

// ShortAddress abbreviates a key for display, e.g. "7xKX…gAsU".
func ShortAddress(pk solana.PublicKey) string {
	s := pk.String()
	if len(s) <= 8 {
		return s
	}
	return s[:4] + "…" + s[len(s)-4:]
}
