package wizard

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatDuration renders d as m:ss.
func FormatDuration(d time.Duration) string {
	secs := int64(math.Floor(d.Seconds()))
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// FormatFileSize renders a byte count with up to two decimals,
// e.g. "52.43 MB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	i := 0
	for i < len(units)-1 && bytes >= int64(1)<<(10*(i+1)) {
		i++
	}
	v := decimal.NewFromInt(bytes).Div(decimal.NewFromInt(int64(1) << (10 * i)))
	return v.Round(2).String() + " " + units[i]
}

var tokenPrinter = message.NewPrinter(language.English)

// FormatTokens adds thousands separators to a whole-token amount.
func FormatTokens(n int64) string {
	return tokenPrinter.Sprintf("%d", n)
}

// CostBreakdown explains a price, e.g. "2 minutes × 1,000 $VIEWS".
func CostBreakdown(d time.Duration) string {
	m := billedMinutes(d)
	unit := "minutes"
	if m == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("%d %s × %s $VIEWS", m, unit, FormatTokens(TokensPerMinute))
}
