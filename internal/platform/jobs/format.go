package jobs

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Amounts are stored in minor units. Notification consumers render the
// displayTotal attribute verbatim, so grouping happens here rather than in
// every downstream template.
var amountPrinter = message.NewPrinter(language.English)

func formatDisplayAmount(currency string, minor int64) string {
	major := minor / 100
	frac := minor % 100
	if frac < 0 {
		frac = -frac
	}
	formatted := amountPrinter.Sprintf("%d.%02d", major, frac)
	if currency == "" {
		return formatted
	}
	return currency + " " + formatted
}
