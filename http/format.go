package http

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// usdPrinter groups digits the en-US way, e.g. $234,567.
var usdPrinter = message.NewPrinter(language.AmericanEnglish)

func FormatUSD(value float64) string {
	return usdPrinter.Sprintf("$%.0f", value)
}

func FormatRatio(value float64) string {
	return fmt.Sprintf("%.1fx", value)
}

func FormatDensity(value float64) string {
	return fmt.Sprintf("%.1f people/household", value)
}
