// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package numfmt formats timing and size values for display with a fixed
// number of significant digits and locale digit grouping.
package numfmt // import "go.opentelemetry.io/profile-viewer/internal/numfmt"

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.English)

func places(value float64, significantDigits, maxFractionalDigits, shift int) int {
	if value == 0 {
		return maxFractionalDigits
	}
	digitsOnLeft := int(math.Floor(math.Log10(math.Abs(value)))) + 1 + shift
	return min(max(significantDigits-digitsOnLeft, 0), maxFractionalDigits)
}

// Number formats value with up to significantDigits significant digits but
// never more than maxFractionalDigits decimal places, e.g. 123 -> "123",
// 12.3 -> "12", 1.23 -> "1.2", 0.01234 -> "0.012" for two significant digits.
func Number(value float64, significantDigits, maxFractionalDigits int) string {
	if math.IsNaN(value) {
		return "NaN"
	}
	p := places(value, significantDigits, maxFractionalDigits, 0)
	return printer.Sprintf("%v", number.Decimal(value, number.Scale(p)))
}

// DependingOnInterval formats call tree times. Integer intervals never
// produce fractional times, so they are printed without decimals.
func DependingOnInterval(integerInterval bool, value float64) string {
	maxFractionalDigits := 1
	if integerInterval {
		maxFractionalDigits = 0
	}
	return Number(value, 3, maxFractionalDigits)
}

// Percent formats a ratio (0.4) as a percentage ("40%").
func Percent(ratio float64) string {
	if math.IsNaN(ratio) {
		return "NaN"
	}
	p := places(ratio, 2, 1, 2)
	return printer.Sprintf("%v", number.Decimal(ratio*100, number.Scale(p))) + "%"
}

// Milliseconds formats a duration in milliseconds.
func Milliseconds(ms float64) string {
	return Number(ms, 2, 3) + "ms"
}

// Bytes formats a size using B, KB, MB or GB.
func Bytes(bytes float64) string {
	switch {
	case bytes < 10000:
		return Number(bytes, 2, 3) + "B"
	case bytes < 1024*1024:
		return Number(bytes/1024, 3, 2) + "KB"
	case bytes < 1024*1024*1024:
		return Number(bytes/(1024*1024), 3, 2) + "MB"
	default:
		return Number(bytes/(1024*1024*1024), 3, 2) + "GB"
	}
}
