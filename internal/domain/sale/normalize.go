package sale

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	nonServiceRune = regexp.MustCompile(`[^a-z0-9]`)
	nonPersonRune  = regexp.MustCompile(`[^a-z\s]`)
	nonMoneyRune   = regexp.MustCompile(`[^0-9.\-]`)
	parenNegative  = regexp.MustCompile(`^\((.*)\)$`)
)

// NormalizeService lowercases a service descriptor and strips everything that
// is not a letter or digit, whitespace included, so "Mani / Pedi" and
// "mani/pedi" collapse to the same descriptor.
func NormalizeService(s string) string {
	s = whitespaceRun.ReplaceAllString(strings.ToLower(foldAccents(trimSpace(s))), " ")
	return nonServiceRune.ReplaceAllString(s, "")
}

// NormalizePerson reduces a customer or provider name to lowercase letters and
// single spaces.
func NormalizePerson(s string) string {
	s = whitespaceRun.ReplaceAllString(strings.ToLower(foldAccents(trimSpace(s))), " ")
	s = nonPersonRune.ReplaceAllString(s, "")
	return whitespaceRun.ReplaceAllString(trimSpace(s), " ")
}

// ParseMoney reads a currency cell such as "$1,234.50" or "(12.00)". Anything
// unparsable is zero. The result is rounded to the cent.
func ParseMoney(s string) decimal.Decimal {
	s = strings.NewReplacer("$", "", ",", "").Replace(trimSpace(s))
	s = whitespaceRun.ReplaceAllString(s, "")
	s = parenNegative.ReplaceAllString(s, "-$1")
	s = nonMoneyRune.ReplaceAllString(s, "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}

// MoneyKey renders an amount as a fixed two-decimal string after rounding to
// the cent, so float noise in the sources never leaks into match keys.
func MoneyKey(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// summaryLabels are descriptor values that mark subtotal and section lines of
// a tabular export. Entries ending in ':' match as prefixes.
var summaryLabels = []string{
	"total",
	"redeemed",
	"money earned",
	"cash:",
	"credit card:",
	"total:",
}

// IsSummaryRow reports whether a descriptor belongs to a totals or section-break
// line rather than a sale.
func IsSummaryRow(descriptor string) bool {
	lowered := strings.ToLower(trimSpace(descriptor))
	if lowered == "" {
		return false
	}
	for _, label := range summaryLabels {
		if strings.HasSuffix(label, ":") {
			if strings.HasPrefix(lowered, label) {
				return true
			}
			continue
		}
		if lowered == label {
			return true
		}
	}
	return false
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func trimSpace(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
}
