package sale

import (
	"strings"

	"github.com/shopspring/decimal"
)

// KeyDelimiter separates match key components. Normalized text never contains it.
const KeyDelimiter = "|"

// MatchKeys holds the three match keys of a sale, from most to least specific.
type MatchKeys struct {
	Strict   string // day, minute, service, amount, tip, customer, provider
	Fallback string // day, minute, service, amount, tip
	Ultra    string // day, minute, service
}

// KeyParts are the raw inputs of a match key. Both the candidate path and the
// persisted-record path build keys through this one type.
type KeyParts struct {
	Day      string
	Minute   string
	Service  string
	Amount   decimal.Decimal
	Tip      decimal.Decimal
	Customer string
	Provider string
}

// BuildKeys derives the three match keys. Field order is fixed.
func BuildKeys(p KeyParts) MatchKeys {
	service := NormalizeService(p.Service)
	amount := MoneyKey(p.Amount)
	tip := MoneyKey(p.Tip)

	return MatchKeys{
		Strict: strings.Join([]string{
			p.Day, p.Minute, service, amount, tip,
			NormalizePerson(p.Customer), NormalizePerson(p.Provider),
		}, KeyDelimiter),
		Fallback: strings.Join([]string{p.Day, p.Minute, service, amount, tip}, KeyDelimiter),
		Ultra:    strings.Join([]string{p.Day, p.Minute, service}, KeyDelimiter),
	}
}

// Keys derives the match keys of a canonical transaction.
func Keys(t Transaction) MatchKeys {
	return BuildKeys(t.KeyParts())
}

// KeyParts returns the match key inputs of a transaction.
func (t Transaction) KeyParts() KeyParts {
	return KeyParts{
		Day:      t.Day,
		Minute:   t.Minute,
		Service:  t.Service,
		Amount:   t.AmountDue,
		Tip:      t.Tip,
		Customer: t.CustomerName,
		Provider: t.ProviderName,
	}
}
