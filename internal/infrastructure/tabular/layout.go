package tabular

import (
	"fmt"
	"strconv"
	"strings"

	"posrecon/internal/domain/sale"
)

// DefaultHeaderRow is where the POS transaction export prints its column headers.
const DefaultHeaderRow = 23

// Layout addresses the canonical fields of an index-addressed sheet.
type Layout struct {
	HeaderRow int                // 1-based; data starts on the next row
	Columns   map[sale.Field]int // 1-based column per field
}

// DefaultLayout returns the column positions of the POS transaction export.
func DefaultLayout() Layout {
	return Layout{
		HeaderRow: DefaultHeaderRow,
		Columns: map[sale.Field]int{
			sale.FieldCheckoutDate:  1,
			sale.FieldCheckedOutBy:  2,
			sale.FieldTransactionID: 3,
			sale.FieldCustomer:      5,
			sale.FieldItemSold:      6,
			sale.FieldProviderName:  9,
			sale.FieldAmountDue:     12,
			sale.FieldTip:           14,
			sale.FieldCash:          17,
			sale.FieldGiftCard:      19,
			sale.FieldCreditCard:    22,
			sale.FieldChargeMethod:  31,
			sale.FieldChangeDue:     32,
		},
	}
}

// WithOverrides returns a copy of the layout with columns replaced per overrides,
// a comma separated list of field=column pairs such as "item_sold=7,tip=15".
func (l Layout) WithOverrides(overrides string) (Layout, error) {
	out := Layout{HeaderRow: l.HeaderRow, Columns: make(map[sale.Field]int, len(l.Columns))}
	for f, c := range l.Columns {
		out.Columns[f] = c
	}

	overrides = strings.TrimSpace(overrides)
	if overrides == "" {
		return out, nil
	}

	known := make(map[sale.Field]bool, len(sale.Fields))
	for _, f := range sale.Fields {
		known[f] = true
	}

	for _, pair := range strings.Split(overrides, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return Layout{}, fmt.Errorf("invalid column override %q: want field=column", pair)
		}
		field := sale.Field(strings.TrimSpace(name))
		if !known[field] {
			return Layout{}, fmt.Errorf("invalid column override %q: unknown field %q", pair, field)
		}
		col, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || col < 1 {
			return Layout{}, fmt.Errorf("invalid column override %q: column must be a positive integer", pair)
		}
		out.Columns[field] = col
	}
	return out, nil
}

// headerAliases maps normalized CSV header text to canonical fields.
var headerAliases = map[string]sale.Field{
	"checkout date":       sale.FieldCheckoutDate,
	"checkout":            sale.FieldCheckoutDate,
	"date":                sale.FieldCheckoutDate,
	"transaction date":    sale.FieldCheckoutDate,
	"sale date":           sale.FieldCheckoutDate,
	"created date":        sale.FieldCheckoutDate,
	"timestamp":           sale.FieldCheckoutDate,
	"checked out by":      sale.FieldCheckedOutBy,
	"transaction id":      sale.FieldTransactionID,
	"transactionid":       sale.FieldTransactionID,
	"userpaymentsmstid":   sale.FieldTransactionID,
	"receipt":             sale.FieldTransactionID,
	"customer":            sale.FieldCustomer,
	"customer name":       sale.FieldCustomer,
	"client":              sale.FieldCustomer,
	"item sold":           sale.FieldItemSold,
	"service":             sale.FieldItemSold,
	"service name":        sale.FieldItemSold,
	"service provider":    sale.FieldProviderName,
	"provider":            sale.FieldProviderName,
	"provider name":       sale.FieldProviderName,
	"provider id":         sale.FieldProviderID,
	"service provider id": sale.FieldProviderID,
	"amount due":          sale.FieldAmountDue,
	"price":               sale.FieldAmountDue,
	"tip":                 sale.FieldTip,
	"tips":                sale.FieldTip,
	"cash":                sale.FieldCash,
	"cash amount":         sale.FieldCash,
	"gift card":           sale.FieldGiftCard,
	"gc redemption":       sale.FieldGiftCard,
	"credit card":         sale.FieldCreditCard,
	"cc":                  sale.FieldCreditCard,
	"cc amount":           sale.FieldCreditCard,
	"charge method":       sale.FieldChargeMethod,
	"change due":          sale.FieldChangeDue,
	"change":              sale.FieldChangeDue,
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}

// headerColumns maps a header row onto 1-based field columns. The first
// column carrying a field wins.
func headerColumns(header []string) map[sale.Field]int {
	cols := make(map[sale.Field]int)
	for i, h := range header {
		field, ok := headerAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, seen := cols[field]; !seen {
			cols[field] = i + 1
		}
	}
	return cols
}
