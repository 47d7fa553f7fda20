package sale

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field names a canonical column of a raw sale row, whatever source it came from.
type Field string

const (
	FieldCheckoutDate  Field = "checkout_date"
	FieldCheckedOutBy  Field = "checked_out_by"
	FieldTransactionID Field = "transaction_id"
	FieldCustomer      Field = "customer"
	FieldItemSold      Field = "item_sold"
	FieldProviderName  Field = "provider_name"
	FieldProviderID    Field = "provider_id"
	FieldAmountDue     Field = "amount_due"
	FieldTip           Field = "tip"
	FieldCash          Field = "cash"
	FieldGiftCard      Field = "gift_card"
	FieldCreditCard    Field = "credit_card"
	FieldChargeMethod  Field = "charge_method"
	FieldChangeDue     Field = "change_due"
)

// Fields is the full set of canonical fields in display order.
var Fields = []Field{
	FieldCheckoutDate, FieldCheckedOutBy, FieldTransactionID, FieldCustomer,
	FieldItemSold, FieldProviderName, FieldProviderID, FieldAmountDue, FieldTip,
	FieldCash, FieldGiftCard, FieldCreditCard, FieldChargeMethod, FieldChangeDue,
}

// RawRow is an unvalidated bag of canonical fields extracted from one source row.
type RawRow struct {
	Batch     string // Source batch label, usually the export file name
	RowNumber int    // 1-based row number within the batch
	Fields    map[Field]string
}

// Get returns the trimmed value of a field.
func (r RawRow) Get(f Field) string {
	if r.Fields == nil {
		return ""
	}
	return trimSpace(r.Fields[f])
}

// Transaction is the canonical in-memory form of a sale. It is a value type and
// is never mutated once produced by the Normalizer.
type Transaction struct {
	Batch      string
	RowNumber  int
	Reference  string // Natural key from the source, used only for the storage id
	CheckoutAt time.Time
	Day        string // Business day, "2025-12-12"
	Minute     string // Business-local time of day, "14:05"

	Service      string
	AmountDue    decimal.Decimal
	Tip          decimal.Decimal
	CustomerName string
	ProviderName string
	ProviderID   string

	CashTendered decimal.Decimal
	CreditCard   decimal.Decimal
	GiftCard     decimal.Decimal
	ChangeDue    decimal.Decimal
	CheckedOutBy string
	ChargeMethod string
}

// SoldTotal is the sum of cash and card tenders.
func (t Transaction) SoldTotal() decimal.Decimal {
	return t.CashTendered.Add(t.CreditCard)
}
