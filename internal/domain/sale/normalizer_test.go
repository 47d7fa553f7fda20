package sale

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posrecon/internal/domain/businessday"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	clock, err := businessday.LoadClock(businessday.DefaultTimezone)
	require.NoError(t, err)
	return NewNormalizer(clock, testDirectory)
}

func exportRow(n int, fields map[Field]string) RawRow {
	return RawRow{Batch: "12-12-2025", RowNumber: n, Fields: fields}
}

func TestNormalize_ExportRow(t *testing.T) {
	n := newTestNormalizer(t)

	txn, err := n.Normalize(exportRow(24, map[Field]string{
		FieldCheckoutDate:  "12/12/2025 - 2:05 PM",
		FieldTransactionID: "TX-1001",
		FieldItemSold:      "Gel Manicure",
		FieldCustomer:      "Jane Doe",
		FieldProviderName:  "Alex Santiesteban",
		FieldAmountDue:     "$35.00",
		FieldTip:           "7",
		FieldCash:          "-5.00",
		FieldCreditCard:    "42.00",
		FieldChangeDue:     "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "2025-12-12", txn.Day)
	assert.Equal(t, "14:05", txn.Minute)
	assert.True(t, time.Date(2025, 12, 12, 19, 5, 0, 0, time.UTC).Equal(txn.CheckoutAt))
	assert.Equal(t, "TX-1001", txn.Reference)
	assert.Equal(t, "35.00", MoneyKey(txn.AmountDue))
	assert.Equal(t, "7.00", MoneyKey(txn.Tip))
	assert.Equal(t, "p-alex", txn.ProviderID)
	assert.Equal(t, "Alex Santiesteban", txn.ProviderName)
	assert.True(t, txn.CashTendered.IsZero(), "negative cash is clamped")
	assert.Equal(t, "42.00", MoneyKey(txn.SoldTotal()))
	assert.Equal(t, "12-12-2025", txn.Batch)
	assert.Equal(t, 24, txn.RowNumber)
}

func TestNormalize_Defaults(t *testing.T) {
	n := newTestNormalizer(t)

	txn, err := n.Normalize(exportRow(31, map[Field]string{
		FieldCheckoutDate: "2025-12-12T19:05:00.000Z",
		FieldItemSold:     "Polish Change",
		FieldAmountDue:    "free",
		FieldProviderName: "Somebody New",
	}))
	require.NoError(t, err)

	assert.Equal(t, "row-31", txn.Reference)
	assert.True(t, txn.AmountDue.IsZero())
	assert.True(t, txn.Tip.IsZero())
	assert.Equal(t, "Somebody New", txn.ProviderName, "unresolved names are kept")
	assert.Empty(t, txn.ProviderID)
	assert.Equal(t, "14:05", txn.Minute)
}

func TestNormalize_ProviderIDFillsName(t *testing.T) {
	n := newTestNormalizer(t)

	txn, err := n.Normalize(exportRow(2, map[Field]string{
		FieldCheckoutDate: "12/12/2025 14:05",
		FieldItemSold:     "Pedicure",
		FieldProviderID:   "p-lily",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Lily S", txn.ProviderName)
	assert.Equal(t, "p-lily", txn.ProviderID)
}

func TestCanonicalProvider_KeepsUnknownName(t *testing.T) {
	clock, err := businessday.LoadClock(businessday.DefaultTimezone)
	require.NoError(t, err)
	n := NewNormalizer(clock, Directory{"p-1": "Eva Lee"})

	name, id := n.CanonicalProvider("Ana Lee", "")
	assert.Equal(t, "Ana Lee", name)
	assert.Empty(t, id)

	name, id = n.CanonicalProvider(" Eva  Lee ", "")
	assert.Equal(t, "Eva Lee", name)
	assert.Equal(t, "p-1", id)
}

func TestNormalize_Rejects(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name   string
		fields map[Field]string
		want   error
	}{
		{"total line", map[Field]string{FieldItemSold: "Total", FieldCheckoutDate: "12/12/2025 2:05 PM"}, ErrSummaryRow},
		{"cash summary", map[Field]string{FieldItemSold: "Cash:$390.04"}, ErrSummaryRow},
		{"blank service", map[Field]string{FieldItemSold: "  ", FieldCheckoutDate: "12/12/2025 2:05 PM"}, ErrMissingService},
		{"punctuation only service", map[Field]string{FieldItemSold: "--", FieldCheckoutDate: "12/12/2025 2:05 PM"}, ErrMissingService},
		{"no date", map[Field]string{FieldItemSold: "Pedicure"}, ErrInvalidTimestamp},
		{"garbage date", map[Field]string{FieldItemSold: "Pedicure", FieldCheckoutDate: "yesterday-ish"}, ErrInvalidTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(exportRow(40, tt.fields))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"12/12/2025 2:05 PM", time.Date(2025, 12, 12, 19, 5, 0, 0, time.UTC)},
		{"12/12/2025 - 02:05 PM", time.Date(2025, 12, 12, 19, 5, 0, 0, time.UTC)},
		{"Dec 12, 2025 2:05 PM", time.Date(2025, 12, 12, 19, 5, 0, 0, time.UTC)},
		{"2025-07-04 12:00", time.Date(2025, 7, 4, 16, 0, 0, 0, time.UTC)},
		{"2025-12-12T19:05:00Z", time.Date(2025, 12, 12, 19, 5, 0, 0, time.UTC)},
		{"2025-12-12T14:05:00-05:00", time.Date(2025, 12, 12, 19, 5, 0, 0, time.UTC)},
		{"46003.5868055556", time.Date(2025, 12, 12, 19, 5, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := n.ParseTimestamp(tt.in)
		require.NoError(t, err, "ParseTimestamp(%q)", tt.in)
		assert.True(t, tt.want.Equal(got), "ParseTimestamp(%q) = %s, want %s", tt.in, got.UTC(), tt.want)
	}
}
