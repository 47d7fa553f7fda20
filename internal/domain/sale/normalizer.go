package sale

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"posrecon/internal/domain/businessday"
)

var (
	ErrSummaryRow       = errors.New("summary row")
	ErrMissingService   = errors.New("missing service descriptor")
	ErrInvalidTimestamp = businessday.ErrInvalidTimestamp
)

// localLayouts are wall-clock layouts without zone information. They are read
// in the business timezone.
var localLayouts = []string{
	"01/02/2006 03:04 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"Jan 2, 2006 3:04 PM",
	"Jan 2 2006 3:04 PM",
	"Mon, Jan 2, 2006 3:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"1/2/2006",
	"2006-01-02",
}

// zonedLayouts carry their own offset or are read as UTC.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700 MST",
	"Mon Jan 2 2006 15:04:05 GMT-0700",
}

var dashSeparator = regexp.MustCompile(`\s+-\s+`)

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// Normalizer turns raw rows into canonical transactions.
type Normalizer struct {
	clock     *businessday.Clock
	directory Directory
}

// NewNormalizer creates a normalizer. The directory may be nil, in which case
// provider names are kept as written.
func NewNormalizer(clock *businessday.Clock, directory Directory) *Normalizer {
	return &Normalizer{clock: clock, directory: directory}
}

// Clock returns the business-day clock the normalizer stamps days with.
func (n *Normalizer) Clock() *businessday.Clock {
	return n.clock
}

// Normalize validates a raw row and produces its canonical transaction.
func (n *Normalizer) Normalize(row RawRow) (Transaction, error) {
	service := row.Get(FieldItemSold)
	if IsSummaryRow(service) {
		return Transaction{}, fmt.Errorf("row %d: %w: %q", row.RowNumber, ErrSummaryRow, service)
	}
	if NormalizeService(service) == "" {
		return Transaction{}, fmt.Errorf("row %d: %w", row.RowNumber, ErrMissingService)
	}

	checkoutAt, err := n.ParseTimestamp(row.Get(FieldCheckoutDate))
	if err != nil {
		return Transaction{}, fmt.Errorf("row %d: %w", row.RowNumber, err)
	}
	day, err := n.clock.Day(checkoutAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("row %d: %w", row.RowNumber, err)
	}
	minute, err := n.clock.Minute(checkoutAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("row %d: %w", row.RowNumber, err)
	}

	reference := row.Get(FieldTransactionID)
	if reference == "" {
		reference = fmt.Sprintf("row-%d", row.RowNumber)
	}

	providerName, providerID := n.CanonicalProvider(row.Get(FieldProviderName), row.Get(FieldProviderID))

	cash := ParseMoney(row.Get(FieldCash))
	if cash.IsNegative() {
		cash = decimal.Zero
	}

	return Transaction{
		Batch:        row.Batch,
		RowNumber:    row.RowNumber,
		Reference:    reference,
		CheckoutAt:   checkoutAt.UTC(),
		Day:          day,
		Minute:       minute,
		Service:      service,
		AmountDue:    ParseMoney(row.Get(FieldAmountDue)),
		Tip:          ParseMoney(row.Get(FieldTip)),
		CustomerName: row.Get(FieldCustomer),
		ProviderName: providerName,
		ProviderID:   providerID,
		CashTendered: cash,
		CreditCard:   ParseMoney(row.Get(FieldCreditCard)),
		GiftCard:     ParseMoney(row.Get(FieldGiftCard)),
		ChangeDue:    ParseMoney(row.Get(FieldChangeDue)),
		CheckedOutBy: row.Get(FieldCheckedOutBy),
		ChargeMethod: row.Get(FieldChargeMethod),
	}, nil
}

// CanonicalProvider settles the provider name and id of a sale. A known id
// supplies the name when none was written; otherwise the name is resolved
// against the directory and replaced by its directory spelling. Names that do
// not resolve are kept as written.
func (n *Normalizer) CanonicalProvider(name, id string) (string, string) {
	name, id = trimSpace(name), trimSpace(id)
	if id != "" {
		if dirName, ok := n.directory.Name(id); ok && name == "" {
			name = dirName
		}
		return name, id
	}
	if m, ok := n.directory.ResolveProvider(name); ok {
		return m.Name, m.ID
	}
	return name, ""
}

// ParseTimestamp reads a source date. Wall-clock values are first read in the
// business timezone; values that carry their own zone (or spreadsheet serial
// numbers) are the fallback. Failing both is ErrInvalidTimestamp.
func (n *Normalizer) ParseTimestamp(raw string) (time.Time, error) {
	s := dashSeparator.ReplaceAllString(trimSpace(raw), " ")
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalidTimestamp)
	}

	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, n.clock.Location()); err == nil {
			return t, nil
		}
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		return fromExcelSerial(serial, n.clock.Location()), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

// fromExcelSerial converts a spreadsheet serial date, which encodes business
// wall-clock time, to an instant.
func fromExcelSerial(serial float64, loc *time.Location) time.Time {
	days := math.Floor(serial)
	minutes := math.Round((serial - days) * 24 * 60)
	wall := excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(minutes) * time.Minute)
	return time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), 0, 0, loc)
}
