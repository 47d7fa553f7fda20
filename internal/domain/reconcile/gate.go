package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posrecon/internal/domain/businessday"
	"posrecon/internal/domain/sale"
)

const (
	DefaultEventPrefix = "manual"
	EntityTransaction  = "transaction"
	ActionCreated      = "created"
	BackfillUserAgent  = "posrecon-backfill"
	BackfillSourceIP   = "127.0.0.1"

	HeaderBackfillSource = "x-backfill-source"
	HeaderReconcileRun   = "x-reconcile-run"
)

// InsertOutcome is the result of a single insert attempt.
type InsertOutcome string

const (
	InsertCreated       InsertOutcome = "created"
	InsertAlreadyExists InsertOutcome = "already_exists"
)

var nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

// InsertGate writes missing sales to the store. Event ids are derived from
// the sale's origin, so re-inserting the same row is a conflict rather than a
// second copy.
type InsertGate struct {
	repo   Repository
	clock  *businessday.Clock
	prefix string
}

func NewInsertGate(repo Repository, clock *businessday.Clock, prefix string) *InsertGate {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultEventPrefix
	}
	return &InsertGate{repo: repo, clock: clock, prefix: slug(prefix)}
}

// Prefix is the event id prefix shared by every event this gate writes.
func (g *InsertGate) Prefix() string {
	return g.prefix
}

// EventID returns the deterministic id of a sale: prefix, batch, reference,
// row number and a digest of the raw batch, reference and row. Slugging
// folds case, punctuation and the component boundaries, so the digest keeps
// distinct sales on distinct ids.
func (g *InsertGate) EventID(t sale.Transaction) string {
	row := strconv.Itoa(t.RowNumber)
	return strings.Join([]string{
		g.prefix,
		slug(t.Batch),
		slug(t.Reference),
		row,
		sourceDigest(t.Batch, t.Reference, row),
	}, "-")
}

// sourceDigest is the first 8 hex digits of the SHA-256 of the components
// joined by the ASCII unit separator.
func sourceDigest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:4])
}

// Insert persists a sale. A conflict on the event id is reported as
// InsertAlreadyExists; any other failure is returned as is.
func (g *InsertGate) Insert(ctx context.Context, t sale.Transaction, runID string) (InsertOutcome, error) {
	params, err := g.buildParams(t, runID)
	if err != nil {
		return "", err
	}

	if _, err := g.repo.Create(ctx, params); err != nil {
		if errors.Is(err, ErrEventExists) {
			return InsertAlreadyExists, nil
		}
		return "", err
	}
	return InsertCreated, nil
}

type eventEnvelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Action      string          `json:"action"`
	CreatedDate string          `json:"createdDate"`
	Payload     backfillPayload `json:"payload"`
}

// backfillPayload carries every field the index builder reads back, so a
// later run derives the same keys from the stored record.
type backfillPayload struct {
	TransactionID       string      `json:"transactionId"`
	TransactionDate     string      `json:"transactionDate"`
	ItemSold            string      `json:"itemSold"`
	AmountDue           json.Number `json:"amountDue"`
	Tip                 json.Number `json:"tip"`
	CustomerName        string      `json:"customerName"`
	ServiceProviderName string      `json:"serviceProviderName"`
	ServiceProviderID   string      `json:"serviceProviderId,omitempty"`
	CheckedOutBy        string      `json:"checkedOutBy,omitempty"`
	ChargeMethod        string      `json:"chargeMethod,omitempty"`
	CashTendered        json.Number `json:"cashTendered"`
	CreditCard          json.Number `json:"creditCard"`
	GiftCardRedemption  json.Number `json:"giftCardRedemption"`
	ChangeDue           json.Number `json:"changeDue"`
	SoldTotal           json.Number `json:"soldTotal"`
	Batch               string      `json:"batch"`
	RowNumber           int         `json:"rowNumber"`
	ReconcileRunID      string      `json:"reconcileRunId"`
}

func (g *InsertGate) buildParams(t sale.Transaction, runID string) (CreateEventParams, error) {
	dayStart, _, err := g.clock.DayRange(t.Day)
	if err != nil {
		return CreateEventParams{}, fmt.Errorf("event for row %d: %w", t.RowNumber, err)
	}

	eventID := g.EventID(t)
	createdAt := t.CheckoutAt.UTC()

	envelope := eventEnvelope{
		ID:          eventID,
		Type:        EntityTransaction,
		Action:      ActionCreated,
		CreatedDate: createdAt.Format(time.RFC3339Nano),
		Payload: backfillPayload{
			TransactionID:       t.Reference,
			TransactionDate:     createdAt.Format(time.RFC3339Nano),
			ItemSold:            t.Service,
			AmountDue:           money(t.AmountDue),
			Tip:                 money(t.Tip),
			CustomerName:        t.CustomerName,
			ServiceProviderName: t.ProviderName,
			ServiceProviderID:   t.ProviderID,
			CheckedOutBy:        t.CheckedOutBy,
			ChargeMethod:        t.ChargeMethod,
			CashTendered:        money(t.CashTendered),
			CreditCard:          money(t.CreditCard),
			GiftCardRedemption:  money(t.GiftCard),
			ChangeDue:           money(t.ChangeDue),
			SoldTotal:           money(t.SoldTotal()),
			Batch:               t.Batch,
			RowNumber:           t.RowNumber,
			ReconcileRunID:      runID,
		},
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return CreateEventParams{}, fmt.Errorf("failed to encode event %s: %w", eventID, err)
	}

	return CreateEventParams{
		EventID:     eventID,
		EntityType:  EntityTransaction,
		Action:      ActionCreated,
		BusinessIDs: []string{g.prefix + "-" + slug(t.Batch)},
		CreatedDate: createdAt,
		RawBody:     string(body),
		Headers: map[string]string{
			HeaderBackfillSource: t.Batch,
			HeaderReconcileRun:   runID,
		},
		Payload:   body,
		SourceIP:  BackfillSourceIP,
		UserAgent: BackfillUserAgent,
		Day:       dayStart,
	}, nil
}

func money(d decimal.Decimal) json.Number {
	return json.Number(sale.MoneyKey(d))
}

func slug(s string) string {
	return strings.Trim(nonSlugRun.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
