package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PayloadField is a sale attribute read out of a persisted payload.
type PayloadField string

const (
	PayloadService    PayloadField = "service"
	PayloadTimestamp  PayloadField = "timestamp"
	PayloadAmount     PayloadField = "amount"
	PayloadTip        PayloadField = "tip"
	PayloadCustomer   PayloadField = "customer"
	PayloadProvider   PayloadField = "provider"
	PayloadProviderID PayloadField = "provider_id"
	PayloadReference  PayloadField = "reference"
)

// FieldPath addresses a value inside a payload, one key per nesting level.
type FieldPath []string

func (p FieldPath) String() string {
	return strings.Join(p, ".")
}

// PayloadPaths lists, per field, every historical location of that field in
// order of precedence: top level, nested under "payload", then synonyms.
// The first non-empty value wins. New payload shapes are added here.
var PayloadPaths = map[PayloadField][]FieldPath{
	PayloadService: {
		{"itemSold"}, {"payload", "itemSold"},
		{"serviceName"}, {"payload", "serviceName"},
		{"service"},
	},
	PayloadTimestamp: {
		{"transactionDate"}, {"payload", "transactionDate"},
		{"createdDate"}, {"payload", "createdDate"},
		{"checkoutDate"},
	},
	PayloadAmount: {
		{"amountDue"}, {"payload", "amountDue"},
		{"price"}, {"payload", "price"},
	},
	PayloadTip: {
		{"tip"}, {"payload", "tip"},
		{"tipAmount"}, {"payload", "tipAmount"},
	},
	PayloadCustomer: {
		{"customerName"}, {"payload", "customerName"},
		{"clientName"}, {"payload", "clientName"},
	},
	PayloadProvider: {
		{"serviceProviderName"}, {"payload", "serviceProviderName"},
		{"providerName"}, {"payload", "providerName"},
	},
	PayloadProviderID: {
		{"serviceProviderId"}, {"payload", "serviceProviderId"},
	},
	PayloadReference: {
		{"transactionId"}, {"payload", "transactionId"},
		{"userPaymentsMstId"}, {"payload", "userPaymentsMstId"},
	},
}

// Extracted holds the raw sale attributes found in one payload.
type Extracted map[PayloadField]string

// DecodePayload parses a JSON payload into a generic object. Numbers are kept
// as json.Number so amounts are not rounded through float64.
func DecodePayload(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedRecord)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformedRecord)
	}
	return obj, nil
}

// Extract reads every PayloadField from a decoded payload.
func Extract(payload map[string]any) Extracted {
	out := make(Extracted, len(PayloadPaths))
	for field, paths := range PayloadPaths {
		out[field] = Lookup(payload, paths)
	}
	return out
}

// Lookup returns the first non-empty value among paths.
func Lookup(payload map[string]any, paths []FieldPath) string {
	for _, p := range paths {
		if v := valueAt(payload, p); v != "" {
			return v
		}
	}
	return ""
}

func valueAt(payload map[string]any, path FieldPath) string {
	var cur any = payload
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return ""
		}
	}
	return scalarString(cur)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
