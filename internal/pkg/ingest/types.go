package ingest

import (
	"encoding/json"
	"time"
)

// EventType is the closed set of domain event types the pipeline produces.
type EventType string

const (
	EventPaymentSucceeded       EventType = "payment_succeeded"
	EventPaymentFailed          EventType = "payment_failed"
	EventSubscriptionCreated    EventType = "subscription_created"
	EventSubscriptionUpdated    EventType = "subscription_updated"
	EventSubscriptionDeleted    EventType = "subscription_deleted"
	EventInvoicePaymentSucceeded EventType = "invoice_payment_succeeded"
	EventInvoicePaymentFailed   EventType = "invoice_payment_failed"
	EventCustomerCreated        EventType = "customer_created"
	EventCustomerUpdated        EventType = "customer_updated"
	EventEmailQuote             EventType = "email_quote"
	EventEmailOrder             EventType = "email_order"
	EventEmailRepair            EventType = "email_repair"
	EventEmailTradeIn           EventType = "email_trade_in"
	EventEmailSecurityAlert     EventType = "email_security_alert"
	EventUnknown                EventType = "unknown"
)

// RecordType maps email classifications to the externally visible record
// vocabulary used in inbound-email responses.
func (t EventType) RecordType() string {
	switch t {
	case EventEmailQuote:
		return "quotes"
	case EventEmailOrder:
		return "orders"
	case EventEmailRepair:
		return "repairs"
	case EventEmailTradeIn:
		return "trade_in"
	case EventEmailSecurityAlert:
		return "security_alert"
	default:
		return ""
	}
}

// ClassifiedEvent is the classifier output. Confidence is 1.0 for structured
// provider payloads and a function of matched keywords for email heuristics.
type ClassifiedEvent struct {
	Type       EventType `json:"type"`
	Confidence float64   `json:"confidence"`
}

// Provenance records whether a field came from a structured payload field or
// a heuristic text match.
type Provenance string

const (
	FromStructuredField     Provenance = "structured_field"
	FromHeuristicExtraction Provenance = "heuristic_extraction"
)

// Field is a single extracted value with its provenance and, for heuristic
// matches, the raw matched text.
type Field struct {
	Value      interface{} `json:"value"`
	Raw        string      `json:"raw,omitempty"`
	Provenance Provenance  `json:"provenance"`
}

// ExtractedData maps field names to extracted values.
type ExtractedData map[string]Field

func (d ExtractedData) Has(name string) bool {
	_, ok := d[name]
	return ok
}

// String returns the field value as a string, or "" when absent or not a string.
func (d ExtractedData) String(name string) string {
	f, ok := d[name]
	if !ok {
		return ""
	}
	s, _ := f.Value.(string)
	return s
}

// Float returns the field value as a float64, or 0 when absent.
func (d ExtractedData) Float(name string) float64 {
	f, ok := d[name]
	if !ok {
		return 0
	}
	switch v := f.Value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// JSON renders the extraction for the ledger. Marshalling a map of scalar
// fields cannot fail; errors collapse to an empty object.
func (d ExtractedData) JSON() string {
	if d == nil {
		return "{}"
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// requiredFields lists the fields the reconciler needs per event type. An
// event missing any of them is ledgered as extraction_incomplete and never
// reconciled.
var requiredFields = map[EventType][]string{
	EventPaymentSucceeded:        {"payment_id", "amount"},
	EventPaymentFailed:           {"payment_id"},
	EventSubscriptionCreated:     {"subscription_id"},
	EventSubscriptionUpdated:     {"subscription_id"},
	EventSubscriptionDeleted:     {"subscription_id"},
	EventInvoicePaymentSucceeded: {"invoice_number"},
	EventInvoicePaymentFailed:    {"invoice_number"},
	EventCustomerCreated:         {"customer_id"},
	EventCustomerUpdated:         {"customer_id"},
	EventEmailQuote:              {"from_email"},
	EventEmailOrder:              {"from_email"},
	EventEmailRepair:             {"from_email"},
	EventEmailTradeIn:            {"from_email"},
	EventEmailSecurityAlert:      {"from_email"},
}

// MissingRequiredFields returns the required fields absent from the
// extraction for the given event type.
func MissingRequiredFields(t EventType, data ExtractedData) []string {
	var missing []string
	for _, name := range requiredFields[t] {
		if !data.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// EmailPayload is the inbound email-gateway request body.
type EmailPayload struct {
	From      string `json:"from" validate:"required"`
	To        string `json:"to" validate:"required"`
	Subject   string `json:"subject" validate:"max=500"`
	Text      string `json:"text"`
	HTML      string `json:"html"`
	Timestamp int64  `json:"timestamp"`
}

// ReceivedAt converts the gateway epoch timestamp, falling back to now for
// payloads that omit it.
func (p EmailPayload) ReceivedAt() time.Time {
	if p.Timestamp > 0 {
		return time.Unix(p.Timestamp, 0).UTC()
	}
	return time.Now().UTC()
}
