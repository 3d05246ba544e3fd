package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// providerEnvelope is the outer shape shared by all provider webhook
// payloads. The inner object is decoded per event family.
type providerEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type providerPaymentIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Customer         string            `json:"customer"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type providerSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Plan               struct {
		ID string `json:"id"`
	} `json:"plan"`
}

type providerInvoice struct {
	ID         string `json:"id"`
	Number     string `json:"number"`
	Customer   string `json:"customer"`
	AmountDue  int64  `json:"amount_due"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
}

type providerCustomer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ExtractProvider projects typed fields out of a structured provider payload.
// Monetary amounts arrive in minor units and are converted to decimal major
// units; epoch timestamps become RFC 3339 strings.
func ExtractProvider(rawPayload []byte, classification ClassifiedEvent) (ExtractedData, error) {
	var envelope providerEnvelope
	if err := json.Unmarshal(rawPayload, &envelope); err != nil {
		return nil, fmt.Errorf("provider payload is not valid JSON: %w", err)
	}

	data := ExtractedData{}
	put := func(name string, value interface{}) {
		data[name] = Field{Value: value, Provenance: FromStructuredField}
	}
	if envelope.ID != "" {
		put("provider_event_id", envelope.ID)
	}
	if envelope.Created > 0 {
		put("occurred_at", time.Unix(envelope.Created, 0).UTC().Format(time.RFC3339))
	}

	switch classification.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
		var pi providerPaymentIntent
		if err := json.Unmarshal(envelope.Data.Object, &pi); err != nil {
			return nil, fmt.Errorf("payment object malformed: %w", err)
		}
		if pi.ID != "" {
			put("payment_id", pi.ID)
		}
		if pi.Amount > 0 {
			put("amount", minorToMajor(pi.Amount))
		}
		if pi.Currency != "" {
			put("currency", pi.Currency)
		}
		if pi.Customer != "" {
			put("customer_id", pi.Customer)
		}
		if n := pi.Metadata["order_number"]; n != "" {
			put("order_number", n)
		}
		if pi.LastPaymentError != nil && pi.LastPaymentError.Message != "" {
			put("failure_reason", pi.LastPaymentError.Message)
		}

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub providerSubscription
		if err := json.Unmarshal(envelope.Data.Object, &sub); err != nil {
			return nil, fmt.Errorf("subscription object malformed: %w", err)
		}
		if sub.ID != "" {
			put("subscription_id", sub.ID)
		}
		if sub.Customer != "" {
			put("customer_id", sub.Customer)
		}
		if sub.Status != "" {
			put("status", sub.Status)
		}
		if sub.Plan.ID != "" {
			put("plan_ref", sub.Plan.ID)
		}
		if sub.CurrentPeriodStart > 0 {
			put("current_period_start", time.Unix(sub.CurrentPeriodStart, 0).UTC().Format(time.RFC3339))
		}
		if sub.CurrentPeriodEnd > 0 {
			put("current_period_end", time.Unix(sub.CurrentPeriodEnd, 0).UTC().Format(time.RFC3339))
		}

	case EventInvoicePaymentSucceeded, EventInvoicePaymentFailed:
		var inv providerInvoice
		if err := json.Unmarshal(envelope.Data.Object, &inv); err != nil {
			return nil, fmt.Errorf("invoice object malformed: %w", err)
		}
		if inv.ID != "" {
			put("invoice_id", inv.ID)
		}
		if inv.Number != "" {
			put("invoice_number", inv.Number)
		}
		if inv.Customer != "" {
			put("customer_id", inv.Customer)
		}
		amount := inv.AmountPaid
		if amount == 0 {
			amount = inv.AmountDue
		}
		if amount > 0 {
			put("amount", minorToMajor(amount))
		}
		if inv.Currency != "" {
			put("currency", inv.Currency)
		}

	case EventCustomerCreated, EventCustomerUpdated:
		var cust providerCustomer
		if err := json.Unmarshal(envelope.Data.Object, &cust); err != nil {
			return nil, fmt.Errorf("customer object malformed: %w", err)
		}
		if cust.ID != "" {
			put("customer_id", cust.ID)
		}
		if cust.Name != "" {
			put("customer_name", cust.Name)
		}
		if cust.Email != "" {
			put("email", cust.Email)
		}
		if cust.Phone != "" {
			put("phone", cust.Phone)
		}
	}

	if missing := MissingRequiredFields(classification.Type, data); len(missing) > 0 {
		return data, &ExtractionIncompleteError{EventType: classification.Type, Missing: missing}
	}
	return data, nil
}

var (
	// Currency-prefixed or budget-qualified numeric token, e.g. "$3,000" or
	// "budget is 1200.50". First match wins.
	amountPattern = regexp.MustCompile(`(?i)(?:\$|budget(?:\s+(?:is|of|around|about))?\s*:?\s*\$?)\s*([\d,]+(?:\.\d{1,2})?)`)

	// Digit-grouped sequence of plausible phone shape, at least 7 digits.
	phonePattern = regexp.MustCompile(`\+?\(?\d{2,4}\)?[\s.-]?\d{3,4}[\s.-]?\d{3,4}`)

	// Self-introduction phrases; the capture stops at punctuation.
	namePattern = regexp.MustCompile(`(?i)(?:my name is|this is)\s+([A-Za-z]+(?:\s+[A-Za-z]+){0,2})`)

	orderRefPattern = regexp.MustCompile(`#(\d+)`)
)

// ExtractEmail pulls typed fields out of free-text email content with
// regex/keyword heuristics. Every field carries heuristic provenance except
// the envelope addresses, which come from structured gateway fields.
func ExtractEmail(payload EmailPayload, classification ClassifiedEvent) (ExtractedData, error) {
	data := ExtractedData{}

	if addr := extractAddress(payload.From); strings.TrimSpace(addr) != "" {
		data["from_email"] = Field{Value: strings.TrimSpace(addr), Provenance: FromStructuredField}
	}
	if strings.TrimSpace(payload.To) != "" {
		data["to_email"] = Field{Value: strings.TrimSpace(payload.To), Provenance: FromStructuredField}
	}
	if strings.TrimSpace(payload.Subject) != "" {
		data["subject"] = Field{Value: strings.TrimSpace(payload.Subject), Provenance: FromStructuredField}
	}

	text := payload.Text
	if strings.TrimSpace(text) == "" {
		text = payload.HTML
	}
	if strings.TrimSpace(text) != "" {
		data["message"] = Field{Value: text, Provenance: FromStructuredField}
	}
	combined := payload.Subject + "\n" + text

	if m := amountPattern.FindStringSubmatch(combined); m != nil {
		if amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			data["amount"] = Field{Value: amount, Raw: m[0], Provenance: FromHeuristicExtraction}
		}
	}
	if m := phonePattern.FindString(combined); m != "" {
		data["phone"] = Field{Value: normalizePhone(m), Raw: m, Provenance: FromHeuristicExtraction}
	}
	if name := extractName(combined, payload.From); name != "" {
		data["customer_name"] = Field{Value: name, Provenance: FromHeuristicExtraction}
	}
	if m := orderRefPattern.FindStringSubmatch(combined); m != nil {
		data["order_ref"] = Field{Value: m[1], Raw: m[0], Provenance: FromHeuristicExtraction}
	}

	if missing := MissingRequiredFields(classification.Type, data); len(missing) > 0 {
		return data, &ExtractionIncompleteError{EventType: classification.Type, Missing: missing}
	}
	return data, nil
}

// extractName tries self-introduction phrases first and falls back to the
// sender display name ("Jane Doe <jane@acme.test>").
func extractName(text, from string) string {
	if m := namePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if open := strings.LastIndex(from, "<"); open > 0 {
		display := strings.Trim(strings.TrimSpace(from[:open]), `"`)
		if display != "" {
			return display
		}
	}
	return ""
}

// normalizePhone keeps a leading + and the digits.
func normalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func minorToMajor(minor int64) float64 {
	return float64(minor) / 100
}
