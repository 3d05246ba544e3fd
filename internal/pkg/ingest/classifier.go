package ingest

import (
	"encoding/json"
	"regexp"
	"strings"
)

// providerEventTypes maps the external provider vocabulary to domain event
// types. Unrecognized values classify as unknown with confidence 1.0 (we are
// certain they are unrecognized).
var providerEventTypes = map[string]EventType{
	"payment_intent.succeeded":      EventPaymentSucceeded,
	"payment_intent.payment_failed": EventPaymentFailed,
	"customer.subscription.created": EventSubscriptionCreated,
	"customer.subscription.updated": EventSubscriptionUpdated,
	"customer.subscription.deleted": EventSubscriptionDeleted,
	"invoice.payment_succeeded":     EventInvoicePaymentSucceeded,
	"invoice.payment_failed":        EventInvoicePaymentFailed,
	"customer.created":              EventCustomerCreated,
	"customer.updated":              EventCustomerUpdated,
}

// ClassifyProviderEvent switches on the explicit type field of a structured
// provider payload.
func ClassifyProviderEvent(rawPayload []byte) ClassifiedEvent {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rawPayload, &envelope); err != nil {
		return ClassifiedEvent{Type: EventUnknown, Confidence: 1.0}
	}
	if t, ok := providerEventTypes[strings.TrimSpace(envelope.Type)]; ok {
		return ClassifiedEvent{Type: t, Confidence: 1.0}
	}
	return ClassifiedEvent{Type: EventUnknown, Confidence: 1.0}
}

var destructiveVerbs = []string{"delete", "cancel", "remove", "wipe", "erase"}

// identifierPattern matches an order/account/record reference such as
// "#12345" or "order 12345".
var identifierPattern = regexp.MustCompile(`(?i)#\d+|\b(?:order|account|invoice|customer|record)\s+#?\w*\d+`)

// emailCategory is one ordered entry of the keyword precedence list.
type emailCategory struct {
	eventType EventType
	keywords  []string
}

// emailCategories is the fixed precedence list for free-text classification.
// Inbound text can match several categories ("repair my order"); the first
// matching category wins regardless of match count, so behavior stays
// deterministic. Order: repair, trade-in, order, quote.
var emailCategories = []emailCategory{
	{EventEmailRepair, []string{"repair", "fix", "broken", "resize", "restoration", "solder", "prong", "clasp"}},
	{EventEmailTradeIn, []string{"trade in", "trade-in", "tradein", "sell my", "buyback", "buy back", "exchange my"}},
	{EventEmailOrder, []string{"order", "purchase", "buy", "checkout", "place an order"}},
	{EventEmailQuote, []string{"quote", "quotation", "estimate", "pricing", "price", "budget", "how much"}},
}

// ClassifyEmail runs ordered keyword heuristics over subject and body.
// Destructive instructions referencing an identifier short-circuit to
// email_security_alert and are never auto-acted on. For untrusted senders a
// destructive verb alone is enough to raise the alert. Confidence grows with
// the number of matched keywords in the winning category, capped at 1.0.
func ClassifyEmail(subject, body string, trustedSender bool) ClassifiedEvent {
	text := strings.ToLower(subject + "\n" + body)

	if hasDestructiveVerb(text) {
		if identifierPattern.MatchString(text) || !trustedSender {
			return ClassifiedEvent{Type: EventEmailSecurityAlert, Confidence: 1.0}
		}
	}

	for _, cat := range emailCategories {
		matches := 0
		for _, kw := range cat.keywords {
			if strings.Contains(text, kw) {
				matches++
			}
		}
		if matches > 0 {
			return ClassifiedEvent{Type: cat.eventType, Confidence: emailConfidence(matches)}
		}
	}
	return ClassifiedEvent{Type: EventUnknown, Confidence: 0}
}

func hasDestructiveVerb(text string) bool {
	for _, verb := range destructiveVerbs {
		if strings.Contains(text, verb) {
			return true
		}
	}
	return false
}

// emailConfidence: one keyword match is a weak signal (0.5); every further
// match adds 0.25 up to the 1.0 cap.
func emailConfidence(matches int) float64 {
	c := 0.5 + 0.25*float64(matches-1)
	if c > 1.0 {
		return 1.0
	}
	return c
}
