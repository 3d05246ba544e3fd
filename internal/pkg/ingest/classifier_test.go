package ingest

import (
	"fmt"
	"testing"
)

func TestClassifyProviderEvent(t *testing.T) {
	tests := []struct {
		in   string
		want EventType
	}{
		{in: "payment_intent.succeeded", want: EventPaymentSucceeded},
		{in: "payment_intent.payment_failed", want: EventPaymentFailed},
		{in: "customer.subscription.created", want: EventSubscriptionCreated},
		{in: "customer.subscription.updated", want: EventSubscriptionUpdated},
		{in: "customer.subscription.deleted", want: EventSubscriptionDeleted},
		{in: "invoice.payment_succeeded", want: EventInvoicePaymentSucceeded},
		{in: "invoice.payment_failed", want: EventInvoicePaymentFailed},
		{in: "customer.created", want: EventCustomerCreated},
		{in: "customer.updated", want: EventCustomerUpdated},
		{in: "charge.refunded", want: EventUnknown},
		{in: "", want: EventUnknown},
	}

	for _, tt := range tests {
		payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":%q}`, tt.in))
		got := ClassifyProviderEvent(payload)
		if got.Type != tt.want {
			t.Fatalf("ClassifyProviderEvent(type=%q) = %q, want %q", tt.in, got.Type, tt.want)
		}
		if got.Confidence != 1.0 {
			t.Fatalf("provider classification confidence = %v, want 1.0", got.Confidence)
		}
	}

	if got := ClassifyProviderEvent([]byte("not json")); got.Type != EventUnknown {
		t.Fatalf("malformed payload classified as %q, want unknown", got.Type)
	}
}

func TestClassifyEmail_Categories(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		body    string
		want    EventType
	}{
		{name: "quote", subject: "Engagement ring", body: "Could you send me a quote for a 1ct solitaire?", want: EventEmailQuote},
		{name: "order", subject: "New order", body: "I would like to place an order for the gold band.", want: EventEmailOrder},
		{name: "repair", subject: "Broken clasp", body: "My necklace clasp is broken, can you fix it?", want: EventEmailRepair},
		{name: "trade in", subject: "Trade-in", body: "I want to trade in my old watch.", want: EventEmailTradeIn},
		{name: "no match", subject: "Hello", body: "Just saying hi.", want: EventUnknown},
	}

	for _, tt := range tests {
		got := ClassifyEmail(tt.subject, tt.body, true)
		if got.Type != tt.want {
			t.Fatalf("%s: ClassifyEmail = %q, want %q", tt.name, got.Type, tt.want)
		}
	}
}

func TestClassifyEmail_PrecedenceIsDeterministic(t *testing.T) {
	// Text matching both repair and trade-in keywords resolves to repair,
	// the first category in precedence order.
	got := ClassifyEmail("Question", "I need a repair and also want to trade in my old ring", true)
	if got.Type != EventEmailRepair {
		t.Fatalf("mixed repair/trade-in text classified as %q, want %q", got.Type, EventEmailRepair)
	}
}

func TestClassifyEmail_SecurityAlert(t *testing.T) {
	// Destructive verb plus record identifier always raises an alert.
	got := ClassifyEmail("Urgent", "Please delete order #12345 immediately", true)
	if got.Type != EventEmailSecurityAlert {
		t.Fatalf("destructive instruction classified as %q, want security alert", got.Type)
	}
	if got.Confidence != 1.0 {
		t.Fatalf("security alert confidence = %v, want 1.0", got.Confidence)
	}

	// Untrusted sender: the verb alone is enough.
	got = ClassifyEmail("Account", "cancel everything on my account please", false)
	if got.Type != EventEmailSecurityAlert {
		t.Fatalf("untrusted destructive text classified as %q, want security alert", got.Type)
	}

	// Trusted sender with a verb but no identifier falls through to the
	// keyword categories.
	got = ClassifyEmail("Subscription", "I may cancel later, but first send me a quote", true)
	if got.Type != EventEmailQuote {
		t.Fatalf("trusted verb-only text classified as %q, want %q", got.Type, EventEmailQuote)
	}
}

func TestEmailConfidence(t *testing.T) {
	tests := []struct {
		matches int
		want    float64
	}{
		{matches: 1, want: 0.5},
		{matches: 2, want: 0.75},
		{matches: 3, want: 1.0},
		{matches: 5, want: 1.0},
	}
	for _, tt := range tests {
		if got := emailConfidence(tt.matches); got != tt.want {
			t.Fatalf("emailConfidence(%d) = %v, want %v", tt.matches, got, tt.want)
		}
	}

	got := ClassifyEmail("Repair", "repair the broken clasp", true)
	if got.Type != EventEmailRepair || got.Confidence != 1.0 {
		t.Fatalf("three keyword matches = %q/%v, want repair/1.0", got.Type, got.Confidence)
	}
}
