package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	secret := "top-secret"

	valid := ComputeWebhookSignature(payload, "1700000000", secret)
	if !VerifyWebhookSignature(payload, valid, secret) {
		t.Fatalf("expected signature to validate")
	}

	if VerifyWebhookSignature(payload, valid, "other-secret") {
		t.Fatalf("expected signature with wrong secret to fail")
	}
	if VerifyWebhookSignature([]byte(`{"id":"evt_2"}`), valid, secret) {
		t.Fatalf("expected signature over different payload to fail")
	}
}

func TestVerifyWebhookSignature_FailsClosed(t *testing.T) {
	payload := []byte(`{}`)
	valid := ComputeWebhookSignature(payload, "1700000000", "s")

	tests := []struct {
		name   string
		header string
		secret string
	}{
		{name: "empty header", header: "", secret: "s"},
		{name: "empty secret", header: valid, secret: ""},
		{name: "missing timestamp", header: "v1=deadbeef", secret: "s"},
		{name: "missing v1", header: "t=1700000000", secret: "s"},
		{name: "garbage", header: "not-a-signature", secret: "s"},
		{name: "non-hex v1", header: "t=1700000000,v1=zzzz", secret: "s"},
	}
	for _, tt := range tests {
		if VerifyWebhookSignature(payload, tt.header, tt.secret) {
			t.Fatalf("%s: expected verification to fail", tt.name)
		}
	}
}

func TestVerifyWebhookSignature_KeyRotation(t *testing.T) {
	payload := []byte(`{"id":"evt_3"}`)
	secret := "current-secret"
	ts := "1700000000"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	current := hex.EncodeToString(mac.Sum(nil))

	// old signature first, current second; any v1 match passes
	header := "t=" + ts + ",v1=" + hex.EncodeToString(make([]byte, 32)) + ",v1=" + current
	if !VerifyWebhookSignature(payload, header, secret) {
		t.Fatalf("expected one of multiple v1 entries to validate")
	}
}

func TestIsAllowedSender(t *testing.T) {
	allowList := []string{"jane@acme.test", "@gems.example"}

	tests := []struct {
		from string
		want bool
	}{
		{from: "jane@acme.test", want: true},
		{from: "Jane Doe <jane@acme.test>", want: true},
		{from: "JANE@ACME.TEST", want: true},
		{from: "bob@gems.example", want: true},
		{from: "mallory@evil.test", want: false},
		{from: "jane@acme.test.evil.test", want: false},
		{from: "", want: false},
	}
	for _, tt := range tests {
		if got := IsAllowedSender(tt.from, allowList); got != tt.want {
			t.Fatalf("IsAllowedSender(%q) = %v, want %v", tt.from, got, tt.want)
		}
	}

	if IsAllowedSender("jane@acme.test", nil) {
		t.Fatalf("empty allow-list must trust nobody")
	}
}
