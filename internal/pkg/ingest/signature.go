package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// VerifyWebhookSignature validates a provider signature header of the form
// "t=<unix>,v1=<hex hmac-sha256>" against the raw, unparsed payload bytes.
// The signed message is "<t>.<payload>". Multiple v1 entries are accepted
// (key rotation); any match passes. Fails closed: empty header, empty
// secret, or a malformed header all return false.
func VerifyWebhookSignature(payload []byte, signatureHeader, sharedSecret string) bool {
	header := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(sharedSecret)
	if header == "" || secret == "" {
		return false
	}

	timestamp := ""
	var candidates [][]byte
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			decoded, err := hex.DecodeString(strings.ToLower(kv[1]))
			if err != nil {
				continue
			}
			candidates = append(candidates, decoded)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range candidates {
		if hmac.Equal(expected, sig) {
			return true
		}
	}
	return false
}

// ComputeWebhookSignature builds a signature header the verifier accepts.
// Used by the outbound webhook test harness and by tests.
func ComputeWebhookSignature(payload []byte, timestamp, sharedSecret string) string {
	mac := hmac.New(sha256.New, []byte(sharedSecret))
	fmt.Fprintf(mac, "%s.", timestamp)
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

// IsAllowedSender checks an email sender against the configured relay
// allow-list. Entries are either full addresses or domains ("@acme.test" or
// "acme.test" both match jane@acme.test). An empty allow-list trusts nobody;
// untrusted senders are still processed but under heightened scrutiny in the
// classifier.
func IsAllowedSender(from string, allowList []string) bool {
	addr := strings.ToLower(strings.TrimSpace(extractAddress(from)))
	if addr == "" {
		return false
	}
	for _, entry := range allowList {
		e := strings.ToLower(strings.TrimSpace(entry))
		if e == "" {
			continue
		}
		if e == addr {
			return true
		}
		domain := strings.TrimPrefix(e, "@")
		if strings.HasSuffix(addr, "@"+domain) {
			return true
		}
	}
	return false
}

// extractAddress pulls the bare address out of a "Display Name <addr>" form.
func extractAddress(from string) string {
	if open := strings.LastIndex(from, "<"); open >= 0 {
		if end := strings.LastIndex(from, ">"); end > open {
			return from[open+1 : end]
		}
	}
	return from
}
