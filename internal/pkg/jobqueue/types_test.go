package jobqueue

import (
	"testing"
)

func TestJobShouldRetry(t *testing.T) {
	tests := []struct {
		retryCount int
		maxRetries int
		want       bool
	}{
		{retryCount: 0, maxRetries: 3, want: true},
		{retryCount: 2, maxRetries: 3, want: true},
		{retryCount: 3, maxRetries: 3, want: false},
		{retryCount: 5, maxRetries: 3, want: false},
		{retryCount: 0, maxRetries: 0, want: false},
	}

	for _, tt := range tests {
		job := &Job{RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
		if got := job.ShouldRetry(); got != tt.want {
			t.Fatalf("ShouldRetry(retry=%d, max=%d) = %v, want %v", tt.retryCount, tt.maxRetries, got, tt.want)
		}
	}
}

func TestRedriveJobPayloadRoundTrip(t *testing.T) {
	payload := RedriveJobPayload{EventUUID: "11111111-2222-3333-4444-555555555555"}

	restored, err := RedriveJobPayloadFromMap(payload.ToMap())
	if err != nil {
		t.Fatalf("RedriveJobPayloadFromMap failed: %v", err)
	}
	if restored.EventUUID != payload.EventUUID {
		t.Fatalf("event uuid = %q, want %q", restored.EventUUID, payload.EventUUID)
	}
}

func TestRedriveJobPayloadFromMap_MissingKey(t *testing.T) {
	restored, err := RedriveJobPayloadFromMap(map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored.EventUUID != "" {
		t.Fatalf("expected empty uuid, got %q", restored.EventUUID)
	}
}
