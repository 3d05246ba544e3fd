package counter

import (
	"context"
	"strconv"

	"github.com/gemfault/GemFlow/internal/pkg/cache"
)

const (
	outcomeKey   = "ingest:counters:outcome"
	eventTypeKey = "ingest:counters:event_type"
)

// AddOutcome increments the processed counter for an outcome in Redis
func AddOutcome(outcome string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, outcomeKey, outcome, 1).Err()
}

// AddEventType increments the processed counter for an event type in Redis
func AddEventType(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, eventTypeKey, eventType, 1).Err()
}

// OutcomeTotals returns the per-outcome processed counts.
func OutcomeTotals() (map[string]int64, error) {
	return totals(outcomeKey)
}

// EventTypeTotals returns the per-event-type processed counts.
func EventTypeTotals() (map[string]int64, error) {
	return totals(eventTypeKey)
}

func totals(key string) (map[string]int64, error) {
	ctx := context.Background()
	data, err := cache.GetClient().HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for field, raw := range data {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}
