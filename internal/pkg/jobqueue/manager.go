package jobqueue

import (
	"sync"

	"github.com/gemfault/GemFlow/internal/pkg/database"
	"github.com/gemfault/GemFlow/internal/pkg/env"
	"github.com/gemfault/GemFlow/internal/pkg/ingest"
)

var (
	manager     *Queue
	managerOnce sync.Once
)

// GetManager returns the shared redrive queue, creating it on first use.
func GetManager() *Queue {
	managerOnce.Do(func() {
		svc := ingest.NewServiceFromDB(database.GetDB(), ingest.ConfigFromEnv())
		workers := env.GetEnvInt("REDRIVE_WORKERS", 2)
		manager = NewQueue(workers, NewRedriveProcessor(svc))
	})
	return manager
}

// EnqueueRedrive schedules a replay of the given inbound event.
func EnqueueRedrive(eventUUID string) (string, error) {
	maxRetries := env.GetEnvInt("REDRIVE_MAX_RETRIES", DefaultMaxRetries)
	return GetManager().Enqueue(RedriveJobPayload{EventUUID: eventUUID}, maxRetries)
}
