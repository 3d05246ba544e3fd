package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/gemfault/GemFlow/internal/pkg/ingest"
)

// RedriveProcessor replays failed_reconciliation inbound events through the
// pipeline. Successful replays end with a success ledger entry; exhausted
// jobs are dead-lettered for manual intervention.
type RedriveProcessor struct {
	svc *ingest.Service
}

// NewRedriveProcessor creates a processor from an injected pipeline service.
func NewRedriveProcessor(svc *ingest.Service) *RedriveProcessor {
	return &RedriveProcessor{svc: svc}
}

func (p *RedriveProcessor) Process(ctx context.Context, job *Job) error {
	payload, err := RedriveJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid redrive payload: %w", err)
	}

	ev, err := p.svc.GetInboundEventByUUID(payload.EventUUID)
	if err != nil {
		return fmt.Errorf("load inbound event %s: %w", payload.EventUUID, err)
	}

	result, err := p.svc.Reprocess(ctx, ev)
	if err != nil {
		if ingest.IsSignatureError(err) {
			// Signature rejection is terminal; retrying cannot change it.
			log.Warnf("[Redrive] Event %s refused, signature was rejected at receipt: %v", payload.EventUUID, err)
			return nil
		}
		return err
	}
	log.Infof("[Redrive] Event %s replayed: outcome=%s attempt=%d", payload.EventUUID, result.Outcome, result.Attempt)
	return nil
}

// DeadLetter parks the event in the ledger after the retry budget is gone.
func (p *RedriveProcessor) DeadLetter(ctx context.Context, job *Job) {
	payload, err := RedriveJobPayloadFromMap(job.Payload)
	if err != nil {
		log.Errorf("[Redrive] Cannot dead-letter job %s: %v", job.ID, err)
		return
	}
	ev, err := p.svc.GetInboundEventByUUID(payload.EventUUID)
	if err != nil {
		log.Errorf("[Redrive] Cannot dead-letter event %s: %v", payload.EventUUID, err)
		return
	}
	reason := "redrive attempts exhausted"
	if job.ErrorMsg != "" {
		reason = reason + ": " + job.ErrorMsg
	}
	if _, err := p.svc.DeadLetter(ctx, ev, reason); err != nil {
		log.Errorf("[Redrive] Dead-letter ledger write failed for %s: %v", payload.EventUUID, err)
	}
}
