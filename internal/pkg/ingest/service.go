package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gemfault/GemFlow/app/models"
	"github.com/gemfault/GemFlow/internal/pkg/env"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Config carries the externally supplied pipeline options.
type Config struct {
	SigningSecret  string
	AllowedSenders []string
}

// ConfigFromEnv reads the pipeline configuration from the environment.
func ConfigFromEnv() Config {
	cfg := Config{
		SigningSecret: strings.TrimSpace(env.GetEnv("WEBHOOK_SIGNING_SECRET", "")),
	}
	for _, s := range strings.Split(env.GetEnv("EMAIL_ALLOWED_SENDERS", ""), ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.AllowedSenders = append(cfg.AllowedSenders, s)
		}
	}
	return cfg
}

// Service runs the full pipeline: verify, classify, extract, reconcile,
// ledger. One event is processed start to finish per call; the service holds
// no state between requests.
type Service struct {
	repo Repository
	rec  *Reconciler
	cfg  Config
}

// NewService creates a pipeline service from an injected repository.
func NewService(repo Repository, cfg Config) *Service {
	return &Service{repo: repo, rec: NewReconciler(repo), cfg: cfg}
}

// NewServiceFromDB creates a pipeline service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, cfg Config) *Service {
	return NewService(NewRepository(db), cfg)
}

// Result summarizes one processing attempt for the transport layer.
type Result struct {
	EventUUID string    `json:"event_uuid"`
	EventType EventType `json:"event_type"`
	Outcome   string    `json:"outcome"`
	RecordRef string    `json:"record_ref,omitempty"`
	Duplicate bool      `json:"duplicate"`
	Attempt   int       `json:"attempt"`
}

// ProcessProviderWebhook verifies the signature over the raw body, persists
// the inbound event, and runs it through the pipeline. Signature failures are
// terminal: the event is ledgered as failed_validation and a signature error
// is returned so the transport can answer 400. The raw body is used as
// received; it is never re-serialized before the signature check.
func (s *Service) ProcessProviderWebhook(ctx context.Context, tenant *models.Tenant, rawBody []byte, signatureHeader string) (*Result, error) {
	valid := VerifyWebhookSignature(rawBody, signatureHeader, s.cfg.SigningSecret)

	externalRef := ""
	if valid {
		externalRef = providerEventID(rawBody)
	}
	if externalRef == "" {
		externalRef = contentHash(rawBody)
	}

	ev := &models.InboundEvent{
		UUID:           uuid.NewString(),
		TenantID:       tenant.ID,
		Source:         models.SourcePaymentProvider,
		ExternalRef:    externalRef,
		RawPayload:     string(rawBody),
		SignatureValid: &valid,
		ReceivedAt:     time.Now().UTC(),
	}
	_, stored, err := s.repo.CreateInboundEventIfNotExists(ev)
	if err != nil {
		return nil, err
	}

	if !valid {
		attempt, err := s.nextAttempt(stored.ID)
		if err != nil {
			return nil, err
		}
		entry := &models.ProcessingLogEntry{
			InboundEventID: stored.ID,
			TenantID:       stored.TenantID,
			ExternalRef:    stored.ExternalRef,
			EventType:      string(EventUnknown),
			Outcome:        models.OutcomeFailedValidation,
			ErrorDetail:    "invalid webhook signature",
			Attempt:        attempt,
			ProcessedAt:    time.Now().UTC(),
		}
		if err := s.repo.AppendLogEntry(entry); err != nil {
			return nil, err
		}
		return resultFromEntry(stored, entry), signatureFailure(signatureHeader, s.cfg.SigningSecret)
	}

	return s.Reprocess(ctx, stored)
}

// ProcessInboundEmail runs an email-gateway payload through the pipeline.
// There is no verifiable signature for relayed email; the sender allow-list
// stands in for it, and untrusted senders are classified under heightened
// scrutiny rather than rejected.
func (s *Service) ProcessInboundEmail(ctx context.Context, tenant *models.Tenant, payload EmailPayload) (*Result, error) {
	trusted := IsAllowedSender(payload.From, s.cfg.AllowedSenders)

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	// The dedup key covers the body that classification will actually read
	// (text, falling back to HTML) plus the gateway timestamp, so distinct
	// messages with matching headers never collapse into one event.
	body := payload.Text
	if strings.TrimSpace(body) == "" {
		body = payload.HTML
	}
	hashInput := fmt.Sprintf("%s\x00%s\x00%s\x00%d", payload.From, payload.Subject, body, payload.Timestamp)

	ev := &models.InboundEvent{
		UUID:           uuid.NewString(),
		TenantID:       tenant.ID,
		Source:         models.SourceEmailGateway,
		ExternalRef:    contentHash([]byte(hashInput)),
		RawPayload:     string(raw),
		SignatureValid: &trusted,
		ReceivedAt:     payload.ReceivedAt(),
	}
	_, stored, err := s.repo.CreateInboundEventIfNotExists(ev)
	if err != nil {
		return nil, err
	}

	return s.Reprocess(ctx, stored)
}

// SignatureRejected reports whether a stored provider event failed its
// signature check at receipt. Such events are terminal: they must never be
// classified or reconciled, not even through the redrive tooling.
func SignatureRejected(ev *models.InboundEvent) bool {
	return ev.Source == models.SourcePaymentProvider &&
		ev.SignatureValid != nil && !*ev.SignatureValid
}

// Reprocess classifies, extracts and reconciles a stored inbound event. It is
// used both for first delivery and for dead-letter redrive; the signature was
// checked at receipt and is not re-verified here, but events that failed that
// check stay rejected.
func (s *Service) Reprocess(ctx context.Context, ev *models.InboundEvent) (*Result, error) {
	if SignatureRejected(ev) {
		return nil, ErrInvalidSignature
	}

	attempt, err := s.nextAttempt(ev.ID)
	if err != nil {
		return nil, err
	}

	cls, data, extractErr := classifyAndExtract(ev)
	if extractErr != nil {
		outcome := models.OutcomeFailedValidation
		var incomplete *ExtractionIncompleteError
		if errors.As(extractErr, &incomplete) {
			outcome = models.OutcomeExtractionIncomplete
		}
		entry := &models.ProcessingLogEntry{
			InboundEventID: ev.ID,
			TenantID:       ev.TenantID,
			ExternalRef:    ev.ExternalRef,
			EventType:      string(cls.Type),
			Confidence:     cls.Confidence,
			ExtractionJSON: data.JSON(),
			Outcome:        outcome,
			ErrorDetail:    extractErr.Error(),
			Attempt:        attempt,
			ProcessedAt:    time.Now().UTC(),
		}
		if err := s.repo.AppendLogEntry(entry); err != nil {
			return nil, err
		}
		return resultFromEntry(ev, entry), nil
	}

	entry, recErr := s.rec.Reconcile(ctx, ev, cls, data, attempt)
	if entry == nil {
		return nil, recErr
	}
	return resultFromEntry(ev, entry), recErr
}

// DeadLetter parks an event after redrive exhaustion. The entry marks the end
// of automatic processing; operators pick it up from the ledger.
func (s *Service) DeadLetter(ctx context.Context, ev *models.InboundEvent, reason string) (*models.ProcessingLogEntry, error) {
	_ = ctx
	attempt, err := s.nextAttempt(ev.ID)
	if err != nil {
		return nil, err
	}
	entry := &models.ProcessingLogEntry{
		InboundEventID: ev.ID,
		TenantID:       ev.TenantID,
		ExternalRef:    ev.ExternalRef,
		EventType:      string(EventUnknown),
		Outcome:        models.OutcomeDeadLettered,
		ErrorDetail:    reason,
		Attempt:        attempt,
		ProcessedAt:    time.Now().UTC(),
	}
	if err := s.repo.AppendLogEntry(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// GetInboundEventByUUID exposes event lookup for the redrive tooling.
func (s *Service) GetInboundEventByUUID(uuid string) (*models.InboundEvent, error) {
	return s.repo.GetInboundEventByUUID(uuid)
}

// LedgerEntries lists recent ledger entries for the operational view.
func (s *Service) LedgerEntries(filter LedgerFilter) ([]models.ProcessingLogEntry, error) {
	return s.repo.ListRecentEntries(filter)
}

// EventWithEntries returns an inbound event and its full attempt history.
func (s *Service) EventWithEntries(uuid string) (*models.InboundEvent, []models.ProcessingLogEntry, error) {
	ev, err := s.repo.GetInboundEventByUUID(uuid)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.repo.ListEntriesForEvent(ev.ID)
	if err != nil {
		return nil, nil, err
	}
	return ev, entries, nil
}

func (s *Service) nextAttempt(inboundEventID uint) (int, error) {
	count, err := s.repo.CountAttempts(inboundEventID)
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

func classifyAndExtract(ev *models.InboundEvent) (ClassifiedEvent, ExtractedData, error) {
	switch ev.Source {
	case models.SourcePaymentProvider:
		cls := ClassifyProviderEvent([]byte(ev.RawPayload))
		if cls.Type == EventUnknown {
			return cls, ExtractedData{}, nil
		}
		data, err := ExtractProvider([]byte(ev.RawPayload), cls)
		return cls, data, err

	case models.SourceEmailGateway:
		var em EmailPayload
		if err := json.Unmarshal([]byte(ev.RawPayload), &em); err != nil {
			return ClassifiedEvent{Type: EventUnknown}, ExtractedData{}, fmt.Errorf("stored email payload malformed: %w", err)
		}
		trusted := ev.SignatureValid != nil && *ev.SignatureValid
		text := em.Text
		if strings.TrimSpace(text) == "" {
			text = em.HTML
		}
		cls := ClassifyEmail(em.Subject, text, trusted)
		if cls.Type == EventUnknown {
			return cls, ExtractedData{}, nil
		}
		data, err := ExtractEmail(em, cls)
		return cls, data, err

	default:
		return ClassifiedEvent{Type: EventUnknown}, ExtractedData{}, fmt.Errorf("unsupported event source: %s", ev.Source)
	}
}

func resultFromEntry(ev *models.InboundEvent, entry *models.ProcessingLogEntry) *Result {
	return &Result{
		EventUUID: ev.UUID,
		EventType: EventType(entry.EventType),
		Outcome:   entry.Outcome,
		RecordRef: entry.RecordRef(),
		Duplicate: entry.Outcome == models.OutcomeDuplicateIgnored,
		Attempt:   entry.Attempt,
	}
}

func signatureFailure(signatureHeader, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrSecretNotConfigured
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return ErrMissingSignature
	}
	return ErrInvalidSignature
}

func providerEventID(rawPayload []byte) string {
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rawPayload, &envelope); err != nil {
		return ""
	}
	return strings.TrimSpace(envelope.ID)
}

// contentHash derives a stable external reference for payloads that carry no
// provider-assigned id.
func contentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}
