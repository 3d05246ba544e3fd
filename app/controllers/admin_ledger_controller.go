package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/gemfault/GemFlow/internal/pkg/database"
	"github.com/gemfault/GemFlow/internal/pkg/delivery"
	"github.com/gemfault/GemFlow/internal/pkg/ingest"
	"github.com/gemfault/GemFlow/internal/pkg/jobqueue"
	metrics "github.com/gemfault/GemFlow/internal/pkg/metrics/counter"
	"github.com/gemfault/GemFlow/internal/pkg/tenantcontext"
)

// HandleLedgerList returns recent processing ledger entries for the
// authenticated tenant, newest first. Filters: outcome, event_type, since,
// until (RFC3339), limit.
func HandleLedgerList(c *fiber.Ctx) error {
	tc := tenantcontext.Get(c)
	if !tc.IsResolved {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	filter := ingest.LedgerFilter{
		TenantID:  tc.TenantID,
		Outcome:   strings.TrimSpace(c.Query("outcome")),
		EventType: strings.TrimSpace(c.Query("event_type")),
	}
	if since, ok := parseTimeQuery(c.Query("since")); ok {
		filter.Since = since
	} else if c.Query("since") != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_filter", "message": "since must be RFC3339"})
	}
	if until, ok := parseTimeQuery(c.Query("until")); ok {
		filter.Until = until
	} else if c.Query("until") != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_filter", "message": "until must be RFC3339"})
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_filter", "message": "limit must be a positive integer"})
		}
		filter.Limit = n
	}

	svc := ingest.NewServiceFromDB(database.GetDB(), ingest.ConfigFromEnv())
	entries, err := svc.LedgerEntries(filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ledger_query_failed"})
	}

	return c.JSON(fiber.Map{"entries": entries, "count": len(entries)})
}

// HandleLedgerEntry returns one inbound event plus its full attempt history.
func HandleLedgerEntry(c *fiber.Ctx) error {
	tc := tenantcontext.Get(c)
	if !tc.IsResolved {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	svc := ingest.NewServiceFromDB(database.GetDB(), ingest.ConfigFromEnv())
	ev, entries, err := svc.EventWithEntries(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ledger_query_failed"})
	}
	if ev.TenantID != tc.TenantID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}

	return c.JSON(fiber.Map{
		"event": fiber.Map{
			"uuid":            ev.UUID,
			"source":          ev.Source,
			"external_ref":    ev.ExternalRef,
			"signature_valid": ev.SignatureValid,
			"received_at":     ev.ReceivedAt.UTC().Format(time.RFC3339),
		},
		"entries": entries,
	})
}

// HandleLedgerRedrive queues a stored inbound event for reprocessing. The
// event is re-run through classification and reconciliation by a queue
// worker; the call itself only enqueues.
func HandleLedgerRedrive(c *fiber.Ctx) error {
	tc := tenantcontext.Get(c)
	if !tc.IsResolved {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	svc := ingest.NewServiceFromDB(database.GetDB(), ingest.ConfigFromEnv())
	ev, err := svc.GetInboundEventByUUID(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ledger_query_failed"})
	}
	if ev.TenantID != tc.TenantID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}
	if ingest.SignatureRejected(ev) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "signature_rejected",
			"message": "events rejected at signature verification are terminal and cannot be redriven",
		})
	}

	jobID, err := jobqueue.EnqueueRedrive(ev.UUID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "redrive_enqueue_failed"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true, "job_id": jobID, "event_uuid": ev.UUID})
}

// WebhookTestRequest describes a simulated delivery against an external
// endpoint, used to verify a receiver end to end before going live.
type WebhookTestRequest struct {
	URL        string            `json:"url"`
	Payload    json.RawMessage   `json:"payload"`
	Headers    map[string]string `json:"headers,omitempty"`
	Sign       bool              `json:"sign,omitempty"`
	MaxRetries *int              `json:"max_retries,omitempty"`
	TimeoutMS  *int              `json:"timeout_ms,omitempty"`
}

// HandleWebhookTest sends a caller-supplied payload to a caller-supplied URL
// with the same retry behavior used for real outbound deliveries, and reports
// attempts, elapsed time and the final status.
func HandleWebhookTest(c *fiber.Ctx) error {
	tc := tenantcontext.Get(c)
	if !tc.IsResolved {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req WebhookTestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_url", "message": "url must be absolute http(s)"})
	}
	payload := []byte(req.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	opts := delivery.OptionsFromEnv()
	if req.Headers != nil {
		opts.Headers = req.Headers
	}
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		opts.MaxRetries = *req.MaxRetries
	}
	if req.TimeoutMS != nil && *req.TimeoutMS > 0 {
		opts.Timeout = time.Duration(*req.TimeoutMS) * time.Millisecond
	}
	if req.Sign {
		cfg := ingest.ConfigFromEnv()
		ts := fmt.Sprintf("%d", time.Now().Unix())
		if opts.Headers == nil {
			opts.Headers = map[string]string{}
		}
		opts.Headers["Gem-Signature"] = ingest.ComputeWebhookSignature(payload, ts, cfg.SigningSecret)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result := delivery.NewSender().Send(ctx, req.URL, payload, opts)
	return c.JSON(fiber.Map{
		"success":     result.Success,
		"attempts":    result.Attempts,
		"elapsed_ms":  result.Elapsed.Milliseconds(),
		"status_code": result.StatusCode,
		"body":        result.Body,
		"last_error":  result.LastError,
	})
}

// HandleStats returns ingest counters grouped by outcome and event type.
func HandleStats(c *fiber.Ctx) error {
	tc := tenantcontext.Get(c)
	if !tc.IsResolved {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	outcomes, err := metrics.OutcomeTotals()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	eventTypes, err := metrics.EventTypeTotals()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}

	return c.JSON(fiber.Map{"outcomes": outcomes, "event_types": eventTypes})
}

// HandleAdminLedgerPage renders the HTML ledger overview for operators.
func HandleAdminLedgerPage(c *fiber.Ctx) error {
	svc := ingest.NewServiceFromDB(database.GetDB(), ingest.ConfigFromEnv())
	entries, err := svc.LedgerEntries(ingest.LedgerFilter{
		Outcome:   strings.TrimSpace(c.Query("outcome")),
		EventType: strings.TrimSpace(c.Query("event_type")),
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("ledger unavailable")
	}

	rows := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, fiber.Map{
			"ExternalRef": e.ExternalRef,
			"EventType":   e.EventType,
			"Outcome":     e.Outcome,
			"RecordRef":   e.RecordRef(),
			"Attempt":     e.Attempt,
			"Error":       e.ErrorDetail,
			"ProcessedAt": e.ProcessedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.Render("admin/ledger", fiber.Map{
		"Title": "Processing Ledger",
		"Rows":  rows,
	})
}

func parseTimeQuery(v string) (*time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, false
	}
	return &t, true
}
