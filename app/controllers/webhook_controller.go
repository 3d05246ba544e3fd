package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/gemfault/GemFlow/app/models"
	"github.com/gemfault/GemFlow/internal/pkg/database"
	"github.com/gemfault/GemFlow/internal/pkg/ingest"
	"github.com/gemfault/GemFlow/internal/pkg/jobqueue"
	metrics "github.com/gemfault/GemFlow/internal/pkg/metrics/counter"
)

const webhookProcessTimeout = 15 * time.Second

// HandlePaymentProviderWebhook receives signed webhooks from the payment
// provider. The raw body is captured before any parsing so the signature is
// verified over the bytes as delivered.
func HandlePaymentProviderWebhook(c *fiber.Ctx) error {
	tenant, rerr := resolveTenantParam(c)
	if tenant == nil {
		return rerr
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Gem-Signature"))

	svc := ingest.NewServiceFromDB(database.GetDB(), ingest.ConfigFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	result, err := svc.ProcessProviderWebhook(ctx, tenant, rawBody, signature)
	if err != nil {
		if ingest.IsSignatureError(err) {
			recordOutcome(result)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		}
		var recErr *ingest.ReconciliationError
		if errors.As(err, &recErr) {
			// The event is persisted and ledgered; the provider must not
			// redeliver. Recovery happens through the redrive queue.
			recordOutcome(result)
			enqueueRedrive(result.EventUUID)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "event_uuid": result.EventUUID})
		}
		log.Printf("[Webhook] processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}

	recordOutcome(result)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"received":   true,
		"event_uuid": result.EventUUID,
		"outcome":    result.Outcome,
		"duplicate":  result.Duplicate,
	})
}

// resolveTenantParam maps the :tenant path segment to a tenant row. On
// failure the response is already written; callers just return the error.
func resolveTenantParam(c *fiber.Ctx) (*models.Tenant, error) {
	slug := strings.TrimSpace(c.Params("tenant"))
	tenant, err := models.FindTenantBySlug(database.GetDB(), slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_tenant"})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "tenant_lookup_failed"})
	}
	return tenant, nil
}

func recordOutcome(result *ingest.Result) {
	if result == nil {
		return
	}
	_ = metrics.AddOutcome(result.Outcome)
	if result.EventType != "" {
		_ = metrics.AddEventType(string(result.EventType))
	}
}

func enqueueRedrive(eventUUID string) {
	if eventUUID == "" {
		return
	}
	if _, err := jobqueue.EnqueueRedrive(eventUUID); err != nil {
		log.Printf("[Webhook] redrive enqueue failed for %s: %v", eventUUID, err)
	}
}
