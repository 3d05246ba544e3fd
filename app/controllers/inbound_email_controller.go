package controllers

import (
	"context"
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/gemfault/GemFlow/internal/pkg/database"
	"github.com/gemfault/GemFlow/internal/pkg/ingest"
	"github.com/gemfault/GemFlow/internal/pkg/mail"
)

var emailValidate = validator.New()

// HandleInboundEmail receives parsed emails relayed by the inbound email
// gateway. There is no signature to verify; an allow-list of sender addresses
// decides whether the classifier treats the mail as trusted.
func HandleInboundEmail(c *fiber.Ctx) error {
	tenant, rerr := resolveTenantParam(c)
	if tenant == nil {
		return rerr
	}

	var payload ingest.EmailPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Body must be JSON with from/to/subject/text fields"})
	}
	if err := emailValidate.Struct(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}

	svc := ingest.NewServiceFromDB(database.GetDB(), ingest.ConfigFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	result, err := svc.ProcessInboundEmail(ctx, tenant, payload)
	if err != nil {
		var recErr *ingest.ReconciliationError
		if errors.As(err, &recErr) {
			recordOutcome(result)
			enqueueRedrive(result.EventUUID)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "event_uuid": result.EventUUID, "message": "accepted; reconciliation queued for retry"})
		}
		log.Printf("[InboundEmail] processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "email_persist_failed"})
	}

	recordOutcome(result)

	if result.EventType == ingest.EventEmailSecurityAlert {
		// Notify the operator out of band; the ledger entry is already
		// written either way.
		go func(from, subject string) {
			_ = mail.SendSecurityAlertMail(from, subject)
		}(payload.From, payload.Subject)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":     true,
		"event_uuid":  result.EventUUID,
		"record_type": result.EventType.RecordType(),
		"outcome":     result.Outcome,
		"duplicate":   result.Duplicate,
		"message":     "email processed",
	})
}
