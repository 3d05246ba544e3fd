package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gemfault/GemFlow/app/models"
)

// Reconciler applies extracted data to domain records with idempotent upsert
// semantics keyed by the external reference id. It is the only component that
// mutates domain rows; a success ledger entry persists in the same
// transaction as the mutation or not at all.
type Reconciler struct {
	repo Repository
}

// NewReconciler creates a reconciler from an injected repository.
func NewReconciler(repo Repository) *Reconciler {
	return &Reconciler{repo: repo}
}

// Reconcile runs the per-event-type update rule and appends the resulting
// ledger entry. Redelivered events whose external reference already has a
// success entry are recorded as duplicate_ignored without any mutation.
func (r *Reconciler) Reconcile(ctx context.Context, ev *models.InboundEvent, cls ClassifiedEvent, data ExtractedData, attempt int) (*models.ProcessingLogEntry, error) {
	_ = ctx
	now := time.Now().UTC()
	entry := &models.ProcessingLogEntry{
		InboundEventID: ev.ID,
		TenantID:       ev.TenantID,
		ExternalRef:    ev.ExternalRef,
		EventType:      string(cls.Type),
		Confidence:     cls.Confidence,
		ExtractionJSON: data.JSON(),
		Attempt:        attempt,
		ProcessedAt:    now,
	}

	prior, err := r.repo.FindSuccessByExternalRef(ev.ExternalRef)
	if err != nil {
		return r.failEntry(entry, fmt.Errorf("ledger lookup failed: %w", err), cls.Type)
	}
	if prior != nil {
		entry.Outcome = models.OutcomeDuplicateIgnored
		if err := r.repo.AppendLogEntry(entry); err != nil {
			return nil, err
		}
		return entry, nil
	}

	if cls.Type == EventUnknown {
		// Unknown events are never reconciled automatically; manual triage only.
		entry.Outcome = models.OutcomeUnknownEvent
		if err := r.repo.AppendLogEntry(entry); err != nil {
			return nil, err
		}
		return entry, nil
	}

	txErr := r.repo.Transaction(func(repo Repository) error {
		table, id, err := applyUpdateRule(repo, ev, cls, data, now)
		if err != nil {
			return err
		}
		entry.Outcome = models.OutcomeSuccess
		entry.RecordTable = table
		entry.RecordID = id
		return repo.AppendLogEntry(entry)
	})
	if txErr != nil {
		return r.failEntry(entry, txErr, cls.Type)
	}
	return entry, nil
}

// failEntry ledgers a failed_reconciliation attempt. The event stays eligible
// for bounded redrive; it is never silently dropped.
func (r *Reconciler) failEntry(entry *models.ProcessingLogEntry, cause error, t EventType) (*models.ProcessingLogEntry, error) {
	entry.Outcome = models.OutcomeFailedReconciliation
	entry.ErrorDetail = cause.Error()
	entry.RecordTable = ""
	entry.RecordID = 0
	if err := r.repo.AppendLogEntry(entry); err != nil {
		return nil, err
	}
	return entry, &ReconciliationError{EventType: t, Err: cause}
}

// applyUpdateRule performs the fixed per-event-type domain mutation and
// returns the primary record reference it created or updated.
func applyUpdateRule(repo Repository, ev *models.InboundEvent, cls ClassifiedEvent, data ExtractedData, now time.Time) (string, uint, error) {
	switch cls.Type {
	case EventPaymentSucceeded:
		return applyPaymentSucceeded(repo, ev, data, now)
	case EventPaymentFailed:
		return applyPaymentFailed(repo, ev, data)
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return applySubscription(repo, ev, cls.Type, data, now)
	case EventInvoicePaymentSucceeded, EventInvoicePaymentFailed:
		return applyInvoice(repo, ev, cls.Type, data, now)
	case EventCustomerCreated, EventCustomerUpdated:
		return applyCustomer(repo, ev, data)
	case EventEmailQuote, EventEmailOrder, EventEmailRepair, EventEmailTradeIn:
		return applyEmailDraft(repo, ev, cls.Type, data)
	case EventEmailSecurityAlert:
		return applySecurityAlert(repo, ev, data)
	default:
		return "", 0, fmt.Errorf("no update rule for event type %s", cls.Type)
	}
}

func applyPaymentSucceeded(repo Repository, ev *models.InboundEvent, data ExtractedData, now time.Time) (string, uint, error) {
	p := &models.Payment{
		TenantID:          ev.TenantID,
		Provider:          ev.Source,
		ExternalPaymentID: data.String("payment_id"),
		Amount:            data.Float("amount"),
		Currency:          currencyOrDefault(data),
		Status:            models.PaymentStatusCompleted,
	}

	if orderNumber := data.String("order_number"); orderNumber != "" {
		order, err := repo.FindOrderByNumber(ev.TenantID, orderNumber)
		if err != nil {
			return "", 0, err
		}
		if order != nil {
			order.Status = models.OrderStatusPaid
			order.PaidAt = &now
			if err := repo.SaveOrder(order); err != nil {
				return "", 0, err
			}
			p.OrderID = &order.ID
		}
	}

	if err := repo.UpsertPayment(p); err != nil {
		return "", 0, err
	}

	invoiceNumber := data.String("invoice_number")
	if invoiceNumber == "" {
		invoiceNumber = "INV-" + p.ExternalPaymentID
	}
	paidAt := now
	inv := &models.Invoice{
		TenantID:          ev.TenantID,
		InvoiceNumber:     invoiceNumber,
		ExternalInvoiceID: data.String("invoice_id"),
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            models.InvoiceStatusPaid,
		PaidAt:            &paidAt,
	}
	if err := repo.CreateInvoiceIfAbsent(inv); err != nil {
		return "", 0, err
	}

	return "payments", p.ID, nil
}

func applyPaymentFailed(repo Repository, ev *models.InboundEvent, data ExtractedData) (string, uint, error) {
	p := &models.Payment{
		TenantID:          ev.TenantID,
		Provider:          ev.Source,
		ExternalPaymentID: data.String("payment_id"),
		Amount:            data.Float("amount"),
		Currency:          currencyOrDefault(data),
		Status:            models.PaymentStatusFailed,
		FailureReason:     data.String("failure_reason"),
	}

	if orderNumber := data.String("order_number"); orderNumber != "" {
		order, err := repo.FindOrderByNumber(ev.TenantID, orderNumber)
		if err != nil {
			return "", 0, err
		}
		if order != nil {
			order.Status = models.OrderStatusPaymentFailed
			if err := repo.SaveOrder(order); err != nil {
				return "", 0, err
			}
			p.OrderID = &order.ID
		}
	}

	if err := repo.UpsertPayment(p); err != nil {
		return "", 0, err
	}
	return "payments", p.ID, nil
}

func applySubscription(repo Repository, ev *models.InboundEvent, t EventType, data ExtractedData, now time.Time) (string, uint, error) {
	sub := &models.Subscription{
		TenantID:               ev.TenantID,
		Provider:               ev.Source,
		ProviderSubscriptionID: data.String("subscription_id"),
		CustomerExternalRef:    data.String("customer_id"),
		PlanRef:                data.String("plan_ref"),
		Status:                 mapSubscriptionStatus(data.String("status")),
		CurrentPeriodStart:     parseTimePtr(data.String("current_period_start")),
		CurrentPeriodEnd:       parseTimePtr(data.String("current_period_end")),
		RawPayloadJSON:         ev.RawPayload,
	}
	if t == EventSubscriptionDeleted {
		// Deleted subscriptions keep their row; only status flips.
		sub.Status = models.SubscriptionStatusCancelled
		cancelled := now
		sub.CancelledAt = &cancelled
	}

	if err := repo.UpsertSubscription(sub); err != nil {
		return "", 0, err
	}
	return "subscriptions", sub.ID, nil
}

func applyInvoice(repo Repository, ev *models.InboundEvent, t EventType, data ExtractedData, now time.Time) (string, uint, error) {
	inv := &models.Invoice{
		TenantID:          ev.TenantID,
		InvoiceNumber:     data.String("invoice_number"),
		ExternalInvoiceID: data.String("invoice_id"),
		Amount:            data.Float("amount"),
		Currency:          currencyOrDefault(data),
	}
	if t == EventInvoicePaymentSucceeded {
		inv.Status = models.InvoiceStatusPaid
		paidAt := now
		inv.PaidAt = &paidAt
	} else {
		inv.Status = models.InvoiceStatusOverdue
	}

	if err := repo.UpsertInvoice(inv); err != nil {
		return "", 0, err
	}
	return "invoices", inv.ID, nil
}

func applyCustomer(repo Repository, ev *models.InboundEvent, data ExtractedData) (string, uint, error) {
	c := &models.Customer{
		TenantID:    ev.TenantID,
		ExternalRef: data.String("customer_id"),
		Name:        data.String("customer_name"),
		Email:       data.String("email"),
		Phone:       data.String("phone"),
	}
	if err := repo.UpsertCustomer(c); err != nil {
		return "", 0, err
	}
	return "customers", c.ID, nil
}

func applyEmailDraft(repo Repository, ev *models.InboundEvent, t EventType, data ExtractedData) (string, uint, error) {
	rec := &models.CRMRecord{
		TenantID:       ev.TenantID,
		Kind:           emailKind(t),
		CustomerName:   data.String("customer_name"),
		Email:          data.String("from_email"),
		Phone:          data.String("phone"),
		Subject:        data.String("subject"),
		Message:        data.String("message"),
		InboundEventID: ev.ID,
		Status:         models.CRM_RECORD_STATUS_DRAFT,
	}
	if f, ok := data["phone"]; ok {
		rec.PhoneRaw = f.Raw
	}
	if data.Has("amount") {
		budget := data.Float("amount")
		rec.Budget = &budget
	}

	if err := rec.Validate(); err != nil {
		return "", 0, fmt.Errorf("draft record invalid: %w", err)
	}
	if err := repo.CreateCRMRecord(rec); err != nil {
		return "", 0, err
	}
	return "crm_records", rec.ID, nil
}

func applySecurityAlert(repo Repository, ev *models.InboundEvent, data ExtractedData) (string, uint, error) {
	// Never auto-act on destructive instructions from inbound email.
	alert := &models.SecurityAlert{
		TenantID:       ev.TenantID,
		InboundEventID: ev.ID,
		FromAddress:    data.String("from_email"),
		Subject:        data.String("subject"),
		Detail:         "destructive instruction detected in inbound email; no record was modified",
	}
	if err := repo.CreateSecurityAlert(alert); err != nil {
		return "", 0, err
	}
	return "security_alerts", alert.ID, nil
}

func emailKind(t EventType) string {
	switch t {
	case EventEmailQuote:
		return models.CRMRecordKindQuotes
	case EventEmailOrder:
		return models.CRMRecordKindOrders
	case EventEmailRepair:
		return models.CRMRecordKindRepairs
	default:
		return models.CRMRecordKindTradeIn
	}
}

func mapSubscriptionStatus(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due", "unpaid":
		return models.SubscriptionStatusPastDue
	case "canceled", "cancelled":
		return models.SubscriptionStatusCancelled
	case "":
		return models.SubscriptionStatusActive
	default:
		return models.SubscriptionStatusIncomplete
	}
}

func currencyOrDefault(data ExtractedData) string {
	if c := data.String("currency"); c != "" {
		return c
	}
	return "usd"
}

func parseTimePtr(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}
