package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gemfault/GemFlow/app/models"
)

// fakeRepository is an in-memory Repository for pipeline tests. It mimics the
// upsert-by-composite-key semantics of the GORM implementation.
type fakeRepository struct {
	nextID uint

	events        []*models.InboundEvent
	entries       []*models.ProcessingLogEntry
	payments      map[string]*models.Payment
	orders        map[string]*models.Order
	subscriptions map[string]*models.Subscription
	invoices      map[string]*models.Invoice
	customers     map[string]*models.Customer
	crmRecords    []*models.CRMRecord
	alerts        []*models.SecurityAlert

	failWrites bool
	// hideSuccesses simulates the race window where a concurrent delivery's
	// success entry has not committed yet when the dedup lookup runs.
	hideSuccesses bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		payments:      map[string]*models.Payment{},
		orders:        map[string]*models.Order{},
		subscriptions: map[string]*models.Subscription{},
		invoices:      map[string]*models.Invoice{},
		customers:     map[string]*models.Customer{},
	}
}

var errFakeWrite = errors.New("storage unavailable")

func (f *fakeRepository) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepository) CreateInboundEventIfNotExists(ev *models.InboundEvent) (bool, *models.InboundEvent, error) {
	for _, existing := range f.events {
		if existing.Source == ev.Source && existing.ExternalRef == ev.ExternalRef {
			return false, existing, nil
		}
	}
	ev.ID = f.id()
	f.events = append(f.events, ev)
	return true, ev, nil
}

func (f *fakeRepository) GetInboundEventByUUID(uuid string) (*models.InboundEvent, error) {
	for _, ev := range f.events {
		if ev.UUID == uuid {
			return ev, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) AppendLogEntry(entry *models.ProcessingLogEntry) error {
	entry.ID = f.id()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeRepository) FindSuccessByExternalRef(ref string) (*models.ProcessingLogEntry, error) {
	if f.hideSuccesses {
		return nil, nil
	}
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].ExternalRef == ref && f.entries[i].Outcome == models.OutcomeSuccess {
			return f.entries[i], nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) CountAttempts(inboundEventID uint) (int, error) {
	count := 0
	for _, e := range f.entries {
		if e.InboundEventID == inboundEventID {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepository) ListRecentEntries(filter LedgerFilter) ([]models.ProcessingLogEntry, error) {
	var out []models.ProcessingLogEntry
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if filter.TenantID != 0 && e.TenantID != filter.TenantID {
			continue
		}
		if filter.Outcome != "" && e.Outcome != filter.Outcome {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeRepository) ListEntriesForEvent(inboundEventID uint) ([]models.ProcessingLogEntry, error) {
	var out []models.ProcessingLogEntry
	for _, e := range f.entries {
		if e.InboundEventID == inboundEventID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeRepository) UpsertPayment(p *models.Payment) error {
	if f.failWrites {
		return errFakeWrite
	}
	key := p.Provider + "/" + p.ExternalPaymentID
	if existing, ok := f.payments[key]; ok {
		p.ID = existing.ID
	} else {
		p.ID = f.id()
	}
	f.payments[key] = p
	return nil
}

func (f *fakeRepository) FindOrderByNumber(tenantID uint, orderNumber string) (*models.Order, error) {
	o, ok := f.orders[orderNumber]
	if !ok || o.TenantID != tenantID {
		return nil, nil
	}
	return o, nil
}

func (f *fakeRepository) SaveOrder(o *models.Order) error {
	if f.failWrites {
		return errFakeWrite
	}
	if o.ID == 0 {
		o.ID = f.id()
	}
	f.orders[o.OrderNumber] = o
	return nil
}

func (f *fakeRepository) UpsertSubscription(s *models.Subscription) error {
	if f.failWrites {
		return errFakeWrite
	}
	key := s.Provider + "/" + s.ProviderSubscriptionID
	if existing, ok := f.subscriptions[key]; ok {
		s.ID = existing.ID
	} else {
		s.ID = f.id()
	}
	f.subscriptions[key] = s
	return nil
}

func (f *fakeRepository) GetSubscription(provider, providerSubscriptionID string) (*models.Subscription, error) {
	return f.subscriptions[provider+"/"+providerSubscriptionID], nil
}

func (f *fakeRepository) UpsertInvoice(inv *models.Invoice) error {
	if f.failWrites {
		return errFakeWrite
	}
	key := inv.InvoiceNumber
	if existing, ok := f.invoices[key]; ok {
		inv.ID = existing.ID
	} else {
		inv.ID = f.id()
	}
	f.invoices[key] = inv
	return nil
}

func (f *fakeRepository) CreateInvoiceIfAbsent(inv *models.Invoice) error {
	if f.failWrites {
		return errFakeWrite
	}
	if existing, ok := f.invoices[inv.InvoiceNumber]; ok {
		*inv = *existing
		return nil
	}
	inv.ID = f.id()
	f.invoices[inv.InvoiceNumber] = inv
	return nil
}

func (f *fakeRepository) UpsertCustomer(c *models.Customer) error {
	if f.failWrites {
		return errFakeWrite
	}
	if existing, ok := f.customers[c.ExternalRef]; ok {
		c.ID = existing.ID
	} else {
		c.ID = f.id()
	}
	f.customers[c.ExternalRef] = c
	return nil
}

func (f *fakeRepository) CreateCRMRecord(r *models.CRMRecord) error {
	if f.failWrites {
		return errFakeWrite
	}
	for _, existing := range f.crmRecords {
		if existing.InboundEventID == r.InboundEventID && existing.Kind == r.Kind {
			return gorm.ErrDuplicatedKey
		}
	}
	r.ID = f.id()
	f.crmRecords = append(f.crmRecords, r)
	return nil
}

func (f *fakeRepository) CreateSecurityAlert(a *models.SecurityAlert) error {
	if f.failWrites {
		return errFakeWrite
	}
	for _, existing := range f.alerts {
		if existing.InboundEventID == a.InboundEventID {
			return gorm.ErrDuplicatedKey
		}
	}
	a.ID = f.id()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeRepository) Transaction(fn func(Repository) error) error {
	return fn(f)
}

func testEvent(ref string) *models.InboundEvent {
	return &models.InboundEvent{
		ID:          1,
		UUID:        "11111111-2222-3333-4444-555555555555",
		TenantID:    7,
		Source:      models.SourcePaymentProvider,
		ExternalRef: ref,
		ReceivedAt:  time.Now().UTC(),
	}
}

func structured(fields map[string]interface{}) ExtractedData {
	data := ExtractedData{}
	for k, v := range fields {
		data[k] = Field{Value: v, Provenance: FromStructuredField}
	}
	return data
}

func TestReconcile_PaymentSucceeded(t *testing.T) {
	repo := newFakeRepository()
	repo.orders["ORD-1"] = &models.Order{ID: 50, TenantID: 7, OrderNumber: "ORD-1", Status: models.OrderStatusPending}
	rec := NewReconciler(repo)

	data := structured(map[string]interface{}{
		"payment_id":   "pi_1",
		"amount":       1500.00,
		"currency":     "usd",
		"order_number": "ORD-1",
	})
	entry, err := rec.Reconcile(context.Background(), testEvent("evt_1"), ClassifiedEvent{Type: EventPaymentSucceeded, Confidence: 1.0}, data, 1)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSuccess, entry.Outcome)
	assert.Equal(t, "payments", entry.RecordTable)

	payment := repo.payments[models.SourcePaymentProvider+"/pi_1"]
	require.NotNil(t, payment)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, 1500.00, payment.Amount)

	order := repo.orders["ORD-1"]
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)

	invoice := repo.invoices["INV-pi_1"]
	require.NotNil(t, invoice)
	assert.Equal(t, models.InvoiceStatusPaid, invoice.Status)
}

func TestReconcile_ReplayIsIdempotent(t *testing.T) {
	repo := newFakeRepository()
	rec := NewReconciler(repo)

	data := structured(map[string]interface{}{"payment_id": "pi_2", "amount": 20.0})
	cls := ClassifiedEvent{Type: EventPaymentSucceeded, Confidence: 1.0}

	// first delivery succeeds
	first, err := rec.Reconcile(context.Background(), testEvent("evt_2"), cls, data, 1)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeSuccess, first.Outcome)

	// replays never touch domain rows again
	for attempt := 2; attempt <= 4; attempt++ {
		entry, err := rec.Reconcile(context.Background(), testEvent("evt_2"), cls, data, attempt)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeDuplicateIgnored, entry.Outcome)
	}

	assert.Len(t, repo.payments, 1)
	assert.Len(t, repo.invoices, 1)

	successes := 0
	for _, e := range repo.entries {
		if e.Outcome == models.OutcomeSuccess {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
}

func TestReconcile_SubscriptionDeletedKeepsRow(t *testing.T) {
	repo := newFakeRepository()
	rec := NewReconciler(repo)

	created := structured(map[string]interface{}{
		"subscription_id": "sub_1",
		"customer_id":     "cus_1",
		"status":          "active",
		"plan_ref":        "plan_gold",
	})
	_, err := rec.Reconcile(context.Background(), testEvent("evt_sub_1"), ClassifiedEvent{Type: EventSubscriptionCreated, Confidence: 1.0}, created, 1)
	require.NoError(t, err)

	deleted := structured(map[string]interface{}{
		"subscription_id": "sub_1",
		"status":          "canceled",
	})
	entry, err := rec.Reconcile(context.Background(), testEvent("evt_sub_2"), ClassifiedEvent{Type: EventSubscriptionDeleted, Confidence: 1.0}, deleted, 1)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, entry.Outcome)

	sub := repo.subscriptions[models.SourcePaymentProvider+"/sub_1"]
	require.NotNil(t, sub, "deleted subscription must keep its row")
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	require.NotNil(t, sub.CancelledAt)
}

func TestReconcile_SecurityAlertNeverMutatesCRM(t *testing.T) {
	repo := newFakeRepository()
	rec := NewReconciler(repo)

	ev := testEvent("hash:abc")
	ev.Source = models.SourceEmailGateway
	data := structured(map[string]interface{}{
		"from_email": "mallory@evil.test",
		"subject":    "Delete order #12345",
	})

	entry, err := rec.Reconcile(context.Background(), ev, ClassifiedEvent{Type: EventEmailSecurityAlert, Confidence: 1.0}, data, 1)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSuccess, entry.Outcome)
	assert.Equal(t, "security_alerts", entry.RecordTable)
	require.Len(t, repo.alerts, 1)
	assert.Equal(t, "mallory@evil.test", repo.alerts[0].FromAddress)

	assert.Empty(t, repo.crmRecords)
	assert.Empty(t, repo.payments)
	assert.Empty(t, repo.orders)
}

func TestReconcile_EmailDraftRecord(t *testing.T) {
	repo := newFakeRepository()
	rec := NewReconciler(repo)

	ev := testEvent("hash:def")
	ev.Source = models.SourceEmailGateway
	data := structured(map[string]interface{}{
		"from_email":    "john@acme.test",
		"customer_name": "John Doe",
		"subject":       "Quote request",
		"message":       "budget $3,000",
	})
	data["amount"] = Field{Value: 3000.0, Raw: "$3,000", Provenance: FromHeuristicExtraction}

	entry, err := rec.Reconcile(context.Background(), ev, ClassifiedEvent{Type: EventEmailQuote, Confidence: 0.75}, data, 1)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSuccess, entry.Outcome)
	require.Len(t, repo.crmRecords, 1)
	draft := repo.crmRecords[0]
	assert.Equal(t, models.CRMRecordKindQuotes, draft.Kind)
	assert.Equal(t, models.CRM_RECORD_STATUS_DRAFT, draft.Status)
	assert.Equal(t, ev.ID, draft.InboundEventID)
	require.NotNil(t, draft.Budget)
	assert.Equal(t, 3000.0, *draft.Budget)
}

func TestReconcile_ConcurrentEmailDoubleDeliveryIsConstrained(t *testing.T) {
	repo := newFakeRepository()
	rec := NewReconciler(repo)

	ev := testEvent("hash:race")
	ev.Source = models.SourceEmailGateway
	data := structured(map[string]interface{}{
		"from_email": "john@acme.test",
		"subject":    "Quote request",
	})
	cls := ClassifiedEvent{Type: EventEmailQuote, Confidence: 0.5}

	first, err := rec.Reconcile(context.Background(), ev, cls, data, 1)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeSuccess, first.Outcome)

	// a second delivery racing the first can pass the ledger lookup before
	// the success entry commits; the unique index must reject its insert
	repo.hideSuccesses = true
	second, err := rec.Reconcile(context.Background(), ev, cls, data, 2)
	require.Error(t, err)
	var recErr *ReconciliationError
	require.True(t, errors.As(err, &recErr))
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
	require.NotNil(t, second)
	assert.Equal(t, models.OutcomeFailedReconciliation, second.Outcome)

	assert.Len(t, repo.crmRecords, 1, "double delivery must not create twin drafts")
}

func TestReconcile_UnknownEventIsLedgeredOnly(t *testing.T) {
	repo := newFakeRepository()
	rec := NewReconciler(repo)

	entry, err := rec.Reconcile(context.Background(), testEvent("evt_u"), ClassifiedEvent{Type: EventUnknown, Confidence: 1.0}, ExtractedData{}, 1)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeUnknownEvent, entry.Outcome)
	assert.Empty(t, entry.RecordTable)
	assert.Empty(t, repo.payments)
}

func TestReconcile_StorageFailureIsLedgered(t *testing.T) {
	repo := newFakeRepository()
	repo.failWrites = true
	rec := NewReconciler(repo)

	data := structured(map[string]interface{}{"payment_id": "pi_9", "amount": 10.0})
	entry, err := rec.Reconcile(context.Background(), testEvent("evt_9"), ClassifiedEvent{Type: EventPaymentSucceeded, Confidence: 1.0}, data, 1)

	require.Error(t, err)
	var recErr *ReconciliationError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, EventPaymentSucceeded, recErr.EventType)
	assert.True(t, errors.Is(err, errFakeWrite))

	require.NotNil(t, entry)
	assert.Equal(t, models.OutcomeFailedReconciliation, entry.Outcome)
	assert.NotEmpty(t, entry.ErrorDetail)
}
