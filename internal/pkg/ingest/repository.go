package ingest

import (
	"errors"
	"time"

	"github.com/gemfault/GemFlow/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerFilter narrows ledger listings for the operational view.
type LedgerFilter struct {
	TenantID  uint
	Outcome   string
	EventType string
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// Repository provides all DB operations used by the pipeline. Every domain
// write goes through here so the idempotency gate cannot be bypassed.
type Repository interface {
	CreateInboundEventIfNotExists(ev *models.InboundEvent) (bool, *models.InboundEvent, error)
	GetInboundEventByUUID(uuid string) (*models.InboundEvent, error)

	AppendLogEntry(entry *models.ProcessingLogEntry) error
	FindSuccessByExternalRef(ref string) (*models.ProcessingLogEntry, error)
	CountAttempts(inboundEventID uint) (int, error)
	ListRecentEntries(filter LedgerFilter) ([]models.ProcessingLogEntry, error)
	ListEntriesForEvent(inboundEventID uint) ([]models.ProcessingLogEntry, error)

	UpsertPayment(p *models.Payment) error
	FindOrderByNumber(tenantID uint, orderNumber string) (*models.Order, error)
	SaveOrder(o *models.Order) error
	UpsertSubscription(s *models.Subscription) error
	GetSubscription(provider, providerSubscriptionID string) (*models.Subscription, error)
	UpsertInvoice(inv *models.Invoice) error
	CreateInvoiceIfAbsent(inv *models.Invoice) error
	UpsertCustomer(c *models.Customer) error
	CreateCRMRecord(r *models.CRMRecord) error
	CreateSecurityAlert(a *models.SecurityAlert) error

	Transaction(fn func(Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an ingest repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateInboundEventIfNotExists(ev *models.InboundEvent) (bool, *models.InboundEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "source"},
			{Name: "external_ref"},
		},
		DoNothing: true,
	}).Create(ev)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.InboundEvent
	if err := r.db.Where("source = ? AND external_ref = ?", ev.Source, ev.ExternalRef).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetInboundEventByUUID(uuid string) (*models.InboundEvent, error) {
	var ev models.InboundEvent
	if err := r.db.Where("uuid = ?", uuid).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *gormRepository) AppendLogEntry(entry *models.ProcessingLogEntry) error {
	return r.db.Create(entry).Error
}

func (r *gormRepository) FindSuccessByExternalRef(ref string) (*models.ProcessingLogEntry, error) {
	var entry models.ProcessingLogEntry
	err := r.db.
		Where("external_ref = ? AND outcome = ?", ref, models.OutcomeSuccess).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *gormRepository) CountAttempts(inboundEventID uint) (int, error) {
	var count int64
	err := r.db.Model(&models.ProcessingLogEntry{}).
		Where("inbound_event_id = ?", inboundEventID).
		Count(&count).Error
	return int(count), err
}

func (r *gormRepository) ListRecentEntries(filter LedgerFilter) ([]models.ProcessingLogEntry, error) {
	q := r.db.Model(&models.ProcessingLogEntry{})
	if filter.TenantID != 0 {
		q = q.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Outcome != "" {
		q = q.Where("outcome = ?", filter.Outcome)
	}
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	if filter.Since != nil {
		q = q.Where("processed_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		q = q.Where("processed_at <= ?", *filter.Until)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var entries []models.ProcessingLogEntry
	err := q.Order("id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (r *gormRepository) ListEntriesForEvent(inboundEventID uint) ([]models.ProcessingLogEntry, error) {
	var entries []models.ProcessingLogEntry
	err := r.db.Where("inbound_event_id = ?", inboundEventID).Order("id ASC").Find(&entries).Error
	return entries, err
}

func (r *gormRepository) UpsertPayment(p *models.Payment) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "external_payment_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"order_id",
			"amount",
			"currency",
			"status",
			"failure_reason",
			"updated_at",
		}),
	}).Create(p).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider = ? AND external_payment_id = ?", p.Provider, p.ExternalPaymentID).
		First(p).Error
}

func (r *gormRepository) FindOrderByNumber(tenantID uint, orderNumber string) (*models.Order, error) {
	var o models.Order
	err := r.db.Where("tenant_id = ? AND order_number = ?", tenantID, orderNumber).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *gormRepository) SaveOrder(o *models.Order) error {
	return r.db.Save(o).Error
}

func (r *gormRepository) UpsertSubscription(s *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_external_ref",
			"plan_ref",
			"status",
			"current_period_start",
			"current_period_end",
			"cancelled_at",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(s).Error; err != nil {
		return err
	}

	return r.db.Where("provider = ? AND provider_subscription_id = ?", s.Provider, s.ProviderSubscriptionID).
		First(s).Error
}

func (r *gormRepository) GetSubscription(provider, providerSubscriptionID string) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) UpsertInvoice(inv *models.Invoice) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"},
			{Name: "invoice_number"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"external_invoice_id",
			"amount",
			"currency",
			"status",
			"paid_at",
			"updated_at",
		}),
	}).Create(inv).Error; err != nil {
		return err
	}

	return r.db.Where("tenant_id = ? AND invoice_number = ?", inv.TenantID, inv.InvoiceNumber).
		First(inv).Error
}

func (r *gormRepository) CreateInvoiceIfAbsent(inv *models.Invoice) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"},
			{Name: "invoice_number"},
		},
		DoNothing: true,
	}).Create(inv).Error; err != nil {
		return err
	}

	return r.db.Where("tenant_id = ? AND invoice_number = ?", inv.TenantID, inv.InvoiceNumber).
		First(inv).Error
}

func (r *gormRepository) UpsertCustomer(c *models.Customer) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"},
			{Name: "external_ref"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"email",
			"phone",
			"updated_at",
		}),
	}).Create(c).Error; err != nil {
		return err
	}

	return r.db.Where("tenant_id = ? AND external_ref = ?", c.TenantID, c.ExternalRef).
		First(c).Error
}

func (r *gormRepository) CreateCRMRecord(rec *models.CRMRecord) error {
	return r.db.Create(rec).Error
}

func (r *gormRepository) CreateSecurityAlert(a *models.SecurityAlert) error {
	return r.db.Create(a).Error
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
