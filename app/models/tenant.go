package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

const (
	TENANT_STATUS_ACTIVE    = "active"
	TENANT_STATUS_SUSPENDED = "suspended"
)

// Tenant is the multi-tenancy scoping unit. Every domain record is
// partitioned by tenant; inbound endpoints resolve the tenant from the
// route token, the admin API from the API key hash.
type Tenant struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Name       string         `gorm:"type:varchar(150);not null" json:"name"`
	Slug       string         `gorm:"type:varchar(80);uniqueIndex;not null" json:"slug"`
	APIKeyHash string         `gorm:"type:varchar(64);index" json:"-"`
	Status     string         `gorm:"type:varchar(32);default:'active'" json:"status"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// HashAPIKey returns the hex SHA-256 digest used for API key lookups.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// FindTenantBySlug resolves an active tenant from its route token.
func FindTenantBySlug(db *gorm.DB, slug string) (*Tenant, error) {
	var t Tenant
	if err := db.Where("slug = ? AND status = ?", slug, TENANT_STATUS_ACTIVE).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTenantByAPIKeyHash resolves a tenant from a hashed admin API key.
func FindTenantByAPIKeyHash(db *gorm.DB, hash string) (*Tenant, error) {
	var t Tenant
	if err := db.Where("api_key_hash = ? AND status = ?", hash, TENANT_STATUS_ACTIVE).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
