package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// APIKey stores hashed API credentials scoped to a tenant. TagIDs are
// the key's access grants: an untagged key sees public documents only.
type APIKey struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	TenantID   snowflake.ID  `gorm:"column:tenant_id;not null;uniqueIndex:ux_api_keys_tenant_key_id,priority:1"`
	KeyID      string        `gorm:"column:key_id;type:text;not null;uniqueIndex:ux_api_keys_tenant_key_id,priority:2"`
	Name       string        `gorm:"type:text;not null"`
	KeyHash    string        `gorm:"column:key_hash;type:text;not null;index"`
	TagIDs     pq.Int64Array `gorm:"column:tag_ids;type:bigint[]"`
	IsActive   bool          `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastUsedAt *time.Time    `gorm:"column:last_used_at"`
	ExpiresAt  *time.Time    `gorm:"column:expires_at"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// Expired reports whether the key is past its expiry.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// TagGrants converts the stored tag IDs to snowflake form.
func (k *APIKey) TagGrants() []snowflake.ID {
	grants := make([]snowflake.ID, 0, len(k.TagIDs))
	for _, id := range k.TagIDs {
		grants = append(grants, snowflake.ID(id))
	}
	return grants
}
