package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Tenant is a paying organization. Balance is advisory and may dip
// negative when concurrent charges pass the balance gate together;
// TotalSpent only ever grows.
type Tenant struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name       string            `gorm:"not null" json:"name"`
	Balance    float64           `gorm:"not null;default:0" json:"balance"`
	TotalSpent float64           `gorm:"not null;default:0" json:"total_spent"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

type UserRole string

const (
	UserRoleOwner  UserRole = "owner"
	UserRoleAdmin  UserRole = "admin"
	UserRoleMember UserRole = "member"
)

// User is a tenant member. Role drives the access filter: admins and
// owners bypass tag restrictions.
type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Email     string       `gorm:"not null" json:"email"`
	Role      UserRole     `gorm:"type:text;not null;default:'member'" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// UserTag grants a user visibility over documents carrying the tag.
type UserTag struct {
	UserID    snowflake.ID `gorm:"primaryKey" json:"user_id"`
	TagID     snowflake.ID `gorm:"primaryKey" json:"tag_id"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (UserTag) TableName() string { return "user_tags" }
