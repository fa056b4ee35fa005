package models

import (
	"time"

	_ "github.com/lib/pq"
)

// User is scanned from the users table over database/sql (the session path
// stays on the raw pool, not GORM).
type User struct {
	ID         int       `json:"id" example:"1"`
	TenantID   int       `json:"tenant_id" example:"1"`
	Email      string    `json:"email" example:"user@example.com"`
	Password   string    `json:"-"`
	FirstName  string    `json:"first_name" example:"John"`
	LastName   string    `json:"last_name" example:"Doe"`
	IsAdmin    bool      `json:"is_admin" example:"false"`
	Suspended  bool      `json:"suspended" example:"false"`
	CreatedAt  time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt  time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	LastAccess time.Time `json:"last_access,omitempty" example:"2024-01-15T10:30:00Z"`
}

// Session is one row of the session table; SessionID doubles as the bearer
// credential next to the JWT.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    int       `json:"user_id"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
