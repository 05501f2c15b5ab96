package admin

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// Role represents admin role
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleFinance    Role = "finance"
	RoleSupport    Role = "support"
	RoleGameServer Role = "game_server"
)

// Audit actions
const (
	ActionWithdrawalApprove = "withdrawal.approve"
	ActionWithdrawalReject  = "withdrawal.reject"
	ActionReconcileRetry    = "reconciliation.retry"
	ActionLedgerExport      = "ledger.export"
)

// AuditLog represents an admin action log entry
type AuditLog struct {
	ID         uuid.UUID          `db:"id" json:"id"`
	AdminID    uuid.UUID          `db:"admin_id" json:"admin_id"`
	AdminRole  Role               `db:"admin_role" json:"admin_role"`
	Action     string             `db:"action" json:"action"`
	EntityType string             `db:"entity_type" json:"entity_type"`
	EntityID   uuid.NullUUID      `db:"entity_id" json:"entity_id,omitempty"`
	OldValue   types.NullJSONText `db:"old_value" json:"old_value"`
	NewValue   types.NullJSONText `db:"new_value" json:"new_value"`
	Reason     sql.NullString     `db:"reason" json:"reason,omitempty"`
	IPAddress  sql.NullString     `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
}

// Actor is the authenticated back-office user behind a request
type Actor struct {
	ID   uuid.UUID
	Role Role
	IP   string
}

// Export is a generated ledger CSV
type Export struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expires_at"`
}
