package admin

// Permission represents an admin permission
type Permission string

const (
	// Withdrawals
	PermViewWithdrawals   Permission = "withdrawals.view"
	PermDecideWithdrawals Permission = "withdrawals.decide"

	// Ledger
	PermViewLedger   Permission = "ledger.view"
	PermExportLedger Permission = "ledger.export"

	// Wagers settled by external evaluators
	PermSettleWagers Permission = "wagers.settle"

	// System
	PermManageReconciliation Permission = "reconcile.manage"
	PermViewAnalytics        Permission = "analytics.view"
	PermViewAuditLogs        Permission = "audit.view"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleSuperAdmin: {
		// All permissions
		PermViewWithdrawals, PermDecideWithdrawals,
		PermViewLedger, PermExportLedger,
		PermSettleWagers,
		PermManageReconciliation, PermViewAnalytics, PermViewAuditLogs,
	},
	RoleAdmin: {
		PermViewWithdrawals, PermDecideWithdrawals,
		PermViewLedger, PermExportLedger,
		PermManageReconciliation, PermViewAnalytics, PermViewAuditLogs,
	},
	RoleFinance: {
		PermViewWithdrawals, PermDecideWithdrawals,
		PermViewLedger, PermExportLedger,
		PermViewAnalytics,
	},
	RoleSupport: {
		PermViewWithdrawals,
		PermViewLedger,
	},
	// Service accounts used by external game evaluators
	RoleGameServer: {
		PermSettleWagers,
	},
}

// HasPermission reports whether role grants perm
func HasPermission(role Role, perm Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
