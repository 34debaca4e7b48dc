package model

import "time"

// GenesisHash is the prev_hash sentinel of the first ledger entry. It is
// deliberately not a 64-char hex digest so it can never collide with a real
// event hash.
const GenesisHash = "GENESIS"

// Event status values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusDenied  = "denied"
)

// Event severity values
const (
	SeverityInfo     = "info"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Audit action constants. The action taxonomy is an open set; these are the
// ones the anomaly evaluator and the built-in security API emit.
const (
	ActionLoginAttempt        = "login_attempt"
	ActionAuthorizationDenied = "authorization_denied"
	ActionExportSystemLogs    = "export_system_logs"
	ActionExportAlertsReport  = "export_alerts_report"
	ActionExportSummaryReport = "export_summary_report"
	ActionExportAuditReport   = "export_audit_report"
	ActionDeleteAlert         = "delete_alert"
	ActionBulkResolveAlerts   = "bulk_resolve_alerts"
	ActionUnblockIP           = "unblock_ip"
	ActionReleaseQuarantine   = "release_quarantined_user"
	ActionVerifyAuditChain    = "verify_audit_chain"
)

// ExportActions are the actions counted by the mass-export pattern.
var ExportActions = []string{
	ActionExportSystemLogs,
	ActionExportAlertsReport,
	ActionExportSummaryReport,
	ActionExportAuditReport,
}

// DestructiveActions are the actions counted by the destructive-burst pattern.
var DestructiveActions = []string{
	ActionDeleteAlert,
	ActionBulkResolveAlerts,
}

// AuditEvent is one entry of the hash-chained security audit trail.
// Entries are immutable once written; Seq is assigned by the database and
// defines the chain's total order.
type AuditEvent struct {
	Seq       int64                  `json:"seq"`
	EventID   string                 `json:"eventId"`
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	Status    string                 `json:"status"`
	Severity  string                 `json:"severity"`
	Source    string                 `json:"source"`
	Target    *string                `json:"target,omitempty"`
	UserID    *string                `json:"userId,omitempty"`
	Role      *string                `json:"role,omitempty"`
	IP        string                 `json:"ip"`
	UserAgent string                 `json:"userAgent"`
	Details   map[string]interface{} `json:"details"`
	PrevHash  string                 `json:"prevHash"`
	EventHash string                 `json:"eventHash"`
}
