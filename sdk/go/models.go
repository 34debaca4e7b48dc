package threattrace

import "time"

// AuditEvent is one entry of the tamper-evident audit trail.
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

// Pagination describes the page position of a list response.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

// AuditTrailPage is one page of audit events.
type AuditTrailPage struct {
	Events     []AuditEvent `json:"events"`
	Pagination Pagination   `json:"pagination"`
}

// VerifyResult reports the outcome of a full chain verification.
type VerifyResult struct {
	OK       bool   `json:"ok"`
	Checked  int    `json:"checked"`
	BadSeq   int64  `json:"badSeq,omitempty"`
	BadEvent string `json:"badEventId,omitempty"`
	Problem  string `json:"problem,omitempty"`
}

// BlockedIP is an IP-level containment block.
type BlockedIP struct {
	IP           string    `json:"ip"`
	Reason       string    `json:"reason"`
	BlockedUntil time.Time `json:"blockedUntil"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// QuarantinedUser is a user account under containment lock.
type QuarantinedUser struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Role                string     `json:"role"`
	Status              string     `json:"status"`
	LockedUntil         *time.Time `json:"lockedUntil,omitempty"`
	ForceLogoutAfter    *time.Time `json:"forceLogoutAfter,omitempty"`
	QuarantineReason    *string    `json:"securityQuarantineReason,omitempty"`
	QuarantineUpdatedAt *time.Time `json:"securityQuarantineUpdatedAt,omitempty"`
}

// Alert is an anomaly or integrity alert raised by the server.
type Alert struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}
