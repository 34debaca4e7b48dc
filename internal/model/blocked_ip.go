package model

import "time"

// BlockedIP is an automated containment block, keyed by IP. Upsert semantics:
// at most one row per IP, repeated blocks refresh reason and expiry.
type BlockedIP struct {
	IP           string    `json:"ip"`
	Reason       string    `json:"reason"`
	BlockedUntil time.Time `json:"blockedUntil"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Active reports whether the block is still in force at t.
func (b *BlockedIP) Active(t time.Time) bool {
	return b.BlockedUntil.After(t)
}

// Containment reason constants
const (
	ReasonBruteForce        = "auto_containment_bruteforce"
	ReasonMassExport        = "auto_containment_mass_export"
	ReasonPermissionProbing = "auto_containment_permission_probing"
	ReasonDestructiveBurst  = "auto_containment_destructive_burst"
)
