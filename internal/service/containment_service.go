package service

import (
	"context"
	"time"

	"github.com/threattrace/threattrace/internal/logger"
	"github.com/threattrace/threattrace/internal/model"
)

// BlockStore persists IP containment blocks
type BlockStore interface {
	Upsert(ctx context.Context, b *model.BlockedIP) error
}

// QuarantineStore applies quarantine fields to user records
type QuarantineStore interface {
	Quarantine(ctx context.Context, id, reason string, until, now time.Time) error
}

// ContainmentService applies automated defensive actions. Both actions are
// defense-in-depth, not gates: callers log returned errors and carry on, so
// a persistence failure never surfaces to the request that triggered
// detection.
type ContainmentService struct {
	blocks BlockStore
	users  QuarantineStore
	log    *logger.Logger
	now    func() time.Time
}

// NewContainmentService creates a new ContainmentService
func NewContainmentService(blocks BlockStore, users QuarantineStore, log *logger.Logger) *ContainmentService {
	return &ContainmentService{
		blocks: blocks,
		users:  users,
		log:    log.WithComponent("containment_service"),
		now:    time.Now,
	}
}

// BlockIP upserts a block for ip expiring after duration. Idempotent:
// repeated calls refresh the expiry and reason on the single row for ip.
func (s *ContainmentService) BlockIP(ctx context.Context, ip, reason string, duration time.Duration) error {
	if ip == "" {
		return nil
	}
	now := s.now().UTC()
	block := &model.BlockedIP{
		IP:           ip,
		Reason:       reason,
		BlockedUntil: now.Add(duration),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.blocks.Upsert(ctx, block); err != nil {
		return err
	}
	s.log.Warn().
		Str("ip", ip).
		Str("reason", reason).
		Time("blocked_until", block.BlockedUntil).
		Msg("IP blocked")
	return nil
}

// QuarantineUser locks the account for duration and sets force_logout_after
// to now, which invalidates every outstanding session by issue-time
// comparison without needing a session registry.
func (s *ContainmentService) QuarantineUser(ctx context.Context, userID, reason string, duration time.Duration) error {
	if userID == "" {
		return nil
	}
	now := s.now().UTC()
	if err := s.users.Quarantine(ctx, userID, reason, now.Add(duration), now); err != nil {
		return err
	}
	s.log.Warn().
		Str("user_id", userID).
		Str("reason", reason).
		Dur("duration", duration).
		Msg("user quarantined")
	return nil
}
