package service

import (
	"context"
	"fmt"
	"time"

	"github.com/threattrace/threattrace/internal/config"
	"github.com/threattrace/threattrace/internal/logger"
	"github.com/threattrace/threattrace/internal/model"
	"github.com/threattrace/threattrace/internal/repository"
)

// EventCounter counts ledger entries matching a pattern window
type EventCounter interface {
	Count(ctx context.Context, f repository.CountFilter) (int, error)
}

// Containment applies automated defensive actions
type Containment interface {
	BlockIP(ctx context.Context, ip, reason string, duration time.Duration) error
	QuarantineUser(ctx context.Context, userID, reason string, duration time.Duration) error
}

// AlertEmitter dispatches anomaly notifications
type AlertEmitter interface {
	Emit(ctx context.Context, title, message, severity, source string)
}

const anomalySource = "security_audit"

// AnomalyService inspects the ledger's recent window after every recorded
// event and reacts to behavioral attack patterns. Each pattern counts
// matching persisted entries fresh on every call, so detection stays correct
// across restarts; the cooldown tracker only suppresses repeat reactions.
type AnomalyService struct {
	events      EventCounter
	containment Containment
	alerts      AlertEmitter
	cooldowns   *CooldownTracker
	cfg         config.AnomalyConfig
	log         *logger.Logger
	now         func() time.Time
}

// NewAnomalyService creates a new AnomalyService
func NewAnomalyService(
	events EventCounter,
	containment Containment,
	alerts AlertEmitter,
	cfg config.AnomalyConfig,
	log *logger.Logger,
) *AnomalyService {
	return &AnomalyService{
		events:      events,
		containment: containment,
		alerts:      alerts,
		cooldowns:   NewCooldownTracker(cfg.Cooldown, cfg.CooldownMaxEntries),
		cfg:         cfg,
		log:         log.WithComponent("anomaly_service"),
		now:         time.Now,
	}
}

// Evaluate runs every pattern check against the freshly written event.
// Checks are independent: one failing is logged and the rest still run.
func (s *AnomalyService) Evaluate(ctx context.Context, e *model.AuditEvent) {
	checks := []struct {
		name string
		fn   func(context.Context, *model.AuditEvent) error
	}{
		{"brute_force", s.checkBruteForce},
		{"mass_export", s.checkMassExport},
		{"permission_probing", s.checkPermissionProbing},
		{"destructive_burst", s.checkDestructiveBurst},
	}
	for _, check := range checks {
		if err := check.fn(ctx, e); err != nil {
			s.log.Error().Err(err).Str("pattern", check.name).Msg("anomaly check failed")
		}
	}
}

// checkBruteForce: repeated failed logins from one IP
func (s *AnomalyService) checkBruteForce(ctx context.Context, e *model.AuditEvent) error {
	if e.Action != model.ActionLoginAttempt || e.Status != model.StatusFailed || e.IP == "" {
		return nil
	}
	count, err := s.events.Count(ctx, repository.CountFilter{
		Actions: []string{model.ActionLoginAttempt},
		Status:  model.StatusFailed,
		IP:      e.IP,
		Since:   s.now().UTC().Add(-s.cfg.BruteForceWindow),
	})
	if err != nil {
		return err
	}
	if count < s.cfg.BruteForceThreshold || !s.cooldowns.Allow("bf:"+e.IP) {
		return nil
	}

	s.alerts.Emit(ctx,
		"Brute-force Pattern Detected",
		fmt.Sprintf("%d failed login attempts from IP %s in %s", count, e.IP, s.cfg.BruteForceWindow),
		model.SeverityCritical,
		anomalySource,
	)
	if err := s.containment.BlockIP(ctx, e.IP, model.ReasonBruteForce, s.cfg.BlockDuration); err != nil {
		s.log.Error().Err(err).Str("ip", e.IP).Msg("auto block failed")
	}
	return nil
}

// checkMassExport: many successful exports by one account
func (s *AnomalyService) checkMassExport(ctx context.Context, e *model.AuditEvent) error {
	if !contains(model.ExportActions, e.Action) || e.Status != model.StatusSuccess || e.UserID == nil {
		return nil
	}
	userID := *e.UserID
	count, err := s.events.Count(ctx, repository.CountFilter{
		Actions: model.ExportActions,
		Status:  model.StatusSuccess,
		UserID:  userID,
		Since:   s.now().UTC().Add(-s.cfg.MassExportWindow),
	})
	if err != nil {
		return err
	}
	if count < s.cfg.MassExportThreshold || !s.cooldowns.Allow("export:"+userID) {
		return nil
	}

	role := "unknown-role"
	if e.Role != nil {
		role = *e.Role
	}
	s.alerts.Emit(ctx,
		"Mass Data Export Activity",
		fmt.Sprintf("User %s (%s) executed %d exports in %s", userID, role, count, s.cfg.MassExportWindow),
		model.SeverityHigh,
		anomalySource,
	)
	if err := s.containment.QuarantineUser(ctx, userID, model.ReasonMassExport, s.cfg.QuarantineDuration); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("auto quarantine failed")
	}
	return nil
}

// checkPermissionProbing: repeated authorization denials from one IP
func (s *AnomalyService) checkPermissionProbing(ctx context.Context, e *model.AuditEvent) error {
	if e.Action != model.ActionAuthorizationDenied || e.IP == "" {
		return nil
	}
	count, err := s.events.Count(ctx, repository.CountFilter{
		Actions: []string{model.ActionAuthorizationDenied},
		IP:      e.IP,
		Since:   s.now().UTC().Add(-s.cfg.ProbingWindow),
	})
	if err != nil {
		return err
	}
	if count < s.cfg.ProbingThreshold || !s.cooldowns.Allow("denied:"+e.IP) {
		return nil
	}

	s.alerts.Emit(ctx,
		"Permission-Probing Activity",
		fmt.Sprintf("%d authorization denials from IP %s in %s", count, e.IP, s.cfg.ProbingWindow),
		model.SeverityHigh,
		anomalySource,
	)
	if err := s.containment.BlockIP(ctx, e.IP, model.ReasonPermissionProbing, s.cfg.BlockDuration); err != nil {
		s.log.Error().Err(err).Str("ip", e.IP).Msg("auto block failed")
	}
	return nil
}

// checkDestructiveBurst: clustered destructive alert operations by one account
func (s *AnomalyService) checkDestructiveBurst(ctx context.Context, e *model.AuditEvent) error {
	if !contains(model.DestructiveActions, e.Action) || e.Status != model.StatusSuccess || e.UserID == nil {
		return nil
	}
	userID := *e.UserID
	count, err := s.events.Count(ctx, repository.CountFilter{
		Actions: model.DestructiveActions,
		Status:  model.StatusSuccess,
		UserID:  userID,
		Since:   s.now().UTC().Add(-s.cfg.DestructiveWindow),
	})
	if err != nil {
		return err
	}
	if count < s.cfg.DestructiveThreshold || !s.cooldowns.Allow("destructive:"+userID) {
		return nil
	}

	s.alerts.Emit(ctx,
		"High-Risk Alert Manipulation Burst",
		fmt.Sprintf("User %s performed %d destructive alert actions in %s", userID, count, s.cfg.DestructiveWindow),
		model.SeverityCritical,
		anomalySource,
	)
	if err := s.containment.QuarantineUser(ctx, userID, model.ReasonDestructiveBurst, s.cfg.QuarantineDuration); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("auto quarantine failed")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
