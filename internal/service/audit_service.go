package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/threattrace/threattrace/internal/audit"
	"github.com/threattrace/threattrace/internal/logger"
	"github.com/threattrace/threattrace/internal/model"
	"github.com/threattrace/threattrace/internal/repository"
)

// FallbackIP is recorded when no client address can be resolved
const FallbackIP = "0.0.0.0"

// EventStore persists and queries the append-only audit trail
type EventStore interface {
	Insert(ctx context.Context, e *model.AuditEvent) error
	Latest(ctx context.Context) (*model.AuditEvent, error)
	List(ctx context.Context, f repository.ListFilter) ([]model.AuditEvent, int, error)
	ListAscending(ctx context.Context) ([]model.AuditEvent, error)
}

// Evaluator is run synchronously against every freshly written event
type Evaluator interface {
	Evaluate(ctx context.Context, e *model.AuditEvent)
}

// EventInput is what callers provide to Record; everything else (id,
// timestamp, client provenance, chain hashes) is filled in by the service.
type EventInput struct {
	Action   string
	Status   string
	Severity string
	Source   string
	Target   string
	UserID   string
	Role     string
	Details  map[string]interface{}
}

// AuditService is the audit ledger's single entry point. Every
// security-relevant operation calls Record; the service chains the entry to
// its predecessor, persists it, and hands it to the anomaly evaluator.
type AuditService struct {
	store     EventStore
	evaluator Evaluator
	alerts    AlertEmitter
	log       *logger.Logger
	now       func() time.Time

	// chainMu serializes read-prev/hash/append so two concurrent writers can
	// never both chain onto the same predecessor. This is the one invariant
	// the whole tamper-evidence guarantee rests on.
	chainMu sync.Mutex
}

// NewAuditService creates a new AuditService. evaluator and alerts may be
// nil (evaluation / tamper alerts disabled).
func NewAuditService(store EventStore, evaluator Evaluator, alerts AlertEmitter, log *logger.Logger) *AuditService {
	return &AuditService{
		store:     store,
		evaluator: evaluator,
		alerts:    alerts,
		log:       log.WithComponent("audit_service"),
		now:       time.Now,
	}
}

// Record appends a security event to the hash chain. Best-effort by
// contract: it never fails the calling operation. Every error, and even a
// panic in a downstream check, is logged and absorbed so the primary
// operation stays available.
func (s *AuditService) Record(ctx context.Context, in EventInput) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error().Interface("panic", p).Str("action", in.Action).Msg("security audit record panicked")
		}
	}()

	event, err := s.append(ctx, in)
	if err != nil {
		s.log.Error().Err(err).Str("action", in.Action).Msg("security audit record failed")
		return
	}

	s.log.SecurityEvent(event.EventID, event.Action, event.Status, event.IP)

	if s.evaluator != nil {
		s.evaluator.Evaluate(ctx, event)
	}
}

// append does the chained write under the chain mutex
func (s *AuditService) append(ctx context.Context, in EventInput) (*model.AuditEvent, error) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	prevHash := model.GenesisHash
	prev, err := s.store.Latest(ctx)
	if err == nil {
		prevHash = prev.EventHash
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	ip, userAgent := ClientInfoFrom(ctx)

	event := &model.AuditEvent{
		EventID:   generateID("AUD"),
		Timestamp: audit.Truncate(s.now()),
		Action:    in.Action,
		Status:    in.Status,
		Severity:  in.Severity,
		Source:    in.Source,
		Target:    optional(in.Target),
		UserID:    optional(in.UserID),
		Role:      optional(in.Role),
		IP:        ip,
		UserAgent: userAgent,
		Details:   audit.NormalizeDetails(in.Details),
		PrevHash:  prevHash,
	}
	event.EventHash = audit.ChainHash(prevHash, event)

	if err := s.store.Insert(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// List retrieves audit trail entries, newest first
func (s *AuditService) List(ctx context.Context, f repository.ListFilter) ([]model.AuditEvent, int, error) {
	return s.store.List(ctx, f)
}

// VerifyChain recomputes the whole chain and reports the first entry whose
// stored state no longer matches. Tampering raises a critical alert; this is
// the one failure the subsystem refuses to stay quiet about.
func (s *AuditService) VerifyChain(ctx context.Context) (audit.VerifyResult, error) {
	events, err := s.store.ListAscending(ctx)
	if err != nil {
		return audit.VerifyResult{}, err
	}

	result := audit.VerifyChain(events)
	if !result.OK && s.alerts != nil {
		s.alerts.Emit(ctx,
			"Audit Trail Tampering Detected",
			"hash chain mismatch at event "+result.BadEvent+": "+result.Problem,
			model.SeverityCritical,
			anomalySource,
		)
	}
	return result, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// --- request client info ---

type clientInfoKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClientInfo attaches the resolved client address and user agent to ctx.
// The HTTP middleware calls this once per request; Record reads it back so
// every event carries its network provenance.
func WithClientInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

// ClientInfoFrom extracts client provenance from ctx, falling back to
// FallbackIP for non-request contexts (cron jobs, startup checks).
func ClientInfoFrom(ctx context.Context) (ip, userAgent string) {
	info, ok := ctx.Value(clientInfoKey{}).(clientInfo)
	if !ok || info.ip == "" {
		return FallbackIP, info.userAgent
	}
	return info.ip, info.userAgent
}

// ResolveClientIP picks the client address the way the edge proxies present
// it: first hop of X-Forwarded-For, then X-Real-IP, then the transport
// address, then the fixed fallback.
func ResolveClientIP(forwardedFor, realIP, remoteAddr string) string {
	if first := strings.TrimSpace(strings.SplitN(forwardedFor, ",", 2)[0]); first != "" {
		return first
	}
	if realIP = strings.TrimSpace(realIP); realIP != "" {
		return realIP
	}
	if host := stripPort(remoteAddr); host != "" {
		return host
	}
	return FallbackIP
}

func stripPort(addr string) string {
	if i := strings.LastIndex(addr, ":"); i > 0 && !strings.Contains(addr[i:], "]") {
		// Keep bare IPv6 addresses intact; "[::1]:8080" loses its port,
		// "::1" stays untouched.
		if strings.Count(addr, ":") == 1 || strings.HasPrefix(addr, "[") {
			addr = addr[:i]
		}
	}
	return strings.Trim(addr, "[]")
}
