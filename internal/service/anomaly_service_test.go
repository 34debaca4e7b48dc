package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threattrace/threattrace/internal/config"
	"github.com/threattrace/threattrace/internal/logger"
	"github.com/threattrace/threattrace/internal/model"
	"github.com/threattrace/threattrace/internal/repository"
)

type fakeCounter struct {
	counts  map[string]int
	err     error
	filters []repository.CountFilter
}

func (f *fakeCounter) Count(ctx context.Context, filter repository.CountFilter) (int, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return 0, f.err
	}
	key := ""
	if len(filter.Actions) > 0 {
		key = filter.Actions[0]
	}
	return f.counts[key], nil
}

type containmentCall struct {
	kind     string
	subject  string
	reason   string
	duration time.Duration
}

type fakeContainment struct {
	calls []containmentCall
	err   error
}

func (f *fakeContainment) BlockIP(ctx context.Context, ip, reason string, duration time.Duration) error {
	f.calls = append(f.calls, containmentCall{"block", ip, reason, duration})
	return f.err
}

func (f *fakeContainment) QuarantineUser(ctx context.Context, userID, reason string, duration time.Duration) error {
	f.calls = append(f.calls, containmentCall{"quarantine", userID, reason, duration})
	return f.err
}

type emittedAlert struct {
	title    string
	severity string
	source   string
}

type fakeAlerts struct {
	alerts []emittedAlert
}

func (f *fakeAlerts) Emit(ctx context.Context, title, message, severity, source string) {
	f.alerts = append(f.alerts, emittedAlert{title, severity, source})
}

func anomalyTestConfig() config.AnomalyConfig {
	return config.AnomalyConfig{
		Cooldown:             10 * time.Minute,
		CooldownMaxEntries:   64,
		BlockDuration:        30 * time.Minute,
		QuarantineDuration:   30 * time.Minute,
		BruteForceThreshold:  8,
		BruteForceWindow:     10 * time.Minute,
		MassExportThreshold:  5,
		MassExportWindow:     15 * time.Minute,
		ProbingThreshold:     6,
		ProbingWindow:        10 * time.Minute,
		DestructiveThreshold: 3,
		DestructiveWindow:    10 * time.Minute,
	}
}

func newAnomalyFixture(counts map[string]int) (*AnomalyService, *fakeCounter, *fakeContainment, *fakeAlerts) {
	counter := &fakeCounter{counts: counts}
	containment := &fakeContainment{}
	alerts := &fakeAlerts{}
	svc := NewAnomalyService(counter, containment, alerts, anomalyTestConfig(), logger.New("disabled", "json"))
	return svc, counter, containment, alerts
}

func failedLogin(ip string) *model.AuditEvent {
	return &model.AuditEvent{
		Action: model.ActionLoginAttempt,
		Status: model.StatusFailed,
		IP:     ip,
	}
}

func TestAnomalyService_BruteForce(t *testing.T) {
	t.Run("below threshold does nothing", func(t *testing.T) {
		svc, _, containment, alerts := newAnomalyFixture(map[string]int{model.ActionLoginAttempt: 7})
		svc.Evaluate(context.Background(), failedLogin("203.0.113.7"))
		assert.Empty(t, containment.calls)
		assert.Empty(t, alerts.alerts)
	})

	t.Run("at threshold blocks and alerts", func(t *testing.T) {
		svc, counter, containment, alerts := newAnomalyFixture(map[string]int{model.ActionLoginAttempt: 8})
		svc.Evaluate(context.Background(), failedLogin("203.0.113.7"))

		require.Len(t, containment.calls, 1)
		call := containment.calls[0]
		assert.Equal(t, "block", call.kind)
		assert.Equal(t, "203.0.113.7", call.subject)
		assert.Equal(t, model.ReasonBruteForce, call.reason)
		assert.Equal(t, 30*time.Minute, call.duration)

		require.Len(t, alerts.alerts, 1)
		assert.Equal(t, "Brute-force Pattern Detected", alerts.alerts[0].title)
		assert.Equal(t, model.SeverityCritical, alerts.alerts[0].severity)
		assert.Equal(t, "security_audit", alerts.alerts[0].source)

		// The count window is anchored to the pattern window, not the event.
		require.NotEmpty(t, counter.filters)
		assert.Equal(t, model.StatusFailed, counter.filters[0].Status)
		assert.Equal(t, "203.0.113.7", counter.filters[0].IP)
	})

	t.Run("cooldown suppresses the repeat trigger", func(t *testing.T) {
		svc, _, containment, alerts := newAnomalyFixture(map[string]int{model.ActionLoginAttempt: 8})
		svc.Evaluate(context.Background(), failedLogin("203.0.113.7"))
		svc.Evaluate(context.Background(), failedLogin("203.0.113.7"))

		assert.Len(t, containment.calls, 1)
		assert.Len(t, alerts.alerts, 1)
	})

	t.Run("cooldown expiry re-arms the pattern", func(t *testing.T) {
		svc, _, containment, _ := newAnomalyFixture(map[string]int{model.ActionLoginAttempt: 8})
		current := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return current }
		svc.cooldowns.now = svc.now

		svc.Evaluate(context.Background(), failedLogin("203.0.113.7"))
		svc.Evaluate(context.Background(), failedLogin("203.0.113.7"))
		require.Len(t, containment.calls, 1)

		current = current.Add(11 * time.Minute)
		svc.Evaluate(context.Background(), failedLogin("203.0.113.7"))
		assert.Len(t, containment.calls, 2)
	})

	t.Run("distinct IPs trigger independently", func(t *testing.T) {
		svc, _, containment, _ := newAnomalyFixture(map[string]int{model.ActionLoginAttempt: 8})
		svc.Evaluate(context.Background(), failedLogin("203.0.113.7"))
		svc.Evaluate(context.Background(), failedLogin("203.0.113.8"))
		assert.Len(t, containment.calls, 2)
	})

	t.Run("successful login is ignored", func(t *testing.T) {
		svc, counter, _, _ := newAnomalyFixture(map[string]int{model.ActionLoginAttempt: 100})
		e := failedLogin("203.0.113.7")
		e.Status = model.StatusSuccess
		svc.Evaluate(context.Background(), e)
		assert.Empty(t, counter.filters)
	})
}

func TestAnomalyService_MassExport(t *testing.T) {
	userID := "user-1"
	role := "supervisor"
	exportEvent := &model.AuditEvent{
		Action: model.ActionExportSystemLogs,
		Status: model.StatusSuccess,
		UserID: &userID,
		Role:   &role,
		IP:     "203.0.113.7",
	}

	t.Run("at threshold quarantines the account", func(t *testing.T) {
		svc, _, containment, alerts := newAnomalyFixture(map[string]int{model.ActionExportSystemLogs: 5})
		svc.Evaluate(context.Background(), exportEvent)

		require.Len(t, containment.calls, 1)
		assert.Equal(t, "quarantine", containment.calls[0].kind)
		assert.Equal(t, userID, containment.calls[0].subject)
		assert.Equal(t, model.ReasonMassExport, containment.calls[0].reason)

		require.Len(t, alerts.alerts, 1)
		assert.Equal(t, "Mass Data Export Activity", alerts.alerts[0].title)
		assert.Equal(t, model.SeverityHigh, alerts.alerts[0].severity)
	})

	t.Run("counts every export action variant", func(t *testing.T) {
		svc, counter, _, _ := newAnomalyFixture(map[string]int{model.ActionExportSystemLogs: 5})
		svc.Evaluate(context.Background(), exportEvent)
		require.NotEmpty(t, counter.filters)
		assert.Equal(t, model.ExportActions, counter.filters[0].Actions)
	})

	t.Run("anonymous export is ignored", func(t *testing.T) {
		svc, counter, _, _ := newAnomalyFixture(map[string]int{model.ActionExportSystemLogs: 100})
		anonymous := *exportEvent
		anonymous.UserID = nil
		svc.Evaluate(context.Background(), &anonymous)
		assert.Empty(t, counter.filters)
	})
}

func TestAnomalyService_PermissionProbing(t *testing.T) {
	denied := &model.AuditEvent{
		Action: model.ActionAuthorizationDenied,
		Status: model.StatusDenied,
		IP:     "203.0.113.7",
	}

	t.Run("at threshold blocks the IP", func(t *testing.T) {
		svc, _, containment, alerts := newAnomalyFixture(map[string]int{model.ActionAuthorizationDenied: 6})
		svc.Evaluate(context.Background(), denied)

		require.Len(t, containment.calls, 1)
		assert.Equal(t, "block", containment.calls[0].kind)
		assert.Equal(t, model.ReasonPermissionProbing, containment.calls[0].reason)

		require.Len(t, alerts.alerts, 1)
		assert.Equal(t, "Permission-Probing Activity", alerts.alerts[0].title)
		assert.Equal(t, model.SeverityHigh, alerts.alerts[0].severity)
	})

	t.Run("below threshold does nothing", func(t *testing.T) {
		svc, _, containment, _ := newAnomalyFixture(map[string]int{model.ActionAuthorizationDenied: 5})
		svc.Evaluate(context.Background(), denied)
		assert.Empty(t, containment.calls)
	})
}

func TestAnomalyService_DestructiveBurst(t *testing.T) {
	userID := "user-1"
	deletion := &model.AuditEvent{
		Action: model.ActionDeleteAlert,
		Status: model.StatusSuccess,
		UserID: &userID,
		IP:     "203.0.113.7",
	}

	t.Run("at threshold quarantines the account", func(t *testing.T) {
		svc, counter, containment, alerts := newAnomalyFixture(map[string]int{model.ActionDeleteAlert: 3})
		svc.Evaluate(context.Background(), deletion)

		require.Len(t, containment.calls, 1)
		assert.Equal(t, "quarantine", containment.calls[0].kind)
		assert.Equal(t, model.ReasonDestructiveBurst, containment.calls[0].reason)

		require.Len(t, alerts.alerts, 1)
		assert.Equal(t, "High-Risk Alert Manipulation Burst", alerts.alerts[0].title)
		assert.Equal(t, model.SeverityCritical, alerts.alerts[0].severity)

		require.NotEmpty(t, counter.filters)
		assert.Equal(t, model.DestructiveActions, counter.filters[0].Actions)
	})
}

func TestAnomalyService_Evaluate_ErrorIsolation(t *testing.T) {
	t.Run("count failure does not panic or contain", func(t *testing.T) {
		counter := &fakeCounter{err: errors.New("connection refused")}
		containment := &fakeContainment{}
		alerts := &fakeAlerts{}
		svc := NewAnomalyService(counter, containment, alerts, anomalyTestConfig(), logger.New("disabled", "json"))

		svc.Evaluate(context.Background(), failedLogin("203.0.113.7"))
		assert.Empty(t, containment.calls)
		assert.Empty(t, alerts.alerts)
	})

	t.Run("containment failure still emits the alert", func(t *testing.T) {
		counter := &fakeCounter{counts: map[string]int{model.ActionLoginAttempt: 8}}
		containment := &fakeContainment{err: errors.New("connection refused")}
		alerts := &fakeAlerts{}
		svc := NewAnomalyService(counter, containment, alerts, anomalyTestConfig(), logger.New("disabled", "json"))

		svc.Evaluate(context.Background(), failedLogin("203.0.113.7"))
		assert.Len(t, alerts.alerts, 1)
	})
}
