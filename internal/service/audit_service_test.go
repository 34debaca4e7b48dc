package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threattrace/threattrace/internal/audit"
	"github.com/threattrace/threattrace/internal/logger"
	"github.com/threattrace/threattrace/internal/model"
	"github.com/threattrace/threattrace/internal/repository"
)

// memoryStore is an in-memory EventStore backed by a slice.
type memoryStore struct {
	mu        sync.Mutex
	events    []model.AuditEvent
	insertErr error
	latestErr error
}

func (m *memoryStore) Insert(ctx context.Context, e *model.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	e.Seq = int64(len(m.events) + 1)

	// Persist details the way the repository does: through a JSON column,
	// re-read with numbers kept as literals.
	stored := *e
	data, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	stored.Details = nil
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&stored.Details); err != nil {
		return err
	}

	m.events = append(m.events, stored)
	return nil
}

func (m *memoryStore) Latest(ctx context.Context) (*model.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	if len(m.events) == 0 {
		return nil, repository.ErrNotFound
	}
	last := m.events[len(m.events)-1]
	return &last, nil
}

func (m *memoryStore) List(ctx context.Context, f repository.ListFilter) ([]model.AuditEvent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AuditEvent, len(m.events))
	for i := range m.events {
		out[i] = m.events[len(m.events)-1-i]
	}
	return out, len(out), nil
}

func (m *memoryStore) ListAscending(ctx context.Context) ([]model.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AuditEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

type recordedEvaluation struct {
	action string
}

type fakeEvaluator struct {
	mu     sync.Mutex
	events []recordedEvaluation
	panics bool
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, e *model.AuditEvent) {
	if f.panics {
		panic("evaluator exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvaluation{action: e.Action})
}

func newAuditFixture() (*AuditService, *memoryStore, *fakeEvaluator, *fakeAlerts) {
	store := &memoryStore{}
	evaluator := &fakeEvaluator{}
	alerts := &fakeAlerts{}
	svc := NewAuditService(store, evaluator, alerts, logger.New("disabled", "json"))
	return svc, store, evaluator, alerts
}

func TestAuditService_Record(t *testing.T) {
	t.Run("first entry links to genesis", func(t *testing.T) {
		svc, store, _, _ := newAuditFixture()
		svc.Record(context.Background(), EventInput{
			Action:   model.ActionLoginAttempt,
			Status:   model.StatusFailed,
			Severity: model.SeverityMedium,
			Source:   "auth_api",
		})

		require.Len(t, store.events, 1)
		e := store.events[0]
		assert.Equal(t, model.GenesisHash, e.PrevHash)
		assert.Equal(t, audit.ChainHash(model.GenesisHash, &e), e.EventHash)
	})

	t.Run("event id and timestamp are filled in", func(t *testing.T) {
		svc, store, _, _ := newAuditFixture()
		fixed := time.Date(2026, 3, 14, 9, 26, 53, 589793123, time.UTC)
		svc.now = func() time.Time { return fixed }

		svc.Record(context.Background(), EventInput{Action: "x", Status: model.StatusSuccess})

		require.Len(t, store.events, 1)
		e := store.events[0]
		assert.Regexp(t, `^AUD-[0-9A-F]{14}$`, e.EventID)
		assert.Equal(t, audit.Truncate(fixed), e.Timestamp)
		assert.NotNil(t, e.Details)
	})

	t.Run("chain links across many entries", func(t *testing.T) {
		svc, store, _, _ := newAuditFixture()
		for i := 0; i < 25; i++ {
			svc.Record(context.Background(), EventInput{Action: "x", Status: model.StatusSuccess})
		}

		require.Len(t, store.events, 25)
		result := audit.VerifyChain(store.events)
		assert.True(t, result.OK)
		assert.Equal(t, 25, result.Checked)
	})

	t.Run("typed detail values verify after storage", func(t *testing.T) {
		// int64 past 2^53 and nested typed maps must hash the same before
		// and after the JSON column round trip.
		svc, store, _, _ := newAuditFixture()
		svc.Record(context.Background(), EventInput{
			Action: model.ActionExportSystemLogs,
			Status: model.StatusSuccess,
			Details: map[string]interface{}{
				"bytes_exported": int64(9007199254740993),
				"filters":        map[string]string{"severity": "high"},
			},
		})

		require.Len(t, store.events, 1)
		result := audit.VerifyChain(store.events)
		assert.True(t, result.OK, result.Problem)
	})

	t.Run("concurrent writers never fork the chain", func(t *testing.T) {
		svc, store, _, _ := newAuditFixture()
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				svc.Record(context.Background(), EventInput{Action: "x", Status: model.StatusSuccess})
			}()
		}
		wg.Wait()

		require.Len(t, store.events, 32)
		assert.True(t, audit.VerifyChain(store.events).OK)
	})

	t.Run("client provenance comes from context", func(t *testing.T) {
		svc, store, _, _ := newAuditFixture()
		ctx := WithClientInfo(context.Background(), "203.0.113.7", "curl/8.0")
		svc.Record(ctx, EventInput{Action: "x", Status: model.StatusSuccess})

		require.Len(t, store.events, 1)
		assert.Equal(t, "203.0.113.7", store.events[0].IP)
		assert.Equal(t, "curl/8.0", store.events[0].UserAgent)
	})

	t.Run("missing provenance falls back", func(t *testing.T) {
		svc, store, _, _ := newAuditFixture()
		svc.Record(context.Background(), EventInput{Action: "x", Status: model.StatusSuccess})

		require.Len(t, store.events, 1)
		assert.Equal(t, FallbackIP, store.events[0].IP)
	})

	t.Run("empty optional fields persist as nil", func(t *testing.T) {
		svc, store, _, _ := newAuditFixture()
		svc.Record(context.Background(), EventInput{
			Action: "x",
			Status: model.StatusSuccess,
			UserID: "user-1",
		})

		require.Len(t, store.events, 1)
		e := store.events[0]
		require.NotNil(t, e.UserID)
		assert.Equal(t, "user-1", *e.UserID)
		assert.Nil(t, e.Target)
		assert.Nil(t, e.Role)
	})

	t.Run("store failure is swallowed", func(t *testing.T) {
		svc, store, evaluator, _ := newAuditFixture()
		store.insertErr = errors.New("connection refused")

		assert.NotPanics(t, func() {
			svc.Record(context.Background(), EventInput{Action: "x", Status: model.StatusSuccess})
		})
		assert.Empty(t, evaluator.events)
	})

	t.Run("evaluator panic is absorbed", func(t *testing.T) {
		svc, store, evaluator, _ := newAuditFixture()
		evaluator.panics = true

		assert.NotPanics(t, func() {
			svc.Record(context.Background(), EventInput{Action: "x", Status: model.StatusSuccess})
		})
		// The entry was still written before the evaluator blew up.
		assert.Len(t, store.events, 1)
	})

	t.Run("evaluator sees the persisted event", func(t *testing.T) {
		svc, _, evaluator, _ := newAuditFixture()
		svc.Record(context.Background(), EventInput{Action: model.ActionDeleteAlert, Status: model.StatusSuccess})

		require.Len(t, evaluator.events, 1)
		assert.Equal(t, model.ActionDeleteAlert, evaluator.events[0].action)
	})
}

func TestAuditService_VerifyChain(t *testing.T) {
	t.Run("clean chain verifies", func(t *testing.T) {
		svc, _, _, alerts := newAuditFixture()
		for i := 0; i < 5; i++ {
			svc.Record(context.Background(), EventInput{Action: "x", Status: model.StatusSuccess})
		}

		result, err := svc.VerifyChain(context.Background())
		require.NoError(t, err)
		assert.True(t, result.OK)
		assert.Equal(t, 5, result.Checked)
		assert.Empty(t, alerts.alerts)
	})

	t.Run("tampering raises a critical alert", func(t *testing.T) {
		svc, store, _, alerts := newAuditFixture()
		for i := 0; i < 5; i++ {
			svc.Record(context.Background(), EventInput{Action: "x", Status: model.StatusSuccess})
		}
		store.events[2].Status = model.StatusFailed

		result, err := svc.VerifyChain(context.Background())
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Equal(t, store.events[2].Seq, result.BadSeq)

		require.Len(t, alerts.alerts, 1)
		assert.Equal(t, "Audit Trail Tampering Detected", alerts.alerts[0].title)
		assert.Equal(t, model.SeverityCritical, alerts.alerts[0].severity)
	})
}

func TestResolveClientIP(t *testing.T) {
	tests := []struct {
		name         string
		forwardedFor string
		realIP       string
		remoteAddr   string
		want         string
	}{
		{"first forwarded hop wins", "203.0.113.7, 10.0.0.1", "198.51.100.2", "10.0.0.2:443", "203.0.113.7"},
		{"real ip is second choice", "", "198.51.100.2", "10.0.0.2:443", "198.51.100.2"},
		{"remote addr loses its port", "", "", "127.0.0.1:5000", "127.0.0.1"},
		{"bracketed ipv6 loses its port", "", "", "[::1]:8080", "::1"},
		{"bare ipv6 stays intact", "", "", "::1", "::1"},
		{"whitespace forwarded entries are skipped", "  ", "198.51.100.2", "", "198.51.100.2"},
		{"everything empty falls back", "", "", "", FallbackIP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveClientIP(tt.forwardedFor, tt.realIP, tt.remoteAddr))
		})
	}
}
