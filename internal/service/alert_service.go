package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/threattrace/threattrace/internal/config"
	"github.com/threattrace/threattrace/internal/database"
	"github.com/threattrace/threattrace/internal/email"
	"github.com/threattrace/threattrace/internal/logger"
	"github.com/threattrace/threattrace/internal/model"
)

// AlertSink persists emitted alerts
type AlertSink interface {
	Create(ctx context.Context, a *model.Alert) error
}

// AlertService is the unified alert dispatcher: every anomaly notification
// flows through Emit, which fans out to persistent storage, the real-time
// Redis channel, and (for high/critical) the admin mailbox. The three
// deliveries are independent; one failing never stops the others.
type AlertService struct {
	store  AlertSink
	rdb    *database.Redis
	sender email.Sender
	cfg    config.AlertsConfig
	log    *logger.Logger
	now    func() time.Time
}

// NewAlertService creates a new AlertService. rdb and sender may be nil,
// which disables the corresponding delivery channel.
func NewAlertService(store AlertSink, rdb *database.Redis, sender email.Sender, cfg config.AlertsConfig, log *logger.Logger) *AlertService {
	return &AlertService{
		store:  store,
		rdb:    rdb,
		sender: sender,
		cfg:    cfg,
		log:    log.WithComponent("alert_service"),
		now:    time.Now,
	}
}

// Emit dispatches an alert through every configured channel, best-effort
func (s *AlertService) Emit(ctx context.Context, title, message, severity, source string) {
	alert := &model.Alert{
		ID:        generateID("ALT"),
		Title:     title,
		Message:   message,
		Severity:  severity,
		Source:    source,
		Timestamp: s.now().UTC(),
	}

	if s.store != nil {
		if err := s.store.Create(ctx, alert); err != nil {
			s.log.Error().Err(err).Str("title", title).Msg("failed to store alert")
		}
	}

	s.publish(ctx, alert)

	if severity == model.SeverityHigh || severity == model.SeverityCritical {
		s.email(ctx, alert)
	}

	s.log.Info().
		Str("alert_id", alert.ID).
		Str("title", title).
		Str("severity", severity).
		Str("source", source).
		Msg("alert emitted")
}

// Subscribe returns a channel of alerts published on the real-time channel,
// for WebSocket/feed delivery layers. The cleanup func closes the
// subscription.
func (s *AlertService) Subscribe(ctx context.Context) (<-chan model.Alert, func(), error) {
	if s.rdb == nil {
		return nil, nil, fmt.Errorf("realtime alert channel not configured")
	}

	pubsub := s.rdb.Subscribe(ctx, s.cfg.Channel)
	alertCh := make(chan model.Alert, 100)

	go func() {
		defer close(alertCh)
		ch := pubsub.Channel()
		for msg := range ch {
			var alert model.Alert
			if err := json.Unmarshal([]byte(msg.Payload), &alert); err != nil {
				s.log.Error().Err(err).Msg("failed to unmarshal alert")
				continue
			}
			select {
			case alertCh <- alert:
			default:
				s.log.Warn().Msg("alert channel full, dropping alert")
			}
		}
	}()

	cleanup := func() {
		pubsub.Close()
	}

	return alertCh, cleanup, nil
}

func (s *AlertService) publish(ctx context.Context, alert *model.Alert) {
	if s.rdb == nil {
		s.log.Debug().Msg("realtime alert channel not configured, skipping")
		return
	}
	data, err := json.Marshal(alert)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal alert")
		return
	}
	if err := s.rdb.Publish(ctx, s.cfg.Channel, string(data)); err != nil {
		s.log.Error().Err(err).Str("channel", s.cfg.Channel).Msg("failed to publish alert")
	}
}

func (s *AlertService) email(ctx context.Context, alert *model.Alert) {
	if s.sender == nil || s.cfg.Email.AdminAddress == "" {
		return
	}
	msg := email.Message{
		To:       s.cfg.Email.AdminAddress,
		Subject:  fmt.Sprintf("[ThreatTrace %s] %s", strings.ToUpper(alert.Severity), alert.Title),
		TextBody: email.SecurityAlertText(alert.Title, alert.Message, alert.Severity, alert.Source, alert.Timestamp),
		HTMLBody: email.SecurityAlertHTML(alert.Title, alert.Message, alert.Severity, alert.Source, alert.Timestamp),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to send alert email")
	}
}

// generateID returns a prefixed uppercase-hex identifier, e.g.
// AUD-3F21C09A7B44D1
func generateID(prefix string) string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return fmt.Sprintf("%s-%s", prefix, hex[:14])
}
