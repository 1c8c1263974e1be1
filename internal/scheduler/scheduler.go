// Package scheduler runs the bot's periodic background work: a database
// heartbeat, retention cleanup and per-group reminder dispatch. Each loop is
// supervised independently; a panic or error in one iteration never stops
// the loop or its siblings.
package scheduler

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"telegram-feedback-bot/internal/storage"
)

// Config defines fields parsed from environment variables
type Config struct {
	HeartbeatSeconds int `env:"HEARTBEAT_INTERVAL_SECONDS" envDefault:"600"`
	CleanupSeconds   int `env:"CLEANUP_INTERVAL_SECONDS" envDefault:"3600"`
	ReminderMinutes  int `env:"REMINDER_INTERVAL_MINUTES" envDefault:"120"`
	RetentionDays    int `env:"RETENTION_DAYS" envDefault:"5"`
}

// Store is the storage surface the loops drive
type Store interface {
	Heartbeat(ctx context.Context) error
	Reconnect(ctx context.Context) error
	CleanupOldFeedback(ctx context.Context, days int) (int64, error)
	DueReminders(ctx context.Context, intervalMinutes int) ([]storage.DueReminder, error)
	MarkReminderSent(ctx context.Context, groupID int64) error
}

// Sender sends outbound Telegram messages. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// reminderTick is how often the dispatch loop looks for due reminders,
// independent of the configured reminder interval
const reminderTick = time.Minute

type Scheduler struct {
	logger *zap.SugaredLogger
	store  Store
	sender Sender
	cfg    Config

	heartbeatEvery time.Duration
	cleanupEvery   time.Duration
	reminderEvery  time.Duration
}

func New(logger *zap.SugaredLogger, store Store, sender Sender, cfg Config) *Scheduler {
	return &Scheduler{
		logger: logger,
		store:  store,
		sender: sender,
		cfg:    cfg,

		heartbeatEvery: time.Duration(cfg.HeartbeatSeconds) * time.Second,
		cleanupEvery:   time.Duration(cfg.CleanupSeconds) * time.Second,
		reminderEvery:  reminderTick,
	}
}

// Start launches the three loops. They run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.supervise(ctx, "heartbeat", s.heartbeatEvery, s.heartbeat)
	go s.supervise(ctx, "cleanup", s.cleanupEvery, s.cleanup)
	go s.supervise(ctx, "reminders", s.reminderEvery, s.dispatchReminders)
}

// supervise runs one iteration, absorbs any panic, then sleeps until the
// next tick. Restart-on-crash therefore costs one interval at most.
func (s *Scheduler) supervise(ctx context.Context, name string, every time.Duration, iterate func(context.Context)) {
	for {
		s.runIsolated(name, ctx, iterate)

		select {
		case <-ctx.Done():
			return
		case <-time.After(every):
		}
	}
}

func (s *Scheduler) runIsolated(name string, ctx context.Context, iterate func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("%s loop panicked: %v", name, r)
		}
	}()
	iterate(ctx)
}

func (s *Scheduler) heartbeat(ctx context.Context) {
	if err := s.store.Heartbeat(ctx); err != nil {
		s.logger.Warnf("Heartbeat failed: %v", err)
		if err := s.store.Reconnect(ctx); err != nil {
			s.logger.Errorf("DB reconnect failed: %v", err)
		}
		return
	}
	s.logger.Debug("DB heartbeat OK")
}

func (s *Scheduler) cleanup(ctx context.Context) {
	removed, err := s.store.CleanupOldFeedback(ctx, s.cfg.RetentionDays)
	if err != nil {
		s.logger.Warnf("Cleanup error: %v", err)
		return
	}
	s.logger.Infof("Cleanup: removed %d logs older than %d days", removed, s.cfg.RetentionDays)
}

// dispatchReminders sends every due reminder. A failed send is logged and
// skipped; the rest of the batch still goes out, and last_sent is only
// stamped after a successful send.
func (s *Scheduler) dispatchReminders(ctx context.Context) {
	due, err := s.store.DueReminders(ctx, s.cfg.ReminderMinutes)
	if err != nil {
		s.logger.Warnf("Reminder lookup failed: %v", err)
		return
	}

	for _, r := range due {
		msg := tgbotapi.NewMessage(r.GroupID, fmt.Sprintf("⏰ Reminder: %s", r.Text))
		if _, err := s.sender.Send(msg); err != nil {
			s.logger.Warnf("Failed to send reminder to %d: %v", r.GroupID, err)
			continue
		}
		if err := s.store.MarkReminderSent(ctx, r.GroupID); err != nil {
			s.logger.Warnf("Failed to mark reminder sent for %d: %v", r.GroupID, err)
		}
	}
}
