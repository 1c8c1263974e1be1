package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"telegram-feedback-bot/internal/storage"
)

type fakeStore struct {
	mu sync.Mutex

	heartbeatErr error
	reconnects   int

	cleanupDays []int

	due        []storage.DueReminder
	dueErr     error
	marked     []int64
	iterations int
	panicOnce  bool
}

func (s *fakeStore) Heartbeat(context.Context) error {
	return s.heartbeatErr
}

func (s *fakeStore) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *fakeStore) CleanupOldFeedback(_ context.Context, days int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupDays = append(s.cleanupDays, days)
	return 3, nil
}

func (s *fakeStore) DueReminders(_ context.Context, _ int) ([]storage.DueReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations++
	if s.panicOnce {
		s.panicOnce = false
		panic("broken batch")
	}
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	return s.due, nil
}

func (s *fakeStore) MarkReminderSent(_ context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, groupID)
	return nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	failFor int64
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg := c.(tgbotapi.MessageConfig)
	if msg.ChatID == f.failFor {
		return tgbotapi.Message{}, errors.New("chat unreachable")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func bootstrap(t *testing.T) (*Scheduler, *fakeStore, *fakeSender) {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	store := &fakeStore{}
	sender := &fakeSender{}
	s := New(logger.Sugar(), store, sender, Config{
		HeartbeatSeconds: 600,
		CleanupSeconds:   3600,
		ReminderMinutes:  120,
		RetentionDays:    5,
	})
	return s, store, sender
}

func TestHeartbeatHealthy(t *testing.T) {
	t.Parallel()

	s, store, _ := bootstrap(t)
	s.heartbeat(context.Background())
	require.Zero(t, store.reconnects)
}

func TestHeartbeatFailureTriggersReconnect(t *testing.T) {
	t.Parallel()

	s, store, _ := bootstrap(t)
	store.heartbeatErr = errors.New("conn closed")

	s.heartbeat(context.Background())
	require.Equal(t, 1, store.reconnects)
}

func TestCleanupUsesRetentionDays(t *testing.T) {
	t.Parallel()

	s, store, _ := bootstrap(t)
	s.cleanup(context.Background())
	require.Equal(t, []int{5}, store.cleanupDays)
}

func TestDispatchRemindersSendsAndMarks(t *testing.T) {
	t.Parallel()

	s, store, sender := bootstrap(t)
	store.due = []storage.DueReminder{
		{GroupID: -100, GroupName: "a", Text: "post your updates"},
		{GroupID: -200, GroupName: "b", Text: "standup time"},
	}

	s.dispatchReminders(context.Background())

	require.Len(t, sender.sent, 2)
	require.Equal(t, "⏰ Reminder: post your updates", sender.sent[0].Text)
	require.Equal(t, int64(-100), sender.sent[0].ChatID)
	require.Equal(t, []int64{-100, -200}, store.marked)
}

func TestDispatchRemindersSkipsFailedSend(t *testing.T) {
	t.Parallel()

	s, store, sender := bootstrap(t)
	store.due = []storage.DueReminder{
		{GroupID: -100, Text: "first"},
		{GroupID: -200, Text: "second"},
		{GroupID: -300, Text: "third"},
	}
	sender.failFor = -200

	s.dispatchReminders(context.Background())

	// the failed group is neither sent nor marked, the rest proceed
	require.Len(t, sender.sent, 2)
	require.Equal(t, []int64{-100, -300}, store.marked)
}

func TestDispatchRemindersLookupError(t *testing.T) {
	t.Parallel()

	s, store, sender := bootstrap(t)
	store.dueErr = errors.New("db down")

	s.dispatchReminders(context.Background())

	require.Empty(t, sender.sent)
	require.Empty(t, store.marked)
}

func TestSuperviseRecoversPanics(t *testing.T) {
	t.Parallel()

	s, store, _ := bootstrap(t)
	store.panicOnce = true
	s.reminderEvery = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.supervise(ctx, "reminders", s.reminderEvery, s.dispatchReminders)

	store.mu.Lock()
	iterations := store.iterations
	store.mu.Unlock()
	require.Greater(t, iterations, 1)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	s, store, _ := bootstrap(t)
	s.heartbeatEvery = time.Millisecond
	s.cleanupEvery = time.Millisecond
	s.reminderEvery = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	store.mu.Lock()
	cleanups := len(store.cleanupDays)
	store.mu.Unlock()
	require.Greater(t, cleanups, 1)
}