package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mytesting "telegram-feedback-bot/internal/testing"
)

func bootstrap(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	s, err := New(context.Background(), logger.Sugar(), Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func seedGroup(t *testing.T, s *Store) int64 {
	t.Helper()

	gid := mytesting.RandGroupID()
	require.NoError(t, s.AddGroup(context.Background(), gid, mytesting.RandString()))
	return gid
}

func seedFeedback(t *testing.T, s *Store, gid int64, f Feedback) Feedback {
	t.Helper()

	if f.UserID == 0 {
		f.UserID = mytesting.RandUserID()
	}
	if f.DisplayName == "" {
		f.DisplayName = mytesting.RandString()
	}
	f.GroupID = gid
	require.NoError(t, s.LogFeedback(context.Background(), f))
	return f
}

func TestAddGroupIdempotent(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := mytesting.RandGroupID()
	require.NoError(t, s.AddGroup(ctx, gid, "first name"))
	require.NoError(t, s.AddGroup(ctx, gid, "second name"))

	g, err := s.Group(ctx, gid)
	require.NoError(t, err)
	require.Equal(t, "second name", g.Name)

	ok, err := s.IsGroupAuthorized(ctx, gid)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsGroupAuthorizedUnknown(t *testing.T) {
	s := bootstrap(t)

	ok, err := s.IsGroupAuthorized(context.Background(), mytesting.RandGroupID())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLogFeedbackUnknownGroup(t *testing.T) {
	s := bootstrap(t)

	err := s.LogFeedback(context.Background(), Feedback{
		UserID:      mytesting.RandUserID(),
		DisplayName: "nobody",
		GroupID:     mytesting.RandGroupID(),
	})
	require.Equal(t, ErrGroupNotAuthorized, err)
}

func TestFeedbackRoundTrip(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)
	f := seedFeedback(t, s, gid, Feedback{Username: "Tester", MessageLink: "https://t.me/c/1/2"})

	events, err := s.FeedbackSince(ctx, gid, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, f.UserID, events[0].UserID)
	require.Equal(t, "Tester", events[0].Username)
	require.Equal(t, "https://t.me/c/1/2", events[0].MessageLink)
}

func TestFeedbackSinceWindowBoundaries(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)
	seedFeedback(t, s, gid, Feedback{})

	// the store performs no clamping: zero and negative windows are empty
	events, err := s.FeedbackSince(ctx, gid, 0)
	require.NoError(t, err)
	require.Empty(t, events)

	events, err = s.FeedbackSince(ctx, gid, -7)
	require.NoError(t, err)
	require.Empty(t, events)

	events, err = s.FeedbackSince(ctx, gid, 100000)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestFeedbackSinceNewestFirst(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)
	now := time.Now().UTC()
	seedFeedback(t, s, gid, Feedback{TS: now.Add(-2 * time.Hour)})
	seedFeedback(t, s, gid, Feedback{TS: now.Add(-1 * time.Hour)})
	seedFeedback(t, s, gid, Feedback{TS: now.Add(-3 * time.Hour)})

	events, err := s.FeedbackSince(ctx, gid, 1)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.True(t, events[0].TS.After(events[1].TS))
	require.True(t, events[1].TS.After(events[2].TS))
}

func TestUserFeedbackByID(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)
	target := seedFeedback(t, s, gid, Feedback{})
	seedFeedback(t, s, gid, Feedback{})

	events, err := s.UserFeedback(ctx, gid, ByUserID(target.UserID))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, target.UserID, events[0].UserID)
}

func TestUserFeedbackByUsername(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)
	seedFeedback(t, s, gid, Feedback{Username: "SomeUser"})
	seedFeedback(t, s, gid, Feedback{Username: "other"})

	// case-insensitive, leading @ tolerated
	events, err := s.UserFeedback(ctx, gid, ByUsername("@someuser"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "SomeUser", events[0].Username)
}

func TestUserFeedbackWindow(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)
	uid := mytesting.RandUserID()
	now := time.Now().UTC()
	seedFeedback(t, s, gid, Feedback{UserID: uid, TS: now.Add(-10 * 24 * time.Hour)})
	seedFeedback(t, s, gid, Feedback{UserID: uid, TS: now.Add(-1 * time.Hour)})

	events, err := s.UserFeedback(ctx, gid, ByUserID(uid).LastDays(3))
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = s.UserFeedback(ctx, gid, ByUserID(uid))
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestCountUniqueSenders(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)
	uid := mytesting.RandUserID()
	seedFeedback(t, s, gid, Feedback{UserID: uid})
	seedFeedback(t, s, gid, Feedback{UserID: uid})
	seedFeedback(t, s, gid, Feedback{})

	count, err := s.CountUniqueSenders(ctx, gid, 1)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestCleanupOldFeedback(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)
	now := time.Now().UTC()
	seedFeedback(t, s, gid, Feedback{TS: now.Add(-6 * 24 * time.Hour)})
	kept := seedFeedback(t, s, gid, Feedback{TS: now.Add(-4 * 24 * time.Hour)})

	_, err := s.CleanupOldFeedback(ctx, 5)
	require.NoError(t, err)

	events, err := s.UserFeedback(ctx, gid, ByUserID(kept.UserID))
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = s.FeedbackSince(ctx, gid, 365)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestClearGroupFeedbackScoped(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gidA := seedGroup(t, s)
	gidB := seedGroup(t, s)
	seedFeedback(t, s, gidA, Feedback{})
	seedFeedback(t, s, gidB, Feedback{})

	removed, err := s.ClearGroupFeedback(ctx, gidA)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	events, err := s.FeedbackSince(ctx, gidB, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestReminderLifecycle(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)

	_, err := s.Reminder(ctx, gid)
	require.Equal(t, ErrNoReminder, err)

	require.NoError(t, s.SetReminder(ctx, gid, "send your feedback"))
	text, err := s.Reminder(ctx, gid)
	require.NoError(t, err)
	require.Equal(t, "send your feedback", text)

	// upsert keeps a single row and replaces the text
	require.NoError(t, s.SetReminder(ctx, gid, "updated"))
	text, err = s.Reminder(ctx, gid)
	require.NoError(t, err)
	require.Equal(t, "updated", text)

	require.NoError(t, s.RemoveReminder(ctx, gid))
	_, err = s.Reminder(ctx, gid)
	require.Equal(t, ErrNoReminder, err)
}

func setLastSent(t *testing.T, s *Store, gid int64, ago time.Duration) {
	t.Helper()

	sql := "update reminders set last_sent = now() - ($2::int * interval '1 minute') where group_id = $1"
	_, err := s.pool().Exec(context.Background(), sql, gid, int(ago.Minutes()))
	require.NoError(t, err)
}

func dueForGroup(due []DueReminder, gid int64) bool {
	for _, r := range due {
		if r.GroupID == gid {
			return true
		}
	}
	return false
}

func TestDueRemindersNeverSent(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)
	require.NoError(t, s.SetReminder(ctx, gid, "ping"))

	due, err := s.DueReminders(ctx, 120)
	require.NoError(t, err)
	require.True(t, dueForGroup(due, gid))
}

func TestDueRemindersInterval(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)
	require.NoError(t, s.SetReminder(ctx, gid, "ping"))

	setLastSent(t, s, gid, 119*time.Minute)
	due, err := s.DueReminders(ctx, 120)
	require.NoError(t, err)
	require.False(t, dueForGroup(due, gid))

	setLastSent(t, s, gid, 121*time.Minute)
	due, err = s.DueReminders(ctx, 120)
	require.NoError(t, err)
	require.True(t, dueForGroup(due, gid))
}

func TestMarkReminderSent(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	gid := seedGroup(t, s)
	require.NoError(t, s.SetReminder(ctx, gid, "ping"))
	require.NoError(t, s.MarkReminderSent(ctx, gid))

	due, err := s.DueReminders(ctx, 120)
	require.NoError(t, err)
	require.False(t, dueForGroup(due, gid))
}

func TestHeartbeat(t *testing.T) {
	s := bootstrap(t)
	require.NoError(t, s.Heartbeat(context.Background()))
	require.NoError(t, s.Reconnect(context.Background()))
	require.NoError(t, s.Heartbeat(context.Background()))
}
