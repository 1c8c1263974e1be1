package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"telegram-feedback-bot/internal/storage/zapadapter"
)

var (
	ErrGroupNotAuthorized = errors.New("group is not authorized")
	ErrNoReminder         = errors.New("no reminder configured for group")
)

const schema = `
	create table if not exists groups (
		group_id bigint primary key,
		group_name text,
		date_added timestamptz default now()
	);

	create table if not exists feedback_logs (
		id bigserial primary key,
		user_id bigint not null,
		username text,
		display_name text,
		group_id bigint not null references groups (group_id),
		group_name text,
		message_id bigint,
		message_link text,
		ts timestamptz default now()
	);
	create index if not exists idx_feedback_ts on feedback_logs (ts);
	create index if not exists idx_feedback_user on feedback_logs (user_id);
	create index if not exists idx_feedback_group on feedback_logs (group_id);

	create table if not exists reminders (
		group_id bigint primary key,
		reminder_text text not null,
		date_added timestamptz default now(),
		last_sent timestamptz
	);`

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	cfg    Config
	opts   []Option

	mu sync.RWMutex
	db *pgxpool.Pool
}

// New connects a bounded pgx pool to the feedback database, ensures the
// schema and returns a Store. The provided zap logger is wired into pgx via
// zapadapter. Config and options are retained for later Reconnect calls.
func New(ctx context.Context, logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{
		logger: logger,
		cfg:    cfg,
		opts:   opts,
	}

	pool, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.db = pool

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("db pool created and tables ensured")

	return s, nil
}

func (s *Store) dial(ctx context.Context) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(s.cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(s.logger.Desugar())
	config.MinConns = 1
	config.MaxConns = 5

	for _, opt := range s.opts {
		opt.apply(config)
	}

	return pgxpool.ConnectConfig(ctx, config)
}

func (s *Store) pool() *pgxpool.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Reconnect replaces the current pool with a freshly dialed one. Used by the
// heartbeat loop after a failed liveness check; in-flight queries hold a
// reference to the old pool, which is closed once they release it.
func (s *Store) Reconnect(ctx context.Context) error {
	pool, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.db
	s.db = pool
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	s.logger.Info("db pool reconnected")

	return nil
}

// Heartbeat runs a trivial liveness query against the pool
func (s *Store) Heartbeat(ctx context.Context) error {
	_, err := s.pool().Exec(ctx, "select 1")
	return err
}

// Close releases the underlying pool
func (s *Store) Close() {
	s.pool().Close()
}

// AddGroup authorizes a group for feedback tracking. Idempotent: calling it
// again for a known group only refreshes the stored name.
func (s *Store) AddGroup(ctx context.Context, groupID int64, name string) error {
	s.logger.Debugf("Authorizing group %d (%s)", groupID, name)

	sql := `insert into groups (group_id, group_name)
			values ($1, $2)
			on conflict (group_id) do update set group_name = excluded.group_name`
	_, err := s.pool().Exec(ctx, sql, groupID, name)
	return err
}

// Group returns the registered group or ErrGroupNotAuthorized
func (s *Store) Group(ctx context.Context, groupID int64) (Group, error) {
	var g Group
	sql := "select group_id, group_name, date_added from groups where group_id = $1"
	err := s.pool().QueryRow(ctx, sql, groupID).Scan(&g.ID, &g.Name, &g.DateAdded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, ErrGroupNotAuthorized
		}
		return Group{}, err
	}
	return g, nil
}

// IsGroupAuthorized reports whether the group has been registered via AddGroup
func (s *Store) IsGroupAuthorized(ctx context.Context, groupID int64) (bool, error) {
	var one int8
	err := s.pool().QueryRow(ctx, "select 1 from groups where group_id = $1", groupID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// LogFeedback inserts a feedback event. A zero TS defaults to the current
// UTC time. Inserting against an unknown group returns ErrGroupNotAuthorized.
func (s *Store) LogFeedback(ctx context.Context, f Feedback) error {
	s.logger.Debugf("Logging feedback from user %d in group %d", f.UserID, f.GroupID)

	ts := f.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	username := pgtype.Text{Status: pgtype.Null}
	if f.Username != "" {
		username = pgtype.Text{String: f.Username, Status: pgtype.Present}
	}

	sql := `insert into feedback_logs
			(user_id, username, display_name, group_id, group_name, message_id, message_link, ts)
			values ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool().Exec(ctx, sql,
		f.UserID, username, f.DisplayName, f.GroupID, f.GroupName, f.MessageID, f.MessageLink, ts)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrGroupNotAuthorized
		}
		return err
	}

	return nil
}

// FeedbackSince returns the group's feedback events with ts inside the last
// days, newest first. The window is half-open: ts >= now - days. No clamping
// happens here, callers are expected to sanitize the day count.
func (s *Store) FeedbackSince(ctx context.Context, groupID int64, days int) ([]Feedback, error) {
	s.logger.Debugf("Retrieving feedback for group %d over %d days", groupID, days)

	sql := `select id, user_id, username, display_name, group_id, group_name, message_id, message_link, ts
			from feedback_logs
			where group_id = $1 and ts >= now() - ($2::int * interval '1 day')
			order by ts desc`

	rows, err := s.pool().Query(ctx, sql, groupID, days)
	if err != nil {
		return nil, err
	}
	return collectFeedback(rows)
}

// CountUniqueSenders returns the number of distinct users with feedback in
// the group over the last days
func (s *Store) CountUniqueSenders(ctx context.Context, groupID int64, days int) (int, error) {
	var count int
	sql := `select count(distinct user_id)
			from feedback_logs
			where group_id = $1 and ts >= now() - ($2::int * interval '1 day')`
	err := s.pool().QueryRow(ctx, sql, groupID, days).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Fixed statements for UserFeedback. One variant per filter shape instead of
// an ad-hoc where-clause builder, so each contract stays a single
// parameterized query.
const (
	userFeedbackByID = `select id, user_id, username, display_name, group_id, group_name, message_id, message_link, ts
			from feedback_logs
			where group_id = $1 and user_id = $2
			order by ts desc`
	userFeedbackByIDWindow = `select id, user_id, username, display_name, group_id, group_name, message_id, message_link, ts
			from feedback_logs
			where group_id = $1 and user_id = $2 and ts >= now() - ($3::int * interval '1 day')
			order by ts desc`
	userFeedbackByName = `select id, user_id, username, display_name, group_id, group_name, message_id, message_link, ts
			from feedback_logs
			where group_id = $1 and lower(username) = $2
			order by ts desc`
	userFeedbackByNameWindow = `select id, user_id, username, display_name, group_id, group_name, message_id, message_link, ts
			from feedback_logs
			where group_id = $1 and lower(username) = $2 and ts >= now() - ($3::int * interval '1 day')
			order by ts desc`
)

// UserFilter selects feedback rows for a single actor, by numeric id or by
// username, optionally restricted to a trailing day window.
type UserFilter struct {
	UserID   int64
	Username string
	Days     int
}

// ByUserID builds a filter matching the actor's numeric id
func ByUserID(id int64) UserFilter {
	return UserFilter{UserID: id}
}

// ByUsername builds a filter matching the actor's handle. The comparison is
// case-insensitive and a leading @ is ignored.
func ByUsername(name string) UserFilter {
	return UserFilter{Username: strings.ToLower(strings.TrimPrefix(name, "@"))}
}

// LastDays restricts the filter to events with ts >= now - days
func (f UserFilter) LastDays(days int) UserFilter {
	f.Days = days
	return f
}

// UserFeedback returns the actor's feedback events in the group, newest
// first. The filter shape picks one of four fixed statements.
func (s *Store) UserFeedback(ctx context.Context, groupID int64, filter UserFilter) ([]Feedback, error) {
	s.logger.Debugf("Retrieving user feedback for group %d", groupID)

	var (
		rows pgx.Rows
		err  error
	)
	switch {
	case filter.Username != "" && filter.Days > 0:
		rows, err = s.pool().Query(ctx, userFeedbackByNameWindow, groupID, strings.ToLower(filter.Username), filter.Days)
	case filter.Username != "":
		rows, err = s.pool().Query(ctx, userFeedbackByName, groupID, strings.ToLower(filter.Username))
	case filter.Days > 0:
		rows, err = s.pool().Query(ctx, userFeedbackByIDWindow, groupID, filter.UserID, filter.Days)
	default:
		rows, err = s.pool().Query(ctx, userFeedbackByID, groupID, filter.UserID)
	}
	if err != nil {
		return nil, err
	}
	return collectFeedback(rows)
}

func collectFeedback(rows pgx.Rows) ([]Feedback, error) {
	defer rows.Close()

	var events []Feedback
	for rows.Next() {
		var (
			f         Feedback
			username  pgtype.Text
			messageID pgtype.Int8
		)
		err := rows.Scan(&f.ID, &f.UserID, &username, &f.DisplayName,
			&f.GroupID, &f.GroupName, &messageID, &f.MessageLink, &f.TS)
		if err != nil {
			return nil, err
		}
		f.Username = username.String
		f.MessageID = messageID.Int
		events = append(events, f)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return events, nil
}

// ClearFeedback deletes every feedback event across all groups and returns
// the number of rows removed
func (s *Store) ClearFeedback(ctx context.Context) (int64, error) {
	tag, err := s.pool().Exec(ctx, "delete from feedback_logs")
	if err != nil {
		return 0, err
	}

	s.logger.Infof("Cleared %d feedback rows", tag.RowsAffected())

	return tag.RowsAffected(), nil
}

// ClearGroupFeedback deletes the feedback events of a single group
func (s *Store) ClearGroupFeedback(ctx context.Context, groupID int64) (int64, error) {
	tag, err := s.pool().Exec(ctx, "delete from feedback_logs where group_id = $1", groupID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CleanupOldFeedback removes events older than the given number of days and
// returns the number of rows removed
func (s *Store) CleanupOldFeedback(ctx context.Context, days int) (int64, error) {
	sql := "delete from feedback_logs where ts < now() - ($1::int * interval '1 day')"
	tag, err := s.pool().Exec(ctx, sql, days)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetReminder upserts the group's reminder text. last_sent resets to null so
// the new text goes out on the next dispatch pass.
func (s *Store) SetReminder(ctx context.Context, groupID int64, text string) error {
	sql := `insert into reminders (group_id, reminder_text, last_sent)
			values ($1, $2, null)
			on conflict (group_id) do update set reminder_text = excluded.reminder_text, last_sent = null`
	_, err := s.pool().Exec(ctx, sql, groupID, text)
	return err
}

// RemoveReminder deletes the group's reminder, if any
func (s *Store) RemoveReminder(ctx context.Context, groupID int64) error {
	_, err := s.pool().Exec(ctx, "delete from reminders where group_id = $1", groupID)
	return err
}

// Reminder returns the group's reminder text or ErrNoReminder
func (s *Store) Reminder(ctx context.Context, groupID int64) (string, error) {
	var text string
	err := s.pool().QueryRow(ctx, "select reminder_text from reminders where group_id = $1", groupID).Scan(&text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoReminder
		}
		return "", err
	}
	return text, nil
}

// DueReminders returns reminders that have never been sent or were last sent
// at least intervalMinutes ago, joined with their groups
func (s *Store) DueReminders(ctx context.Context, intervalMinutes int) ([]DueReminder, error) {
	sql := `select r.group_id, g.group_name, r.reminder_text, r.last_sent
			from reminders r
			join groups g on g.group_id = r.group_id
			where r.last_sent is null
			   or r.last_sent <= now() - ($1::int * interval '1 minute')`

	rows, err := s.pool().Query(ctx, sql, intervalMinutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []DueReminder
	for rows.Next() {
		var (
			r        DueReminder
			lastSent pgtype.Timestamptz
		)
		if err := rows.Scan(&r.GroupID, &r.GroupName, &r.Text, &lastSent); err != nil {
			return nil, err
		}
		if lastSent.Status == pgtype.Present {
			r.LastSent = lastSent.Time
		}
		due = append(due, r)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return due, nil
}

// MarkReminderSent stamps last_sent with the current time after a successful
// dispatch
func (s *Store) MarkReminderSent(ctx context.Context, groupID int64) error {
	_, err := s.pool().Exec(ctx, "update reminders set last_sent = now() where group_id = $1", groupID)
	return err
}
