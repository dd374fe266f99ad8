package checkin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// PostgresStore persists activities, registrations and channels in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open pgx-backed database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// InTx runs fn inside a READ COMMITTED transaction. Row reads inside the
// transaction use FOR UPDATE and Lock takes a transaction-scoped advisory lock.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(postgresTx{q: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CreateActivity inserts an activity.
func (s *PostgresStore) CreateActivity(ctx context.Context, a Activity) (Activity, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Type == "" {
		a.Type = ActivityQueue
	}
	if a.Courses == nil {
		a.Courses = []string{}
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO activities (id, name, type, courses)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, a.ID, a.Name, string(a.Type), a.Courses)
	if err := row.Scan(&a.CreatedAt); err != nil {
		return Activity{}, err
	}
	return a, nil
}

// Activity returns an activity by id, or nil.
func (s *PostgresStore) Activity(ctx context.Context, id string) (*Activity, error) {
	var (
		a       Activity
		typ     string
		courses []string
	)
	m := pgtype.NewMap()
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, courses, last_channel_number, created_at
		FROM activities WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &typ, m.SQLScanner(&courses), &a.lastChannelNumber, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Type = ActivityType(typ)
	a.Courses = courses
	return &a, nil
}

func (s *PostgresStore) Registration(ctx context.Context, id string) (*Registration, error) {
	return queryRegistration(ctx, s.db, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
}

// RegistrationsByActivity lists an activity's registrations oldest first.
func (s *PostgresStore) RegistrationsByActivity(ctx context.Context, activityID string) ([]Registration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE activity_id = $1
		ORDER BY created_at, id
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *PostgresStore) RegistrationByNationalID(ctx context.Context, activityID, nationalID string) (*Registration, error) {
	return registrationByNationalID(ctx, s.db, activityID, nationalID, "")
}

// Channels lists an activity's channels by channel number.
func (s *PostgresStore) Channels(ctx context.Context, activityID string) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+channelColumns+`
		FROM queue_channels
		WHERE activity_id = $1
		ORDER BY channel_number
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Channel{}
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *PostgresStore) Channel(ctx context.Context, id string) (*Channel, error) {
	return queryChannel(ctx, s.db, `SELECT `+channelColumns+` FROM queue_channels WHERE id = $1`, id)
}

// Profile returns the LINE link for a national ID, or nil.
func (s *PostgresStore) Profile(ctx context.Context, nationalID string) (*Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT national_id, line_user_id, updated_at FROM student_profiles WHERE national_id = $1
	`, nationalID).Scan(&p.NationalID, &p.LineUserID, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UpsertProfile creates or replaces the LINE link for a national ID.
func (s *PostgresStore) UpsertProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO student_profiles (national_id, line_user_id)
		VALUES ($1, $2)
		ON CONFLICT (national_id) DO UPDATE SET
			line_user_id = EXCLUDED.line_user_id,
			updated_at = NOW()
	`, p.NationalID, p.LineUserID)
	return err
}

const settingsID = "notifications"

// Settings returns the stored notification settings, or nil when unset.
func (s *PostgresStore) Settings(ctx context.Context) (*Settings, error) {
	var st Settings
	err := s.db.QueryRowContext(ctx, `SELECT on_queue_call FROM settings WHERE id = $1`, settingsID).Scan(&st.OnQueueCall)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, st Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, on_queue_call)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			on_queue_call = EXCLUDED.on_queue_call,
			updated_at = NOW()
	`, settingsID, st.OnQueueCall)
	return err
}

type postgresTx struct {
	q querier
}

func (tx postgresTx) Lock(ctx context.Context, key string) error {
	_, err := tx.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func (tx postgresTx) Registration(ctx context.Context, id string) (*Registration, error) {
	return queryRegistration(ctx, tx.q, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, id)
}

func (tx postgresTx) RegistrationByNationalID(ctx context.Context, activityID, nationalID string) (*Registration, error) {
	return registrationByNationalID(ctx, tx.q, activityID, nationalID, " FOR UPDATE")
}

func (tx postgresTx) CountCheckedIn(ctx context.Context, activityID, course string) (int, error) {
	var n int
	err := tx.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registrations
		WHERE activity_id = $1 AND course = $2 AND status = $3
	`, activityID, course, string(StatusCheckedIn)).Scan(&n)
	return n, err
}

func (tx postgresTx) NextWaiting(ctx context.Context, activityID, course string) (*Registration, error) {
	return queryRegistration(ctx, tx.q, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE activity_id = $1 AND course = $2 AND status = $3
		  AND called_at IS NULL AND queue_number IS NOT NULL
		ORDER BY queue_number
		LIMIT 1
		FOR UPDATE
	`, activityID, course, string(StatusCheckedIn))
}

func (tx postgresTx) RegistrationByQueueNumber(ctx context.Context, activityID, course string, queueNumber int) (*Registration, error) {
	return queryRegistration(ctx, tx.q, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE activity_id = $1 AND course = $2 AND queue_number = $3
		ORDER BY created_at DESC, id
		LIMIT 1
		FOR UPDATE
	`, activityID, course, queueNumber)
}

func (tx postgresTx) CheckedInByDisplayNumber(ctx context.Context, activityID, course, label string) (*Registration, error) {
	return queryRegistration(ctx, tx.q, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE activity_id = $1 AND display_queue_number = $2 AND status = $3
		ORDER BY (COALESCE(course, '') = $4) DESC, queue_number, created_at, id
		LIMIT 1
		FOR UPDATE
	`, activityID, label, string(StatusCheckedIn), course)
}

func (tx postgresTx) InsertRegistration(ctx context.Context, r Registration) error {
	if !r.Status.Valid() {
		return newError(ErrInvalidInput, "unknown registration status %q", r.Status)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO registrations (id, activity_id, full_name, student_id, national_id, course, status,
			queue_number, display_queue_number, called_at, line_user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, r.ID, r.ActivityID, r.FullName, r.StudentID, r.NationalID, r.Course, string(r.Status),
		r.QueueNumber, r.DisplayQueueNumber, r.CalledAt, r.LineUserID, r.CreatedAt)
	return err
}

func (tx postgresTx) UpdateRegistration(ctx context.Context, r Registration) error {
	if !r.Status.Valid() {
		return newError(ErrInvalidInput, "unknown registration status %q", r.Status)
	}
	res, err := tx.q.ExecContext(ctx, `
		UPDATE registrations
		SET course = $2, status = $3, queue_number = $4, display_queue_number = $5,
			called_at = $6, line_user_id = $7
		WHERE id = $1
	`, r.ID, r.Course, string(r.Status), r.QueueNumber, r.DisplayQueueNumber, r.CalledAt, r.LineUserID)
	if err != nil {
		return err
	}
	return expectOne(res, newError(ErrNotFoundOrMismatch, "registration %s not found", r.ID))
}

func (tx postgresTx) Channel(ctx context.Context, id string) (*Channel, error) {
	return queryChannel(ctx, tx.q, `SELECT `+channelColumns+` FROM queue_channels WHERE id = $1 FOR UPDATE`, id)
}

func (tx postgresTx) NextChannelNumber(ctx context.Context, activityID string) (int, error) {
	var next int
	err := tx.q.QueryRowContext(ctx, `
		UPDATE activities
		SET last_channel_number = GREATEST(
			last_channel_number,
			(SELECT COALESCE(MAX(channel_number), 0) FROM queue_channels WHERE activity_id = $1)
		) + 1
		WHERE id = $1
		RETURNING last_channel_number
	`, activityID).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, newError(ErrActivityNotFound, "activity %s not found", activityID)
	}
	return next, err
}

func (tx postgresTx) InsertChannel(ctx context.Context, c Channel) error {
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO queue_channels (id, activity_id, channel_number, channel_name, serving_course,
			current_queue_number, current_display_queue_number, current_student_name, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, c.ID, c.ActivityID, c.ChannelNumber, c.ChannelName, c.ServingCourse,
		c.CurrentQueueNumber, c.CurrentDisplayQueueNumber, c.CurrentStudentName, c.UpdatedAt)
	return err
}

func (tx postgresTx) UpdateChannel(ctx context.Context, c Channel) error {
	res, err := tx.q.ExecContext(ctx, `
		UPDATE queue_channels
		SET channel_name = $2, serving_course = $3, current_queue_number = $4,
			current_display_queue_number = $5, current_student_name = $6, updated_at = $7
		WHERE id = $1
	`, c.ID, c.ChannelName, c.ServingCourse, c.CurrentQueueNumber,
		c.CurrentDisplayQueueNumber, c.CurrentStudentName, c.UpdatedAt)
	if err != nil {
		return err
	}
	return expectOne(res, newError(ErrChannelNotFound, "channel %s not found", c.ID))
}

func (tx postgresTx) DeleteChannel(ctx context.Context, id string) error {
	_, err := tx.q.ExecContext(ctx, `DELETE FROM queue_channels WHERE id = $1`, id)
	return err
}

const registrationColumns = `id, activity_id, full_name, student_id, national_id, course, status,
	queue_number, display_queue_number, called_at, line_user_id, created_at`

const channelColumns = `id, activity_id, channel_number, channel_name, serving_course,
	current_queue_number, current_display_queue_number, current_student_name, updated_at`

func registrationByNationalID(ctx context.Context, q querier, activityID, nationalID, suffix string) (*Registration, error) {
	return queryRegistration(ctx, q, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE activity_id = $1 AND national_id = $2
		ORDER BY created_at DESC
		LIMIT 1`+suffix, activityID, nationalID)
}

func queryRegistration(ctx context.Context, q querier, query string, args ...any) (*Registration, error) {
	r, err := scanRegistration(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func scanRegistration(row rowScanner) (Registration, error) {
	var (
		r           Registration
		course      sql.NullString
		status      string
		queueNumber sql.NullInt64
		calledAt    sql.NullTime
		lineUserID  sql.NullString
	)
	if err := row.Scan(&r.ID, &r.ActivityID, &r.FullName, &r.StudentID, &r.NationalID, &course, &status,
		&queueNumber, &r.DisplayQueueNumber, &calledAt, &lineUserID, &r.CreatedAt); err != nil {
		return Registration{}, err
	}
	r.Status = Status(status)
	if !r.Status.Valid() {
		return Registration{}, fmt.Errorf("registration %s: unknown status %q", r.ID, status)
	}
	if course.Valid {
		r.Course = strPtr(course.String)
	}
	if queueNumber.Valid {
		r.QueueNumber = intPtr(int(queueNumber.Int64))
	}
	if calledAt.Valid {
		r.CalledAt = timePtr(calledAt.Time)
	}
	if lineUserID.Valid && lineUserID.String != "" {
		r.LineUserID = strPtr(lineUserID.String)
	}
	return r, nil
}

func queryChannel(ctx context.Context, q querier, query string, args ...any) (*Channel, error) {
	c, err := scanChannel(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func scanChannel(row rowScanner) (Channel, error) {
	var (
		c             Channel
		servingCourse sql.NullString
		current       sql.NullInt64
		currentLabel  sql.NullString
		currentName   sql.NullString
	)
	if err := row.Scan(&c.ID, &c.ActivityID, &c.ChannelNumber, &c.ChannelName, &servingCourse,
		&current, &currentLabel, &currentName, &c.UpdatedAt); err != nil {
		return Channel{}, err
	}
	if servingCourse.Valid {
		c.ServingCourse = strPtr(servingCourse.String)
	}
	if current.Valid {
		c.CurrentQueueNumber = intPtr(int(current.Int64))
	}
	if currentLabel.Valid {
		c.CurrentDisplayQueueNumber = strPtr(currentLabel.String)
	}
	if currentName.Valid {
		c.CurrentStudentName = strPtr(currentName.String)
	}
	return c, nil
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
