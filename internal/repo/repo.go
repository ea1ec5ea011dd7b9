package repo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studioBooker/internal/model"
)

var (
	ErrSlotTaken     = errors.New("slot already taken")
	ErrTokenNotFound = errors.New("approval token not found")
	ErrNoBookings    = errors.New("no bookings to create")
)

//go:embed migrations
var migrations embed.FS

type Repository interface {
	TakenStarts(ctx context.Context, date string) ([]string, error)
	CreateBookingTx(ctx context.Context, bookings []*model.Booking) (int64, error)
	SetStatusByToken(ctx context.Context, token string, status model.Status) (int64, []model.Status, error)
	BookingsByToken(ctx context.Context, token string) ([]model.Booking, error)
	MigrateUp(ctx context.Context) error
}

type repository struct {
	db      *sql.DB
	dialect Dialect
	log     *zerolog.Logger
}

func NewRepository(db *sql.DB, dialect Dialect, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if !dialect.Valid() {
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &repository{db: db, dialect: dialect, log: log}, nil
}

// MigrateUp applies the embedded *.up.sql files of the repository's dialect
// in lexical order. Every statement is create-if-not-exists.
func (r *repository) MigrateUp(ctx context.Context) error {
	dir := path.Join("migrations", string(r.dialect))
	files, err := fs.Glob(migrations, path.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		sqlBytes, err := migrations.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := r.db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Str("dialect", string(r.dialect)).Int("files", len(files)).Msg("schema is up to date")
	return nil
}

// TakenStarts returns the start times on date held by pending or approved
// bookings.
func (r *repository) TakenStarts(ctx context.Context, date string) ([]string, error) {
	query := r.dialect.rebind(`
		SELECT start_time
		FROM bookings
		WHERE date = ? AND status IN (?, ?)
		ORDER BY start_time ASC
	`)

	rows, err := r.db.QueryContext(ctx, query, date, string(model.StatusPending), string(model.StatusApproved))
	if err != nil {
		return nil, fmt.Errorf("failed to get taken slots: %w", err)
	}
	defer rows.Close()

	var starts []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan start time: %w", err)
		}
		starts = append(starts, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate taken slots: %w", err)
	}
	return starts, nil
}

// CreateBookingTx stores every booking of one request or none of them. Any
// existing row on the same date and start time, whatever its status, makes
// the whole request fail with ErrSlotTaken. The id of the last inserted row
// is returned and each booking gets its ID filled in.
func (r *repository) CreateBookingTx(ctx context.Context, bookings []*model.Booking) (int64, error) {
	if len(bookings) == 0 {
		return 0, ErrNoBookings
	}
	date := bookings[0].Date
	for _, b := range bookings[1:] {
		if b.Date != date {
			return 0, fmt.Errorf("bookings of one request span several dates")
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	args := make([]any, 0, len(bookings)+1)
	args = append(args, date)
	for _, b := range bookings {
		args = append(args, b.StartTime)
	}
	conflictQuery := r.dialect.rebind(`
		SELECT COUNT(*)
		FROM bookings
		WHERE date = ? AND start_time IN (` + placeholders(len(bookings)) + `)
	`)

	var existing int
	if err := tx.QueryRowContext(ctx, conflictQuery, args...).Scan(&existing); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to check slot conflicts: %w", err)
	}
	if existing > 0 {
		_ = tx.Rollback()
		return 0, ErrSlotTaken
	}

	insertQuery := r.dialect.rebind(`
		INSERT INTO bookings (role, student_number, company, name, phone, email, field,
		                      date, start_time, end_time, participants, reason, status, token, invoice, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	var lastID int64
	now := time.Now().UTC()
	for _, b := range bookings {
		if b.Status == "" {
			b.Status = model.StatusPending
		}
		b.CreatedAt = now

		err := tx.QueryRowContext(ctx, insertQuery,
			string(b.Role), nullString(b.StudentNumber), nullString(b.Company), b.Name, b.Phone, b.Email, nullString(b.Field),
			b.Date, b.StartTime, b.EndTime, nullInt(b.Participants), nullString(b.Reason), string(b.Status), b.Token,
			nullString(b.Invoice), b.CreatedAt,
		).Scan(&b.ID)
		if err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				return 0, ErrSlotTaken
			}
			return 0, fmt.Errorf("failed to create booking %s %s: %w", b.Date, b.StartTime, err)
		}
		lastID = b.ID
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrSlotTaken
		}
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return lastID, nil
}

// SetStatusByToken overwrites the status of every row carrying token and
// returns how many rows changed along with their previous statuses.
func (r *repository) SetStatusByToken(ctx context.Context, token string, status model.Status) (int64, []model.Status, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	rows, err := tx.QueryContext(ctx, r.dialect.rebind(`
		SELECT status
		FROM bookings
		WHERE token = ?
		ORDER BY id ASC
	`), token)
	if err != nil {
		_ = tx.Rollback()
		return 0, nil, fmt.Errorf("failed to select bookings by token: %w", err)
	}
	var prev []model.Status
	for rows.Next() {
		var s model.Status
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			_ = tx.Rollback()
			return 0, nil, fmt.Errorf("failed to scan booking status: %w", err)
		}
		prev = append(prev, s)
	}
	rows.Close()
	if len(prev) == 0 {
		_ = tx.Rollback()
		return 0, nil, ErrTokenNotFound
	}

	res, err := tx.ExecContext(ctx, r.dialect.rebind(`
		UPDATE bookings
		SET status = ?
		WHERE token = ?
	`), string(status), token)
	if err != nil {
		_ = tx.Rollback()
		return 0, nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, nil, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return affected, prev, nil
}

func (r *repository) BookingsByToken(ctx context.Context, token string) ([]model.Booking, error) {
	query := r.dialect.rebind(`
		SELECT id, role, student_number, company, name, phone, email, field,
		       date, start_time, end_time, participants, reason, status, token, invoice, created_at
		FROM bookings
		WHERE token = ?
		ORDER BY start_time ASC
	`)

	rows, err := r.db.QueryContext(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by token: %w", err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var (
			b                                                   model.Booking
			studentNumber, company, field, reason, invoiceValue sql.NullString
			participants                                        sql.NullInt64
		)
		if err := rows.Scan(
			&b.ID,
			&b.Role,
			&studentNumber,
			&company,
			&b.Name,
			&b.Phone,
			&b.Email,
			&field,
			&b.Date,
			&b.StartTime,
			&b.EndTime,
			&participants,
			&reason,
			&b.Status,
			&b.Token,
			&invoiceValue,
			&b.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		b.StudentNumber = studentNumber.String
		b.Company = company.String
		b.Field = field.String
		b.Reason = reason.String
		b.Invoice = invoiceValue.String
		if participants.Valid {
			n := int(participants.Int64)
			b.Participants = &n
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrTokenNotFound
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

// rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
