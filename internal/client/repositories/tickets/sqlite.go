package tickets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/dmitrijs2005/gophscan/internal/dbx"
	"github.com/dmitrijs2005/gophscan/internal/timex"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if db, ok := r.db.(*sql.DB); ok {
		return dbx.WithTxRetry(ctx, db, fn)
	}
	return fn(ctx, r.db)
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	return fmt.Errorf("failed to select %s: %w", what, err)
}

func (r *SQLiteRepository) Event(ctx context.Context, slug string) (*models.Event, error) {
	var (
		e             models.Event
		name, keys    string
		from          int64
		to, admission sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT slug, name, date_from, date_to, date_admission, timezone, has_subevents, public_keys
		FROM events WHERE slug = ?`, slug).
		Scan(&e.Slug, &name, &from, &to, &admission, &e.Timezone, &e.HasSubEvents, &keys)
	if err != nil {
		return nil, notFound(err, "event")
	}
	if err := decodeJSON(name, &e.Name); err != nil {
		return nil, err
	}
	if err := decodeJSON(keys, &e.PublicKeys); err != nil {
		return nil, err
	}
	e.DateFrom = timex.FromMillis(from)
	e.DateTo = fromNull(to)
	e.DateAdmission = fromNull(admission)
	return &e, nil
}

func (r *SQLiteRepository) SubEvent(ctx context.Context, id int64) (*models.SubEvent, error) {
	var (
		s             models.SubEvent
		name          string
		from          int64
		to, admission sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, event_slug, name, date_from, date_to, date_admission
		FROM subevents WHERE id = ?`, id).
		Scan(&s.ID, &s.EventSlug, &name, &from, &to, &admission)
	if err != nil {
		return nil, notFound(err, "subevent")
	}
	if err := decodeJSON(name, &s.Name); err != nil {
		return nil, err
	}
	s.DateFrom = timex.FromMillis(from)
	s.DateTo = fromNull(to)
	s.DateAdmission = fromNull(admission)
	return &s, nil
}

const checkInListColumns = `id, event_slug, name, all_products, limit_products, subevent_id,
	include_pending, allow_multiple_entries, allow_entry_after_exit, rules`

func scanCheckInList(row interface{ Scan(...any) error }) (*models.CheckInList, error) {
	var (
		l        models.CheckInList
		limit    string
		subevent sql.NullInt64
		rules    sql.NullString
	)
	if err := row.Scan(&l.ID, &l.EventSlug, &l.Name, &l.AllProducts, &limit, &subevent,
		&l.IncludePending, &l.AllowMultipleEntries, &l.AllowEntryAfterExit, &rules); err != nil {
		return nil, err
	}
	if err := decodeJSON(limit, &l.LimitProducts); err != nil {
		return nil, err
	}
	l.SubEventID = ptrInt(subevent)
	if rules.Valid && rules.String != "" {
		l.Rules = json.RawMessage(rules.String)
	}
	return &l, nil
}

func (r *SQLiteRepository) CheckInList(ctx context.Context, id int64) (*models.CheckInList, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+checkInListColumns+` FROM checkin_lists WHERE id = ?`, id)
	l, err := scanCheckInList(row)
	if err != nil {
		return nil, notFound(err, "checkin list")
	}
	return l, nil
}

func (r *SQLiteRepository) CheckInLists(ctx context.Context, eventSlug string) ([]models.CheckInList, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+checkInListColumns+` FROM checkin_lists WHERE event_slug = ? ORDER BY id`, eventSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to select checkin lists: %w", err)
	}
	defer rows.Close()

	var result []models.CheckInList
	for rows.Next() {
		l, err := scanCheckInList(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkin list: %w", err)
		}
		result = append(result, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkin lists: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Item(ctx context.Context, id int64) (*models.Item, error) {
	var (
		it               models.Item
		name, variations string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, event_slug, name, admission, checkin_attention, variations
		FROM items WHERE id = ?`, id).
		Scan(&it.ID, &it.EventSlug, &name, &it.Admission, &it.CheckInAttention, &variations)
	if err != nil {
		return nil, notFound(err, "item")
	}
	if err := decodeJSON(name, &it.Name); err != nil {
		return nil, err
	}
	if err := decodeJSON(variations, &it.Variations); err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *SQLiteRepository) Order(ctx context.Context, eventSlug, code string) (*models.Order, error) {
	var (
		o      models.Order
		status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT event_slug, code, status, valid_if_pending, checkin_attention, email
		FROM orders WHERE event_slug = ? AND code = ?`, eventSlug, code).
		Scan(&o.EventSlug, &o.Code, &status, &o.ValidIfPending, &o.CheckInAttention, &o.Email)
	if err != nil {
		return nil, notFound(err, "order")
	}
	o.Status = models.OrderStatus(status)
	return &o, nil
}

const positionColumns = `p.id, p.event_slug, p.order_code, p.positionid, p.item_id, p.variation_id,
	p.subevent_id, p.secret, p.attendee_name, p.attendee_email, p.seat, p.valid_from, p.valid_until,
	p.blocked, p.answers`

func scanPosition(row interface{ Scan(...any) error }, extra ...any) (*models.OrderPosition, error) {
	var (
		p                     models.OrderPosition
		variation, subevent   sql.NullInt64
		seat                  sql.NullString
		validFrom, validUntil sql.NullInt64
		answers               string
	)
	dest := []any{&p.ID, &p.EventSlug, &p.OrderCode, &p.PositionID, &p.ItemID, &variation,
		&subevent, &p.Secret, &p.AttendeeName, &p.AttendeeEmail, &seat, &validFrom, &validUntil,
		&p.Blocked, &answers}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.VariationID = ptrInt(variation)
	p.SubEventID = ptrInt(subevent)
	if seat.Valid {
		p.Seat = &models.Seat{Name: seat.String}
	}
	p.ValidFrom = fromNull(validFrom)
	p.ValidUntil = fromNull(validUntil)
	if err := decodeJSON(answers, &p.Answers); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *SQLiteRepository) PositionBySecret(ctx context.Context, eventSlug, secret string) (*models.OrderPosition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions p
		WHERE p.event_slug = ? AND p.secret = ? ORDER BY p.id LIMIT 1`, eventSlug, secret)
	p, err := scanPosition(row)
	if err != nil {
		return nil, notFound(err, "position")
	}
	return p, nil
}

func (r *SQLiteRepository) Questions(ctx context.Context, eventSlug string, itemID int64) ([]models.Question, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT q.id, q.event_slug, q.identifier, q.question, q.type, q.required,
			q.ask_during_checkin, q.position, q.options, q.items
		FROM questions q, json_each(q.items) i
		WHERE q.event_slug = ? AND i.value = ?
		ORDER BY q.position, q.id`, eventSlug, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to select questions: %w", err)
	}
	defer rows.Close()

	var result []models.Question
	for rows.Next() {
		var (
			q              models.Question
			text, qtype    string
			options, items string
		)
		if err := rows.Scan(&q.ID, &q.EventSlug, &q.Identifier, &text, &qtype, &q.Required,
			&q.AskDuringCheckIn, &q.Position, &options, &items); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.Type = models.QuestionType(qtype)
		if err := decodeJSON(text, &q.Text); err != nil {
			return nil, err
		}
		if err := decodeJSON(options, &q.Options); err != nil {
			return nil, err
		}
		if err := decodeJSON(items, &q.ItemIDs); err != nil {
			return nil, err
		}
		result = append(result, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) CheckIns(ctx context.Context, listID int64, secret string) ([]models.CheckIn, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT list_id, date, type, COALESCE(nonce, ''), secret
		FROM checkins WHERE list_id = ? AND secret = ?
		ORDER BY date, id`, listID, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to select checkins: %w", err)
	}
	defer rows.Close()

	var result []models.CheckIn
	for rows.Next() {
		var (
			ci    models.CheckIn
			date  int64
			ctype string
		)
		if err := rows.Scan(&ci.ListID, &date, &ctype, &ci.Nonce, &ci.Secret); err != nil {
			return nil, fmt.Errorf("failed to scan checkin: %w", err)
		}
		ci.Date = timex.FromMillis(date)
		ci.Type = models.Direction(ctype)
		result = append(result, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkins: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteRepository) IsRevoked(ctx context.Context, eventSlug, secret string) (bool, error) {
	ok, err := r.exists(ctx, `SELECT COUNT(*) FROM revoked_secrets WHERE event_slug = ? AND secret = ?`, eventSlug, secret)
	if err != nil {
		return false, fmt.Errorf("failed to check revoked secret: %w", err)
	}
	return ok, nil
}

func (r *SQLiteRepository) IsBlocked(ctx context.Context, eventSlug, secret string) (bool, error) {
	ok, err := r.exists(ctx, `SELECT COUNT(*) FROM blocked_secrets WHERE event_slug = ? AND secret = ? AND blocked = 1`, eventSlug, secret)
	if err != nil {
		return false, fmt.Errorf("failed to check blocked secret: %w", err)
	}
	return ok, nil
}

func (r *SQLiteRepository) CheckInByNonce(ctx context.Context, nonce string) (*models.CheckIn, error) {
	var (
		ci    models.CheckIn
		date  int64
		ctype string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT list_id, date, type, nonce, secret
		FROM checkins WHERE nonce = ?`, nonce).Scan(&ci.ListID, &date, &ctype, &ci.Nonce, &ci.Secret)
	if err != nil {
		return nil, notFound(err, "checkin by nonce")
	}
	ci.Date = timex.FromMillis(date)
	ci.Type = models.Direction(ctype)
	return &ci, nil
}

func decodeJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode stored json: %w", err)
	}
	return nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(b), nil
}

func ptrInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	return timex.FromNullMillis(&n.Int64)
}
