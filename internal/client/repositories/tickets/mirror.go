package tickets

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/dbx"
	"github.com/dmitrijs2005/gophscan/internal/timex"
)

func (r *SQLiteRepository) UpsertEvent(ctx context.Context, e models.Event) error {
	name, err := encodeJSON(e.Name)
	if err != nil {
		return err
	}
	keys, err := encodeJSON(e.PublicKeys)
	if err != nil {
		return err
	}
	tz := e.Timezone
	if tz == "" {
		tz = "UTC"
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO events (slug, name, date_from, date_to, date_admission, timezone, has_subevents, public_keys)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET name = excluded.name,
			date_from = excluded.date_from,
			date_to = excluded.date_to,
			date_admission = excluded.date_admission,
			timezone = excluded.timezone,
			has_subevents = excluded.has_subevents,
			public_keys = excluded.public_keys`,
		e.Slug, name, timex.ToMillis(e.DateFrom), timex.NullableMillis(e.DateTo),
		timex.NullableMillis(e.DateAdmission), tz, e.HasSubEvents, keys)
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpsertSubEvents(ctx context.Context, subs []models.SubEvent) error {
	return r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, s := range subs {
			name, err := encodeJSON(s.Name)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO subevents (id, event_slug, name, date_from, date_to, date_admission)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET event_slug = excluded.event_slug,
					name = excluded.name,
					date_from = excluded.date_from,
					date_to = excluded.date_to,
					date_admission = excluded.date_admission`,
				s.ID, s.EventSlug, name, timex.ToMillis(s.DateFrom), timex.NullableMillis(s.DateTo),
				timex.NullableMillis(s.DateAdmission))
			if err != nil {
				return fmt.Errorf("failed to upsert subevent %d: %w", s.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UpsertCheckInLists(ctx context.Context, lists []models.CheckInList) error {
	return r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, l := range lists {
			limit, err := encodeJSON(l.LimitProducts)
			if err != nil {
				return err
			}
			var rules any
			if len(l.Rules) > 0 {
				rules = string(l.Rules)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO checkin_lists (`+checkInListColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET event_slug = excluded.event_slug,
					name = excluded.name,
					all_products = excluded.all_products,
					limit_products = excluded.limit_products,
					subevent_id = excluded.subevent_id,
					include_pending = excluded.include_pending,
					allow_multiple_entries = excluded.allow_multiple_entries,
					allow_entry_after_exit = excluded.allow_entry_after_exit,
					rules = excluded.rules`,
				l.ID, l.EventSlug, l.Name, l.AllProducts, limit, nullInt(l.SubEventID),
				l.IncludePending, l.AllowMultipleEntries, l.AllowEntryAfterExit, rules)
			if err != nil {
				return fmt.Errorf("failed to upsert checkin list %d: %w", l.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UpsertItems(ctx context.Context, items []models.Item) error {
	return r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, it := range items {
			name, err := encodeJSON(it.Name)
			if err != nil {
				return err
			}
			variations, err := encodeJSON(it.Variations)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO items (id, event_slug, name, admission, checkin_attention, variations)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET event_slug = excluded.event_slug,
					name = excluded.name,
					admission = excluded.admission,
					checkin_attention = excluded.checkin_attention,
					variations = excluded.variations`,
				it.ID, it.EventSlug, name, it.Admission, it.CheckInAttention, variations)
			if err != nil {
				return fmt.Errorf("failed to upsert item %d: %w", it.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UpsertQuestions(ctx context.Context, questions []models.Question) error {
	return r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, q := range questions {
			text, err := encodeJSON(q.Text)
			if err != nil {
				return err
			}
			options, err := encodeJSON(q.Options)
			if err != nil {
				return err
			}
			items, err := encodeJSON(q.ItemIDs)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO questions (id, event_slug, identifier, question, type, required,
					ask_during_checkin, position, options, items)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET event_slug = excluded.event_slug,
					identifier = excluded.identifier,
					question = excluded.question,
					type = excluded.type,
					required = excluded.required,
					ask_during_checkin = excluded.ask_during_checkin,
					position = excluded.position,
					options = excluded.options,
					items = excluded.items`,
				q.ID, q.EventSlug, q.Identifier, text, string(q.Type), q.Required,
				q.AskDuringCheckIn, q.Position, options, items)
			if err != nil {
				return fmt.Errorf("failed to upsert question %d: %w", q.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UpsertOrders(ctx context.Context, orders []models.Order) error {
	return r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, o := range orders {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO orders (event_slug, code, status, valid_if_pending, checkin_attention, email)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(event_slug, code) DO UPDATE SET status = excluded.status,
					valid_if_pending = excluded.valid_if_pending,
					checkin_attention = excluded.checkin_attention,
					email = excluded.email`,
				o.EventSlug, o.Code, string(o.Status), o.ValidIfPending, o.CheckInAttention, o.Email)
			if err != nil {
				return fmt.Errorf("failed to upsert order %s: %w", o.Code, err)
			}
		}
		return nil
	})
}

// UpsertPositions replaces the mirrored check-ins of each position with the
// server's view. Check-ins decided on this device are kept; the server's
// copy of one of them is skipped by its nonce.
func (r *SQLiteRepository) UpsertPositions(ctx context.Context, positions []models.OrderPosition) error {
	return r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, p := range positions {
			answers, err := encodeJSON(p.Answers)
			if err != nil {
				return err
			}
			var seat any
			if p.Seat != nil {
				seat = p.Seat.Name
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO positions (id, event_slug, order_code, positionid, item_id, variation_id,
					subevent_id, secret, attendee_name, attendee_email, seat, valid_from, valid_until,
					blocked, answers)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET event_slug = excluded.event_slug,
					order_code = excluded.order_code,
					positionid = excluded.positionid,
					item_id = excluded.item_id,
					variation_id = excluded.variation_id,
					subevent_id = excluded.subevent_id,
					secret = excluded.secret,
					attendee_name = excluded.attendee_name,
					attendee_email = excluded.attendee_email,
					seat = excluded.seat,
					valid_from = excluded.valid_from,
					valid_until = excluded.valid_until,
					blocked = excluded.blocked,
					answers = excluded.answers`,
				p.ID, p.EventSlug, p.OrderCode, p.PositionID, p.ItemID, nullInt(p.VariationID),
				nullInt(p.SubEventID), p.Secret, p.AttendeeName, p.AttendeeEmail, seat,
				timex.NullableMillis(p.ValidFrom), timex.NullableMillis(p.ValidUntil), p.Blocked, answers)
			if err != nil {
				return fmt.Errorf("failed to upsert position %d: %w", p.ID, err)
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM checkins WHERE event_slug = ? AND secret = ? AND local = 0`,
				p.EventSlug, p.Secret); err != nil {
				return fmt.Errorf("failed to clear mirrored checkins: %w", err)
			}
			for _, ci := range p.CheckIns {
				ci.Secret = p.Secret
				if err := insertCheckIn(ctx, tx, p.EventSlug, ci, false); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) AddRevoked(ctx context.Context, keys []models.RevokedKey) error {
	return r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, k := range keys {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO revoked_secrets (event_slug, secret) VALUES (?, ?)
				ON CONFLICT(event_slug, secret) DO NOTHING`, k.EventSlug, k.Secret)
			if err != nil {
				return fmt.Errorf("failed to add revoked secret: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) SetBlocked(ctx context.Context, keys []models.BlockedKey) error {
	return r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, k := range keys {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO blocked_secrets (event_slug, secret, blocked) VALUES (?, ?, ?)
				ON CONFLICT(event_slug, secret) DO UPDATE SET blocked = excluded.blocked`,
				k.EventSlug, k.Secret, k.Blocked)
			if err != nil {
				return fmt.Errorf("failed to set blocked secret: %w", err)
			}
		}
		return nil
	})
}

// Import applies a whole snapshot in one transaction.
func (r *SQLiteRepository) Import(ctx context.Context, snap Snapshot) error {
	if snap.Event.Slug == "" {
		return fmt.Errorf("import: snapshot has no event slug")
	}
	return r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewSQLiteRepository(tx)
		steps := []func() error{
			func() error { return repo.UpsertEvent(ctx, snap.Event) },
			func() error { return repo.UpsertSubEvents(ctx, withEvent(snap.SubEvents, snap.Event.Slug, setSubEventSlug)) },
			func() error { return repo.UpsertCheckInLists(ctx, withEvent(snap.CheckInLists, snap.Event.Slug, setListSlug)) },
			func() error { return repo.UpsertItems(ctx, withEvent(snap.Items, snap.Event.Slug, setItemSlug)) },
			func() error { return repo.UpsertQuestions(ctx, withEvent(snap.Questions, snap.Event.Slug, setQuestionSlug)) },
			func() error { return repo.UpsertOrders(ctx, withEvent(snap.Orders, snap.Event.Slug, setOrderSlug)) },
			func() error { return repo.UpsertPositions(ctx, withEvent(snap.Positions, snap.Event.Slug, setPositionSlug)) },
			func() error { return repo.AddRevoked(ctx, withEvent(snap.Revoked, snap.Event.Slug, setRevokedSlug)) },
			func() error { return repo.SetBlocked(ctx, withEvent(snap.Blocked, snap.Event.Slug, setBlockedSlug)) },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return fmt.Errorf("import %s: %w", snap.Event.Slug, err)
			}
		}
		return nil
	})
}

// withEvent fills in the event slug of records that omit it.
func withEvent[T any](records []T, slug string, set func(*T, string)) []T {
	for i := range records {
		set(&records[i], slug)
	}
	return records
}

func setSubEventSlug(v *models.SubEvent, s string) {
	if v.EventSlug == "" {
		v.EventSlug = s
	}
}

func setListSlug(v *models.CheckInList, s string) {
	if v.EventSlug == "" {
		v.EventSlug = s
	}
}

func setItemSlug(v *models.Item, s string) {
	if v.EventSlug == "" {
		v.EventSlug = s
	}
}

func setQuestionSlug(v *models.Question, s string) {
	if v.EventSlug == "" {
		v.EventSlug = s
	}
}

func setOrderSlug(v *models.Order, s string) {
	if v.EventSlug == "" {
		v.EventSlug = s
	}
}

func setPositionSlug(v *models.OrderPosition, s string) {
	if v.EventSlug == "" {
		v.EventSlug = s
	}
}

func setRevokedSlug(v *models.RevokedKey, s string) {
	if v.EventSlug == "" {
		v.EventSlug = s
	}
}

func setBlockedSlug(v *models.BlockedKey, s string) {
	if v.EventSlug == "" {
		v.EventSlug = s
	}
}
