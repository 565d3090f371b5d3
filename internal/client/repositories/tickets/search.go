package tickets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"golang.org/x/text/language"
)

// scopeFilter restricts a positions query (aliased p) to the products and
// sub-event of list.
func scopeFilter(list models.CheckInList) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	if !list.AllProducts {
		ids, err := json.Marshal(list.LimitProducts)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, `p.item_id IN (SELECT value FROM json_each(?))`)
		args = append(args, string(ids))
	}
	if list.SubEventID != nil {
		clauses = append(clauses, `p.subevent_id = ?`)
		args = append(args, *list.SubEventID)
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " AND " + strings.Join(clauses, " AND "), args, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Search finds positions of the list's event by secret or order code prefix,
// or by a substring of attendee name or e-mail. Results carry their order,
// item and the check-ins on list.
func (r *SQLiteRepository) Search(ctx context.Context, list models.CheckInList, query string, limit int) ([]models.OrderPosition, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	scope, scopeArgs, err := scopeFilter(list)
	if err != nil {
		return nil, fmt.Errorf("failed to build search scope: %w", err)
	}

	prefix := escapeLike(query) + "%"
	contains := "%" + escapeLike(query) + "%"
	args := []any{list.EventSlug, prefix, prefix, contains, contains, contains}
	args = append(args, scopeArgs...)
	args = append(args, limit)

	positions, err := r.queryPositions(ctx, `SELECT `+positionColumns+`,
			o.status, o.valid_if_pending, o.checkin_attention, o.email
		FROM positions p
		JOIN orders o ON o.event_slug = p.event_slug AND o.code = p.order_code
		WHERE p.event_slug = ? AND (
			p.secret LIKE ? ESCAPE '\' OR
			p.order_code LIKE ? ESCAPE '\' OR
			p.attendee_name LIKE ? ESCAPE '\' OR
			p.attendee_email LIKE ? ESCAPE '\' OR
			o.email LIKE ? ESCAPE '\')`+scope+`
		ORDER BY p.attendee_name, p.order_code, p.positionid
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}

	items := map[int64]*models.Item{}
	for i := range positions {
		p := &positions[i]
		it, ok := items[p.ItemID]
		if !ok {
			it, err = r.Item(ctx, p.ItemID)
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return nil, err
			}
			items[p.ItemID] = it
		}
		p.Item = it
		p.RequiresAttention = p.Order.CheckInAttention || (it != nil && it.CheckInAttention)

		p.CheckIns, err = r.CheckIns(ctx, list.ID, p.Secret)
		if err != nil {
			return nil, err
		}
	}
	return positions, nil
}

// queryPositions reads all rows before returning so that follow-up lookups
// do not compete with an open cursor.
func (r *SQLiteRepository) queryPositions(ctx context.Context, query string, args ...any) ([]models.OrderPosition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select positions: %w", err)
	}
	defer rows.Close()

	var result []models.OrderPosition
	for rows.Next() {
		var (
			o      models.Order
			status string
		)
		p, err := scanPosition(rows, &status, &o.ValidIfPending, &o.CheckInAttention, &o.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		o.Status = models.OrderStatus(status)
		o.Code = p.OrderCode
		o.EventSlug = p.EventSlug
		p.Order = &o
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return result, nil
}

type checkInState struct {
	entered bool
	last    models.Direction
}

func (r *SQLiteRepository) listCheckInStates(ctx context.Context, listID int64) (map[string]checkInState, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT secret, type FROM checkins WHERE list_id = ? ORDER BY date, id`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to select checkins: %w", err)
	}
	defer rows.Close()

	states := map[string]checkInState{}
	for rows.Next() {
		var secret, ctype string
		if err := rows.Scan(&secret, &ctype); err != nil {
			return nil, fmt.Errorf("failed to scan checkin: %w", err)
		}
		st := states[secret]
		st.last = models.Direction(ctype)
		if st.last == models.DirectionEntry {
			st.entered = true
		}
		states[secret] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkins: %w", err)
	}
	return states, nil
}

// ListStatus aggregates the valid positions of list. A position counts when
// its order is paid, or pending and either valid if pending or admitted by
// the list.
func (r *SQLiteRepository) ListStatus(ctx context.Context, list models.CheckInList, tag language.Tag) (*models.CheckInListStatus, error) {
	scope, scopeArgs, err := scopeFilter(list)
	if err != nil {
		return nil, fmt.Errorf("failed to build status scope: %w", err)
	}
	args := append([]any{list.EventSlug}, scopeArgs...)

	positions, err := r.queryPositions(ctx, `SELECT `+positionColumns+`,
			o.status, o.valid_if_pending, o.checkin_attention, o.email
		FROM positions p
		JOIN orders o ON o.event_slug = p.event_slug AND o.code = p.order_code
		WHERE p.event_slug = ?`+scope+`
		ORDER BY p.id`, args...)
	if err != nil {
		return nil, err
	}

	states, err := r.listCheckInStates(ctx, list.ID)
	if err != nil {
		return nil, err
	}

	status := &models.CheckInListStatus{ListName: list.Name}
	if ev, err := r.Event(ctx, list.EventSlug); err == nil {
		status.EventName = ev.Name.Localized(tag)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	byItem := map[int64]*models.CheckInListItemStatus{}
	byVariation := map[[2]int64]*models.CheckInListVariationStatus{}

	for _, p := range positions {
		switch {
		case p.Order.Status == models.OrderPaid:
		case p.Order.Status == models.OrderPending && (p.Order.ValidIfPending || list.IncludePending):
		default:
			continue
		}

		st := states[p.Secret]
		status.PositionCount++
		if st.entered {
			status.CheckInCount++
		}
		if st.last == models.DirectionEntry {
			status.InsideCount++
		}

		is, ok := byItem[p.ItemID]
		if !ok {
			is = &models.CheckInListItemStatus{ItemID: p.ItemID}
			it, err := r.Item(ctx, p.ItemID)
			switch {
			case err == nil:
				is.Name = it.Name.Localized(tag)
				is.Admission = it.Admission
				for _, v := range it.Variations {
					byVariation[[2]int64{it.ID, v.ID}] = &models.CheckInListVariationStatus{
						VariationID: v.ID,
						Value:       v.Value.Localized(tag),
					}
				}
			case errors.Is(err, common.ErrNotFound):
			default:
				return nil, err
			}
			byItem[p.ItemID] = is
		}
		is.PositionCount++
		if st.entered {
			is.CheckInCount++
		}

		if p.VariationID != nil {
			key := [2]int64{p.ItemID, *p.VariationID}
			vs, ok := byVariation[key]
			if !ok {
				vs = &models.CheckInListVariationStatus{VariationID: *p.VariationID}
				byVariation[key] = vs
			}
			vs.PositionCount++
			if st.entered {
				vs.CheckInCount++
			}
		}
	}

	for key, vs := range byVariation {
		if is, ok := byItem[key[0]]; ok {
			is.Variations = append(is.Variations, *vs)
		}
	}
	for _, is := range byItem {
		sort.Slice(is.Variations, func(i, j int) bool { return is.Variations[i].VariationID < is.Variations[j].VariationID })
		status.Items = append(status.Items, *is)
	}
	sort.Slice(status.Items, func(i, j int) bool { return status.Items[i].ItemID < status.Items[j].ItemID })

	return status, nil
}
