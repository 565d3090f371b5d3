package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/tickets"
	"github.com/dmitrijs2005/gophscan/internal/client/services"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/google/uuid"
)

var errNoSelection = errors.New("no check-in list selected, run: use <event> <list id>")

// Redeem checks a ticket in or out. An empty dir uses the configured default
// direction. When the server or the engine asks for answers the operator is
// prompted and the attempt is retried with the same nonce.
func (a *App) Redeem(ctx context.Context, dir models.Direction, args []string) error {
	if a.sel.IsZero() {
		return errNoSelection
	}

	var (
		secret string
		opts   services.RedeemOptions
	)
	for _, arg := range args {
		switch arg {
		case "--force", "-f":
			opts.Force = true
		case "--ignore-unpaid":
			opts.IgnoreUnpaid = true
		default:
			if secret != "" {
				return fmt.Errorf("unexpected argument %q", arg)
			}
			secret = arg
		}
	}
	if secret == "" {
		s, err := GetSimpleText(a.scanner, "Scan or type the ticket secret:", a.out)
		if err != nil {
			return err
		}
		secret = s
	}
	if secret == "" {
		return nil
	}

	if dir == "" {
		dir = a.direction
	}
	opts.Direction = dir
	opts.Nonce = uuid.NewString()

	for {
		resp, err := a.validator.Redeem(ctx, a.sel, secret, opts)
		if err != nil {
			return err
		}
		if resp.Outcome != models.OutcomeIncompleteQuestions {
			a.printResponse(resp)
			return nil
		}

		answers, ok, err := a.askQuestions(resp)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.out, "Check-in aborted.")
			return nil
		}
		opts.Answers = overlayAnswers(opts.Answers, answers)
	}
}

// askQuestions prompts for every missing answer. ok is false when the
// operator leaves an answer blank.
func (a *App) askQuestions(resp *models.RedemptionResponse) ([]models.Answer, bool, error) {
	asked := resp.Questions
	if len(resp.MissingQuestions) > 0 {
		asked = slices.DeleteFunc(slices.Clone(asked), func(q models.Question) bool {
			return !slices.Contains(resp.MissingQuestions, q.ID)
		})
	}

	answers := make([]models.Answer, 0, len(asked))
	for _, q := range asked {
		value, err := GetSimpleText(a.scanner, a.questionPrompt(q), a.out)
		if err != nil {
			return nil, false, err
		}
		if value == "" {
			return nil, false, nil
		}
		answers = append(answers, models.Answer{QuestionID: q.ID, Value: value})
	}
	return answers, true, nil
}

func (a *App) questionPrompt(q models.Question) string {
	var b strings.Builder
	b.WriteString(q.Text.Localized(a.locale))
	if q.Required {
		b.WriteString(" *")
	}
	switch q.Type {
	case models.QuestionChoice, models.QuestionMultipleChoice:
		for _, o := range q.Options {
			fmt.Fprintf(&b, "\n  [%d] %s", o.ID, o.Answer.Localized(a.locale))
		}
	case models.QuestionBoolean:
		b.WriteString(" (True/False)")
	case models.QuestionDate:
		b.WriteString(" (YYYY-MM-DD)")
	}
	return b.String()
}

// overlayAnswers replaces answers to the same question and appends new ones.
func overlayAnswers(given, fresh []models.Answer) []models.Answer {
	out := slices.Clone(given)
	for _, f := range fresh {
		i := slices.IndexFunc(out, func(a models.Answer) bool { return a.QuestionID == f.QuestionID })
		if i >= 0 {
			out[i] = f
			continue
		}
		out = append(out, f)
	}
	return out
}

func (a *App) printResponse(resp *models.RedemptionResponse) {
	if resp.Admitted() {
		fmt.Fprintln(a.out, "VALID")
	} else {
		fmt.Fprintf(a.out, "DENIED: %s\n", describeOutcome(resp.Outcome))
	}

	if resp.Item != nil {
		name := resp.Item.Name.Localized(a.locale)
		if resp.Variation != nil {
			name += " - " + resp.Variation.Value.Localized(a.locale)
		}
		fmt.Fprintf(a.out, "  Ticket:    %s\n", name)
	}
	if p := resp.Position; p != nil {
		if p.AttendeeName != "" {
			fmt.Fprintf(a.out, "  Attendee:  %s\n", p.AttendeeName)
		}
		if p.Seat != nil {
			fmt.Fprintf(a.out, "  Seat:      %s\n", p.Seat.Name)
		}
		if p.OrderCode != "" {
			fmt.Fprintf(a.out, "  Order:     %s-%d\n", p.OrderCode, p.PositionID)
		}
		if p.RequiresAttention {
			fmt.Fprintln(a.out, "  ATTENTION: special ticket, check with the attendee")
		}
	}
	if resp.LastCheckIn != nil {
		fmt.Fprintf(a.out, "  Last scan: %s (%s)\n", resp.LastCheckIn.Date.Local().Format(time.DateTime), resp.LastCheckIn.Type)
	}
	if resp.Reason != "" && !resp.Admitted() {
		fmt.Fprintf(a.out, "  Reason:    %s\n", resp.Reason)
	}
}

func describeOutcome(o models.Outcome) string {
	switch o {
	case models.OutcomeAlreadyRedeemed:
		return "already checked in"
	case models.OutcomeInvalid:
		return "unknown ticket"
	case models.OutcomeInvalidTime:
		return "not valid at this time"
	case models.OutcomeProduct:
		return "product not allowed on this list"
	case models.OutcomeRules:
		return "entry rules not met"
	case models.OutcomeBlocked:
		return "ticket blocked"
	case models.OutcomeRevoked:
		return "ticket revoked"
	case models.OutcomeUnpaid:
		return "order not paid"
	case models.OutcomeCanceled:
		return "order canceled"
	}
	return string(o)
}

func (a *App) Search(ctx context.Context, query string) error {
	if a.sel.IsZero() {
		return errNoSelection
	}
	if strings.TrimSpace(query) == "" {
		return errors.New("usage: search <text>")
	}

	rows, err := a.search.Search(ctx, a.sel, query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "No tickets found.")
		return nil
	}
	for _, r := range rows {
		mark := " "
		if r.IsRedeemed {
			mark = "*"
		}
		ticket := r.Ticket
		if r.Variation != "" {
			ticket += " - " + r.Variation
		}
		fmt.Fprintf(a.out, "%s %s-%d  %-24s %-20s %-9s %s\n", mark, r.OrderCode, r.PositionID, r.AttendeeName, ticket, r.Status, r.Secret)
	}
	return nil
}

func (a *App) Status(ctx context.Context) error {
	if a.sel.IsZero() {
		return errNoSelection
	}
	st, err := a.validator.CheckInListStatus(ctx, a.sel)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s / %s\n", st.EventName, st.ListName)
	fmt.Fprintf(a.out, "  Checked in: %d of %d, inside now: %d\n", st.CheckInCount, st.PositionCount, st.InsideCount)
	for _, it := range st.Items {
		fmt.Fprintf(a.out, "  %-30s %d/%d\n", it.Name, it.CheckInCount, it.PositionCount)
		for _, v := range it.Variations {
			fmt.Fprintf(a.out, "    %-28s %d/%d\n", v.Value, v.CheckInCount, v.PositionCount)
		}
	}
	return nil
}

func (a *App) Questions(ctx context.Context, args []string) error {
	if a.sel.IsZero() {
		return errNoSelection
	}
	if len(args) != 1 {
		return errors.New("usage: questions <item id>")
	}
	itemID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid item id %q", args[0])
	}

	questions, err := a.validator.Questions(ctx, a.sel, itemID)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		fmt.Fprintln(a.out, "No check-in questions.")
		return nil
	}
	for _, q := range questions {
		req := ""
		if q.Required {
			req = " (required)"
		}
		fmt.Fprintf(a.out, "  [%d] %s%s\n", q.ID, q.Text.Localized(a.locale), req)
	}
	return nil
}

// Sync drains the upload queue now, joining a pass already in flight.
func (a *App) Sync(ctx context.Context) error {
	res, err := a.runner.DrainNow(ctx)
	fmt.Fprintf(a.out, "Uploaded %d, rejected %d, remaining %d\n", res.Uploaded, res.Rejected, res.Remaining)
	return err
}

func (a *App) Pending(ctx context.Context) error {
	events, err := a.repos.Queue.Events(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(a.out, "Nothing waiting for upload.")
	}
	for _, slug := range events {
		n, err := a.repos.Queue.Count(ctx, slug)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "  %s: %d\n", slug, n)
	}

	last, err := a.repos.Metadata.LastDrain(ctx)
	if err != nil {
		return err
	}
	if last.IsZero() {
		fmt.Fprintln(a.out, "Last upload: never")
	} else {
		fmt.Fprintf(a.out, "Last upload: %s\n", last.Local().Format(time.DateTime))
	}
	return nil
}

// Use lists the check-in lists of the current event, or selects one and
// remembers it for the next start.
func (a *App) Use(ctx context.Context, args []string) error {
	switch len(args) {
	case 0:
		return a.printLists(ctx)
	case 2:
	default:
		return errors.New("usage: use [<event> <list id>]")
	}

	listID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || listID <= 0 {
		return fmt.Errorf("invalid list id %q", args[1])
	}
	sel := models.Selection{EventSlug: args[0], CheckInListID: listID}

	list, err := a.repos.Tickets.CheckInList(ctx, listID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		if a.mode != services.ModeOnline {
			return fmt.Errorf("check-in list %d is not in the local data, import it first", listID)
		}
		fmt.Fprintln(a.out, "Warning: list not in the local data, offline scanning will not work.")
	case err != nil:
		return err
	case list.EventSlug != sel.EventSlug:
		return fmt.Errorf("check-in list %d belongs to event %q", listID, list.EventSlug)
	}

	if err := a.repos.Metadata.SetSelection(ctx, sel); err != nil {
		return err
	}
	a.sel = sel
	fmt.Fprintf(a.out, "Using %s/%d\n", sel.EventSlug, sel.CheckInListID)
	return nil
}

func (a *App) printLists(ctx context.Context) error {
	if a.sel.EventSlug == "" {
		fmt.Fprintln(a.out, "No event selected.")
		return nil
	}
	lists, err := a.repos.Tickets.CheckInLists(ctx, a.sel.EventSlug)
	if err != nil {
		return err
	}
	for _, l := range lists {
		mark := " "
		if l.ID == a.sel.CheckInListID {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s %d  %s\n", mark, l.ID, l.Name)
	}
	return nil
}

// Mode shows or changes the validation mode and the auto-sync setting.
func (a *App) Mode(ctx context.Context, args []string) error {
	if len(args) == 0 {
		reach := "unreachable"
		if a.watcher.Online() {
			reach = "reachable"
		}
		fmt.Fprintf(a.out, "Mode: %s, auto-sync: %t, server %s\n", a.mode, a.runner.AutoSync(), reach)
		return nil
	}

	if args[0] == "autosync" {
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return errors.New("usage: mode autosync on|off")
		}
		a.runner.SetAutoSync(args[1] == "on")
		fmt.Fprintf(a.out, "Auto-sync %s\n", args[1])
		return nil
	}

	mode, err := services.ParseMode(args[0])
	if err != nil {
		return err
	}
	if err := a.setMode(mode); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Switched to %s mode\n", mode)
	return nil
}

// Import loads an event data bundle (the JSON form of a tickets.Snapshot)
// into the local store.
func (a *App) Import(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: import <file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	var snap tickets.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	if err := a.repos.Tickets.Import(ctx, snap); err != nil {
		return err
	}

	a.log.Info(ctx, "event data imported", "event", snap.Event.Slug, "positions", len(snap.Positions))
	fmt.Fprintf(a.out, "Imported %s: %d lists, %d tickets\n", snap.Event.Slug, len(snap.CheckInLists), len(snap.Positions))
	return nil
}
