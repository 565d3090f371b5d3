package rules

import (
	"math"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
)

// Result is the outcome of a rule check.
type Result int

const (
	Pass Result = iota
	Fail
	Malformed
)

func (r Result) String() string {
	switch r {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	default:
		return "malformed"
	}
}

// Env is the scan a rule is evaluated against.
type Env struct {
	Product   int64
	Variation *int64
	SubEvent  *int64
	Now       time.Time
	// Location is the event's time zone; days and wall clock times are
	// computed in it. Nil means UTC.
	Location *time.Location
	// CheckIns are the ticket's check-ins on the list being scanned.
	CheckIns []models.CheckIn
	// Effective dates of the (sub-)event.
	DateFrom      *time.Time
	DateTo        *time.Time
	DateAdmission *time.Time
}

func (e Env) loc() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

// Check evaluates n. A nil rule passes; any evaluation error is Malformed.
func Check(n Node, env Env) (Result, error) {
	if n == nil {
		return Pass, nil
	}
	v, err := Evaluate(n, env)
	if err != nil {
		return Malformed, err
	}
	if v.Truthy() {
		return Pass, nil
	}
	return Fail, nil
}

// Evaluate interprets n and returns its value.
func Evaluate(n Node, env Env) (Value, error) {
	switch t := n.(type) {
	case nil:
		return Bool(true), nil

	case And:
		for _, a := range t.Args {
			v, err := Evaluate(a, env)
			if err != nil {
				return Value{}, err
			}
			if !v.Truthy() {
				return Bool(false), nil
			}
		}
		return Bool(true), nil

	case Or:
		for _, a := range t.Args {
			v, err := Evaluate(a, env)
			if err != nil {
				return Value{}, err
			}
			if v.Truthy() {
				return Bool(true), nil
			}
		}
		return Bool(false), nil

	case Not:
		v, err := Evaluate(t.Arg, env)
		if err != nil {
			return Value{}, err
		}
		return Bool(!v.Truthy()), nil

	case Compare:
		ok, err := evalCompare(t, env)
		if err != nil {
			return Value{}, err
		}
		return Bool(ok), nil

	case Var:
		return resolveVar(t.Name, env)

	case Literal:
		return t.Value, nil

	case BuildTime:
		return buildTime(t, env)
	}
	return Value{}, malformed("unsupported node %T", n)
}

func evalArgs(nodes []Node, env Env) ([]Value, error) {
	values := make([]Value, len(nodes))
	for i, n := range nodes {
		v, err := Evaluate(n, env)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func evalCompare(c Compare, env Env) (bool, error) {
	if len(c.Args) < 2 {
		return false, malformed("%s needs two arguments, got %d", c.Op, len(c.Args))
	}
	args, err := evalArgs(c.Args, env)
	if err != nil {
		return false, err
	}

	switch c.Op {
	case OpEq:
		return equal(args[0], args[1]), nil
	case OpNe:
		return !equal(args[0], args[1]), nil

	case OpLt, OpLe, OpGt, OpGe:
		for i := 0; i+1 < len(args); i++ {
			cmp, err := order(args[i], args[i+1])
			if err != nil {
				return false, err
			}
			if !holds(c.Op, cmp) {
				return false, nil
			}
		}
		return true, nil

	case OpIsAfter, OpIsBefore:
		if args[0].Kind != KindTime || args[1].Kind != KindTime {
			return false, malformed("%s compares times, got %s and %s", c.Op, args[0].Kind, args[1].Kind)
		}
		var tolerance time.Duration
		if len(args) == 3 && args[2].Kind != KindNull {
			minutes, ok := args[2].number()
			if !ok {
				return false, malformed("%s tolerance must be a number of minutes", c.Op)
			}
			tolerance = time.Duration(minutes * float64(time.Minute))
		}
		if c.Op == OpIsAfter {
			return args[0].Time.After(args[1].Time.Add(-tolerance)), nil
		}
		return args[0].Time.Before(args[1].Time.Add(tolerance)), nil

	case OpInList:
		if args[1].Kind != KindList {
			return false, malformed("inList needs a list, got %s", args[1].Kind)
		}
		for _, item := range args[1].List {
			if equal(args[0], item) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, malformed("unsupported operator %q", c.Op)
}

func holds(op Op, cmp int) bool {
	switch op {
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	default:
		return cmp >= 0
	}
}

// equal is loose equality: values of different kinds are unequal, except
// that a string holding a number equals that number.
func equal(a, b Value) bool {
	if a.Kind != b.Kind {
		if (a.Kind == KindNumber && b.Kind == KindString) || (a.Kind == KindString && b.Kind == KindNumber) {
			x, okA := a.number()
			y, okB := b.number()
			return okA && okB && x == y
		}
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindNumber:
		return a.Num == b.Num
	case KindString:
		return a.Str == b.Str
	case KindBool:
		return a.Bool == b.Bool
	case KindTime:
		return a.Time.Equal(b.Time)
	default:
		return false
	}
}

// order compares two times or two numbers (numeric strings included).
func order(a, b Value) (int, error) {
	if a.Kind == KindTime && b.Kind == KindTime {
		return a.Time.Compare(b.Time), nil
	}
	x, okA := a.number()
	y, okB := b.number()
	if !okA || !okB {
		return 0, malformed("cannot order %s and %s", a.Kind, b.Kind)
	}
	switch {
	case x < y:
		return -1, nil
	case x > y:
		return 1, nil
	default:
		return 0, nil
	}
}

func optionalID(id *int64) Value {
	if id == nil {
		return Null()
	}
	return Number(float64(*id))
}

func resolveVar(name string, env Env) (Value, error) {
	loc := env.loc()
	now := env.Now.In(loc)

	switch name {
	case "product":
		return Number(float64(env.Product)), nil
	case "variation":
		return optionalID(env.Variation), nil
	case "subevent":
		return optionalID(env.SubEvent), nil
	case "now":
		return Time(env.Now), nil
	case "now_isoweekday":
		wd := int(now.Weekday())
		if wd == 0 {
			wd = 7
		}
		return Number(float64(wd)), nil
	}

	var entries []time.Time
	for _, ci := range env.CheckIns {
		if ci.Type == models.DirectionEntry {
			entries = append(entries, ci.Date)
		}
	}

	switch name {
	case "entries_number":
		return Number(float64(len(entries))), nil

	case "entries_today":
		y, m, d := now.Date()
		n := 0
		for _, t := range entries {
			ey, em, ed := t.In(loc).Date()
			if ey == y && em == m && ed == d {
				n++
			}
		}
		return Number(float64(n)), nil

	case "entries_days":
		days := map[string]struct{}{}
		for _, t := range entries {
			days[t.In(loc).Format(time.DateOnly)] = struct{}{}
		}
		return Number(float64(len(days))), nil

	case "minutes_since_last_entry", "minutes_since_first_entry":
		if len(entries) == 0 {
			return Number(-1), nil
		}
		ref := entries[0]
		for _, t := range entries[1:] {
			if name == "minutes_since_last_entry" && t.After(ref) {
				ref = t
			}
			if name == "minutes_since_first_entry" && t.Before(ref) {
				ref = t
			}
		}
		return Number(math.Floor(env.Now.Sub(ref).Minutes())), nil
	}

	return Value{}, malformed("unknown variable %q", name)
}

func buildTime(bt BuildTime, env Env) (Value, error) {
	switch bt.Kind {
	case "custom":
		t, err := time.Parse(time.RFC3339, bt.Value)
		if err != nil {
			return Value{}, malformed("invalid custom time %q", bt.Value)
		}
		return Time(t), nil

	case "customtime":
		var (
			clock time.Time
			err   error
		)
		for _, layout := range []string{"15:04:05", "15:04"} {
			if clock, err = time.Parse(layout, bt.Value); err == nil {
				break
			}
		}
		if err != nil {
			return Value{}, malformed("invalid custom time of day %q", bt.Value)
		}
		now := env.Now.In(env.loc())
		y, m, d := now.Date()
		return Time(time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, env.loc())), nil

	case "date_from":
		if env.DateFrom == nil {
			return Value{}, malformed("event has no start date")
		}
		return Time(*env.DateFrom), nil

	case "date_to":
		if env.DateTo == nil {
			return Value{}, malformed("event has no end date")
		}
		return Time(*env.DateTo), nil

	case "date_admission":
		if env.DateAdmission != nil {
			return Time(*env.DateAdmission), nil
		}
		if env.DateFrom == nil {
			return Value{}, malformed("event has no admission date")
		}
		return Time(*env.DateFrom), nil
	}
	return Value{}, malformed("unknown buildTime kind %q", bt.Kind)
}
