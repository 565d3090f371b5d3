// Package rules evaluates check-in list admission rules.
//
// Rules arrive in the JsonLogic dialect used by the ticketing server and are
// parsed into a small tagged AST (And, Or, Not, Compare, Var, Literal,
// BuildTime) which is then interpreted against an Env describing the scan.
package rules

import (
	"fmt"
	"strconv"
	"time"
)

// Node is an AST node. The concrete types are And, Or, Not, Compare, Var,
// Literal and BuildTime.
type Node interface {
	node()
}

type And struct{ Args []Node }

type Or struct{ Args []Node }

type Not struct{ Arg Node }

// Op is a comparison operator.
type Op string

const (
	OpEq       Op = "=="
	OpNe       Op = "!="
	OpLt       Op = "<"
	OpLe       Op = "<="
	OpGt       Op = ">"
	OpGe       Op = ">="
	OpIsAfter  Op = "isAfter"
	OpIsBefore Op = "isBefore"
	OpInList   Op = "inList"
)

// Compare applies Op to Args. Ordering operators accept a third argument
// ("between"); isAfter and isBefore accept an optional tolerance in minutes.
type Compare struct {
	Op   Op
	Args []Node
}

// Var reads a scan variable such as "product" or "entries_number".
type Var struct{ Name string }

type Literal struct{ Value Value }

// BuildTime constructs a point in time: "custom" (RFC 3339 timestamp),
// "customtime" (wall clock time today in the event's zone), "date_from",
// "date_to" and "date_admission".
type BuildTime struct {
	Kind  string
	Value string
}

func (And) node()       {}
func (Or) node()        {}
func (Not) node()       {}
func (Compare) node()   {}
func (Var) node()       {}
func (Literal) node()   {}
func (BuildTime) node() {}

// Kind is the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindTime
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is a dynamically typed rule value.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
	Time time.Time
	List []Value
}

func Null() Value               { return Value{} }
func Number(n float64) Value    { return Value{Kind: KindNumber, Num: n} }
func String(s string) Value     { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func Time(t time.Time) Value    { return Value{Kind: KindTime, Time: t} }
func List(items ...Value) Value { return Value{Kind: KindList, List: items} }

// Truthy follows JsonLogic truthiness.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0
	case KindString:
		return v.Str != ""
	case KindTime:
		return !v.Time.IsZero()
	case KindList:
		return len(v.List) > 0
	default:
		return false
	}
}

// number returns the numeric value of v. Strings holding a number count.
func (v Value) number() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		n, err := strconv.ParseFloat(v.Str, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return strconv.Quote(v.Str)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.Format(time.RFC3339)
	case KindList:
		return fmt.Sprintf("%v", v.List)
	default:
		return "null"
	}
}
