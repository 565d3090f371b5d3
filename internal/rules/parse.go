package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned for rules that cannot be parsed or evaluated.
var ErrMalformed = errors.New("malformed rule")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Parse turns a JsonLogic rule into an AST. An empty document, null or an
// empty object yield a nil Node, which always passes.
func Parse(raw []byte) (Node, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, malformed("invalid json: %v", err)
	}
	if doc == nil {
		return nil, nil
	}
	if m, ok := doc.(map[string]any); ok && len(m) == 0 {
		return nil, nil
	}
	return convert(doc)
}

func convert(v any) (Node, error) {
	switch t := v.(type) {
	case nil:
		return Literal{Value: Null()}, nil
	case bool:
		return Literal{Value: Bool(t)}, nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return nil, malformed("invalid number %s", t)
		}
		return Literal{Value: Number(n)}, nil
	case string:
		return Literal{Value: String(t)}, nil
	case []any:
		return convertList(t)
	case map[string]any:
		if len(t) != 1 {
			return nil, malformed("operator object must have exactly one key, got %d", len(t))
		}
		for op, arg := range t {
			return convertOp(op, arg)
		}
	}
	return nil, malformed("unsupported value %T", v)
}

func convertList(items []any) (Node, error) {
	values := make([]Value, 0, len(items))
	for _, item := range items {
		n, err := convert(item)
		if err != nil {
			return nil, err
		}
		lit, ok := n.(Literal)
		if !ok {
			return nil, malformed("list elements must be constants")
		}
		values = append(values, lit.Value)
	}
	return Literal{Value: List(values...)}, nil
}

// operands normalizes the argument of an operator to a slice; JsonLogic
// allows a bare value for unary operators.
func operands(arg any) []any {
	if list, ok := arg.([]any); ok {
		return list
	}
	return []any{arg}
}

func convertArgs(args []any) ([]Node, error) {
	nodes := make([]Node, 0, len(args))
	for _, a := range args {
		n, err := convert(a)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func convertOp(op string, arg any) (Node, error) {
	args := operands(arg)

	switch op {
	case "and", "or":
		if len(args) == 0 {
			return nil, malformed("%s needs at least one argument", op)
		}
		nodes, err := convertArgs(args)
		if err != nil {
			return nil, err
		}
		if op == "and" {
			return And{Args: nodes}, nil
		}
		return Or{Args: nodes}, nil

	case "!", "!!":
		if len(args) != 1 {
			return nil, malformed("%s needs one argument", op)
		}
		n, err := convert(args[0])
		if err != nil {
			return nil, err
		}
		if op == "!!" {
			return Not{Arg: Not{Arg: n}}, nil
		}
		return Not{Arg: n}, nil

	case "==", "===", "!=", "!==", ">", ">=", "<", "<=", "isAfter", "isBefore", "inList":
		return convertCompare(op, args)

	case "var":
		if len(args) == 0 {
			return nil, malformed("var needs a name")
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, malformed("var name must be a string")
		}
		return Var{Name: name}, nil

	case "buildTime":
		if len(args) == 0 || len(args) > 2 {
			return nil, malformed("buildTime needs one or two arguments")
		}
		kind, ok := args[0].(string)
		if !ok {
			return nil, malformed("buildTime kind must be a string")
		}
		bt := BuildTime{Kind: kind}
		if len(args) == 2 && args[1] != nil {
			value, ok := args[1].(string)
			if !ok {
				return nil, malformed("buildTime value must be a string")
			}
			bt.Value = value
		}
		switch bt.Kind {
		case "custom", "customtime":
			if bt.Value == "" {
				return nil, malformed("buildTime %s needs a value", bt.Kind)
			}
		case "date_from", "date_to", "date_admission":
		default:
			return nil, malformed("unknown buildTime kind %q", bt.Kind)
		}
		return bt, nil

	case "objectList":
		values := make([]Value, 0, len(args))
		for _, a := range args {
			n, err := convert(a)
			if err != nil {
				return nil, err
			}
			lit, ok := n.(Literal)
			if !ok {
				return nil, malformed("objectList elements must be lookups")
			}
			values = append(values, lit.Value)
		}
		return Literal{Value: List(values...)}, nil

	case "lookup":
		// ["product", "<id>", "<label>"]
		if len(args) < 2 {
			return nil, malformed("lookup needs a model and an id")
		}
		switch id := args[1].(type) {
		case string:
			return Literal{Value: String(id)}, nil
		case json.Number:
			return Literal{Value: String(id.String())}, nil
		default:
			return nil, malformed("lookup id must be a string or number")
		}
	}

	return nil, malformed("unsupported operator %q", op)
}

func convertCompare(op string, args []any) (Node, error) {
	switch op {
	case "===":
		op = "=="
	case "!==":
		op = "!="
	}

	lo, hi := 2, 2
	switch Op(op) {
	case OpLt, OpLe:
		hi = 3
	case OpIsAfter, OpIsBefore:
		hi = 3
	}
	if len(args) < lo || len(args) > hi {
		return nil, malformed("%s needs %d to %d arguments, got %d", op, lo, hi, len(args))
	}

	nodes, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	return Compare{Op: Op(op), Args: nodes}, nil
}

// Format renders n in a compact prefix notation, for logs and tests.
func Format(n Node) string {
	switch t := n.(type) {
	case nil:
		return "true"
	case And:
		return "and(" + formatAll(t.Args) + ")"
	case Or:
		return "or(" + formatAll(t.Args) + ")"
	case Not:
		return "not(" + Format(t.Arg) + ")"
	case Compare:
		return string(t.Op) + "(" + formatAll(t.Args) + ")"
	case Var:
		return "$" + t.Name
	case Literal:
		return t.Value.String()
	case BuildTime:
		if t.Value == "" {
			return "time(" + t.Kind + ")"
		}
		return "time(" + t.Kind + "," + t.Value + ")"
	default:
		return fmt.Sprintf("%T", n)
	}
}

func formatAll(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = Format(n)
	}
	return strings.Join(parts, ",")
}
