package query

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/Server-perf/watchman/pkg/view"
)

// QueryExpr is one node of a compiled expression tree. Any node may
// short-circuit its subexpressions.
type QueryExpr interface {
	Evaluate(ctx *evalContext, f *view.File) bool
}

// CompareOp is one of the six integer comparison operators accepted by the
// mtime/ctime/size term kinds.
type CompareOp int

const (
	OpEQ CompareOp = iota
	OpNE
	OpGT
	OpGE
	OpLT
	OpLE
)

// ParseCompareOp maps a term's operator token to a CompareOp, failing with
// *bad-operator* (per the reference terminology) for anything else.
func ParseCompareOp(token string) (CompareOp, error) {
	switch token {
	case "eq", "==":
		return OpEQ, nil
	case "ne", "!=":
		return OpNE, nil
	case "gt", ">":
		return OpGT, nil
	case "ge", ">=":
		return OpGE, nil
	case "lt", "<":
		return OpLT, nil
	case "le", "<=":
		return OpLE, nil
	default:
		return 0, errors.Errorf("bad-operator: %q", token)
	}
}

func (op CompareOp) compare(a, b int64) bool {
	switch op {
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	case OpGT:
		return a > b
	case OpGE:
		return a >= b
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	default:
		return false
	}
}

// exprFunc adapts a plain function to QueryExpr.
type exprFunc func(ctx *evalContext, f *view.File) bool

func (fn exprFunc) Evaluate(ctx *evalContext, f *view.File) bool {
	return fn(ctx, f)
}

// True is the always-true node.
func True() QueryExpr {
	return exprFunc(func(*evalContext, *view.File) bool { return true })
}

// False is the always-false node.
func False() QueryExpr {
	return exprFunc(func(*evalContext, *view.File) bool { return false })
}

// Not negates its operand.
func Not(operand QueryExpr) QueryExpr {
	return exprFunc(func(ctx *evalContext, f *view.File) bool {
		return !operand.Evaluate(ctx, f)
	})
}

// AllOf is a short-circuiting conjunction.
func AllOf(operands ...QueryExpr) QueryExpr {
	return exprFunc(func(ctx *evalContext, f *view.File) bool {
		for _, operand := range operands {
			if !operand.Evaluate(ctx, f) {
				return false
			}
		}
		return true
	})
}

// AnyOf is a short-circuiting disjunction.
func AnyOf(operands ...QueryExpr) QueryExpr {
	return exprFunc(func(ctx *evalContext, f *view.File) bool {
		for _, operand := range operands {
			if operand.Evaluate(ctx, f) {
				return true
			}
		}
		return false
	})
}

// NameMatch matches a File's local name against a literal name (or, when
// caseSensitive is false, a case-insensitive comparison).
func NameMatch(name string, caseSensitive bool) QueryExpr {
	return exprFunc(func(ctx *evalContext, f *view.File) bool {
		actual := f.Name().String()
		if caseSensitive {
			return actual == name
		}
		return strings.EqualFold(actual, name)
	})
}

// PathMatch matches a File's wholename against a literal relative path.
func PathMatch(p string, caseSensitive bool) QueryExpr {
	return exprFunc(func(ctx *evalContext, f *view.File) bool {
		actual := ctx.wholename(f)
		if caseSensitive {
			return actual == p
		}
		return strings.EqualFold(actual, p)
	})
}

// SuffixMatch matches a File whose name ends in one of the given suffixes,
// compared case-insensitively (suffixes are always indexed lowercase).
func SuffixMatch(suffixes ...string) QueryExpr {
	set := make(map[string]struct{}, len(suffixes))
	for _, s := range suffixes {
		set[strings.ToLower(s)] = struct{}{}
	}
	return exprFunc(func(ctx *evalContext, f *view.File) bool {
		name := f.Name().String()
		idx := strings.LastIndexByte(name, '.')
		if idx < 0 || idx == len(name)-1 {
			return false
		}
		_, ok := set[strings.ToLower(name[idx+1:])]
		return ok
	})
}

// FileType identifies the kind of filesystem entry a "type" term matches.
type FileType int

const (
	TypeRegular FileType = iota
	TypeDirectory
	TypeSymlink
)

// TypeMatch matches a File's mode against the given type. Since the
// generators here only ever visit File nodes (Directories are traversed,
// not matched), TypeDirectory never matches; it exists for parser
// completeness with the term vocabulary.
func TypeMatch(t FileType) QueryExpr {
	return exprFunc(func(_ *evalContext, f *view.File) bool {
		mode := f.Stat().Mode
		switch t {
		case TypeDirectory:
			return false
		case TypeSymlink:
			return mode&os.ModeSymlink != 0
		default:
			return mode.IsRegular()
		}
	})
}

// SizeCompare matches a File's size against operand using op.
func SizeCompare(op CompareOp, operand int64) QueryExpr {
	return exprFunc(func(_ *evalContext, f *view.File) bool {
		return op.compare(f.Stat().Size, operand)
	})
}

// MtimeCompare matches a File's modification time, expressed as a Unix
// timestamp, against operand using op.
func MtimeCompare(op CompareOp, operand int64) QueryExpr {
	return exprFunc(func(_ *evalContext, f *view.File) bool {
		return op.compare(f.Stat().Mtime.Unix(), operand)
	})
}

// CtimeCompare matches a File's creation tick against operand using op.
func CtimeCompare(op CompareOp, operand int64) QueryExpr {
	return exprFunc(func(_ *evalContext, f *view.File) bool {
		return op.compare(int64(f.CtimeTicks()), operand)
	})
}

// ExistsMatch matches a File's last-observed existence flag.
func ExistsMatch(want bool) QueryExpr {
	return exprFunc(func(_ *evalContext, f *view.File) bool {
		return f.Exists() == want
	})
}

// namedExprs holds subexpressions registered under a name for later
// reference by SubExpr, mirroring the reference design's ability to
// reference a previously-defined term by name.
var namedExprs = make(map[string]QueryExpr)

// RegisterNamed makes expr available for later lookup by SubExpr under
// name. It is intended to be called once per query compilation, not
// concurrently with query execution.
func RegisterNamed(name string, expr QueryExpr) {
	namedExprs[name] = expr
}

// SubExpr references a previously registered named expression, failing at
// evaluation time (rather than at parse time) if the name was never
// registered, matching term kinds that resolve lazily.
func SubExpr(name string) QueryExpr {
	return exprFunc(func(ctx *evalContext, f *view.File) bool {
		expr, ok := namedExprs[name]
		if !ok {
			return false
		}
		return expr.Evaluate(ctx, f)
	})
}

// TermParser builds a QueryExpr from a decoded JSON-shaped term. Term
// kinds are registered by name at startup via RegisterTermParser, forming
// the process-wide, append-only registry described for the query engine.
type TermParser func(args []interface{}) (QueryExpr, error)

var termParsers = make(map[string]TermParser)

// RegisterTermParser adds a term kind to the process-wide registry. It is
// intended to be called only from init functions, before InitAll runs.
func RegisterTermParser(name string, parser TermParser) {
	termParsers[name] = parser
}

// InitAll is the query engine's one-shot startup entry point. After it
// returns, the term-parser registry is treated as read-only.
func InitAll() {
	// Built-in term kinds are registered via this package's own init
	// function; InitAll exists so that call sites have an explicit,
	// documented point at which the registry becomes stable, matching
	// the reference design's init_all entry point.
}

func init() {
	RegisterTermParser("true", func([]interface{}) (QueryExpr, error) {
		return True(), nil
	})
	RegisterTermParser("false", func([]interface{}) (QueryExpr, error) {
		return False(), nil
	})
	RegisterTermParser("exists", func([]interface{}) (QueryExpr, error) {
		return ExistsMatch(true), nil
	})
	RegisterTermParser("name", func(args []interface{}) (QueryExpr, error) {
		if len(args) != 1 {
			return nil, errors.New("name requires exactly one argument")
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, errors.New("name argument must be a string")
		}
		return NameMatch(name, true), nil
	})
	RegisterTermParser("path", func(args []interface{}) (QueryExpr, error) {
		if len(args) != 1 {
			return nil, errors.New("path requires exactly one argument")
		}
		p, ok := args[0].(string)
		if !ok {
			return nil, errors.New("path argument must be a string")
		}
		return PathMatch(p, true), nil
	})
	RegisterTermParser("suffix", func(args []interface{}) (QueryExpr, error) {
		suffixes := make([]string, 0, len(args))
		for _, raw := range args {
			s, ok := raw.(string)
			if !ok {
				return nil, errors.New("suffix arguments must be strings")
			}
			suffixes = append(suffixes, s)
		}
		return SuffixMatch(suffixes...), nil
	})
	RegisterTermParser("type", func(args []interface{}) (QueryExpr, error) {
		if len(args) != 1 {
			return nil, errors.New("type requires exactly one argument")
		}
		token, ok := args[0].(string)
		if !ok {
			return nil, errors.New("type argument must be a string")
		}
		switch token {
		case "f":
			return TypeMatch(TypeRegular), nil
		case "d":
			return TypeMatch(TypeDirectory), nil
		case "l":
			return TypeMatch(TypeSymlink), nil
		default:
			return nil, errors.Errorf("unrecognized type token: %q", token)
		}
	})
	RegisterTermParser("size", func(args []interface{}) (QueryExpr, error) {
		if len(args) != 1 {
			return nil, errors.New("size requires exactly one argument")
		}
		op, operand, err := parseIntOrCompare(args[0])
		if err != nil {
			return nil, err
		}
		return SizeCompare(op, operand), nil
	})
	RegisterTermParser("mtime", func(args []interface{}) (QueryExpr, error) {
		if len(args) != 1 {
			return nil, errors.New("mtime requires exactly one argument")
		}
		op, operand, err := parseIntOrCompare(args[0])
		if err != nil {
			return nil, err
		}
		return MtimeCompare(op, operand), nil
	})
	RegisterTermParser("ctime", func(args []interface{}) (QueryExpr, error) {
		if len(args) != 1 {
			return nil, errors.New("ctime requires exactly one argument")
		}
		op, operand, err := parseIntOrCompare(args[0])
		if err != nil {
			return nil, err
		}
		return CtimeCompare(op, operand), nil
	})
}

// ParseTerm parses one JSON-shaped term: ["kind", arg1, arg2, ...].
func ParseTerm(term []interface{}) (QueryExpr, error) {
	if len(term) == 0 {
		return nil, errors.New("empty term")
	}
	kind, ok := term[0].(string)
	if !ok {
		return nil, errors.New("term kind must be a string")
	}

	switch kind {
	case "not":
		if len(term) != 2 {
			return nil, errors.New("not requires exactly one operand")
		}
		sub, ok := term[1].([]interface{})
		if !ok {
			return nil, errors.New("not operand must be a term")
		}
		operand, err := ParseTerm(sub)
		if err != nil {
			return nil, err
		}
		return Not(operand), nil
	case "allof", "anyof":
		operands := make([]QueryExpr, 0, len(term)-1)
		for _, raw := range term[1:] {
			sub, ok := raw.([]interface{})
			if !ok {
				return nil, errors.Errorf("%s operand must be a term", kind)
			}
			operand, err := ParseTerm(sub)
			if err != nil {
				return nil, err
			}
			operands = append(operands, operand)
		}
		if kind == "allof" {
			return AllOf(operands...), nil
		}
		return AnyOf(operands...), nil
	}

	parser, ok := termParsers[kind]
	if !ok {
		return nil, errors.Errorf("unknown term kind: %q", kind)
	}
	return parser(term[1:])
}

// parseIntOrCompare interprets a term argument that is either a bare
// integer (treated as equality) or a two-element [operator, operand] pair.
func parseIntOrCompare(arg interface{}) (CompareOp, int64, error) {
	switch v := arg.(type) {
	case []interface{}:
		if len(v) != 2 {
			return 0, 0, errors.New("comparison term must have exactly two elements")
		}
		token, ok := v[0].(string)
		if !ok {
			return 0, 0, errors.New("comparison operator must be a string")
		}
		op, err := ParseCompareOp(token)
		if err != nil {
			return 0, 0, err
		}
		operand, ok := toInt64(v[1])
		if !ok {
			return 0, 0, errors.New("comparison operand must be an integer")
		}
		return op, operand, nil
	default:
		if operand, ok := toInt64(v); ok {
			return OpEQ, operand, nil
		}
		return 0, 0, errors.Errorf("unsupported comparison term shape: %v", fmt.Sprintf("%T", arg))
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
