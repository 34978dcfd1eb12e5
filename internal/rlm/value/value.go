// Package value implements the tagged value union that backs every
// variable and expression result inside the sandboxed interpreter.
//
// No value here is ever produced via reflection onto a host Go type:
// every operation the interpreter can perform on a Value is a case in a
// type switch, and every builtin/method exposed to sandboxed code is a
// plain closure registered by name.
package value

import (
	"fmt"
	"strings"

	omap "github.com/wk8/go-ordered-map/v2"
)

// Kind discriminates the tagged union.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindBytes
	KindList
	KindTuple
	KindDict
	KindSet
	KindCallable
	KindModule
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NoneType"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindStr:
		return "str"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindDict:
		return "dict"
	case KindSet:
		return "set"
	case KindCallable:
		return "function"
	case KindModule:
		return "module"
	default:
		return "unknown"
	}
}

// Value is the single type every piece of sandboxed data is carried in.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string
	bytes []byte
	list  *[]Value
	dict  *omap.OrderedMap[string, Value]
	set   *omap.OrderedMap[string, Value]
	call  Builtin
	mod   *Module
}

// Builtin is a host function callable from sandboxed code. It receives
// already-evaluated arguments and returns a result or an error value
// (callers convert interpreter errors separately; Builtin itself only
// reports the rare case where argument shapes are invalid).
type Builtin func(args []Value) (Value, error)

// Module is a namespace of builtins and constants, the shape used for
// re/json/base64/binascii/zlib.
type Module struct {
	Name    string
	Entries map[string]Value
}

func None() Value                 { return Value{kind: KindNone} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Int(i int64) Value           { return Value{kind: KindInt, i: i} }
func Float(f float64) Value       { return Value{kind: KindFloat, f: f} }
func Str(s string) Value          { return Value{kind: KindStr, s: s} }
func Bytes(b []byte) Value        { return Value{kind: KindBytes, bytes: append([]byte(nil), b...)} }
func List(items []Value) Value  { l := append([]Value(nil), items...); return Value{kind: KindList, list: &l} }
func Tuple(items []Value) Value { l := append([]Value(nil), items...); return Value{kind: KindTuple, list: &l} }
func NewBuiltin(fn Builtin) Value { return Value{kind: KindCallable, call: fn} }

func NewModule(m *Module) Value { return Value{kind: KindModule, mod: m} }

func NewDict() Value {
	return Value{kind: KindDict, dict: omap.New[string, Value]()}
}

func NewSet() Value {
	return Value{kind: KindSet, set: omap.New[string, Value]()}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNone() bool { return v.kind == KindNone }

func (v Value) AsBool() bool    { return v.b }
func (v Value) AsInt() int64    { return v.i }
func (v Value) AsFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}
func (v Value) AsStr() string    { return v.s }
func (v Value) AsBytes() []byte  { return v.bytes }
func (v Value) AsList() []Value {
	if v.list == nil {
		return nil
	}
	return *v.list
}

// SetListElems replaces the backing slice for a list/tuple value. Since
// list carries reference semantics (a pointer to a slice header), this
// mutation is visible through every other Value copy that shares the
// same underlying list — the mechanism list mutation methods
// (append/pop/sort/...) rely on.
func (v Value) SetListElems(items []Value) {
	*v.list = items
}
func (v Value) AsCallable() Builtin { return v.call }
func (v Value) AsModule() *Module  { return v.mod }

// Dict returns the underlying ordered map; nil if not a dict. Callers
// must only invoke this after checking Kind() == KindDict.
func (v Value) Dict() *omap.OrderedMap[string, Value] { return v.dict }
func (v Value) Set() *omap.OrderedMap[string, Value]  { return v.set }

// DictSet inserts or replaces a key in a dict value, preserving
// insertion order for new keys (Python dict semantics).
func (v Value) DictSet(key string, val Value) {
	v.dict.Set(key, val)
}

func (v Value) DictGet(key string) (Value, bool) {
	return v.dict.Get(key)
}

// Truthy implements Python's truthiness rules for the subset of types
// this runtime supports.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNone:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindStr:
		return v.s != ""
	case KindBytes:
		return len(v.bytes) > 0
	case KindList, KindTuple:
		return len(v.AsList()) > 0
	case KindDict:
		return v.dict.Len() > 0
	case KindSet:
		return v.set.Len() > 0
	default:
		return true
	}
}

// Repr renders a value the way Python's repr() would for the subset of
// types supported here. Used both by the interpreter's str()/repr()
// builtins and by error messages.
func (v Value) Repr() string {
	switch v.kind {
	case KindNone:
		return "None"
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return formatFloat(v.f)
	case KindStr:
		return "'" + strings.ReplaceAll(v.s, "'", "\\'") + "'"
	case KindBytes:
		return fmt.Sprintf("b'%s'", string(v.bytes))
	case KindList:
		return reprSeq(v.AsList(), "[", "]")
	case KindTuple:
		if len(v.AsList()) == 1 {
			return "(" + v.AsList()[0].Repr() + ",)"
		}
		return reprSeq(v.AsList(), "(", ")")
	case KindDict:
		var sb strings.Builder
		sb.WriteByte('{')
		first := true
		for p := v.dict.Oldest(); p != nil; p = p.Next() {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(Str(p.Key).Repr())
			sb.WriteString(": ")
			sb.WriteString(p.Value.Repr())
		}
		sb.WriteByte('}')
		return sb.String()
	case KindSet:
		if v.set.Len() == 0 {
			return "set()"
		}
		var sb strings.Builder
		sb.WriteByte('{')
		first := true
		for p := v.set.Oldest(); p != nil; p = p.Next() {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(p.Value.Repr())
		}
		sb.WriteByte('}')
		return sb.String()
	case KindCallable:
		return "<function>"
	case KindModule:
		return fmt.Sprintf("<module '%s'>", v.mod.Name)
	default:
		return "?"
	}
}

// Str2 renders the way Python's str() would (differs from Repr only for
// strings, which print unquoted).
func (v Value) Str2() string {
	if v.kind == KindStr {
		return v.s
	}
	return v.Repr()
}

func reprSeq(items []Value, open, close string) string {
	var sb strings.Builder
	sb.WriteString(open)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(it.Repr())
	}
	sb.WriteString(close)
	return sb.String()
}

func formatFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Equal reports Python-style equality (cross-numeric comparisons between
// int and float are allowed).
func Equal(a, b Value) bool {
	if (a.kind == KindInt || a.kind == KindFloat) && (b.kind == KindInt || b.kind == KindFloat) {
		return a.AsFloat() == b.AsFloat()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNone:
		return true
	case KindBool:
		return a.b == b.b
	case KindStr:
		return a.s == b.s
	case KindBytes:
		return string(a.bytes) == string(b.bytes)
	case KindList, KindTuple:
		al, bl := a.AsList(), b.AsList()
		if len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !Equal(al[i], bl[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if a.dict.Len() != b.dict.Len() {
			return false
		}
		for p := a.dict.Oldest(); p != nil; p = p.Next() {
			bv, ok := b.dict.Get(p.Key)
			if !ok || !Equal(p.Value, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ByteSize estimates the memory footprint of a value for budget
// accounting (spec's allocated-bytes resource cap). It is an estimate,
// not an exact accounting of Go's internal representation.
func ByteSize(v Value) int {
	switch v.kind {
	case KindNone, KindBool:
		return 8
	case KindInt, KindFloat:
		return 8
	case KindStr:
		return len(v.s)
	case KindBytes:
		return len(v.bytes)
	case KindList, KindTuple:
		n := 16
		for _, it := range v.AsList() {
			n += ByteSize(it)
		}
		return n
	case KindDict:
		n := 16
		for p := v.dict.Oldest(); p != nil; p = p.Next() {
			n += len(p.Key) + ByteSize(p.Value)
		}
		return n
	case KindSet:
		n := 16
		for p := v.set.Oldest(); p != nil; p = p.Next() {
			n += ByteSize(p.Value)
		}
		return n
	default:
		return 16
	}
}

// TypeName returns the Python-facing type name, used by isinstance/type
// errors.
func TypeName(v Value) string { return v.kind.String() }

// CapError is the error shape capability modules (re/json/base64/
// binascii/zlib) report through a Builtin's plain `error` return, since
// this package cannot import the interpreter's ExecError without a
// cycle. Kind mirrors interp.ErrorKind's string values exactly
// ("ValueError", "TypeError", ...) so the evaluator can recover the
// intended error taxonomy entry instead of collapsing every capability
// failure into "Other".
type CapError struct {
	Kind    string
	Message string
}

func (e *CapError) Error() string { return e.Kind + ": " + e.Message }
