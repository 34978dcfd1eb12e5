package interp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rlmkit/rlm/internal/rlm/value"
)

// stringOrListMethod resolves `x.method` to a bound builtin for the
// handful of str/bytes/list/dict/set methods the accepted subset
// supports. No reflection: every case is an explicit closure.
func stringOrListMethod(it *Interp, x value.Value, name string) (value.Value, *ExecError) {
	switch x.Kind() {
	case value.KindStr:
		return strMethod(x.AsStr(), name)
	case value.KindList:
		return listMethod(it, x, name)
	case value.KindTuple:
		return tupleMethod(x, name)
	case value.KindDict:
		return dictMethod(it, x, name)
	case value.KindSet:
		return setMethod(it, x, name)
	case value.KindBytes:
		return bytesMethod(x, name)
	}
	return value.None(), newErr(KindAttributeError, "'%s' object has no attribute %q", value.TypeName(x), name)
}

// chargeTurn charges n bytes against the active turn's budget from
// inside a method closure that mutates a container in place (append,
// extend, insert) rather than returning a newly-constructed value —
// evalCall's allocate-on-return-value charging never sees these since
// they return None, so growth must be charged here instead.
func chargeTurn(it *Interp, n int) *ExecError {
	if it == nil || it.turnBudget == nil {
		return nil
	}
	if err := it.turnBudget.Allocate(n); err != nil {
		return mapLimitErr(err)
	}
	return nil
}

func bi(fn func(args []value.Value) (value.Value, *ExecError)) value.Value {
	return value.NewBuiltin(func(args []value.Value) (value.Value, error) {
		v, err := fn(args)
		if err != nil {
			return value.None(), err
		}
		return v, nil
	})
}

func strArg(args []value.Value, i int, def string) string {
	if i < len(args) {
		return args[i].AsStr()
	}
	return def
}

func strMethod(s, name string) (value.Value, *ExecError) {
	switch name {
	case "upper":
		return bi(func(a []value.Value) (value.Value, *ExecError) { return value.Str(strings.ToUpper(s)), nil }), nil
	case "lower":
		return bi(func(a []value.Value) (value.Value, *ExecError) { return value.Str(strings.ToLower(s)), nil }), nil
	case "strip":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			if len(a) > 0 {
				return value.Str(strings.Trim(s, a[0].AsStr())), nil
			}
			return value.Str(strings.TrimSpace(s)), nil
		}), nil
	case "lstrip":
		return bi(func(a []value.Value) (value.Value, *ExecError) { return value.Str(strings.TrimLeft(s, strArg(a, 0, " \t\n\r"))), nil }), nil
	case "rstrip":
		return bi(func(a []value.Value) (value.Value, *ExecError) { return value.Str(strings.TrimRight(s, strArg(a, 0, " \t\n\r"))), nil }), nil
	case "split":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			var parts []string
			if len(a) == 0 || a[0].IsNone() {
				parts = strings.Fields(s)
			} else {
				parts = strings.Split(s, a[0].AsStr())
			}
			out := make([]value.Value, len(parts))
			for i, p := range parts {
				out[i] = value.Str(p)
			}
			return value.List(out), nil
		}), nil
	case "splitlines":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			parts := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
			if len(parts) > 0 && parts[len(parts)-1] == "" && strings.HasSuffix(s, "\n") {
				parts = parts[:len(parts)-1]
			}
			out := make([]value.Value, len(parts))
			for i, p := range parts {
				out[i] = value.Str(p)
			}
			return value.List(out), nil
		}), nil
	case "join":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			if len(a) != 1 {
				return value.None(), newErr(KindTypeError, "join() takes exactly one argument")
			}
			items := a[0].AsList()
			if a[0].Kind() == value.KindStr {
				var out []string
				for _, r := range a[0].AsStr() {
					out = append(out, string(r))
				}
				return value.Str(strings.Join(out, s)), nil
			}
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = it.Str2()
			}
			return value.Str(strings.Join(parts, s)), nil
		}), nil
	case "replace":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			if len(a) < 2 {
				return value.None(), newErr(KindTypeError, "replace() takes at least 2 arguments")
			}
			n := -1
			if len(a) > 2 {
				n = int(a[2].AsInt())
			}
			return value.Str(strings.Replace(s, a[0].AsStr(), a[1].AsStr(), n)), nil
		}), nil
	case "startswith":
		return bi(func(a []value.Value) (value.Value, *ExecError) { return value.Bool(strings.HasPrefix(s, a[0].AsStr())), nil }), nil
	case "endswith":
		return bi(func(a []value.Value) (value.Value, *ExecError) { return value.Bool(strings.HasSuffix(s, a[0].AsStr())), nil }), nil
	case "find":
		return bi(func(a []value.Value) (value.Value, *ExecError) { return value.Int(int64(strings.Index(s, a[0].AsStr()))), nil }), nil
	case "count":
		return bi(func(a []value.Value) (value.Value, *ExecError) { return value.Int(int64(strings.Count(s, a[0].AsStr()))), nil }), nil
	case "format":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			out := s
			for _, v := range a {
				out = strings.Replace(out, "{}", v.Str2(), 1)
			}
			return value.Str(out), nil
		}), nil
	case "title":
		return bi(func(a []value.Value) (value.Value, *ExecError) { return value.Str(strings.Title(strings.ToLower(s))), nil }), nil
	case "capitalize":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			if s == "" {
				return value.Str(s), nil
			}
			return value.Str(strings.ToUpper(s[:1]) + strings.ToLower(s[1:])), nil
		}), nil
	case "isdigit":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			for _, r := range s {
				if r < '0' || r > '9' {
					return value.Bool(false), nil
				}
			}
			return value.Bool(s != ""), nil
		}), nil
	case "isalpha":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			for _, r := range s {
				if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
					return value.Bool(false), nil
				}
			}
			return value.Bool(s != ""), nil
		}), nil
	case "encode":
		return bi(func(a []value.Value) (value.Value, *ExecError) { return value.Bytes([]byte(s)), nil }), nil
	case "zfill":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			width := int(a[0].AsInt())
			if len(s) >= width {
				return value.Str(s), nil
			}
			return value.Str(strings.Repeat("0", width-len(s)) + s), nil
		}), nil
	}
	return value.None(), newErr(KindAttributeError, "'str' object has no attribute %q", name)
}

func bytesMethod(x value.Value, name string) (value.Value, *ExecError) {
	b := x.AsBytes()
	switch name {
	case "decode":
		return bi(func(a []value.Value) (value.Value, *ExecError) { return value.Str(string(b)), nil }), nil
	case "hex":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			const digits = "0123456789abcdef"
			var sb strings.Builder
			for _, c := range b {
				sb.WriteByte(digits[c>>4])
				sb.WriteByte(digits[c&0xf])
			}
			return value.Str(sb.String()), nil
		}), nil
	}
	return value.None(), newErr(KindAttributeError, "'bytes' object has no attribute %q", name)
}

// listMethod resolves mutating list methods. Value's list field is a
// pointer to a slice header (see value.Value.SetListElems), so mutating
// through x is visible to every other Value sharing the same list.
func listMethod(it *Interp, x value.Value, name string) (value.Value, *ExecError) {
	cell := &listCell{items: x.AsList()}
	switch name {
	case "append":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			if err := chargeTurn(it, value.ByteSize(a[0])); err != nil {
				return value.None(), err
			}
			cell.items = append(cell.items, a[0])
			x.SetListElems(cell.items)
			return value.None(), nil
		}), nil
	case "extend":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			added := a[0].AsList()
			n := 0
			for _, it2 := range added {
				n += value.ByteSize(it2)
			}
			if err := chargeTurn(it, n); err != nil {
				return value.None(), err
			}
			cell.items = append(cell.items, added...)
			x.SetListElems(cell.items)
			return value.None(), nil
		}), nil
	case "pop":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			idx := len(cell.items) - 1
			if len(a) > 0 {
				idx = normalizeIndexStrict(int(a[0].AsInt()), len(cell.items))
			}
			if idx < 0 || idx >= len(cell.items) {
				return value.None(), newErr(KindIndexError, "pop index out of range")
			}
			v := cell.items[idx]
			cell.items = append(cell.items[:idx], cell.items[idx+1:]...)
			x.SetListElems(cell.items)
			return v, nil
		}), nil
	case "insert":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			if err := chargeTurn(it, value.ByteSize(a[1])); err != nil {
				return value.None(), err
			}
			idx := normalizeIndexStrict(int(a[0].AsInt()), len(cell.items))
			if idx < 0 {
				idx = 0
			}
			if idx > len(cell.items) {
				idx = len(cell.items)
			}
			cell.items = append(cell.items[:idx], append([]value.Value{a[1]}, cell.items[idx:]...)...)
			x.SetListElems(cell.items)
			return value.None(), nil
		}), nil
	case "remove":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			for i, it := range cell.items {
				if value.Equal(it, a[0]) {
					cell.items = append(cell.items[:i], cell.items[i+1:]...)
					x.SetListElems(cell.items)
					return value.None(), nil
				}
			}
			return value.None(), newErr(KindValueError, "list.remove(x): x not in list")
		}), nil
	case "sort":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			sorted, err := sortValues(cell.items, nil, false)
			if err != nil {
				return value.None(), err
			}
			copy(cell.items, sorted)
			x.SetListElems(cell.items)
			return value.None(), nil
		}), nil
	case "reverse":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			sort.SliceStable(cell.items, func(i, j int) bool { return false })
			for i, j := 0, len(cell.items)-1; i < j; i, j = i+1, j-1 {
				cell.items[i], cell.items[j] = cell.items[j], cell.items[i]
			}
			x.SetListElems(cell.items)
			return value.None(), nil
		}), nil
	case "count":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			n := 0
			for _, it := range cell.items {
				if value.Equal(it, a[0]) {
					n++
				}
			}
			return value.Int(int64(n)), nil
		}), nil
	case "index":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			for i, it := range cell.items {
				if value.Equal(it, a[0]) {
					return value.Int(int64(i)), nil
				}
			}
			return value.None(), newErr(KindValueError, "%s is not in list", a[0].Repr())
		}), nil
	case "copy":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			return value.List(append([]value.Value(nil), cell.items...)), nil
		}), nil
	}
	return value.None(), newErr(KindAttributeError, "'list' object has no attribute %q", name)
}

type listCell struct{ items []value.Value }

func tupleMethod(x value.Value, name string) (value.Value, *ExecError) {
	items := x.AsList()
	switch name {
	case "count":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			n := 0
			for _, it := range items {
				if value.Equal(it, a[0]) {
					n++
				}
			}
			return value.Int(int64(n)), nil
		}), nil
	case "index":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			for i, it := range items {
				if value.Equal(it, a[0]) {
					return value.Int(int64(i)), nil
				}
			}
			return value.None(), newErr(KindValueError, "tuple.index(x): x not in tuple")
		}), nil
	}
	return value.None(), newErr(KindAttributeError, "'tuple' object has no attribute %q", name)
}

func dictMethod(it *Interp, x value.Value, name string) (value.Value, *ExecError) {
	switch name {
	case "get":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			key, err := dictKey(a[0])
			if err != nil {
				return value.None(), err
			}
			if v, ok := x.DictGet(key); ok {
				return v, nil
			}
			if len(a) > 1 {
				return a[1], nil
			}
			return value.None(), nil
		}), nil
	case "keys":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			var out []value.Value
			for p := x.Dict().Oldest(); p != nil; p = p.Next() {
				out = append(out, dictKeyToValue(p.Key))
			}
			return value.List(out), nil
		}), nil
	case "values":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			var out []value.Value
			for p := x.Dict().Oldest(); p != nil; p = p.Next() {
				out = append(out, p.Value)
			}
			return value.List(out), nil
		}), nil
	case "items":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			var out []value.Value
			for p := x.Dict().Oldest(); p != nil; p = p.Next() {
				out = append(out, value.Tuple([]value.Value{dictKeyToValue(p.Key), p.Value}))
			}
			return value.List(out), nil
		}), nil
	case "pop":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			key, err := dictKey(a[0])
			if err != nil {
				return value.None(), err
			}
			if v, ok := x.DictGet(key); ok {
				x.Dict().Delete(key)
				return v, nil
			}
			if len(a) > 1 {
				return a[1], nil
			}
			return value.None(), newErr(KindKeyError, "%s", a[0].Repr())
		}), nil
	case "update":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			n := 0
			for p := a[0].Dict().Oldest(); p != nil; p = p.Next() {
				n += len(p.Key) + value.ByteSize(p.Value)
			}
			if err := chargeTurn(it, n); err != nil {
				return value.None(), err
			}
			for p := a[0].Dict().Oldest(); p != nil; p = p.Next() {
				x.DictSet(p.Key, p.Value)
			}
			return value.None(), nil
		}), nil
	}
	return value.None(), newErr(KindAttributeError, "'dict' object has no attribute %q", name)
}

// dictKeyToValue reverses dictKey's encoding so keys() / items() expose
// the original key type back to sandboxed code rather than a raw string.
func dictKeyToValue(k string) value.Value {
	if len(k) >= 2 && k[1] == ':' {
		rest := k[2:]
		switch k[0] {
		case 's':
			return value.Str(rest)
		case 'i':
			var n int64
			fmt.Sscanf(rest, "%d", &n)
			return value.Int(n)
		case 'f':
			var f float64
			fmt.Sscanf(rest, "%v", &f)
			return value.Float(f)
		case 'b':
			return value.Bool(rest == "true")
		case 'n':
			return value.None()
		case 't':
			inner := strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
			if inner == "" {
				return value.Tuple(nil)
			}
			parts := strings.Split(inner, ",")
			items := make([]value.Value, 0, len(parts))
			for _, p := range parts {
				items = append(items, dictKeyToValue(p))
			}
			return value.Tuple(items)
		}
	}
	return value.Str(k)
}

func setMethod(it *Interp, x value.Value, name string) (value.Value, *ExecError) {
	switch name {
	case "add":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			if err := chargeTurn(it, value.ByteSize(a[0])); err != nil {
				return value.None(), err
			}
			x.Set().Set(a[0].Repr(), a[0])
			return value.None(), nil
		}), nil
	case "remove", "discard":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			x.Set().Delete(a[0].Repr())
			return value.None(), nil
		}), nil
	case "union":
		return bi(func(a []value.Value) (value.Value, *ExecError) {
			out := value.NewSet()
			for p := x.Set().Oldest(); p != nil; p = p.Next() {
				out.Set().Set(p.Key, p.Value)
			}
			for p := a[0].Set().Oldest(); p != nil; p = p.Next() {
				out.Set().Set(p.Key, p.Value)
			}
			return out, nil
		}), nil
	}
	return value.None(), newErr(KindAttributeError, "'set' object has no attribute %q", name)
}
