package interp

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rlmkit/rlm/internal/rlm/value"
)

// defaultBuiltins returns the global namespace every turn's code executes
// against: the fixed subset of Python builtins the accepted grammar can
// reach, plus print() wired to the Interp's Output sink.
func defaultBuiltins(it *Interp) map[string]value.Value {
	b := map[string]value.Value{}

	b["print"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.Str2()
		}
		line := strings.Join(parts, " ")
		if it.Output != nil {
			it.Output(line + "\n")
		}
		return value.None(), nil
	})

	b["len"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) != 1 {
			return value.None(), newErr(KindTypeError, "len() takes exactly one argument")
		}
		n, err := lenOf(args[0])
		if err != nil {
			return value.None(), err
		}
		return value.Int(int64(n)), nil
	})

	b["range"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		var start, stop, step int64 = 0, 0, 1
		switch len(args) {
		case 1:
			stop = args[0].AsInt()
		case 2:
			start, stop = args[0].AsInt(), args[1].AsInt()
		case 3:
			start, stop, step = args[0].AsInt(), args[1].AsInt(), args[2].AsInt()
		default:
			return value.None(), newErr(KindTypeError, "range expected 1 to 3 arguments, got %d", len(args))
		}
		if step == 0 {
			return value.None(), newErr(KindValueError, "range() arg 3 must not be zero")
		}
		var out []value.Value
		if step > 0 {
			for i := start; i < stop; i += step {
				out = append(out, value.Int(i))
			}
		} else {
			for i := start; i > stop; i += step {
				out = append(out, value.Int(i))
			}
		}
		return value.List(out), nil
	})

	b["enumerate"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 {
			return value.None(), newErr(KindTypeError, "enumerate() missing argument")
		}
		start := int64(0)
		if len(args) > 1 {
			start = args[1].AsInt()
		}
		items, err := it.iterate(args[0])
		if err != nil {
			return value.None(), err
		}
		out := make([]value.Value, len(items))
		for i, v := range items {
			out[i] = value.Tuple([]value.Value{value.Int(start + int64(i)), v})
		}
		return value.List(out), nil
	})

	b["zip"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 {
			return value.List(nil), nil
		}
		seqs := make([][]value.Value, len(args))
		minLen := -1
		for i, a := range args {
			items, err := it.iterate(a)
			if err != nil {
				return value.None(), err
			}
			seqs[i] = items
			if minLen == -1 || len(items) < minLen {
				minLen = len(items)
			}
		}
		out := make([]value.Value, minLen)
		for i := 0; i < minLen; i++ {
			tup := make([]value.Value, len(seqs))
			for j := range seqs {
				tup[j] = seqs[j][i]
			}
			out[i] = value.Tuple(tup)
		}
		return value.List(out), nil
	})

	b["map"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) < 2 {
			return value.None(), newErr(KindTypeError, "map() expected at least 2 arguments")
		}
		fn := args[0]
		if fn.Kind() != value.KindCallable {
			return value.None(), newErr(KindTypeError, "map() first argument must be callable")
		}
		items, err := it.iterate(args[1])
		if err != nil {
			return value.None(), err
		}
		out := make([]value.Value, len(items))
		for i, v := range items {
			res, cerr := fn.AsCallable()([]value.Value{v})
			if cerr != nil {
				return value.None(), toExecErr(cerr)
			}
			out[i] = res
		}
		return value.List(out), nil
	})

	b["filter"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) != 2 {
			return value.None(), newErr(KindTypeError, "filter() expected 2 arguments")
		}
		items, err := it.iterate(args[1])
		if err != nil {
			return value.None(), err
		}
		var out []value.Value
		for _, v := range items {
			keep := v.Truthy()
			if !args[0].IsNone() {
				res, cerr := args[0].AsCallable()([]value.Value{v})
				if cerr != nil {
					return value.None(), toExecErr(cerr)
				}
				keep = res.Truthy()
			}
			if keep {
				out = append(out, v)
			}
		}
		return value.List(out), nil
	})

	b["sorted"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 {
			return value.None(), newErr(KindTypeError, "sorted() missing argument")
		}
		items, err := it.iterate(args[0])
		if err != nil {
			return value.None(), err
		}
		var keyFn value.Builtin
		reverse := false
		for i := 1; i < len(args); i++ {
			if args[i].Kind() == value.KindCallable {
				keyFn = args[i].AsCallable()
			} else if args[i].Kind() == value.KindBool {
				reverse = args[i].AsBool()
			}
		}
		sorted, serr := sortValues(items, keyFn, reverse)
		if serr != nil {
			return value.None(), serr
		}
		return value.List(sorted), nil
	})

	b["reversed"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		items, err := it.iterate(args[0])
		if err != nil {
			return value.None(), err
		}
		out := make([]value.Value, len(items))
		for i, v := range items {
			out[len(items)-1-i] = v
		}
		return value.List(out), nil
	})

	b["sum"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		items, err := it.iterate(args[0])
		if err != nil {
			return value.None(), err
		}
		var start value.Value = value.Int(0)
		if len(args) > 1 {
			start = args[1]
		}
		acc := start
		for _, v := range items {
			res, berr := binOp("+", acc, v)
			if berr != nil {
				return value.None(), berr
			}
			acc = res
		}
		return acc, nil
	})

	b["min"] = minMax(it, false)
	b["max"] = minMax(it, true)

	b["abs"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		v := args[0]
		if v.Kind() == value.KindFloat {
			return value.Float(math.Abs(v.AsFloat())), nil
		}
		n := v.AsInt()
		if n < 0 {
			n = -n
		}
		return value.Int(n), nil
	})

	b["round"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		f := args[0].AsFloat()
		if len(args) > 1 {
			ndigits := int(args[1].AsInt())
			mult := math.Pow(10, float64(ndigits))
			return value.Float(math.Round(f*mult) / mult), nil
		}
		return value.Int(int64(math.Round(f))), nil
	})

	b["any"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		items, err := it.iterate(args[0])
		if err != nil {
			return value.None(), err
		}
		for _, v := range items {
			if v.Truthy() {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	})

	b["all"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		items, err := it.iterate(args[0])
		if err != nil {
			return value.None(), err
		}
		for _, v := range items {
			if !v.Truthy() {
				return value.Bool(false), nil
			}
		}
		return value.Bool(true), nil
	})

	b["bool"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 {
			return value.Bool(false), nil
		}
		return value.Bool(args[0].Truthy()), nil
	})

	b["int"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 {
			return value.Int(0), nil
		}
		v := args[0]
		switch v.Kind() {
		case value.KindInt:
			return v, nil
		case value.KindFloat:
			return value.Int(int64(v.AsFloat())), nil
		case value.KindBool:
			if v.AsBool() {
				return value.Int(1), nil
			}
			return value.Int(0), nil
		case value.KindStr:
			base := 10
			if len(args) > 1 {
				base = int(args[1].AsInt())
			}
			n, perr := strconv.ParseInt(strings.TrimSpace(v.AsStr()), base, 64)
			if perr != nil {
				return value.None(), newErr(KindValueError, "invalid literal for int() with base %d: %s", base, v.Repr())
			}
			return value.Int(n), nil
		default:
			return value.None(), newErr(KindTypeError, "int() argument must be a string or a number, not '%s'", value.TypeName(v))
		}
	})

	b["float"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 {
			return value.Float(0), nil
		}
		v := args[0]
		switch v.Kind() {
		case value.KindFloat:
			return v, nil
		case value.KindInt:
			return value.Float(float64(v.AsInt())), nil
		case value.KindStr:
			f, perr := strconv.ParseFloat(strings.TrimSpace(v.AsStr()), 64)
			if perr != nil {
				return value.None(), newErr(KindValueError, "could not convert string to float: %s", v.Repr())
			}
			return value.Float(f), nil
		default:
			return value.None(), newErr(KindTypeError, "float() argument must be a string or a number")
		}
	})

	b["str"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 {
			return value.Str(""), nil
		}
		return value.Str(args[0].Str2()), nil
	})

	b["repr"] = bi(func(args []value.Value) (value.Value, *ExecError) { return value.Str(args[0].Repr()), nil })

	b["bytes"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 {
			return value.Bytes(nil), nil
		}
		v := args[0]
		switch v.Kind() {
		case value.KindStr:
			return value.Bytes([]byte(v.AsStr())), nil
		case value.KindInt:
			return value.Bytes(make([]byte, v.AsInt())), nil
		case value.KindList, value.KindTuple:
			out := make([]byte, len(v.AsList()))
			for i, it := range v.AsList() {
				out[i] = byte(it.AsInt())
			}
			return value.Bytes(out), nil
		default:
			return value.None(), newErr(KindTypeError, "cannot convert '%s' object to bytes", value.TypeName(v))
		}
	})

	b["list"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 {
			return value.List(nil), nil
		}
		items, err := it.iterate(args[0])
		if err != nil {
			return value.None(), err
		}
		return value.List(items), nil
	})

	b["tuple"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 {
			return value.Tuple(nil), nil
		}
		items, err := it.iterate(args[0])
		if err != nil {
			return value.None(), err
		}
		return value.Tuple(items), nil
	})

	b["dict"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		d := value.NewDict()
		if len(args) == 0 {
			return d, nil
		}
		items, err := it.iterate(args[0])
		if err != nil {
			return value.None(), err
		}
		for _, pair := range items {
			kv := pair.AsList()
			if len(kv) != 2 {
				return value.None(), newErr(KindValueError, "dictionary update sequence element has length %d; 2 is required", len(kv))
			}
			key, kerr := dictKey(kv[0])
			if kerr != nil {
				return value.None(), kerr
			}
			d.DictSet(key, kv[1])
		}
		return d, nil
	})

	b["set"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		s := value.NewSet()
		if len(args) == 0 {
			return s, nil
		}
		items, err := it.iterate(args[0])
		if err != nil {
			return value.None(), err
		}
		for _, v := range items {
			s.Set().Set(v.Repr(), v)
		}
		return s, nil
	})

	b["frozenset"] = b["set"]

	b["isinstance"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) != 2 {
			return value.None(), newErr(KindTypeError, "isinstance() takes exactly 2 arguments")
		}
		want := args[1].AsStr()
		return value.Bool(value.TypeName(args[0]) == want), nil
	})

	b["hash"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		key, err := dictKey(args[0])
		if err != nil {
			return value.None(), err
		}
		var h int64
		for _, c := range key {
			h = h*31 + int64(c)
		}
		return value.Int(h), nil
	})

	b["ord"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		r := []rune(args[0].AsStr())
		if len(r) != 1 {
			return value.None(), newErr(KindTypeError, "ord() expected a character")
		}
		return value.Int(int64(r[0])), nil
	})

	b["chr"] = bi(func(args []value.Value) (value.Value, *ExecError) { return value.Str(string(rune(args[0].AsInt()))), nil })

	b["hex"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		n := args[0].AsInt()
		if n < 0 {
			return value.Str(fmt.Sprintf("-0x%x", -n)), nil
		}
		return value.Str(fmt.Sprintf("0x%x", n)), nil
	})

	b["bin"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		n := args[0].AsInt()
		if n < 0 {
			return value.Str(fmt.Sprintf("-0b%b", -n)), nil
		}
		return value.Str(fmt.Sprintf("0b%b", n)), nil
	})

	b["oct"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		n := args[0].AsInt()
		if n < 0 {
			return value.Str(fmt.Sprintf("-0o%o", -n)), nil
		}
		return value.Str(fmt.Sprintf("0o%o", n)), nil
	})

	b["divmod"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) != 2 {
			return value.None(), newErr(KindTypeError, "divmod() takes exactly 2 arguments")
		}
		q, qerr := binOp("//", args[0], args[1])
		if qerr != nil {
			return value.None(), qerr
		}
		r, rerr := binOp("%", args[0], args[1])
		if rerr != nil {
			return value.None(), rerr
		}
		return value.Tuple([]value.Value{q, r}), nil
	})

	b["pow"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) < 2 {
			return value.None(), newErr(KindTypeError, "pow() expected at least 2 arguments")
		}
		res, err := binOp("**", args[0], args[1])
		if err != nil {
			return value.None(), err
		}
		if len(args) == 3 {
			return binOp("%", res, args[2])
		}
		return res, nil
	})

	b["iter"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		items, err := it.iterate(args[0])
		if err != nil {
			return value.None(), err
		}
		i := 0
		return value.NewBuiltin(func(callArgs []value.Value) (value.Value, error) {
			if i >= len(items) {
				return value.None(), &ExecError{Kind: KindOther, Message: "StopIteration"}
			}
			v := items[i]
			i++
			return v, nil
		}), nil
	})

	b["recursive_llm"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) != 2 {
			return value.None(), newErr(KindTypeError, "recursive_llm() takes exactly 2 arguments")
		}
		if it.RecursiveLLM == nil {
			return value.None(), newErr(KindOther, "recursive_llm is not available in this context")
		}
		res, err := it.RecursiveLLM(args)
		if err != nil {
			return value.None(), toExecErr(err)
		}
		return res, nil
	})

	b["next"] = bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 || args[0].Kind() != value.KindCallable {
			return value.None(), newErr(KindTypeError, "next() expected an iterator")
		}
		res, err := args[0].AsCallable()(nil)
		if err != nil {
			if len(args) > 1 {
				return args[1], nil
			}
			return value.None(), toExecErr(err)
		}
		return res, nil
	})

	return b
}

func toExecErr(err error) *ExecError {
	if ee, ok := err.(*ExecError); ok {
		return ee
	}
	if ce, ok := err.(*value.CapError); ok {
		return &ExecError{Kind: ErrorKind(ce.Kind), Message: ce.Message}
	}
	return newErr(KindOther, "%v", err)
}

func lenOf(v value.Value) (int, *ExecError) {
	switch v.Kind() {
	case value.KindStr:
		return len([]rune(v.AsStr())), nil
	case value.KindBytes:
		return len(v.AsBytes()), nil
	case value.KindList, value.KindTuple:
		return len(v.AsList()), nil
	case value.KindDict:
		return v.Dict().Len(), nil
	case value.KindSet:
		return v.Set().Len(), nil
	default:
		return 0, newErr(KindTypeError, "object of type '%s' has no len()", value.TypeName(v))
	}
}

func minMax(it *Interp, wantMax bool) value.Value {
	return bi(func(args []value.Value) (value.Value, *ExecError) {
		if len(args) == 0 {
			return value.None(), newErr(KindTypeError, "min()/max() expected at least 1 argument")
		}
		var items []value.Value
		var keyFn value.Builtin
		var defaultVal *value.Value
		if len(args) == 1 {
			seq, err := it.iterate(args[0])
			if err != nil {
				return value.None(), err
			}
			items = seq
		} else {
			for _, a := range args {
				if a.Kind() == value.KindCallable {
					keyFn = a.AsCallable()
					continue
				}
				items = append(items, a)
			}
		}
		if len(items) == 0 {
			if defaultVal != nil {
				return *defaultVal, nil
			}
			return value.None(), newErr(KindValueError, "min()/max() arg is an empty sequence")
		}
		keyOf := func(v value.Value) (value.Value, *ExecError) {
			if keyFn == nil {
				return v, nil
			}
			res, err := keyFn([]value.Value{v})
			if err != nil {
				return value.None(), toExecErr(err)
			}
			return res, nil
		}
		best := items[0]
		bestKey, err := keyOf(best)
		if err != nil {
			return value.None(), err
		}
		for _, v := range items[1:] {
			k, err := keyOf(v)
			if err != nil {
				return value.None(), err
			}
			op := "<"
			if wantMax {
				op = ">"
			}
			better, cerr := compareOp(op, k, bestKey)
			if cerr != nil {
				return value.None(), cerr
			}
			if better {
				best, bestKey = v, k
			}
		}
		return best, nil
	})
}
