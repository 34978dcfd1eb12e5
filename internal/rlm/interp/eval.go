package interp

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rlmkit/rlm/internal/rlm/capability"
	"github.com/rlmkit/rlm/internal/rlm/limits"
	"github.com/rlmkit/rlm/internal/rlm/value"
)

// forbiddenKind maps a parser-level ErrForbidden to its ErrorKind:
// import/from/__import__ get the spec-pinned ImportForbidden kind,
// every other excluded construct (class, with, yield, global, nonlocal,
// async, await, del) is simply disallowed, not import-specific.
func forbiddenKind(fe *ErrForbidden) ErrorKind {
	if fe.IsImport {
		return KindImportForbidden
	}
	return KindOther
}

// Interp is one sandboxed execution engine bound to a single, persistent
// Env (the REPL session's variables survive across turns; the budget
// does not).
type Interp struct {
	Env      *Env
	Builtins map[string]value.Value
	Modules  map[string]value.Value // re, json, base64, binascii, zlib
	Output   func(string)           // called for every print()/stdout write

	// RecursiveLLM backs the `recursive_llm` builtin; nil disables it.
	// Beyond the configured max depth it stays set: the bridge itself
	// returns the fixed "Max recursion depth" string.
	RecursiveLLM value.Builtin

	// turnBudget is the Budget for the turn currently executing (set for
	// the duration of Run/EvalExpr). User-function calls charge their
	// call-stack frame against it via EnterFrame/LeaveFrame regardless
	// of which local step budget their body runs under, so recursion
	// depth is capped per turn even though each call gets its own fresh
	// step ceiling (see makeFunction/freshBudget).
	turnBudget *limits.Budget
}

func New(env *Env, capCfg capability.Config) *Interp {
	it := &Interp{Env: env, Modules: capability.Modules(capCfg)}
	it.Builtins = defaultBuiltins(it)
	return it
}

// Run executes one turn's source against the persistent Env, using the
// supplied budget for step/time/depth/memory accounting. On success the
// Env's overlay is left uncommitted — the caller (the REPL session)
// decides when to Promote or Discard based on the turn's outcome.
func (it *Interp) Run(src string, budget *limits.Budget) (string, *ExecError) {
	prog, err := Parse(src)
	if err != nil {
		if fe, ok := err.(*ErrForbidden); ok {
			return "", newErr(forbiddenKind(fe), "%s", fe.Error())
		}
		return "", newErr(KindSyntaxError, "%v", err)
	}

	builtinsScope := &scope{vars: it.Builtins}
	globalScope := newGlobalScope(it.Env, builtinsScope)

	it.turnBudget = budget
	defer func() { it.turnBudget = nil }()

	ctrl, eerr := it.execBlock(prog.Stmts, globalScope, budget)
	if eerr != nil {
		return "", eerr
	}
	_ = ctrl // a bare `return` at module level is a no-op
	return "", nil
}

// EvalExpr evaluates a single expression string against the Env's
// current bindings without mutating it (a FINAL(...) argument is read,
// never assigned to). Used by the agent loop's final-sentinel parser
// (spec §4.6): the text inside FINAL(...) is itself an in-subset
// expression, not a regex-captured literal, so it must go through the
// same parser/evaluator as REPL code.
func (it *Interp) EvalExpr(src string, budget *limits.Budget) (value.Value, *ExecError) {
	node, err := ParseExpr(src)
	if err != nil {
		if fe, ok := err.(*ErrForbidden); ok {
			return value.Value{}, newErr(forbiddenKind(fe), "%s", fe.Error())
		}
		return value.Value{}, newErr(KindSyntaxError, "%v", err)
	}

	builtinsScope := &scope{vars: it.Builtins}
	globalScope := newGlobalScope(it.Env, builtinsScope)

	it.turnBudget = budget
	defer func() { it.turnBudget = nil }()

	return it.eval(node, globalScope, budget)
}

// ---- statement execution ----

func (it *Interp) execBlock(stmts []Node, sc *scope, b *limits.Budget) (*controlSignal, *ExecError) {
	for _, st := range stmts {
		ctrl, err := it.execStmt(st, sc, b)
		if err != nil {
			return nil, err
		}
		if ctrl != nil {
			return ctrl, nil
		}
	}
	return nil, nil
}

func (it *Interp) charge(b *limits.Budget) *ExecError {
	if err := b.Step(); err != nil {
		return mapLimitErr(err)
	}
	return nil
}

// mapLimitErr translates a limits.Budget sentinel error into the
// ExecError kind spec §4.1's resource-cap table names, shared by every
// call site that charges against a Budget (steps, call-stack frames,
// allocated bytes).
func mapLimitErr(err error) *ExecError {
	switch err {
	case limits.ErrStepLimit:
		return newErr(KindStepLimitExceeded, "step limit exceeded")
	case limits.ErrDeadlineExceeded:
		return newErr(KindExecutionTimeout, "execution timed out")
	case limits.ErrRecursionLimit:
		return newErr(KindRecursionLimit, "recursion limit exceeded")
	case limits.ErrMemoryLimit:
		return newErr(KindMemoryLimit, "memory limit exceeded")
	default:
		return newErr(KindOther, "%v", err)
	}
}

// allocate charges a newly-produced string/bytes/container value's
// estimated size (spec §4.1's "aggregate allocated bytes" cap) against
// both the budget in scope and, if a user function call is in
// progress, the turn's own budget — a literal built inside a function
// body runs under that call's fresh step-only budget (see makeFunction),
// but memory use must still aggregate across the whole turn.
func (it *Interp) allocate(b *limits.Budget, v value.Value) *ExecError {
	n := value.ByteSize(v)
	if err := b.Allocate(n); err != nil {
		return mapLimitErr(err)
	}
	if it.turnBudget != nil && it.turnBudget != b {
		if err := it.turnBudget.Allocate(n); err != nil {
			return mapLimitErr(err)
		}
	}
	return nil
}

func (it *Interp) execStmt(n Node, sc *scope, b *limits.Budget) (*controlSignal, *ExecError) {
	if err := it.charge(b); err != nil {
		return nil, err
	}
	switch s := n.(type) {
	case *ExprStmt:
		_, err := it.eval(s.X, sc, b)
		return nil, err
	case *Assign:
		v, err := it.eval(s.Value, sc, b)
		if err != nil {
			return nil, err
		}
		if err := it.assignTarget(s.Target, v, sc, b); err != nil {
			return nil, err
		}
		return nil, nil
	case *AugAssign:
		cur, err := it.eval(s.Target, sc, b)
		if err != nil {
			return nil, err
		}
		rhs, err := it.eval(s.Value, sc, b)
		if err != nil {
			return nil, err
		}
		newVal, berr := binOp(s.Op, cur, rhs)
		if berr != nil {
			return nil, berr
		}
		switch newVal.Kind() {
		case value.KindStr, value.KindBytes, value.KindList, value.KindTuple, value.KindDict, value.KindSet:
			if err := it.allocate(b, newVal); err != nil {
				return nil, err
			}
		}
		if err := it.assignTarget(s.Target, newVal, sc, b); err != nil {
			return nil, err
		}
		return nil, nil
	case *If:
		cond, err := it.eval(s.Cond, sc, b)
		if err != nil {
			return nil, err
		}
		if cond.Truthy() {
			return it.execBlock(s.Then, sc, b)
		}
		return it.execBlock(s.Else, sc, b)
	case *While:
		for {
			if err := it.charge(b); err != nil {
				return nil, err
			}
			cond, err := it.eval(s.Cond, sc, b)
			if err != nil {
				return nil, err
			}
			if !cond.Truthy() {
				break
			}
			ctrl, err := it.execBlock(s.Body, sc, b)
			if err != nil {
				return nil, err
			}
			if ctrl != nil {
				if ctrl.kind == ctrlBreak {
					break
				}
				if ctrl.kind == ctrlReturn {
					return ctrl, nil
				}
			}
		}
		return nil, nil
	case *For:
		iterVal, err := it.eval(s.Iter, sc, b)
		if err != nil {
			return nil, err
		}
		items, err := it.iterate(iterVal)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if err := it.charge(b); err != nil {
				return nil, err
			}
			if err := it.assignTarget(s.Target, item, sc, b); err != nil {
				return nil, err
			}
			ctrl, err := it.execBlock(s.Body, sc, b)
			if err != nil {
				return nil, err
			}
			if ctrl != nil {
				if ctrl.kind == ctrlBreak {
					break
				}
				if ctrl.kind == ctrlReturn {
					return ctrl, nil
				}
			}
		}
		return nil, nil
	case *FuncDef:
		fn := it.makeFunction(s, sc)
		sc.setLocal(s.Name, fn)
		return nil, nil
	case *Return:
		if s.Value == nil {
			return &controlSignal{kind: ctrlReturn, value: value.None()}, nil
		}
		v, err := it.eval(s.Value, sc, b)
		if err != nil {
			return nil, err
		}
		return &controlSignal{kind: ctrlReturn, value: v}, nil
	case *Break:
		return &controlSignal{kind: ctrlBreak}, nil
	case *Continue:
		return &controlSignal{kind: ctrlContinue}, nil
	case *Pass:
		return nil, nil
	case *Try:
		ctrl, execErr := it.execBlock(s.Body, sc, b)
		if execErr != nil {
			handled := false
			for _, h := range s.Handlers {
				if h.ErrType != "" && h.ErrType != execErr.Class {
					continue
				}
				handled = true
				if h.Name != "" {
					sc.setLocal(h.Name, value.Str(execErr.Message))
				}
				ctrl, execErr = it.execBlock(h.Body, sc, b)
				break
			}
			if !handled {
				if len(s.Finally) > 0 {
					if _, ferr := it.execBlock(s.Finally, sc, b); ferr != nil {
						return nil, ferr
					}
				}
				return nil, execErr
			}
		}
		if len(s.Finally) > 0 {
			fctrl, ferr := it.execBlock(s.Finally, sc, b)
			if ferr != nil {
				return nil, ferr
			}
			if fctrl != nil {
				return fctrl, nil
			}
		}
		return ctrl, execErr
	case *Raise:
		if s.ErrType == "" {
			return nil, newErr(KindOther, "no active exception to re-raise")
		}
		msg := ""
		if s.Msg != nil {
			v, err := it.eval(s.Msg, sc, b)
			if err != nil {
				return nil, err
			}
			msg = v.Str2()
		}
		return nil, newRaise(s.ErrType, msg)
	default:
		return nil, newErr(KindOther, "unsupported statement %T", n)
	}
}

func (it *Interp) assignTarget(target Node, v value.Value, sc *scope, b *limits.Budget) *ExecError {
	switch t := target.(type) {
	case *Name:
		sc.setLocal(t.Ident, v)
		return nil
	case *TupleLit:
		items := v.AsList()
		if v.Kind() != value.KindList && v.Kind() != value.KindTuple {
			var err *ExecError
			items, err = it.iterate(v)
			if err != nil {
				return err
			}
		}
		if len(items) != len(t.Elts) {
			return newErr(KindValueError, "cannot unpack %d values into %d targets", len(items), len(t.Elts))
		}
		for i, el := range t.Elts {
			if err := it.assignTarget(el, items[i], sc, b); err != nil {
				return err
			}
		}
		return nil
	case *Subscript:
		container, err := it.eval(t.X, sc, b)
		if err != nil {
			return err
		}
		idx, err := it.eval(t.Index, sc, b)
		if err != nil {
			return err
		}
		if err := it.allocate(b, v); err != nil {
			return err
		}
		return setSubscript(container, idx, v)
	case *Attribute:
		return newErr(KindAttributeError, "attribute assignment is not supported")
	default:
		return newErr(KindSyntaxError, "invalid assignment target")
	}
}

func (it *Interp) makeFunction(def *FuncDef, closure *scope) value.Value {
	return value.NewBuiltin(func(args []value.Value) (value.Value, error) {
		// Every user-function call charges one call-stack frame against
		// the turn's own Budget (spec §4.1's "stack depth for user
		// frames, default 64"), independent of the fresh step ceiling
		// the call body itself runs under below: a deeply-but-not-
		// slowly recursing function must still hit RecursionLimit
		// rather than growing the Go call stack without bound.
		if it.turnBudget != nil {
			if err := it.turnBudget.EnterFrame(); err != nil {
				return value.None(), mapLimitErr(err)
			}
			defer it.turnBudget.LeaveFrame()
		}

		callScope := newCallScope(closure)
		for i, pname := range def.Params {
			if i < len(args) {
				callScope.setLocal(pname, args[i])
			} else if def.Defaults[i] != nil {
				dv, err := it.eval(def.Defaults[i], closure, freshBudget())
				if err != nil {
					return value.None(), err
				}
				callScope.setLocal(pname, dv)
			} else {
				return value.None(), newErr(KindTypeError, "missing argument %q", pname)
			}
		}
		b := freshBudget()
		ctrl, err := it.execBlock(def.Body, callScope, b)
		if err != nil {
			return value.None(), err
		}
		if ctrl != nil && ctrl.kind == ctrlReturn {
			return ctrl.value, nil
		}
		return value.None(), nil
	})
}

// freshBudget gives user-defined function bodies their own step ceiling
// so a helper function can't starve the turn's own step charging; it
// still inherits no deadline tracking of its own (that lives on the
// caller-side budget, checked again on return to the caller's loop).
func freshBudget() *limits.Budget {
	return limits.New(limits.Config{MaxSteps: 200000})
}

// ---- expression evaluation ----

func (it *Interp) eval(n Node, sc *scope, b *limits.Budget) (value.Value, *ExecError) {
	if err := it.charge(b); err != nil {
		return value.None(), err
	}
	switch e := n.(type) {
	case *IntLit:
		return value.Int(e.Val), nil
	case *FloatLit:
		return value.Float(e.Val), nil
	case *StrLit:
		return value.Str(e.Val), nil
	case *BytesLit:
		return value.Bytes(e.Val), nil
	case *BoolLit:
		return value.Bool(e.Val), nil
	case *NoneLit:
		return value.None(), nil
	case *Name:
		v, ok := sc.get(e.Ident)
		if !ok {
			if mv, ok := it.Modules[e.Ident]; ok {
				return mv, nil
			}
			if e.Ident == "__import__" {
				return value.None(), newErr(KindImportForbidden, "__import__ not found")
			}
			return value.None(), newErr(KindNameError, "name %q is not defined", e.Ident)
		}
		return v, nil
	case *ListLit:
		items, err := it.evalList(e.Elts, sc, b)
		if err != nil {
			return value.None(), err
		}
		lv := value.List(items)
		if err := it.allocate(b, lv); err != nil {
			return value.None(), err
		}
		return lv, nil
	case *TupleLit:
		items, err := it.evalList(e.Elts, sc, b)
		if err != nil {
			return value.None(), err
		}
		tv := value.Tuple(items)
		if err := it.allocate(b, tv); err != nil {
			return value.None(), err
		}
		return tv, nil
	case *SetLit:
		sv := value.NewSet()
		for _, el := range e.Elts {
			v, err := it.eval(el, sc, b)
			if err != nil {
				return value.None(), err
			}
			sv.Set().Set(v.Repr(), v)
		}
		if err := it.allocate(b, sv); err != nil {
			return value.None(), err
		}
		return sv, nil
	case *DictLit:
		d := value.NewDict()
		for i, kexp := range e.Keys {
			kv, err := it.eval(kexp, sc, b)
			if err != nil {
				return value.None(), err
			}
			vv, err := it.eval(e.Values[i], sc, b)
			if err != nil {
				return value.None(), err
			}
			key, kerr := dictKey(kv)
			if kerr != nil {
				return value.None(), kerr
			}
			d.DictSet(key, vv)
		}
		if err := it.allocate(b, d); err != nil {
			return value.None(), err
		}
		return d, nil
	case *FString:
		var sb strings.Builder
		for _, part := range e.Parts {
			if sl, ok := part.(*StrLit); ok {
				sb.WriteString(sl.Val)
				continue
			}
			v, err := it.eval(part, sc, b)
			if err != nil {
				return value.None(), err
			}
			sb.WriteString(v.Str2())
		}
		sval := value.Str(sb.String())
		if err := it.allocate(b, sval); err != nil {
			return value.None(), err
		}
		return sval, nil
	case *BoolOp:
		var last value.Value = value.Bool(e.Op == "and")
		for _, sub := range e.Values {
			v, err := it.eval(sub, sc, b)
			if err != nil {
				return value.None(), err
			}
			last = v
			if e.Op == "and" && !v.Truthy() {
				return v, nil
			}
			if e.Op == "or" && v.Truthy() {
				return v, nil
			}
		}
		return last, nil
	case *UnaryOp:
		v, err := it.eval(e.X, sc, b)
		if err != nil {
			return value.None(), err
		}
		return unaryOp(e.Op, v)
	case *BinOp:
		l, err := it.eval(e.Left, sc, b)
		if err != nil {
			return value.None(), err
		}
		r, err := it.eval(e.Right, sc, b)
		if err != nil {
			return value.None(), err
		}
		res, berr := binOp(e.Op, l, r)
		if berr != nil {
			return value.None(), berr
		}
		switch res.Kind() {
		case value.KindStr, value.KindBytes, value.KindList, value.KindTuple, value.KindDict, value.KindSet:
			if err := it.allocate(b, res); err != nil {
				return value.None(), err
			}
		}
		return res, nil
	case *Compare:
		left, err := it.eval(e.Left, sc, b)
		if err != nil {
			return value.None(), err
		}
		for i, op := range e.Ops {
			right, err := it.eval(e.Comparators[i], sc, b)
			if err != nil {
				return value.None(), err
			}
			ok, cerr := compareOp(op, left, right)
			if cerr != nil {
				return value.None(), cerr
			}
			if !ok {
				return value.Bool(false), nil
			}
			left = right
		}
		return value.Bool(true), nil
	case *Ternary:
		cond, err := it.eval(e.Cond, sc, b)
		if err != nil {
			return value.None(), err
		}
		if cond.Truthy() {
			return it.eval(e.Then, sc, b)
		}
		return it.eval(e.Else, sc, b)
	case *Lambda:
		return it.makeFunction(&FuncDef{Params: e.Params, Defaults: make([]Node, len(e.Params)), Body: []Node{&Return{Value: e.Body}}}, sc), nil
	case *Attribute:
		x, err := it.eval(e.X, sc, b)
		if err != nil {
			return value.None(), err
		}
		return it.attribute(x, e.Name)
	case *Subscript:
		x, err := it.eval(e.X, sc, b)
		if err != nil {
			return value.None(), err
		}
		if e.Slice != nil {
			return it.evalSlice(x, e.Slice, sc, b)
		}
		idx, err := it.eval(e.Index, sc, b)
		if err != nil {
			return value.None(), err
		}
		return getSubscript(x, idx)
	case *Call:
		return it.evalCall(e, sc, b)
	case *Comprehension:
		return it.evalComprehension(e, sc, b)
	default:
		return value.None(), newErr(KindOther, "unsupported expression %T", n)
	}
}

func (it *Interp) evalList(nodes []Node, sc *scope, b *limits.Budget) ([]value.Value, *ExecError) {
	out := make([]value.Value, 0, len(nodes))
	for _, n := range nodes {
		v, err := it.eval(n, sc, b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (it *Interp) evalCall(c *Call, sc *scope, b *limits.Budget) (value.Value, *ExecError) {
	args, err := it.evalList(c.Args, sc, b)
	if err != nil {
		return value.None(), err
	}
	fnVal, err := it.eval(c.Func, sc, b)
	if err != nil {
		return value.None(), err
	}
	if fnVal.Kind() != value.KindCallable {
		return value.None(), newErr(KindTypeError, "'%s' object is not callable", value.TypeName(fnVal))
	}
	res, callErr := fnVal.AsCallable()(args)
	if callErr != nil {
		if ee, ok := callErr.(*ExecError); ok {
			return value.None(), ee
		}
		if ce, ok := callErr.(*value.CapError); ok {
			return value.None(), &ExecError{Kind: ErrorKind(ce.Kind), Message: ce.Message}
		}
		return value.None(), newErr(KindOther, "%v", callErr)
	}
	switch res.Kind() {
	case value.KindStr, value.KindBytes, value.KindList, value.KindTuple, value.KindDict, value.KindSet:
		if err := it.allocate(b, res); err != nil {
			return value.None(), err
		}
	}
	return res, nil
}

func (it *Interp) evalSlice(x value.Value, se *SliceExpr, sc *scope, b *limits.Budget) (value.Value, *ExecError) {
	var items []value.Value
	isStr := x.Kind() == value.KindStr
	isBytes := x.Kind() == value.KindBytes
	var runes []rune
	var bts []byte
	switch {
	case isStr:
		runes = []rune(x.AsStr())
	case isBytes:
		bts = x.AsBytes()
	case x.Kind() == value.KindList || x.Kind() == value.KindTuple:
		items = x.AsList()
	default:
		return value.None(), newErr(KindTypeError, "'%s' object is not subscriptable", value.TypeName(x))
	}
	length := len(items)
	if isStr {
		length = len(runes)
	} else if isBytes {
		length = len(bts)
	}
	lo, hi, step := 0, length, 1
	if se.Step != nil {
		sv, err := it.eval(se.Step, sc, b)
		if err != nil {
			return value.None(), err
		}
		step = int(sv.AsInt())
		if step == 0 {
			return value.None(), newErr(KindValueError, "slice step cannot be zero")
		}
	}
	if step > 0 {
		lo, hi = 0, length
	} else {
		lo, hi = length-1, -1
	}
	if se.Lo != nil {
		v, err := it.eval(se.Lo, sc, b)
		if err != nil {
			return value.None(), err
		}
		lo = normalizeIndex(int(v.AsInt()), length)
	}
	if se.Hi != nil {
		v, err := it.eval(se.Hi, sc, b)
		if err != nil {
			return value.None(), err
		}
		hi = normalizeIndex(int(v.AsInt()), length)
	}
	var outItems []value.Value
	var outRunes []rune
	var outBytes []byte
	if step > 0 {
		for i := lo; i < hi && i < length; i += step {
			if i < 0 {
				continue
			}
			if isStr {
				outRunes = append(outRunes, runes[i])
			} else if isBytes {
				outBytes = append(outBytes, bts[i])
			} else {
				outItems = append(outItems, items[i])
			}
		}
	} else {
		for i := lo; i > hi && i >= 0; i += step {
			if i >= length {
				continue
			}
			if isStr {
				outRunes = append(outRunes, runes[i])
			} else if isBytes {
				outBytes = append(outBytes, bts[i])
			} else {
				outItems = append(outItems, items[i])
			}
		}
	}
	var res value.Value
	switch {
	case isStr:
		res = value.Str(string(outRunes))
	case isBytes:
		res = value.Bytes(outBytes)
	case x.Kind() == value.KindTuple:
		res = value.Tuple(outItems)
	default:
		res = value.List(outItems)
	}
	if err := it.allocate(b, res); err != nil {
		return value.None(), err
	}
	return res, nil
}

func normalizeIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		i = 0
	}
	if i > length {
		i = length
	}
	return i
}

func (it *Interp) evalComprehension(c *Comprehension, sc *scope, b *limits.Budget) (value.Value, *ExecError) {
	iterVal, err := it.eval(c.Iter, sc, b)
	if err != nil {
		return value.None(), err
	}
	items, err := it.iterate(iterVal)
	if err != nil {
		return value.None(), err
	}
	compScope := newCallScope(sc)
	var list []value.Value
	dict := value.NewDict()
	set := value.NewSet()
	for _, item := range items {
		if cerr := it.charge(b); cerr != nil {
			return value.None(), cerr
		}
		if aerr := it.assignTarget(c.Target, item, compScope, b); aerr != nil {
			return value.None(), aerr
		}
		keep := true
		for _, cond := range c.Ifs {
			cv, cerr := it.eval(cond, compScope, b)
			if cerr != nil {
				return value.None(), cerr
			}
			if !cv.Truthy() {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}
		eltV, eerr := it.eval(c.Elt, compScope, b)
		if eerr != nil {
			return value.None(), eerr
		}
		switch c.Kind {
		case "list":
			list = append(list, eltV)
		case "set":
			set.Set().Set(eltV.Repr(), eltV)
		case "dict":
			vv, verr := it.eval(c.ValueElt, compScope, b)
			if verr != nil {
				return value.None(), verr
			}
			key, kerr := dictKey(eltV)
			if kerr != nil {
				return value.None(), kerr
			}
			dict.DictSet(key, vv)
		}
	}
	var res value.Value
	switch c.Kind {
	case "dict":
		res = dict
	case "set":
		res = set
	default:
		res = value.List(list)
	}
	if err := it.allocate(b, res); err != nil {
		return value.None(), err
	}
	return res, nil
}

// iterate produces a Go slice of values for any iterable Value
// (list/tuple/str/bytes/dict (keys)/set).
func (it *Interp) iterate(v value.Value) ([]value.Value, *ExecError) {
	switch v.Kind() {
	case value.KindList, value.KindTuple:
		return v.AsList(), nil
	case value.KindStr:
		var out []value.Value
		for _, r := range v.AsStr() {
			out = append(out, value.Str(string(r)))
		}
		return out, nil
	case value.KindBytes:
		var out []value.Value
		for _, bt := range v.AsBytes() {
			out = append(out, value.Int(int64(bt)))
		}
		return out, nil
	case value.KindDict:
		var out []value.Value
		for p := v.Dict().Oldest(); p != nil; p = p.Next() {
			out = append(out, value.Str(p.Key))
		}
		return out, nil
	case value.KindSet:
		var out []value.Value
		for p := v.Set().Oldest(); p != nil; p = p.Next() {
			out = append(out, p.Value)
		}
		return out, nil
	default:
		return nil, newErr(KindTypeError, "'%s' object is not iterable", value.TypeName(v))
	}
}

func (it *Interp) attribute(x value.Value, name string) (value.Value, *ExecError) {
	if x.Kind() == value.KindModule {
		mod := x.AsModule()
		if v, ok := mod.Entries[name]; ok {
			return v, nil
		}
		return value.None(), newErr(KindAttributeError, "module %q has no attribute %q", mod.Name, name)
	}
	fn, err := stringOrListMethod(it, x, name)
	if err != nil {
		return value.None(), err
	}
	return fn, nil
}

func dictKey(v value.Value) (string, *ExecError) {
	switch v.Kind() {
	case value.KindStr:
		return "s:" + v.AsStr(), nil
	case value.KindInt:
		return fmt.Sprintf("i:%d", v.AsInt()), nil
	case value.KindFloat:
		return fmt.Sprintf("f:%v", v.AsFloat()), nil
	case value.KindBool:
		return fmt.Sprintf("b:%v", v.AsBool()), nil
	case value.KindTuple:
		parts := make([]string, len(v.AsList()))
		for i, it := range v.AsList() {
			k, err := dictKey(it)
			if err != nil {
				return "", err
			}
			parts[i] = k
		}
		return "t:(" + strings.Join(parts, ",") + ")", nil
	case value.KindNone:
		return "n:", nil
	default:
		return "", newErr(KindTypeError, "unhashable type: '%s'", value.TypeName(v))
	}
}

func getSubscript(container, idx value.Value) (value.Value, *ExecError) {
	switch container.Kind() {
	case value.KindList, value.KindTuple:
		items := container.AsList()
		i := normalizeIndexStrict(int(idx.AsInt()), len(items))
		if i < 0 || i >= len(items) {
			return value.None(), newErr(KindIndexError, "list index out of range")
		}
		return items[i], nil
	case value.KindStr:
		runes := []rune(container.AsStr())
		i := normalizeIndexStrict(int(idx.AsInt()), len(runes))
		if i < 0 || i >= len(runes) {
			return value.None(), newErr(KindIndexError, "string index out of range")
		}
		return value.Str(string(runes[i])), nil
	case value.KindBytes:
		bts := container.AsBytes()
		i := normalizeIndexStrict(int(idx.AsInt()), len(bts))
		if i < 0 || i >= len(bts) {
			return value.None(), newErr(KindIndexError, "bytes index out of range")
		}
		return value.Int(int64(bts[i])), nil
	case value.KindDict:
		key, err := dictKey(idx)
		if err != nil {
			return value.None(), err
		}
		v, ok := container.DictGet(key)
		if !ok {
			return value.None(), newErr(KindKeyError, "%s", idx.Repr())
		}
		return v, nil
	default:
		return value.None(), newErr(KindTypeError, "'%s' object is not subscriptable", value.TypeName(container))
	}
}

func setSubscript(container, idx, v value.Value) *ExecError {
	switch container.Kind() {
	case value.KindList:
		items := container.AsList()
		i := normalizeIndexStrict(int(idx.AsInt()), len(items))
		if i < 0 || i >= len(items) {
			return newErr(KindIndexError, "list assignment index out of range")
		}
		items[i] = v
		return nil
	case value.KindDict:
		key, err := dictKey(idx)
		if err != nil {
			return err
		}
		container.DictSet(key, v)
		return nil
	default:
		return newErr(KindTypeError, "'%s' object does not support item assignment", value.TypeName(container))
	}
}

func normalizeIndexStrict(i, length int) int {
	if i < 0 {
		return i + length
	}
	return i
}

func unaryOp(op string, v value.Value) (value.Value, *ExecError) {
	switch op {
	case "-":
		if v.Kind() == value.KindFloat {
			return value.Float(-v.AsFloat()), nil
		}
		return value.Int(-v.AsInt()), nil
	case "+":
		return v, nil
	case "not":
		return value.Bool(!v.Truthy()), nil
	case "~":
		return value.Int(^v.AsInt()), nil
	default:
		return value.None(), newErr(KindOther, "unsupported unary operator %q", op)
	}
}

func isNumeric(v value.Value) bool {
	return v.Kind() == value.KindInt || v.Kind() == value.KindFloat
}

func binOp(op string, l, r value.Value) (value.Value, *ExecError) {
	switch op {
	case "+":
		if l.Kind() == value.KindStr && r.Kind() == value.KindStr {
			return value.Str(l.AsStr() + r.AsStr()), nil
		}
		if l.Kind() == value.KindBytes && r.Kind() == value.KindBytes {
			return value.Bytes(append(append([]byte(nil), l.AsBytes()...), r.AsBytes()...)), nil
		}
		if (l.Kind() == value.KindList && r.Kind() == value.KindList) {
			return value.List(append(append([]value.Value(nil), l.AsList()...), r.AsList()...)), nil
		}
		if isNumeric(l) && isNumeric(r) {
			return numResult(l, r, l.AsFloat()+r.AsFloat(), l.AsInt()+r.AsInt()), nil
		}
		return value.None(), newErr(KindTypeError, "unsupported operand type(s) for +: '%s' and '%s'", value.TypeName(l), value.TypeName(r))
	case "-":
		if isNumeric(l) && isNumeric(r) {
			return numResult(l, r, l.AsFloat()-r.AsFloat(), l.AsInt()-r.AsInt()), nil
		}
		return value.None(), newErr(KindTypeError, "unsupported operand type(s) for -")
	case "*":
		if l.Kind() == value.KindStr && r.Kind() == value.KindInt {
			return value.Str(strings.Repeat(l.AsStr(), int(r.AsInt()))), nil
		}
		if l.Kind() == value.KindList && r.Kind() == value.KindInt {
			var out []value.Value
			for i := int64(0); i < r.AsInt(); i++ {
				out = append(out, l.AsList()...)
			}
			return value.List(out), nil
		}
		if isNumeric(l) && isNumeric(r) {
			return numResult(l, r, l.AsFloat()*r.AsFloat(), l.AsInt()*r.AsInt()), nil
		}
		return value.None(), newErr(KindTypeError, "unsupported operand type(s) for *")
	case "/":
		if !isNumeric(l) || !isNumeric(r) {
			return value.None(), newErr(KindTypeError, "unsupported operand type(s) for /")
		}
		if r.AsFloat() == 0 {
			return value.None(), newErr(KindZeroDivisionError, "division by zero")
		}
		return value.Float(l.AsFloat() / r.AsFloat()), nil
	case "//":
		if !isNumeric(l) || !isNumeric(r) {
			return value.None(), newErr(KindTypeError, "unsupported operand type(s) for //")
		}
		if r.AsFloat() == 0 {
			return value.None(), newErr(KindZeroDivisionError, "integer division or modulo by zero")
		}
		if l.Kind() == value.KindInt && r.Kind() == value.KindInt {
			return value.Int(int64(math.Floor(float64(l.AsInt()) / float64(r.AsInt())))), nil
		}
		return value.Float(math.Floor(l.AsFloat() / r.AsFloat())), nil
	case "%":
		if l.Kind() == value.KindStr {
			return value.Str(l.AsStr()), nil // %-formatting not in the accepted subset beyond f-strings
		}
		if !isNumeric(l) || !isNumeric(r) {
			return value.None(), newErr(KindTypeError, "unsupported operand type(s) for %%")
		}
		if r.AsFloat() == 0 {
			return value.None(), newErr(KindZeroDivisionError, "modulo by zero")
		}
		if l.Kind() == value.KindInt && r.Kind() == value.KindInt {
			m := l.AsInt() % r.AsInt()
			if (m < 0) != (r.AsInt() < 0) && m != 0 {
				m += r.AsInt()
			}
			return value.Int(m), nil
		}
		return value.Float(math.Mod(l.AsFloat(), r.AsFloat())), nil
	case "**":
		if !isNumeric(l) || !isNumeric(r) {
			return value.None(), newErr(KindTypeError, "unsupported operand type(s) for **")
		}
		res := math.Pow(l.AsFloat(), r.AsFloat())
		if l.Kind() == value.KindInt && r.Kind() == value.KindInt && r.AsInt() >= 0 {
			return value.Int(int64(res)), nil
		}
		return value.Float(res), nil
	case "&":
		return value.Int(l.AsInt() & r.AsInt()), nil
	case "|":
		return value.Int(l.AsInt() | r.AsInt()), nil
	case "^":
		return value.Int(l.AsInt() ^ r.AsInt()), nil
	case "<<":
		return value.Int(l.AsInt() << uint(r.AsInt())), nil
	case ">>":
		return value.Int(l.AsInt() >> uint(r.AsInt())), nil
	default:
		return value.None(), newErr(KindOther, "unsupported binary operator %q", op)
	}
}

func numResult(l, r value.Value, f float64, i int64) value.Value {
	if l.Kind() == value.KindFloat || r.Kind() == value.KindFloat {
		return value.Float(f)
	}
	return value.Int(i)
}

func compareOp(op string, l, r value.Value) (bool, *ExecError) {
	switch op {
	case "==":
		return value.Equal(l, r), nil
	case "!=":
		return !value.Equal(l, r), nil
	case "in":
		return containsValue(r, l)
	case "not in":
		ok, err := containsValue(r, l)
		return !ok, err
	case "is":
		return value.Equal(l, r) && l.Kind() == r.Kind(), nil
	case "is not":
		eq := value.Equal(l, r) && l.Kind() == r.Kind()
		return !eq, nil
	}
	if isNumeric(l) && isNumeric(r) {
		lf, rf := l.AsFloat(), r.AsFloat()
		return numCompare(op, lf, rf), nil
	}
	if l.Kind() == value.KindStr && r.Kind() == value.KindStr {
		return strCompare(op, l.AsStr(), r.AsStr()), nil
	}
	return false, newErr(KindTypeError, "'%s' not supported between instances of '%s' and '%s'", op, value.TypeName(l), value.TypeName(r))
}

func numCompare(op string, a, b float64) bool {
	switch op {
	case "<":
		return a < b
	case ">":
		return a > b
	case "<=":
		return a <= b
	case ">=":
		return a >= b
	}
	return false
}

func strCompare(op string, a, b string) bool {
	c := strings.Compare(a, b)
	switch op {
	case "<":
		return c < 0
	case ">":
		return c > 0
	case "<=":
		return c <= 0
	case ">=":
		return c >= 0
	}
	return false
}

func containsValue(container, needle value.Value) (bool, *ExecError) {
	switch container.Kind() {
	case value.KindList, value.KindTuple:
		for _, it := range container.AsList() {
			if value.Equal(it, needle) {
				return true, nil
			}
		}
		return false, nil
	case value.KindStr:
		return strings.Contains(container.AsStr(), needle.AsStr()), nil
	case value.KindDict:
		key, err := dictKey(needle)
		if err != nil {
			return false, err
		}
		_, ok := container.DictGet(key)
		return ok, nil
	case value.KindSet:
		_, ok := container.Set().Get(needle.Repr())
		return ok, nil
	default:
		return false, newErr(KindTypeError, "argument of type '%s' is not iterable", value.TypeName(container))
	}
}

// sortValues sorts a copy of items using Python's default ordering
// (numeric, then lexical for strings), honoring an optional key
// function and reverse flag. Used by sorted()/list.sort().
func sortValues(items []value.Value, keyFn value.Builtin, reverse bool) ([]value.Value, *ExecError) {
	out := append([]value.Value(nil), items...)
	var sortErr *ExecError
	keyOf := func(v value.Value) value.Value {
		if keyFn == nil {
			return v
		}
		kv, err := keyFn([]value.Value{v})
		if err != nil {
			if ee, ok := err.(*ExecError); ok {
				sortErr = ee
			}
		}
		return kv
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := keyOf(out[i]), keyOf(out[j])
		less, _ := compareOp("<", ki, kj)
		if reverse {
			greater, _ := compareOp(">", ki, kj)
			return greater
		}
		return less
	})
	return out, sortErr
}
