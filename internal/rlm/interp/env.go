package interp

import "github.com/rlmkit/rlm/internal/rlm/value"

// Env implements the turn-atomic copy-on-write environment overlay
// spec.md §9 describes: a successful turn promotes its overlay writes
// into the base map; a failed turn discards them, leaving base (and
// therefore variables visible to later turns) untouched.
type Env struct {
	base    map[string]value.Value
	overlay map[string]value.Value
}

func NewEnv() *Env {
	return &Env{base: map[string]value.Value{}, overlay: map[string]value.Value{}}
}

func (e *Env) Get(name string) (value.Value, bool) {
	if v, ok := e.overlay[name]; ok {
		return v, true
	}
	v, ok := e.base[name]
	return v, ok
}

func (e *Env) Set(name string, v value.Value) {
	e.overlay[name] = v
}

// Promote merges the overlay into base and clears it, committing a
// successful turn's writes.
func (e *Env) Promote() {
	for k, v := range e.overlay {
		e.base[k] = v
	}
	e.overlay = map[string]value.Value{}
}

// Discard drops the overlay without touching base, rolling back a
// failed turn's writes.
func (e *Env) Discard() {
	e.overlay = map[string]value.Value{}
}

// Snapshot returns a flattened view of every visible binding (base
// overridden by overlay), used for session snapshots/checkpointing.
func (e *Env) Snapshot() map[string]value.Value {
	out := make(map[string]value.Value, len(e.base)+len(e.overlay))
	for k, v := range e.base {
		out[k] = v
	}
	for k, v := range e.overlay {
		out[k] = v
	}
	return out
}

// scope is a lexical binding frame. The global frame wraps an *Env so
// its reads/writes participate in the overlay; function-call frames are
// plain maps chained to their defining (closure) scope.
type scope struct {
	vars   map[string]value.Value
	parent *scope
	env    *Env
}

func newGlobalScope(env *Env, parent *scope) *scope {
	return &scope{env: env, parent: parent}
}

func newCallScope(parent *scope) *scope {
	return &scope{vars: map[string]value.Value{}, parent: parent}
}

func (s *scope) get(name string) (value.Value, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.env != nil {
			if v, ok := sc.env.Get(name); ok {
				return v, true
			}
			continue
		}
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return value.None(), false
}

// setLocal binds name in the innermost frame (Python's implicit-local
// assignment semantics; `global`/`nonlocal` are part of the forbidden
// subset so every assignment is local to its enclosing function, or to
// the module scope at top level).
func (s *scope) setLocal(name string, v value.Value) {
	if s.env != nil {
		s.env.Set(name, v)
		return
	}
	s.vars[name] = v
}

// assign binds name in the innermost frame, exactly as setLocal does; it
// does not look for an existing binding in an outer frame.
func (s *scope) assign(name string, v value.Value) {
	s.setLocal(name, v)
}
