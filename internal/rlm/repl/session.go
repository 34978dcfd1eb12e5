package repl

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rlmkit/rlm/internal/rlm/capability"
	"github.com/rlmkit/rlm/internal/rlm/interp"
	"github.com/rlmkit/rlm/internal/rlm/limits"
	"github.com/rlmkit/rlm/internal/rlm/output"
	"github.com/rlmkit/rlm/internal/rlm/value"
)

// Session is the persistent environment for a single task across turns
// (spec's "REPL session"): one successful Execute commits its overlay,
// one failed Execute rolls it back, and the session is never reused
// across tasks.
type Session struct {
	env            *interp.Env
	it             *interp.Interp
	maxOutputChars int
	limitsCfg      limits.Config
	executeTimeout time.Duration
	iteration      int
	depth          int
}

// Config seeds a new Session's environment and resource caps.
type Config struct {
	Context        string
	Query          string
	MaxOutputChars int
	Capability     capability.Config
	Limits         limits.Config
	// ExecuteTimeout, when nonzero, gives every turn a fresh per-call
	// wall-clock budget (spec's "each execute has a wall-clock
	// timeout") instead of the single fixed Limits.Deadline shared
	// across the session's whole lifetime.
	ExecuteTimeout time.Duration
	Depth          int
	RecursiveLLM   value.Builtin // nil disables recursive_llm for this session
}

// New creates a session with context/query bound and the capability
// surface wired in, ready to accept turns.
func New(cfg Config) *Session {
	env := interp.NewEnv()
	env.Set("context", value.Str(cfg.Context))
	env.Set("query", value.Str(cfg.Query))
	env.Promote()

	it := interp.New(env, cfg.Capability)
	it.RecursiveLLM = cfg.RecursiveLLM

	return &Session{
		env:            env,
		it:             it,
		maxOutputChars: cfg.MaxOutputChars,
		limitsCfg:      cfg.Limits,
		executeTimeout: cfg.ExecuteTimeout,
		depth:          cfg.Depth,
	}
}

// Execute runs one turn's code against the session's persistent
// environment. On success the environment's overlay is promoted into
// base; on failure it is discarded, leaving the environment exactly as
// it was before the call (spec §4.1's turn-atomicity contract).
func (s *Session) Execute(code string) (string, error) {
	s.iteration++
	buf := output.New(s.maxOutputChars)
	s.it.Output = buf.Write

	cfg := s.limitsCfg
	if s.executeTimeout > 0 {
		cfg.Deadline = time.Now().Add(s.executeTimeout)
	}
	budget := limits.New(cfg)
	_, execErr := s.it.Run(code, budget)
	if execErr != nil {
		s.env.Discard()
		return "", execErr
	}
	s.env.Promote()
	return buf.Flush(), nil
}

// Iteration reports the number of Execute calls made so far.
func (s *Session) Iteration() int { return s.iteration }

// Depth reports the recursion depth this session runs at.
func (s *Session) Depth() int { return s.depth }

// Interp exposes the underlying interpreter, e.g. so the agent loop can
// evaluate a FINAL(...) expression against the live environment.
func (s *Session) Interp() *interp.Interp { return s.it }

// wireValue is the tagged JSON shape used to round-trip a Value through
// the per-step protocol's opaque `state` field. Only JSON-representable
// kinds (str/bytes/int/float/bool/none/list/tuple/dict) survive the
// round trip; callables and modules are capability-surface bindings the
// session reconstructs fresh on load, not task-specific state.
type wireValue struct {
	Kind  string          `json:"kind"`
	Str   string          `json:"str,omitempty"`
	Int   int64           `json:"int,omitempty"`
	Float float64         `json:"float,omitempty"`
	Bool  bool            `json:"bool,omitempty"`
	Items []wireValue     `json:"items,omitempty"`
	Dict  []wireDictEntry `json:"dict,omitempty"`
}

type wireDictEntry struct {
	Key wireValue `json:"key"`
	Val wireValue `json:"val"`
}

func encodeValue(v value.Value) (wireValue, bool) {
	switch v.Kind() {
	case value.KindNone:
		return wireValue{Kind: "none"}, true
	case value.KindBool:
		return wireValue{Kind: "bool", Bool: v.AsBool()}, true
	case value.KindInt:
		return wireValue{Kind: "int", Int: v.AsInt()}, true
	case value.KindFloat:
		return wireValue{Kind: "float", Float: v.AsFloat()}, true
	case value.KindStr:
		return wireValue{Kind: "str", Str: v.AsStr()}, true
	case value.KindBytes:
		return wireValue{Kind: "bytes", Str: string(v.AsBytes())}, true
	case value.KindList, value.KindTuple:
		items := make([]wireValue, 0, len(v.AsList()))
		for _, it := range v.AsList() {
			wv, ok := encodeValue(it)
			if !ok {
				return wireValue{}, false
			}
			items = append(items, wv)
		}
		kind := "list"
		if v.Kind() == value.KindTuple {
			kind = "tuple"
		}
		return wireValue{Kind: kind, Items: items}, true
	case value.KindDict:
		var entries []wireDictEntry
		for p := v.Dict().Oldest(); p != nil; p = p.Next() {
			wv, ok := encodeValue(p.Value)
			if !ok {
				return wireValue{}, false
			}
			entries = append(entries, wireDictEntry{Key: wireValue{Kind: "str", Str: p.Key}, Val: wv})
		}
		return wireValue{Kind: "dict", Dict: entries}, true
	default:
		return wireValue{}, false
	}
}

func decodeValue(wv wireValue) value.Value {
	switch wv.Kind {
	case "none":
		return value.None()
	case "bool":
		return value.Bool(wv.Bool)
	case "int":
		return value.Int(wv.Int)
	case "float":
		return value.Float(wv.Float)
	case "str":
		return value.Str(wv.Str)
	case "bytes":
		return value.Bytes([]byte(wv.Str))
	case "list":
		items := make([]value.Value, len(wv.Items))
		for i, it := range wv.Items {
			items[i] = decodeValue(it)
		}
		return value.List(items)
	case "tuple":
		items := make([]value.Value, len(wv.Items))
		for i, it := range wv.Items {
			items[i] = decodeValue(it)
		}
		return value.Tuple(items)
	case "dict":
		d := value.NewDict()
		for _, e := range wv.Dict {
			d.DictSet(e.Key.Str, decodeValue(e.Val))
		}
		return d
	default:
		return value.None()
	}
}

// reservedNames are bound at construction time and never part of a
// snapshot: reloading a session re-binds them fresh.
var reservedNames = map[string]bool{"context": true, "query": true}

// Snapshot serializes the session's user-visible bindings (excluding
// context/query and anything not JSON-representable) for the per-step
// protocol's `state` field and for durable checkpointing.
func (s *Session) Snapshot() (json.RawMessage, error) {
	vars := s.env.Snapshot()
	out := map[string]wireValue{}
	for name, v := range vars {
		if reservedNames[name] {
			continue
		}
		if wv, ok := encodeValue(v); ok {
			out[name] = wv
		}
	}
	state := struct {
		Vars      map[string]wireValue `json:"vars"`
		Iteration int                  `json:"iteration"`
		Depth     int                  `json:"depth"`
	}{Vars: out, Iteration: s.iteration, Depth: s.depth}
	return json.Marshal(state)
}

// Restore loads a previously captured Snapshot into this session's
// environment: each saved variable replaces any binding of the same
// name, and bindings absent from the snapshot (context/query among
// them) are kept as they are.
func (s *Session) Restore(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var state struct {
		Vars      map[string]wireValue `json:"vars"`
		Iteration int                  `json:"iteration"`
		Depth     int                  `json:"depth"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("restore session state: %w", err)
	}
	for name, wv := range state.Vars {
		s.env.Set(name, decodeValue(wv))
	}
	s.env.Promote()
	s.iteration = state.Iteration
	s.depth = state.Depth
	return nil
}
