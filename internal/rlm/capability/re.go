package capability

import (
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/rlmkit/rlm/internal/rlm/value"
)

const maxPatternBytes = 4 * 1024

// newRegexModule builds the `re` module: findall, search, match, split,
// sub, finditer, escape, compile. Go's stdlib regexp is RE2 and cannot
// express the backreferences the accepted subset's regex dialect allows,
// so compilation goes through regexp2, which implements the Perl-ish
// dialect (\d \w \s, non-greedy, alternation, backreferences).
func newRegexModule() value.Value {
	entries := map[string]value.Value{
		"findall":  reBuiltin(reFindall),
		"search":   reBuiltin(reSearch),
		"match":    reBuiltin(reMatch),
		"split":    reBuiltin(reSplit),
		"sub":      reBuiltin(reSub),
		"finditer": reBuiltin(reFinditer),
		"escape":   reBuiltin(reEscape),
		"compile":  reBuiltin(reCompile),
	}
	return value.NewModule(&value.Module{Name: "re", Entries: entries})
}

func reBuiltin(fn func(args []value.Value) (value.Value, error)) value.Value {
	return value.NewBuiltin(fn)
}

func compilePattern(pat string) (*regexp2.Regexp, error) {
	if len(pat) > maxPatternBytes {
		return nil, valueErr("regex pattern exceeds %d bytes", maxPatternBytes)
	}
	re, err := regexp2.Compile(pat, regexp2.RE2)
	if err != nil {
		return nil, valueErr("invalid regex: %v", err)
	}
	return re, nil
}

func reFindall(args []value.Value) (value.Value, error) {
	if len(args) < 2 {
		return value.None(), typeErr("findall() takes 2 arguments")
	}
	re, err := compilePattern(args[0].AsStr())
	if err != nil {
		return value.None(), err
	}
	text := args[1].AsStr()
	var out []value.Value
	m, merr := re.FindStringMatch(text)
	for m != nil && merr == nil {
		if m.GroupCount() > 1 {
			groups := make([]value.Value, 0, m.GroupCount()-1)
			for i := 1; i < m.GroupCount(); i++ {
				groups = append(groups, value.Str(m.GroupByNumber(i).String()))
			}
			out = append(out, value.Tuple(groups))
		} else {
			out = append(out, value.Str(m.String()))
		}
		m, merr = re.FindNextMatch(m)
	}
	return value.List(out), nil
}

func reSearch(args []value.Value) (value.Value, error) {
	if len(args) < 2 {
		return value.None(), typeErr("search() takes 2 arguments")
	}
	re, err := compilePattern(args[0].AsStr())
	if err != nil {
		return value.None(), err
	}
	m, merr := re.FindStringMatch(args[1].AsStr())
	if merr != nil || m == nil {
		return value.None(), nil
	}
	return matchValue(m), nil
}

func reMatch(args []value.Value) (value.Value, error) {
	if len(args) < 2 {
		return value.None(), typeErr("match() takes 2 arguments")
	}
	re, err := compilePattern(`\A(?:` + args[0].AsStr() + `)`)
	if err != nil {
		return value.None(), err
	}
	m, merr := re.FindStringMatch(args[1].AsStr())
	if merr != nil || m == nil {
		return value.None(), nil
	}
	return matchValue(m), nil
}

func matchValue(m *regexp2.Match) value.Value {
	d := value.NewDict()
	d.DictSet("s:group", value.Str(m.String()))
	d.DictSet("s:start", value.Int(int64(m.Index)))
	d.DictSet("s:end", value.Int(int64(m.Index+m.Length)))
	if m.GroupCount() > 1 {
		groups := make([]value.Value, 0, m.GroupCount()-1)
		for i := 1; i < m.GroupCount(); i++ {
			groups = append(groups, value.Str(m.GroupByNumber(i).String()))
		}
		d.DictSet("s:groups", value.Tuple(groups))
	}
	return d
}

func reSplit(args []value.Value) (value.Value, error) {
	if len(args) < 2 {
		return value.None(), typeErr("split() takes 2 arguments")
	}
	re, err := compilePattern(args[0].AsStr())
	if err != nil {
		return value.None(), err
	}
	text := args[1].AsStr()
	var out []value.Value
	last := 0
	m, merr := re.FindStringMatch(text)
	for m != nil && merr == nil {
		out = append(out, value.Str(text[last:m.Index]))
		last = m.Index + m.Length
		m, merr = re.FindNextMatch(m)
	}
	out = append(out, value.Str(text[last:]))
	return value.List(out), nil
}

func reSub(args []value.Value) (value.Value, error) {
	if len(args) < 3 {
		return value.None(), typeErr("sub() takes 3 arguments")
	}
	re, err := compilePattern(args[0].AsStr())
	if err != nil {
		return value.None(), err
	}
	repl := args[1].AsStr()
	text := args[2].AsStr()
	out, rerr := re.Replace(text, replacementTemplate(repl), -1, -1)
	if rerr != nil {
		return value.None(), valueErr("regex substitution failed: %v", rerr)
	}
	return value.Str(out), nil
}

// replacementTemplate rewrites Python-style \1 backreferences in a
// replacement string to regexp2's $1 syntax.
func replacementTemplate(repl string) string {
	var sb strings.Builder
	for i := 0; i < len(repl); i++ {
		if repl[i] == '\\' && i+1 < len(repl) && repl[i+1] >= '0' && repl[i+1] <= '9' {
			sb.WriteByte('$')
			sb.WriteByte(repl[i+1])
			i++
			continue
		}
		sb.WriteByte(repl[i])
	}
	return sb.String()
}

func reFinditer(args []value.Value) (value.Value, error) {
	return reFindall(args)
}

func reEscape(args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.None(), typeErr("escape() takes 1 argument")
	}
	return value.Str(regexp2.Escape(args[0].AsStr())), nil
}

// reCompile returns a module-shaped value exposing the same methods
// bound to a fixed pattern, mirroring Python's compiled-pattern objects.
func reCompile(args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.None(), typeErr("compile() takes 1 argument")
	}
	pat := args[0]
	if _, err := compilePattern(pat.AsStr()); err != nil {
		return value.None(), err
	}
	bind := func(fn func([]value.Value) (value.Value, error)) value.Value {
		return value.NewBuiltin(func(rest []value.Value) (value.Value, error) {
			return fn(append([]value.Value{pat}, rest...))
		})
	}
	entries := map[string]value.Value{
		"findall":  bind(reFindall),
		"search":   bind(reSearch),
		"match":    bind(reMatch),
		"split":    bind(reSplit),
		"finditer": bind(reFinditer),
		"sub": value.NewBuiltin(func(rest []value.Value) (value.Value, error) {
			if len(rest) < 2 {
				return value.None(), typeErr("sub() takes 2 arguments")
			}
			return reSub([]value.Value{pat, rest[0], rest[1]})
		}),
	}
	return value.NewModule(&value.Module{Name: "re.Pattern", Entries: entries}), nil
}
