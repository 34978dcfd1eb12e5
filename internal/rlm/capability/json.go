package capability

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	omap "github.com/wk8/go-ordered-map/v2"

	"github.com/rlmkit/rlm/internal/rlm/value"
)

func newJSONModule() value.Value {
	entries := map[string]value.Value{
		"loads": value.NewBuiltin(jsonLoads),
		"dumps": value.NewBuiltin(jsonDumps),
	}
	return value.NewModule(&value.Module{Name: "json", Entries: entries})
}

func jsonLoads(args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.None(), typeErr("loads() takes 1 argument")
	}
	var raw any
	dec := json.NewDecoder(strings.NewReader(args[0].AsStr()))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return value.None(), valueErr("invalid JSON: %v", err)
	}
	return fromJSON(raw), nil
}

func fromJSON(raw any) value.Value {
	switch v := raw.(type) {
	case nil:
		return value.None()
	case bool:
		return value.Bool(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return value.Int(i)
		}
		f, _ := v.Float64()
		return value.Float(f)
	case string:
		return value.Str(v)
	case []any:
		items := make([]value.Value, len(v))
		for i, el := range v {
			items[i] = fromJSON(el)
		}
		return value.List(items)
	case map[string]any:
		d := value.NewDict()
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			d.DictSet("s:"+k, fromJSON(v[k]))
		}
		return d
	default:
		return value.None()
	}
}

func jsonDumps(args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.None(), typeErr("dumps() takes at least 1 argument")
	}
	indent := 0
	ensureASCII := true
	for i := 1; i < len(args); i++ {
		if args[i].Kind() == value.KindInt {
			indent = int(args[i].AsInt())
		}
		if args[i].Kind() == value.KindBool {
			ensureASCII = args[i].AsBool()
		}
	}
	raw, err := toJSON(args[0])
	if err != nil {
		return value.None(), err
	}
	var buf []byte
	var merr error
	if indent > 0 {
		buf, merr = json.MarshalIndent(raw, "", strings.Repeat(" ", indent))
	} else {
		buf, merr = json.Marshal(raw)
	}
	if merr != nil {
		return value.None(), valueErr("could not serialize value: %v", merr)
	}
	if ensureASCII {
		buf = escapeNonASCII(buf)
	}
	return value.Str(string(buf)), nil
}

func escapeNonASCII(b []byte) []byte {
	var out bytes.Buffer
	for _, r := range string(b) {
		if r > 127 {
			out.WriteString(`\u`)
			hex := "0123456789abcdef"
			out.WriteByte(hex[(r>>12)&0xf])
			out.WriteByte(hex[(r>>8)&0xf])
			out.WriteByte(hex[(r>>4)&0xf])
			out.WriteByte(hex[r&0xf])
			continue
		}
		out.WriteRune(r)
	}
	return out.Bytes()
}

func toJSON(v value.Value) (any, error) {
	switch v.Kind() {
	case value.KindNone:
		return nil, nil
	case value.KindBool:
		return v.AsBool(), nil
	case value.KindInt:
		return v.AsInt(), nil
	case value.KindFloat:
		return v.AsFloat(), nil
	case value.KindStr:
		return v.AsStr(), nil
	case value.KindList, value.KindTuple:
		items := v.AsList()
		out := make([]any, len(items))
		for i, it := range items {
			jv, err := toJSON(it)
			if err != nil {
				return nil, err
			}
			out[i] = jv
		}
		return out, nil
	case value.KindDict:
		out := omap.New[string, any]()
		for p := v.Dict().Oldest(); p != nil; p = p.Next() {
			jv, err := toJSON(p.Value)
			if err != nil {
				return nil, err
			}
			key := p.Key
			if len(key) >= 2 && key[1] == ':' {
				key = key[2:]
			}
			out.Set(key, jv)
		}
		return jsonObject{m: out}, nil
	default:
		return nil, typeErr("object of type '%s' is not JSON serializable", value.TypeName(v))
	}
}

// jsonObject renders an ordered map as JSON preserving insertion order,
// since encoding/json on a plain map would re-sort keys alphabetically.
type jsonObject struct{ m *omap.OrderedMap[string, any] }

func (o jsonObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for p := o.m.Oldest(); p != nil; p = p.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, _ := json.Marshal(p.Key)
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
