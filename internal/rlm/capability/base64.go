package capability

import "encoding/base64"

import "github.com/rlmkit/rlm/internal/rlm/value"

// newBase64Module and newBinasciiModule use the standard library's
// base64/hex codecs directly: these are standardized wire-format
// encodings, not a domain concern any pack library implements better than
// Go's own encoding/base64 and encoding/hex (see DESIGN.md).
func newBase64Module() value.Value {
	entries := map[string]value.Value{
		"b64encode": value.NewBuiltin(func(args []value.Value) (value.Value, error) {
			if len(args) < 1 {
				return value.None(), typeErr("b64encode() takes 1 argument")
			}
			return value.Bytes([]byte(base64.StdEncoding.EncodeToString(args[0].AsBytes()))), nil
		}),
		"b64decode": value.NewBuiltin(func(args []value.Value) (value.Value, error) {
			if len(args) < 1 {
				return value.None(), typeErr("b64decode() takes 1 argument")
			}
			b, err := base64.StdEncoding.DecodeString(string(inputBytes(args[0])))
			if err != nil {
				return value.None(), valueErr("invalid base64: %v", err)
			}
			return value.Bytes(b), nil
		}),
		"urlsafe_b64encode": value.NewBuiltin(func(args []value.Value) (value.Value, error) {
			if len(args) < 1 {
				return value.None(), typeErr("urlsafe_b64encode() takes 1 argument")
			}
			return value.Bytes([]byte(base64.URLEncoding.EncodeToString(args[0].AsBytes()))), nil
		}),
		"urlsafe_b64decode": value.NewBuiltin(func(args []value.Value) (value.Value, error) {
			if len(args) < 1 {
				return value.None(), typeErr("urlsafe_b64decode() takes 1 argument")
			}
			b, err := base64.URLEncoding.DecodeString(string(inputBytes(args[0])))
			if err != nil {
				return value.None(), valueErr("invalid base64: %v", err)
			}
			return value.Bytes(b), nil
		}),
	}
	return value.NewModule(&value.Module{Name: "base64", Entries: entries})
}

// inputBytes accepts either a Str or Bytes value, matching Python's
// leniency around base64/binascii input types.
func inputBytes(v value.Value) []byte {
	if v.Kind() == value.KindStr {
		return []byte(v.AsStr())
	}
	return v.AsBytes()
}
