package capability

import "encoding/hex"

import "github.com/rlmkit/rlm/internal/rlm/value"

func newBinasciiModule() value.Value {
	entries := map[string]value.Value{
		"hexlify": value.NewBuiltin(func(args []value.Value) (value.Value, error) {
			if len(args) < 1 {
				return value.None(), typeErr("hexlify() takes 1 argument")
			}
			return value.Bytes([]byte(hex.EncodeToString(inputBytes(args[0])))), nil
		}),
		"unhexlify": value.NewBuiltin(func(args []value.Value) (value.Value, error) {
			if len(args) < 1 {
				return value.None(), typeErr("unhexlify() takes 1 argument")
			}
			b, err := hex.DecodeString(string(inputBytes(args[0])))
			if err != nil {
				return value.None(), valueErr("Odd-length string or non-hexadecimal digit found")
			}
			return value.Bytes(b), nil
		}),
	}
	return value.NewModule(&value.Module{Name: "binascii", Entries: entries})
}
