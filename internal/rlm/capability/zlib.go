package capability

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/rlmkit/rlm/internal/rlm/value"
)

// newZlibModule exposes only decompress, with a hard output byte cap
// streamed so a crafted payload can never force an unbounded allocation
// (a "zip bomb"). compress/zlib is used directly: no library in the
// retrieval pack offers a closer DEFLATE implementation (see DESIGN.md).
func newZlibModule(maxOutputBytes int) value.Value {
	entries := map[string]value.Value{
		"decompress": value.NewBuiltin(func(args []value.Value) (value.Value, error) {
			if len(args) < 1 {
				return value.None(), typeErr("decompress() takes at least 1 argument")
			}
			cap := maxOutputBytes
			if len(args) > 2 {
				return value.None(), typeErr("decompress() takes at most 2 arguments")
			}
			zr, err := zlib.NewReader(bytes.NewReader(inputBytes(args[0])))
			if err != nil {
				return value.None(), valueErr("Error -3 while decompressing data: %v", err)
			}
			defer zr.Close()
			limited := io.LimitReader(zr, int64(cap)+1)
			out, rerr := io.ReadAll(limited)
			if rerr != nil {
				return value.None(), valueErr("Error while decompressing data: %v", rerr)
			}
			if len(out) > cap {
				return value.None(), valueErr("zlib output exceeds limit")
			}
			return value.Bytes(out), nil
		}),
	}
	return value.NewModule(&value.Module{Name: "zlib", Entries: entries})
}
