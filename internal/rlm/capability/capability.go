// Package capability implements the interpreter's bound modules (re,
// json, base64, binascii, zlib) as plain value.Module namespaces of
// closures — never reflected from a Go struct's method set, so the
// sandbox can never reach anything beyond the entries explicitly
// registered here.
package capability

import "github.com/rlmkit/rlm/internal/rlm/value"

// Config controls which modules are bound and their resource caps.
type Config struct {
	// InjectB64Zlib gates whether base64/zlib are exposed at all (the
	// configuration option of the same name).
	InjectB64Zlib bool
	// ZlibMaxOutputBytes bounds zlib.decompress's inflated output size.
	ZlibMaxOutputBytes int
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{InjectB64Zlib: true, ZlibMaxOutputBytes: 1 << 20}
}

// Modules returns the full set of bound modules for the given config,
// keyed by the name sandboxed code refers to them with.
func Modules(cfg Config) map[string]value.Value {
	mods := map[string]value.Value{
		"re":       newRegexModule(),
		"json":     newJSONModule(),
		"binascii": newBinasciiModule(),
	}
	if cfg.InjectB64Zlib {
		mods["base64"] = newBase64Module()
		mods["zlib"] = newZlibModule(cfg.ZlibMaxOutputBytes)
	}
	return mods
}
