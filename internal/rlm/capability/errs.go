package capability

import (
	"fmt"

	"github.com/rlmkit/rlm/internal/rlm/value"
)

func typeErr(format string, args ...any) *value.CapError {
	return &value.CapError{Kind: "TypeError", Message: fmt.Sprintf(format, args...)}
}

func valueErr(format string, args ...any) *value.CapError {
	return &value.CapError{Kind: "ValueError", Message: fmt.Sprintf(format, args...)}
}
