package metatree

import (
	"errors"
	"fmt"
	"strings"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	// Schema build/resolve/merge failures. These always surface to the
	// caller: they mean the document itself is broken.
	CodeMalformedNode   = "malformed_node"
	CodeUnknownType     = "unknown_type"
	CodePathNotFound    = "path_not_found"
	CodeCyclicReference = "cyclic_reference"
	CodeParseError      = "parse_error"

	// Store write failures. Surfaced per call; the store is never left
	// partially mutated.
	CodeTypeMismatch   = "type_mismatch"
	CodeEnumViolation  = "enum_violation"
	CodeOutOfBounds    = "out_of_bounds"
	CodeCoercionFailed = "coercion_failed"
	CodeRequired       = "required"
	CodeReadonly       = "readonly"
	CodeKeyTooLong     = "key_too_long"
)

// Issue represents a single schema or store error entry.
type Issue struct {
	Path    string // Dot path (for example: meta.target.ra).
	Code    string // One of the codes listed above.
	Message string
	Hint    string // Optional: remediation hints, reference targets, etc.
	Cause   error  // Optional: underlying error.
	// Params carries structured parameters (e.g., {"expected":"number",
	// "got":"string"}) for i18n and observability.
	Params map[string]any
}

// Issues is a collection of schema/store errors that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. type_mismatch at meta.target.ra
		fmt.Fprintf(b, "%s at %s", it.Code, it.Path)
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// HasCode reports whether any issue in the collection carries the given code.
func (iss Issues) HasCode(code string) bool {
	for _, it := range iss {
		if it.Code == code {
			return true
		}
	}
	return false
}
