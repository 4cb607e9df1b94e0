package integrity

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindBadMode                 Kind = "BAD_MODE"
	KindDuplicateNode           Kind = "DUPLICATE_NODE"
	KindDuplicateCID            Kind = "DUPLICATE_CID"
	KindTooManyProviders        Kind = "TOO_MANY_PROVIDERS"
	KindUnresolvedWithProviders Kind = "UNRESOLVED_WITH_PROVIDERS"
	KindCIDTypeMismatch         Kind = "CID_TYPE_MISMATCH"
	KindUnknownStorageNode      Kind = "UNKNOWN_STORAGE_NODE"
	KindMissingDirectory        Kind = "MISSING_DIRECTORY"
	KindMalformedRecord         Kind = "MALFORMED_RECORD"
)

var invariants = map[Kind]string{
	KindBadMode:                 "node and cid modes must be one of secure, normal, default",
	KindDuplicateNode:           "each peer id is declared by exactly one info file",
	KindDuplicateCID:            "a cid is originated by at most one node",
	KindTooManyProviders:        "a lookup yields at most one provider",
	KindUnresolvedWithProviders: "a lookup for an unowned cid cannot find providers",
	KindCIDTypeMismatch:         "self-reported cid type must match its owner",
	KindUnknownStorageNode:      "provider records are stored only on experiment participants",
	KindMissingDirectory:        "every experiment path must be a directory",
	KindMalformedRecord:         "every log record must decode",
}

// Error is a fatal violation of an experiment data invariant.
type Error struct {
	Kind   Kind
	Dir    string
	File   string
	Line   int
	Record string
	Detail string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "integrity violation %s", e.Kind)
	if loc := e.location(); loc != "" {
		fmt.Fprintf(&b, " at %s", loc)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// Invariant describes the rule the violation breaks.
func (e *Error) Invariant() string {
	return invariants[e.Kind]
}

func (e *Error) location() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d", e.File, e.Line)
	case e.File != "":
		return e.File
	default:
		return e.Dir
	}
}

// Violation builds an Error with a formatted detail message.
func Violation(kind Kind, file string, line int, record string, format string, args ...any) *Error {
	return &Error{
		Kind:   kind,
		File:   file,
		Line:   line,
		Record: record,
		Detail: fmt.Sprintf(format, args...),
	}
}

// WithDir stamps the experiment directory on an integrity error found
// anywhere in err's chain. Other errors pass through untouched.
func WithDir(err error, dir string) error {
	var ierr *Error
	if errors.As(err, &ierr) && ierr.Dir == "" {
		ierr.Dir = dir
	}
	return err
}

// As extracts the integrity error from err's chain.
func As(err error) (*Error, bool) {
	var ierr *Error
	if errors.As(err, &ierr) {
		return ierr, true
	}
	return nil, false
}
