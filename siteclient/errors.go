package siteclient

import "fmt"

// Kind discriminates the error categories spec.md §7 requires callers to
// branch on: transient I/O is retried by policy, permanent I/O and schema
// errors mark the item failed without retry.
type Kind int

const (
	// KindTransient covers HTTP timeouts, 5xx, and connection resets —
	// retryable by the caller's backoff policy.
	KindTransient Kind = iota
	// KindPermanent covers 404s on an article body — the Article is
	// marked failed, never retried.
	KindPermanent
	// KindSchema covers malformed or unexpected upstream JSON/HTML.
	KindSchema
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with the Kind the caller needs to decide
// retry vs. fail-and-move-on behavior.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("siteclient: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func transientErr(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func permanentErr(op string, err error) error {
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

func schemaErr(op string, err error) error {
	return &Error{Kind: KindSchema, Op: op, Err: err}
}
