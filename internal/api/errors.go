package api

import "fmt"

type Kind int

const (
	KindTransport Kind = iota
	KindCredentialMissing
	KindUnauthorized
	KindForbidden
	KindRateLimited
	KindNotFound
	KindSchemaMismatch
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindCredentialMissing:
		return "credential_missing"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindHTTP:
		return "http"
	default:
		return "transport"
	}
}

// Error is returned by every RiotClient call. Compare with errors.Is against
// the Err* sentinels, which match on Kind alone.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrTransport         = &Error{Kind: KindTransport, Message: "transport failure"}
	ErrCredentialMissing = &Error{Kind: KindCredentialMissing, Message: "relay has no API token configured"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "API token expired or invalid. Please update your RIOT_API_TOKEN in .env.local"}
	ErrForbidden         = &Error{Kind: KindForbidden, Message: "API access forbidden. Check your API token permissions"}
	ErrRateLimited       = &Error{Kind: KindRateLimited, Message: "Rate limit exceeded. Please try again later"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "no data found"}
	ErrSchemaMismatch    = &Error{Kind: KindSchemaMismatch, Message: "response does not match the expected schema"}
	ErrHTTP              = &Error{Kind: KindHTTP, Message: "unexpected HTTP status"}
)

func newError(kind Kind, status int, message string, err error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, Err: err}
}
