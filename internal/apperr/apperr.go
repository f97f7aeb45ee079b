// Package apperr defines the single failure type that every layer of the
// service returns to the HTTP boundary, together with the table that maps
// each failure kind to its wire representation.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidUsername
	KindInvalidPassword
	KindCredentialsRequestInvalid
	KindTokenInvalid
	KindTokenSignatureInvalid
	KindTokenExpired
	KindTokenMalformed
	KindTokenUnsupported
	KindTokenHeaderMissing
	KindAccessDenied
	KindMailRequestInvalid
	KindMailDestinationInvalid
)

// Class groups kinds for clients that only care about the broad category.
type Class string

const (
	ClassCredentials Class = "credentials"
	ClassToken       Class = "token"
	ClassAccess      Class = "access"
	ClassValidation  Class = "validation"
	ClassMail        Class = "mail"
	ClassInternal    Class = "internal"
)

type Descriptor struct {
	Code    int
	Name    string
	Message string
	Class   Class
	Status  int
}

var descriptors = [...]Descriptor{
	KindInternal:                  {500, "internal", "Internal server error", ClassInternal, http.StatusInternalServerError},
	KindInvalidUsername:           {410, "invalid-username", "Invalid username credential", ClassCredentials, http.StatusUnauthorized},
	KindInvalidPassword:           {411, "invalid-password", "Invalid password credential", ClassCredentials, http.StatusUnauthorized},
	KindCredentialsRequestInvalid: {412, "credentials-request-invalid", "Invalid authentication credentials format", ClassValidation, http.StatusBadRequest},
	KindTokenInvalid:              {413, "token-invalid", "Invalid authentication token", ClassToken, http.StatusUnauthorized},
	KindTokenSignatureInvalid:     {415, "token-signature-invalid", "Invalid authentication token signature", ClassToken, http.StatusUnauthorized},
	KindTokenExpired:              {416, "token-expired", "Expired authentication token", ClassToken, http.StatusUnauthorized},
	KindTokenMalformed:            {417, "token-malformed", "Malformed authentication token", ClassToken, http.StatusUnauthorized},
	KindTokenUnsupported:          {418, "token-unsupported", "Unsupported authentication token", ClassToken, http.StatusUnauthorized},
	KindTokenHeaderMissing:        {420, "token-header-missing", "Authentication token header not found", ClassToken, http.StatusUnauthorized},
	KindAccessDenied:              {421, "access-denied", "Not authorized to view resource, access denied", ClassAccess, http.StatusForbidden},
	KindMailRequestInvalid:        {510, "mail-request-invalid", "Mail send request invalid", ClassValidation, http.StatusBadRequest},
	KindMailDestinationInvalid:    {511, "mail-destination-invalid", "Invalid email address host", ClassMail, http.StatusBadRequest},
}

// Kinds lists every defined kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(descriptors))
	for i := range descriptors {
		out[i] = Kind(i)
	}
	return out
}

// Describe returns the table row for k. Unknown kinds describe as internal.
func (k Kind) Describe() Descriptor {
	if k < 0 || int(k) >= len(descriptors) {
		return descriptors[KindInternal]
	}
	return descriptors[k]
}

func (k Kind) String() string { return k.Describe().Name }

func (k Kind) Status() int { return k.Describe().Status }

// Error is the only error type that crosses into the HTTP layer. Detail and
// Err are for logs; clients see the kind's message and the violations.
type Error struct {
	Kind       Kind
	Detail     string
	Violations []string
	Err        error
}

func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

func Newf(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Invalid builds a validation failure carrying per-field messages.
func Invalid(kind Kind, violations []string) *Error {
	return &Error{Kind: kind, Violations: violations}
}

func (e *Error) Error() string {
	msg := e.Kind.Describe().Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// From returns the *Error in err's chain, or wraps err as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindInternal, err)
}

// KindOf reports the kind of err; anything that is not an *Error is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
