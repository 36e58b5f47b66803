package oauthprovider

// RedactedToken wraps a token string so it never leaks into a log line or
// error message: formatting one with %v, %s, or %#v always prints
// "[REDACTED]", and the only way to recover the real value is Value().
type RedactedToken string

// String implements fmt.Stringer.
func (RedactedToken) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer for %#v formatting.
func (RedactedToken) GoString() string { return "oauthprovider.RedactedToken{[REDACTED]}" }

// IsEmpty reports whether the wrapped value is the empty string.
func (t RedactedToken) IsEmpty() bool { return t == "" }

// Value returns the real token value. Callers must only use this to place
// the token on an outgoing request, never to log or print it.
func (t RedactedToken) Value() string { return string(t) }

// MarshalText implements encoding.TextMarshaler, so a RedactedToken
// accidentally serialized through encoding/json or similar still redacts.
// Token's own fields are plain strings and are not covered by this.
func (t RedactedToken) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }
