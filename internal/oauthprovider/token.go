package oauthprovider

import (
	"fmt"
	"time"
)

// tokenExpiryMargin accounts for clock skew and in-flight requests: a token
// expiring within this margin is treated as already expired.
const tokenExpiryMargin = 30 * time.Second

// Token is the provider's own representation of an access/refresh token
// pair, independent of any transport library's token type.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// Expired reports whether the token needs a refresh before use.
func (t Token) Expired() bool {
	if t.AccessToken == "" {
		return true
	}
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(tokenExpiryMargin).After(t.Expiry)
}

// Bearer formats the token for an Authorization header, or "" if empty.
func (t Token) Bearer() string {
	if t.AccessToken == "" {
		return ""
	}
	typ := t.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return typ + " " + t.AccessToken
}

// String implements fmt.Stringer so an accidental %v/%s of a Token in a log
// line or error message redacts both token values instead of leaking them.
func (t Token) String() string {
	return fmt.Sprintf("Token{AccessToken:%v, RefreshToken:%v, TokenType:%s, Expiry:%s}",
		RedactedToken(t.AccessToken), RedactedToken(t.RefreshToken), t.TokenType, t.Expiry)
}

// GoString implements fmt.GoStringer for %#v formatting, same redaction.
func (t Token) GoString() string {
	return t.String()
}
