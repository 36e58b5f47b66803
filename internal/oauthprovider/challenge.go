package oauthprovider

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Challenge is the parsed content of a WWW-Authenticate response header, the
// signal a remote transport uses to tell the hub which authorization server
// protects it.
type Challenge struct {
	Scheme              string
	Realm               string
	Issuer              string
	ResourceMetadataURL string
	Scope               string
}

var authParamRE = regexp.MustCompile(`(\w+)="([^"]*)"`)

// ParseChallenge parses a WWW-Authenticate header value.
func ParseChallenge(header string) (*Challenge, error) {
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	c := &Challenge{Scheme: parts[0]}
	if len(parts) < 2 {
		return c, nil
	}

	for _, m := range authParamRE.FindAllStringSubmatch(parts[1], -1) {
		key, value := strings.ToLower(m[1]), m[2]
		switch key {
		case "realm":
			c.Realm = value
			if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
				c.Issuer = value
			}
		case "resource_metadata":
			c.ResourceMetadataURL = value
		case "scope":
			c.Scope = value
		}
	}
	return c, nil
}

// ChallengeFromResponse extracts a Challenge from a 401 response, or nil if
// the response carries no usable WWW-Authenticate header.
func ChallengeFromResponse(resp *http.Response) *Challenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}
	header := resp.Header.Get("WWW-Authenticate")
	if header == "" {
		return nil
	}
	c, err := ParseChallenge(header)
	if err != nil {
		return nil
	}
	return c
}
