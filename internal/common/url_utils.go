package common

import (
	"fmt"
	"net/url"
	"strings"
)

// JoinURL appends path segments to base, keeping exactly one "/" between
// segments and a trailing "/" (the dashboard's routes all end in one).
func JoinURL(base string, segments ...string) string {
	result := strings.TrimRight(base, "/")
	for _, segment := range segments {
		segment = strings.Trim(segment, "/")
		if segment == "" {
			continue
		}
		result += "/" + segment
	}
	return result + "/"
}

// ResolveURL resolves href (absolute, root-relative or relative) against base.
func ResolveURL(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL %s: %w", base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("failed to parse href %s: %w", href, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// WithQuery returns rawURL with the given query parameters added.
func WithQuery(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %s: %w", rawURL, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
