// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package logging

import (
	"net/url"
	"strings"
)

// sensitiveKeys are header and query names whose values are never logged.
var sensitiveKeys = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"api_key":       true,
	"apikey":        true,
	"token":         true,
	"access_token":  true,
	"password":      true,
	"secret":        true,
	"cookie":        true,
}

// SanitizeToken masks a secret, keeping only the first and last 4 characters.
//
//	"Bearer abcdefghijklmnop" -> "Bear...mnop"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeURL strips user credentials and masks sensitive query parameters.
// Unparseable input is replaced entirely.
func SanitizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[invalid url]"
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k, vs := range q {
			if !sensitiveKeys[strings.ToLower(k)] {
				continue
			}
			for i := range vs {
				vs[i] = SanitizeToken(vs[i])
			}
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// SanitizeHeaders returns a copy of headers with sensitive values masked.
func SanitizeHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if sensitiveKeys[strings.ToLower(k)] {
			out[k] = SanitizeToken(v)
			continue
		}
		out[k] = v
	}
	return out
}
