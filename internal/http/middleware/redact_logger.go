// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger for the fortune
// API. Generation requests carry names and birth data, so the logger never
// touches bodies and scrubs what it does log:
//
//   - calendar dates and times (birth data) in query strings and headers
//   - emails, phone numbers and UUID-like identifiers
//   - sensitive headers (Authorization, Cookie, Set-Cookie, plus custom)
//   - name-like query parameters (name, full_name, birth_*) fully masked
//
// The only subject identifier that reaches the log is the hashed subject id
// recorded by the handler through SetSubject.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders names extra headers whose values are replaced with "[REDACTED]".
// MaskParams names extra query parameters masked the same way. Matching is
// case-insensitive and merged with the built-in lists.
type RedactOptions struct {
	MaskHeaders []string
	MaskParams  []string
}

var (
	uuidRE = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	// Dates like 1990-03-15, 1990/3/15 and 1990年3月15日, with an optional time.
	dateRE  = regexp.MustCompile(`\b\d{4}(?:[-/.]\d{1,2}[-/.]\d{1,2}|年\d{1,2}月\d{1,2}日)(?:[T ]\d{1,2}:\d{2}(?::\d{2})?)?`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits-only phone pattern (prevents matching hex characters from UUIDs).
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redact scrubs free text. Order matters: ids, then dates, then emails, then
// phones (the loosest pattern).
func redact(s string) string {
	if s == "" {
		return s
	}
	out := uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	out = dateRE.ReplaceAllString(out, "[REDACTED:date]")
	out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
}

func lowerSet(builtin []string, extra []string) map[string]struct{} {
	m := make(map[string]struct{}, len(builtin)+len(extra))
	for _, v := range append(builtin, extra...) {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			m[v] = struct{}{}
		}
	}
	return m
}

// redactQuery masks whole values of sensitive parameters and pattern-redacts
// the rest. Unparsable queries are pattern-redacted as a whole.
func redactQuery(raw string, masked map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redact(raw)
	}
	for k, vv := range vals {
		key := strings.ToLower(k)
		_, hide := masked[key]
		if strings.HasPrefix(key, "birth") {
			hide = true
		}
		for i := range vv {
			if hide {
				vv[i] = "[REDACTED]"
			} else {
				vv[i] = redact(vv[i])
			}
		}
	}
	// Encode escapes the brackets; keep the markers readable.
	return strings.NewReplacer("%5B", "[", "%5D", "]", "%3A", ":").Replace(vals.Encode())
}

// RedactingLogger returns a Gin middleware that attaches a request-scoped
// logger (see LoggerFrom) and writes one access log line per request at
// info, warn (4xx) or error (5xx) level.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskParams := lowerSet([]string{"name", "full_name", "fullname", "subject"}, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := truncate(redactQuery(c.Request.URL.RawQuery, maskParams), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		l := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = l.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", redact(c.Errors.String()))
			}
		case status >= 400:
			ev = l.Warn()
		}
		if sid := SubjectFrom(c); sid != "" {
			ev = ev.Str("subject_id", sid)
		}
		ev.
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
