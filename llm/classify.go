package llm

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// DefaultRateLimitRetryAfter is assumed when a rate-limit failure carries
// no explicit retry hint.
const DefaultRateLimitRetryAfter = 60 * time.Second

// statusPatterns extract an HTTP-like status code from free-text error
// messages. First match wins.
var statusPatterns = []*regexp.Regexp{
	regexp.MustCompile(`status:\s*(\d{3})`),
	regexp.MustCompile(`http\s*(\d{3})`),
	regexp.MustCompile(`(\d{3})\s*error`),
	regexp.MustCompile(`error\s*(\d{3})`),
}

var (
	retryAfterPattern = regexp.MustCompile(`retry after (\d+(?:\.\d+)?)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?)`)
	resetAtPattern    = regexp.MustCompile(`resets?\s+at\s+(\d{10,13})`)
	resetInPattern    = regexp.MustCompile(`resets?\s+in\s+(\d+(?:\.\d+)?)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?)?`)
)

// Classify maps an arbitrary failure to exactly one *Error. Already
// classified errors pass through unchanged. Classification is a
// priority-ordered rule set over the lower-cased message, typed error
// markers (context deadlines, net.Error), and any status code extracted
// from the message; the first matching rule wins.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	msg := strings.ToLower(err.Error())
	status := extractStatusCode(msg)
	hint := parseRetryDelay(msg)

	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	var netErr net.Error
	isNetErr := errors.As(err, &netErr)
	if isNetErr && netErr.Timeout() {
		timedOut = true
	}

	var code ErrorCode
	switch {
	case containsAny(msg, "api key", "authentication", "unauthorized", "forbidden") ||
		status == 401 || status == 403:
		code = ErrorCodeAuthenticationFailed

	case containsAny(msg, "rate limit", "resource exhausted", "too many requests", "429") ||
		status == 429:
		code = ErrorCodeRateLimited

	case (strings.Contains(msg, "quota") && !strings.Contains(msg, "rate")) ||
		containsAny(msg, "billing", "usage limit"):
		code = ErrorCodeQuotaExceeded

	case containsAny(msg, "timeout", "deadline exceeded") || timedOut ||
		status == 408 || status == 504:
		code = ErrorCodeTimeout

	case containsAny(msg, "fetch", "network", "connection", "dns", "refused") || isNetErr:
		code = ErrorCodeNetwork

	case (strings.Contains(msg, "not found") && containsAny(msg, "model", "resource")) ||
		strings.Contains(msg, "unknown model") || status == 404:
		code = ErrorCodeModelNotFound

	case containsAny(msg, "invalid", "malformed", "bad request", "validation") ||
		status == 400 || status == 422:
		code = ErrorCodeInvalidRequest

	case containsAny(msg, "server error", "overloaded", "capacity") ||
		(status >= 500 && status < 600):
		code = ErrorCodeServer

	default:
		code = ErrorCodeUnknown
	}

	classified := NewError(code, err.Error(), err)
	classified.StatusCode = status
	if classified.Retryable {
		classified.RetryAfter = hint
	}
	if code == ErrorCodeRateLimited && classified.RetryAfter == nil {
		d := DefaultRateLimitRetryAfter
		classified.RetryAfter = &d
	}
	return classified
}

func containsAny(msg string, subs ...string) bool {
	return lo.SomeBy(subs, func(s string) bool {
		return strings.Contains(msg, s)
	})
}

// extractStatusCode pulls a three-digit status code out of a lower-cased
// message, or returns 0.
func extractStatusCode(msg string) int {
	for _, p := range statusPatterns {
		if m := p.FindStringSubmatch(msg); m != nil {
			status, err := strconv.Atoi(m[1])
			if err == nil && status >= 100 && status < 600 {
				return status
			}
		}
	}
	return 0
}

// parseRetryDelay scans a lower-cased message for an explicit retry hint:
// a "retry after N <unit>" phrase, a "reset(s) in N [<unit>]" relative
// delay, or a "reset(s) at N" unix timestamp. Returns nil when no hint is
// found, in which case the retry loop falls back to its own schedule.
func parseRetryDelay(msg string) *time.Duration {
	if m := retryAfterPattern.FindStringSubmatch(msg); m != nil {
		return scaledDuration(m[1], m[2])
	}
	if m := resetInPattern.FindStringSubmatch(msg); m != nil {
		return scaledDuration(m[1], m[2])
	}
	if m := resetAtPattern.FindStringSubmatch(msg); m != nil {
		epoch, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil
		}
		var at time.Time
		if len(m[1]) >= 13 {
			at = time.UnixMilli(epoch)
		} else {
			at = time.Unix(epoch, 0)
		}
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

// scaledDuration converts an amount plus an optional unit word into a
// duration. The unit defaults to seconds.
func scaledDuration(amount, unit string) *time.Duration {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return nil
	}
	scale := time.Second
	switch {
	case strings.HasPrefix(unit, "min"):
		scale = time.Minute
	case strings.HasPrefix(unit, "h"):
		scale = time.Hour
	}
	d := time.Duration(v * float64(scale))
	return &d
}
