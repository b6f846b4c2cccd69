package llm

import (
	"fmt"
	"strings"
)

// ErrorKind classifies backend failures the core reacts to.
type ErrorKind string

const (
	// KindRateLimited maps to a fixed user-facing message and is
	// never retried within the same request.
	KindRateLimited ErrorKind = "rate-limited"
	// KindContextTooLarge triggers the compaction retry loop.
	KindContextTooLarge ErrorKind = "context-too-large"
	// KindGeneric passes the underlying message through.
	KindGeneric ErrorKind = "generic"
)

// RateLimitMessage is the fixed text shown for 429 responses.
const RateLimitMessage = "The model provider is rate limiting requests. Please wait a moment and try again."

// ProviderError is the one typed error all backend failures are
// normalized into at the adapter boundary, so core logic never
// inspects provider-specific error shapes.
type ProviderError struct {
	Kind       ErrorKind
	HTTPStatus int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// UserMessage is the text surfaced to the client for this error.
func (e *ProviderError) UserMessage() string {
	if e.Kind == KindRateLimited {
		return RateLimitMessage
	}
	return e.Message
}

// contextSizePatterns are the message fragments backends use to
// report an over-long prompt on a 400.
var contextSizePatterns = []string{
	"context length",
	"context_length_exceeded",
	"token limit",
	"max_tokens",
	"prompt is too long",
	"too many tokens",
	"input is too long",
}

// normalizeHTTPError classifies a backend failure from its HTTP
// status and message text. 413 is always context-too-large; 400 only
// when the body carries one of the known size phrases.
func normalizeHTTPError(status int, message string) *ProviderError {
	kind := KindGeneric
	switch {
	case status == 429:
		kind = KindRateLimited
	case status == 413:
		kind = KindContextTooLarge
	case status == 400 && matchesContextSize(message):
		kind = KindContextTooLarge
	}
	return &ProviderError{Kind: kind, HTTPStatus: status, Message: message}
}

// normalizeStreamError classifies an error object delivered in-band
// on an SSE stream, where no HTTP status is available; the error type
// and message text are all there is to go on.
func normalizeStreamError(errType, message string) *ProviderError {
	kind := KindGeneric
	switch {
	case matchesRateLimit(errType) || matchesRateLimit(message):
		kind = KindRateLimited
	case matchesContextSize(message):
		kind = KindContextTooLarge
	}
	return &ProviderError{Kind: kind, Message: message}
}

// rateLimitPatterns are the fragments backends use to report
// throttling when the 429 status is not visible.
var rateLimitPatterns = []string{
	"rate_limit",
	"rate limit",
	"too many requests",
}

func matchesRateLimit(message string) bool {
	lower := strings.ToLower(message)
	for _, pattern := range rateLimitPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func matchesContextSize(message string) bool {
	lower := strings.ToLower(message)
	for _, pattern := range contextSizePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
