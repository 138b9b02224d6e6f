package ai

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies provider failures for the presentation layer.
type Kind string

const (
	KindAuth    Kind = "auth"
	KindQuota   Kind = "quota"
	KindNetwork Kind = "network"
	KindGeneric Kind = "generic"
)

// ErrEmptyReply is returned when the provider answers without any text.
var ErrEmptyReply = errors.New("provider returned an empty reply")

// ProviderError wraps a failure reported by a remote provider.
type ProviderError struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error [%d]: %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// newProviderError builds a ProviderError, classifying err when kind is empty.
func newProviderError(provider string, status int, kind Kind, err error) *ProviderError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if kind == "" && status > 0 {
		// Gemini reports a bad key as 400, so a generic status falls through to the message.
		kind = KindFromStatus(status)
		if kind == KindGeneric {
			kind = classifyMessage(msg)
		}
	}
	if kind == "" {
		kind = KindOf(err)
	}
	return &ProviderError{Kind: kind, Provider: provider, StatusCode: status, Message: msg, Err: err}
}

// KindFromStatus maps an HTTP status code to a Kind.
func KindFromStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return KindQuota
	case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindNetwork
	default:
		return KindGeneric
	}
}

// KindOf classifies any error returned by a provider. Typed provider errors win,
// then transport failures, then well-known message fragments.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind != "" {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return classifyMessage(err.Error())
}

var kindHints = []struct {
	kind  Kind
	hints []string
}{
	{KindAuth, []string{"status 401", "status 403", "error 401", "error 403", "status code: 401", "status code: 403", "[401]", "[403]", "unauthorized", "unauthenticated", "invalid api key", "api key not valid", "api_key_invalid", "permission denied", "authentication"}},
	{KindQuota, []string{"status 429", "error 429", "status code: 429", "[429]", "quota", "rate limit", "ratelimit", "resource_exhausted", "resource exhausted", "too many requests"}},
	{KindNetwork, []string{"timeout", "timed out", "connection refused", "connection reset", "no such host", "unexpected eof", "tls handshake"}},
}

func classifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, group := range kindHints {
		for _, hint := range group.hints {
			if strings.Contains(lower, hint) {
				return group.kind
			}
		}
	}
	return KindGeneric
}
