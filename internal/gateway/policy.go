package gateway

import (
	"net/http"
	"strconv"
	"time"
)

// Class is the quota class of an outbound call. Reads and mutations are
// limited independently by the remote service.
type Class string

const (
	ClassRead   Class = "read"
	ClassMutate Class = "mutate"
)

// PolicyKind selects how a retry delay is computed.
type PolicyKind string

const (
	// PolicyFixed always waits BaseDelay between attempts.
	PolicyFixed PolicyKind = "fixed"
	// PolicyServerSpecified honors the Retry-After header, falling back to
	// BaseDelay when the server doesn't send one.
	PolicyServerSpecified PolicyKind = "serverSpecified"
)

// BackoffPolicy is a declarative retry policy consumed by the gateway worker.
// Policies are data, not control flow: the worker never hard-codes delays.
type BackoffPolicy struct {
	Kind        PolicyKind
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay computes the pause before the next attempt, given the headers of the
// response that triggered the retry.
func (p BackoffPolicy) Delay(header http.Header) time.Duration {
	if p.Kind == PolicyServerSpecified && header != nil {
		if v := header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return p.BaseDelay
}

// Default policies for the two retryable failure classes of the remote
// service: quota rejections (429) and transient server errors (5xx).
var (
	DefaultQuotaBackoff  = BackoffPolicy{Kind: PolicyServerSpecified, MaxAttempts: 5, BaseDelay: 60 * time.Second}
	DefaultServerBackoff = BackoffPolicy{Kind: PolicyFixed, MaxAttempts: 3, BaseDelay: 10 * time.Second}
)

// ClassLimit describes the admission limits for one quota class.
type ClassLimit struct {
	// Limit is the maximum number of calls inside a sliding Window.
	// Zero means no window cap, only spacing.
	Limit  int
	Window time.Duration

	// MinSpacing is the minimum gap enforced between consecutive calls.
	MinSpacing time.Duration
}

// Default limits per the remote service's documented quotas: roughly 1000
// reads per 5-minute window and one mutating call per second.
var (
	DefaultReadLimit   = ClassLimit{Limit: 1000, Window: 5 * time.Minute, MinSpacing: 100 * time.Millisecond}
	DefaultMutateLimit = ClassLimit{Limit: 1, Window: time.Second, MinSpacing: time.Second}
)
