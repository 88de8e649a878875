// Package proxy implements the connection-level control plane: the
// per-connection router that applies persisted destination overrides,
// the engine contract wire-level handlers plug into, and the TCP
// listeners that tie the two together.
package proxy

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Listener modes. A reverse mode may carry its destination inline as
// "reverse:<host:port>", which takes precedence over Upstream.
const (
	ModeForward = "forward"
	ModeReverse = "reverse"

	reversePrefix = ModeReverse + ":"
)

// ErrInvalidOverride marks a destination override that is not a usable
// host:port. Overrides carrying it are skipped, never fatal.
var ErrInvalidOverride = errors.New("invalid destination override")

// Config describes how a single connection is handled. It is passed by
// value everywhere: the shared default held by a Router is never handed
// out directly, every connection gets its own copy to customize.
type Config struct {
	// Mode is ModeForward, ModeReverse, or ModeReverse with an inline
	// destination ("reverse:host:port").
	Mode string

	// Upstream is the static destination dialed in reverse mode when no
	// route overrides it.
	Upstream string

	// DialTimeout bounds the upstream dial in reverse mode.
	DialTimeout time.Duration
}

// IsReverse reports whether the connection is handled in reverse mode.
func (c Config) IsReverse() bool {
	return c.Mode == ModeReverse || strings.HasPrefix(c.Mode, reversePrefix)
}

// OverrideEndpoint returns the destination carried inline in Mode, or
// an empty string when Mode has none.
func (c Config) OverrideEndpoint() string {
	if strings.HasPrefix(c.Mode, reversePrefix) {
		return c.Mode[len(reversePrefix):]
	}
	return ""
}

// UpstreamEndpoint returns the destination a reverse-mode connection
// should dial: the inline override when present, else Upstream.
func (c Config) UpstreamEndpoint() string {
	if ep := c.OverrideEndpoint(); ep != "" {
		return ep
	}
	return c.Upstream
}

// WithOverride returns a copy of the configuration whose mode encodes
// the given destination. The receiver is left untouched.
func (c Config) WithOverride(endpoint string) Config {
	c.Mode = reversePrefix + endpoint
	return c
}

// ValidateEndpoint checks that endpoint is a dialable host:port.
func ValidateEndpoint(endpoint string) error {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%q", endpoint), ErrInvalidOverride)
	}
	if host == "" {
		return errors.Mark(errors.Newf("%q has no host", endpoint), ErrInvalidOverride)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return errors.Mark(errors.Newf("%q has no usable port", endpoint), ErrInvalidOverride)
	}
	return nil
}
