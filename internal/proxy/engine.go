package proxy

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/getmasq/masq/internal/logging"
)

// Engine owns all wire-level work on an accepted connection. The
// listener resolves a Config first and hands both over; the engine is
// responsible for closing conn.
type Engine interface {
	HandleConnection(ctx context.Context, conn net.Conn, cfg Config) error
}

const defaultDialTimeout = 10 * time.Second

// bufferPool holds 32KB relay buffers so the per-connection hot path
// does not allocate.
var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 32*1024)
		return &b
	},
}

// Passthrough is the bundled engine: a plain byte relay for reverse
// mode. It dials the resolved upstream and copies bytes both ways until
// either side closes. Forward mode needs protocol awareness the relay
// does not have, so it is rejected.
type Passthrough struct {
	Logger *zap.Logger
}

var _ Engine = (*Passthrough)(nil)

func (p *Passthrough) HandleConnection(ctx context.Context, conn net.Conn, cfg Config) error {
	defer conn.Close()

	if !cfg.IsReverse() {
		return errors.Newf("passthrough engine cannot serve %q mode", cfg.Mode)
	}
	endpoint := cfg.UpstreamEndpoint()
	if endpoint == "" {
		return errors.New("no upstream endpoint resolved")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	upstream, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return errors.Wrapf(err, "dial upstream %s", endpoint)
	}
	defer upstream.Close()

	if p.Logger != nil {
		p.Logger.Debug("relaying connection",
			logging.RemoteAddr(conn.RemoteAddr().String()),
			logging.Endpoint(endpoint))
	}

	errCh := make(chan error, 2)
	go relay(upstream, conn, errCh)
	go relay(conn, upstream, errCh)

	var first error
	select {
	case <-ctx.Done():
		first = ctx.Err()
	case first = <-errCh:
	}

	// Unblock the remaining copy direction, then collect it.
	conn.Close()
	upstream.Close()
	<-errCh

	return first
}

// relay copies src into dst until src is exhausted or either side is
// torn down. Half-closes dst where the transport supports it so the
// peer sees EOF instead of a reset. Normal teardown reports nil.
func relay(dst, src net.Conn, errCh chan<- error) {
	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)

	_, err := io.CopyBuffer(dst, src, *bufPtr)

	if cw, ok := dst.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		errCh <- err
		return
	}
	errCh <- nil
}
