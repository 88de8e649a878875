package proxy

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/getmasq/masq/internal/events"
	"github.com/getmasq/masq/internal/logging"
)

// Server accepts TCP connections on one address and runs each through
// the router and engine in its own goroutine.
type Server struct {
	name   string
	addr   string
	router *Router
	engine Engine
	bus    *events.Bus
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	stopped  bool

	ready    chan struct{}
	errCh    chan error
	startErr error
}

// NewServer wires a listener for one proxy mode. The bus may be nil.
func NewServer(name, addr string, router *Router, engine Engine, bus *events.Bus, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		name:   name,
		addr:   addr,
		router: router,
		engine: engine,
		bus:    bus,
		logger: logger.With(logging.Component(name)),
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
		errCh:  make(chan error, 1),
	}
}

// Start begins listening and accepting in the background. Use
// WaitForStartup to learn whether the listener came up.
func (s *Server) Start() {
	go s.run()
}

func (s *Server) run() {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.errCh <- errors.Wrapf(err, "%s listener on %s", s.name, s.addr)
		close(s.errCh)
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		l.Close()
		close(s.errCh)
		return
	}
	s.listener = l
	s.mu.Unlock()

	s.logger.Info("proxy listening", logging.Addr(l.Addr().String()))
	close(s.ready)

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				close(s.errCh)
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// handle resolves the connection's configuration and hands it to the
// engine. A router failure closes the connection immediately: the
// engine never runs on a guessed configuration.
func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()
	cfg, err := s.router.ResolveConfig(s.ctx)
	if err != nil {
		s.logger.Error("aborting connection",
			logging.RemoteAddr(remote),
			zap.Error(err))
		conn.Close()
		return
	}

	s.logger.Debug("connection routed",
		logging.RemoteAddr(remote),
		logging.Mode(cfg.Mode))
	if s.bus != nil {
		s.bus.Publish(events.ConnectionRouted(remote, cfg.Mode))
	}

	if err := s.engine.HandleConnection(s.ctx, conn, cfg); err != nil {
		s.logger.Debug("connection finished with error",
			logging.RemoteAddr(remote),
			zap.Error(err))
	}
}

// Addr returns the bound address, or nil before the listener is up.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// WaitForStartup blocks until the listener is accepting, it failed, or
// the timeout elapsed.
func (s *Server) WaitForStartup(timeout time.Duration) error {
	select {
	case <-s.ready:
		return nil
	case err, ok := <-s.errCh:
		if !ok || err == nil {
			return nil
		}
		s.startErr = err
		return err
	case <-time.After(timeout):
		return errors.Newf("%s did not start within %s", s.name, timeout)
	}
}

// Shutdown stops accepting and waits for in-flight connections until
// ctx expires.
func (s *Server) Shutdown(ctx context.Context) {
	s.cancel()

	s.mu.Lock()
	s.stopped = true
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	if s.startErr != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("proxy stopped")
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out waiting for connections")
	}
}

// ManagerConfig carries everything the two proxy listeners share.
type ManagerConfig struct {
	ForwardAddr   string
	ReverseAddr   string
	Upstream      string
	DialTimeout   time.Duration
	LookupTimeout time.Duration
	Source        RouteSource
	Engine        Engine
	Bus           *events.Bus
	Logger        *zap.Logger
}

// Manager owns the forward and reverse proxy servers. Each gets its own
// router seeded with that listener's default mode, so forward
// connections never pay for a route lookup.
type Manager struct {
	forward *Server
	reverse *Server
}

func NewManager(cfg ManagerConfig) *Manager {
	forwardDefaults := Config{Mode: ModeForward, DialTimeout: cfg.DialTimeout}
	reverseDefaults := Config{Mode: ModeReverse, Upstream: cfg.Upstream, DialTimeout: cfg.DialTimeout}

	forwardRouter := NewRouter(cfg.Source, forwardDefaults, cfg.LookupTimeout, cfg.Logger)
	reverseRouter := NewRouter(cfg.Source, reverseDefaults, cfg.LookupTimeout, cfg.Logger)

	return &Manager{
		forward: NewServer("proxy.forward", cfg.ForwardAddr, forwardRouter, cfg.Engine, cfg.Bus, cfg.Logger),
		reverse: NewServer("proxy.reverse", cfg.ReverseAddr, reverseRouter, cfg.Engine, cfg.Bus, cfg.Logger),
	}
}

// Start brings up both listeners and fails if either cannot bind.
func (m *Manager) Start(timeout time.Duration) error {
	m.forward.Start()
	m.reverse.Start()

	if err := m.forward.WaitForStartup(timeout); err != nil {
		return err
	}
	return m.reverse.WaitForStartup(timeout)
}

// Shutdown stops both listeners.
func (m *Manager) Shutdown(ctx context.Context) {
	m.forward.Shutdown(ctx)
	m.reverse.Shutdown(ctx)
}

// ForwardAddr returns the forward listener's bound address.
func (m *Manager) ForwardAddr() net.Addr { return m.forward.Addr() }

// ReverseAddr returns the reverse listener's bound address.
func (m *Manager) ReverseAddr() net.Addr { return m.reverse.Addr() }
