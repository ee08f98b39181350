package ipc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"cfb8d/internal/logging"
	"cfb8d/internal/protocol"
)

const (
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second
)

// Rejection reasons reported to RejectObserver.
const (
	RejectMaxConnections = "max_connections"
	RejectRateLimited    = "rate_limited"
)

// Handler serves one accepted connection. The server closes conn after
// Serve returns.
type Handler interface {
	Serve(ctx context.Context, conn net.Conn) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn net.Conn) error

func (f HandlerFunc) Serve(ctx context.Context, conn net.Conn) error { return f(ctx, conn) }

// RejectObserver is told about connections refused by admission control.
type RejectObserver interface {
	ConnectionRejected(reason string)
}

// Options tunes the socket and admission control. The zero value accepts
// every connection on a 0600 socket.
type Options struct {
	SocketMode     os.FileMode
	MaxConnections int
	PeerRateLimit  float64
	PeerRateBurst  int
	Rejections     RejectObserver
}

// Server accepts connections on a locked unix socket and serves each one on
// its own goroutine.
type Server struct {
	path     string
	handler  Handler
	logger   *slog.Logger
	listener *Listener
	opts     Options
	limiter  *peerLimiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[string]net.Conn
	total uint64

	closeOnce sync.Once
}

// NewServer binds the socket at path. A bind failure is fatal for the caller
// and wraps protocol.ErrBindFailure.
func NewServer(ctx context.Context, path string, handler Handler, logger *slog.Logger, opts Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("ipc server requires a handler")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	listener, err := Listen(path, opts.SocketMode)
	if err != nil {
		return nil, err
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:     listener.Path(),
		handler:  handler,
		logger:   logger,
		listener: listener,
		opts:     opts,
		limiter:  newPeerLimiter(opts.PeerRateLimit, opts.PeerRateBurst, 0),
		ctx:      serverCtx,
		cancel:   cancel,
		conns:    make(map[string]net.Conn),
	}, nil
}

// Path returns the bound socket path.
func (s *Server) Path() string {
	return s.path
}

// Serve starts accepting connections until Close is called or the context
// passed to NewServer is canceled.
func (s *Server) Serve() {
	s.logger.Info("listening",
		logging.String("socket", s.path),
		logging.String(logging.FieldEventType, "ipc_listening"),
	)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		_ = s.listener.Close()
	}()
}

func (s *Server) acceptLoop() {
	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = acceptBackoffMin
			} else {
				backoff = min(backoff*2, acceptBackoffMax)
			}
			logging.WarnWithContext(s.logger, "accept failed; retrying", "ipc_accept_failed",
				logging.Error(err),
				logging.Duration("retry_in", backoff),
				logging.String(logging.FieldImpact, "new clients may fail to connect"),
				logging.String(logging.FieldErrorHint, "check file descriptor limits and socket permissions"),
			)
			select {
			case <-time.After(backoff):
			case <-s.ctx.Done():
				return
			}
			continue
		}
		backoff = 0
		s.admit(conn)
	}
}

func (s *Server) admit(conn net.Conn) {
	id := uuid.NewString()
	logger := s.logger.With(logging.String(logging.FieldConnID, id))
	creds, haveCreds := PeerCredentials(conn)
	if haveCreds {
		logger = logger.With(creds.attrs()...)
	}

	if haveCreds && !s.limiter.allow(creds.key(), time.Now()) {
		s.reject(conn, logger, RejectRateLimited)
		return
	}

	s.mu.Lock()
	if s.opts.MaxConnections > 0 && len(s.conns) >= s.opts.MaxConnections {
		s.mu.Unlock()
		s.reject(conn, logger, RejectMaxConnections)
		return
	}
	s.conns[id] = conn
	s.total++
	s.mu.Unlock()

	logger.Debug("connection accepted", logging.String(logging.FieldEventType, "connection_accepted"))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(id, conn)
		ctx := logging.WithConnID(s.ctx, id)
		if err := s.handler.Serve(ctx, conn); err != nil {
			logging.WarnWithContext(logger, "connection closed with error", "connection_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorKind, protocol.Kind(err)),
				logging.String(logging.FieldImpact, "client stream was aborted"),
				logging.String(logging.FieldErrorHint, "verify the client sends a valid 33 byte handshake and stays connected"),
			)
		}
	}()
}

func (s *Server) reject(conn net.Conn, logger *slog.Logger, reason string) {
	_ = conn.Close()
	logging.WarnWithContext(logger, "connection rejected", "connection_rejected",
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "client connection was closed before the handshake"),
		logging.String(logging.FieldErrorHint, "raise server.max_connections or server.peer_rate_limit if this is expected load"),
	)
	if s.opts.Rejections != nil {
		s.opts.Rejections.ConnectionRejected(reason)
	}
}

func (s *Server) release(id string, conn net.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// ActiveConnections reports how many connections are currently being served.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// AcceptedConnections reports how many connections were admitted since start.
func (s *Server) AcceptedConnections() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Close stops accepting, closes live connections, waits for their
// goroutines, and removes the socket and lock file.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if err := s.listener.Close(); err != nil {
			logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
				logging.String("socket", s.path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale socket may block future starts"),
				logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun cfb8d stop"),
			)
		}
		s.mu.Lock()
		for _, conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
}
