package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler processes one request. identity is whatever the configured
// Authenticator resolved from req.Auth, or nil if no authenticator is
// configured or no token was presented.
type Handler func(req *Request, identity any) Response

// StreamHandler processes one streaming request, pushing chunks to
// send as they become available. It must call send with final=true
// exactly once, as its last call.
type StreamHandler func(req *Request, identity any, send func(result any, final bool) error)

// Authenticator resolves a bearer token into an application identity.
// A nil token is passed through so handlers can enforce their own
// anonymous-access policy.
type Authenticator interface {
	Authenticate(token string) (any, error)
}

// Metrics receives lightweight request-completion notifications for
// exporting wherever the host process likes.
type Metrics interface {
	ObserveRequest(method, status string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, string, time.Duration) {}

// Server listens on a TCP address and dispatches length-prefixed JSON
// requests to registered handlers.
type Server struct {
	addr            string
	handlers        map[string]Handler
	streamHandlers  map[string]StreamHandler
	listener        net.Listener
	mu              sync.RWMutex
	done            chan struct{}
	log             logrus.FieldLogger
	authenticator   Authenticator
	metrics         Metrics
}

func NewServer(addr string, log logrus.FieldLogger) *Server {
	return &Server{
		addr:           addr,
		handlers:       make(map[string]Handler),
		streamHandlers: make(map[string]StreamHandler),
		done:           make(chan struct{}),
		log:            log,
		metrics:        noopMetrics{},
	}
}

func (s *Server) WithAuthenticator(a Authenticator) *Server {
	s.authenticator = a
	return s
}

func (s *Server) WithMetrics(m Metrics) *Server {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Handle registers a unary method handler. Safe to call before or after
// Start.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// HandleStream registers a streaming method handler.
func (s *Server) HandleStream(method string, h StreamHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamHandlers[method] = h
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.log.WithField("addr", s.addr).Info("transport listening")

	go s.acceptLoop()
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stop() {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.log.WithError(err).Warn("accept error")
				continue
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		req, err := ReadRequest(conn)
		if err != nil {
			return
		}
		s.dispatch(conn, req)
	}
}

func (s *Server) dispatch(conn net.Conn, req *Request) {
	start := time.Now()
	logEntry := s.log.WithFields(logrus.Fields{"method": req.Method, "req_id": req.ReqID})

	if req.V != ProtocolVersion {
		s.writeAndObserve(conn, req.Method, start, ErrorResponse(req.ReqID, 2001, "unsupported protocol version", nil))
		return
	}

	var identity any
	if s.authenticator != nil {
		token := ""
		if req.Auth != nil {
			token = req.Auth.Token
		}
		resolved, err := s.authenticator.Authenticate(token)
		if err != nil {
			logEntry.WithError(err).Warn("authentication failed")
			s.writeAndObserve(conn, req.Method, start, ErrorResponse(req.ReqID, 1001, "authentication failed: "+err.Error(), nil))
			return
		}
		identity = resolved
	}

	s.mu.RLock()
	streamHandler, isStream := s.streamHandlers[req.Method]
	handler, isUnary := s.handlers[req.Method]
	s.mu.RUnlock()

	switch {
	case isStream:
		streamHandler(req, identity, func(result any, final bool) error {
			resp := StreamResponse(req.ReqID, result, final)
			if final {
				s.metrics.ObserveRequest(req.Method, "ok", time.Since(start))
			}
			return WriteFrame(conn, resp)
		})
	case isUnary:
		resp := handler(req, identity)
		status := "ok"
		if !resp.OK {
			status = "error"
			logEntry.WithField("error", resp.Error).Warn("request failed")
		}
		s.metrics.ObserveRequest(req.Method, status, time.Since(start))
		if err := WriteFrame(conn, resp); err != nil {
			logEntry.WithError(err).Warn("write response failed")
		}
	default:
		s.writeAndObserve(conn, req.Method, start, ErrorResponse(req.ReqID, 2002, fmt.Sprintf("unknown method: %s", req.Method), nil))
	}
}

func (s *Server) writeAndObserve(conn net.Conn, method string, start time.Time, resp Response) {
	s.metrics.ObserveRequest(method, "error", time.Since(start))
	if err := WriteFrame(conn, resp); err != nil {
		s.log.WithError(err).Warn("write response failed")
	}
}
