package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sourccey/kiosk-relay/internal/config"
	"github.com/sourccey/kiosk-relay/internal/metrics"
	"github.com/sourccey/kiosk-relay/internal/model"
	"github.com/sourccey/kiosk-relay/internal/service"
)

// Service is the request handling surface behind the listener.
type Service interface {
	ServicePort() int
	Pair(ctx context.Context, code, clientName string) (model.PairResult, error)
	ShowPairing(ctx context.Context) (model.RobotIdentity, error)
	Ping(ctx context.Context, token string) error
	StartRobot(ctx context.Context, token string) (string, error)
	StopRobot(ctx context.Context, token string) (string, error)
	RobotStatus(ctx context.Context, token string) (string, error)
	DownloadModel(ctx context.Context, token, repoID, modelName string) (string, error)
}

type Options struct {
	ReadTimeout  time.Duration
	MaxLineBytes int64
}

// Server accepts one JSON request per TCP connection and writes one JSON
// response line before closing.
type Server struct {
	addr     string
	svc      Service
	opts     Options
	handlers map[model.Action]handlerFunc

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
}

func New(addr string, svc Service, opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = config.DefaultRequestDeadline
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = config.MaxRequestLineBytes
	}
	s := &Server{addr: addr, svc: svc, opts: opts}
	s.handlers = s.routes()
	return s
}

// Listen binds the TCP socket. Serve must be called afterwards.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind TCP %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	log.Info().Str("addr", ln.Addr().String()).Msg("pairing service listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close releases the listener without serving. Used when startup fails
// after Listen.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Serve runs the accept loop until ctx is cancelled, then waits for
// in-flight connections.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			log.Warn().Err(err).Msg("accept failed")
			time.Sleep(config.AcceptErrorBackoff)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(ctx, conn)
		}()
	}

	s.conns.Wait()
	log.Info().Msg("pairing service stopped")
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("peer", conn.RemoteAddr().String()).Msg("request handler panicked")
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
		return
	}

	reader := bufio.NewReader(io.LimitReader(conn, s.opts.MaxLineBytes))
	line, err := reader.ReadBytes('\n')
	if err != nil && (!errors.Is(err, io.EOF) || len(line) == 0) {
		metrics.DroppedRequestsTotal.WithLabelValues("read").Inc()
		log.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("request read failed")
		return
	}
	if err != nil && int64(len(line)) >= s.opts.MaxLineBytes {
		metrics.DroppedRequestsTotal.WithLabelValues("oversize").Inc()
		log.Warn().Str("peer", conn.RemoteAddr().String()).Msg("request line too long")
		return
	}

	req, err := model.ParseRequest(line)
	if err != nil {
		metrics.DroppedRequestsTotal.WithLabelValues("parse").Inc()
		log.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("unparsable request")
		return
	}

	reqCtx := service.WithRemoteIP(ctx, remoteIP(conn.RemoteAddr()))
	resp := s.dispatch(reqCtx, req)

	out, err := model.EncodeLine(resp)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		return
	}
	if _, err := conn.Write(out); err != nil {
		log.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("response write failed")
	}
}

func remoteIP(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
