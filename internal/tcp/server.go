package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/dispatch"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/protocol"
	"github.com/blakbro2k/YipeeWebServer-sub000/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	idleTimeout  = 60 * time.Second
)

// Server speaks length-prefixed protobuf-wire frames over plain TCP.
type Server struct {
	d        *dispatch.Dispatcher
	log      *zap.Logger
	maxFrame int
	idle     time.Duration

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(d *dispatch.Dispatcher, maxFrameBytes int, log *zap.Logger) *Server {
	if maxFrameBytes <= 0 {
		maxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	return &Server{
		d:        d,
		log:      log.Named("tcp"),
		maxFrame: maxFrameBytes,
		idle:     idleTimeout,
		conns:    make(map[net.Conn]struct{}),
	}
}

func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts until Close. It returns nil after a Close and the accept
// error otherwise.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return net.ErrClosed
	}
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))

	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = nc.Close()
			return nil
		}
		s.conns[nc] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.serveConn(nc)
			s.mu.Lock()
			delete(s.conns, nc)
			s.mu.Unlock()
		}()
	}
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting, closes every live connection and waits for their
// goroutines.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for nc := range s.conns {
		_ = nc.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) serveConn(nc net.Conn) {
	c := dispatch.Conn{ID: uuid.NewString(), Notices: make(chan types.TickNotice, 32)}
	clog := s.log.With(zap.String("conn", c.ID), zap.String("remote", nc.RemoteAddr().String()))
	clog.Debug("connection opened")

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan types.Message, 16)
	writerDone := make(chan struct{})

	defer func() {
		cancel()
		<-writerDone
		s.d.Drop(c.ID)
		_ = nc.Close()
		clog.Debug("connection closed")
	}()

	go func() {
		defer close(writerDone)
		defer cancel()
		for {
			var msg types.Message
			select {
			case <-ctx.Done():
				return
			case <-s.d.Done():
				_ = nc.Close()
				return
			case msg = <-out:
			case n, ok := <-c.Notices:
				if !ok {
					clog.Info("notice stream closed, dropping connection")
					_ = nc.Close()
					return
				}
				msg = n
			}
			if err := s.write(nc, msg); err != nil {
				clog.Debug("write failed", zap.Error(err))
				_ = nc.Close()
				return
			}
		}
	}()

	send := func(msg types.Message) {
		if msg == nil {
			return
		}
		select {
		case out <- msg:
		case <-ctx.Done():
		}
	}

	for {
		if err := nc.SetReadDeadline(time.Now().Add(s.idle)); err != nil {
			return
		}
		kind, body, err := protocol.ReadFrame(nc, s.maxFrame)
		if err != nil {
			var pe *protocol.Error
			if errors.As(err, &pe) {
				send(s.d.DecodeFailed(c.ID, err))
				continue
			}
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				clog.Debug("idle timeout, closing connection")
				return
			case errors.Is(err, protocol.ErrFrameTooLarge):
				clog.Warn("frame far over limit, closing connection", zap.Error(err))
				return
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				clog.Debug("read failed", zap.Error(err))
			}
			return
		}

		req, err := protocol.DecodeBinaryRequest(kind, body)
		if err != nil {
			send(s.d.DecodeFailed(c.ID, err))
			continue
		}
		send(s.d.Handle(ctx, c, req))
	}
}

func (s *Server) write(nc net.Conn, msg types.Message) error {
	kind, body, err := protocol.EncodeBinary(msg)
	if err != nil {
		return err
	}
	if err := nc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return protocol.WriteFrame(nc, kind, body)
}
