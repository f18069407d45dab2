package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"bancored/crypto"
	"bancored/protocol"
	"bancored/storage"
)

const (
	// readBufferSize bounds a request to a single read, matching the wire
	// contract: one unframed JSON document of at most 4 KiB per connection.
	readBufferSize = 4096
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	sweepInterval  = time.Minute
)

// Missing-field responses per message type.
const (
	msgMissingRegistro    = "Faltan datos de registro"
	msgMissingLogin       = "Faltan credenciales"
	msgMissingTransaccion = "Faltan datos de la transaccion"
)

// Server accepts TCP connections and serves exactly one request/response
// exchange per connection on its own goroutine.
type Server struct {
	addr         string
	store        *storage.Store
	logger       *slog.Logger
	validator    *Validator
	auth         *Auth
	transactions *Transactions
	metrics      *serverMetrics

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New wires a server around the shared key and an open store. The key must be
// exactly the HMAC key size.
func New(addr string, key []byte, store *storage.Store, logger *slog.Logger) (*Server, error) {
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("shared key must be %d bytes, got %d", crypto.KeySize, len(key))
	}
	auth, err := NewAuth(store, logger)
	if err != nil {
		return nil, err
	}
	return &Server{
		addr:         addr,
		store:        store,
		logger:       logger,
		validator:    NewValidator(key, store),
		auth:         auth,
		transactions: NewTransactions(store, logger),
		metrics:      getServerMetrics(),
	}, nil
}

// Listen binds the TCP listener. Addr is valid afterwards.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound listener address. Only valid after Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run binds the listener and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is cancelled, then closes the listener
// and waits for in-flight workers to finish. Cancellation unblocks Accept by
// closing the listening socket.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server: Serve called before Listen")
	}

	s.logger.Info("servidor iniciado", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	go s.sweepNonces(ctx)

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			acceptErr = fmt.Errorf("accept: %w", err)
			break
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}

	ln.Close()
	s.wg.Wait()
	s.logger.Info("servidor detenido")
	return acceptErr
}

// sweepNonces periodically drops expired nonce rows so the table stays small.
// Admission only checks current rows, so a swept value becomes admissible
// again; with 32 random bytes a natural collision is negligible.
func (s *Server) sweepNonces(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.store.SweepExpiredNonces(ctx, time.Now())
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error("limpieza de nonces fallida", "error", err.Error())
				}
				continue
			}
			if removed > 0 {
				s.logger.Info("nonces expirados eliminados", "count", removed)
			}
		}
	}
}

// handleConn performs the single request/response exchange. A panic in a
// worker ends only that connection.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	s.metrics.connectionOpened()
	defer s.metrics.connectionClosed()

	remote := conn.RemoteAddr().String()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pánico atendiendo conexión", "remote", remote, "panic", fmt.Sprint(r))
		}
	}()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return
	}
	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		// Connections that yield no bytes are closed silently.
		return
	}
	raw := buf[:n]

	req, rej := s.validator.Validate(ctx, raw)
	if rej != nil {
		s.metrics.observeRejection(string(rej.Kind))
		switch rej.Kind {
		case RejectIntegrity, RejectReplay:
			s.logger.Warn("mensaje rechazado", "remote", remote, "reason", string(rej.Kind), "error", rej.Error())
		case RejectInternal:
			s.logger.Error("mensaje rechazado", "remote", remote, "reason", string(rej.Kind), "error", rej.Error())
		default:
			s.logger.Info("mensaje rechazado", "remote", remote, "reason", string(rej.Kind))
		}
		s.respond(conn, remote, protocol.Error(rej.Mensaje))
		return
	}

	s.respond(conn, remote, s.dispatch(ctx, req, remote))
}

// dispatch routes a validated request to its module and translates the outcome
// into a wire response.
func (s *Server) dispatch(ctx context.Context, req *protocol.Request, remote string) protocol.Response {
	switch req.Tipo {
	case protocol.TipoRegistro:
		d := req.Registro
		if d.Username == "" || d.Password == "" {
			s.metrics.observeRequest(req.Tipo, "missing_fields")
			return protocol.Error(msgMissingRegistro)
		}
		ok, msg := s.auth.Register(ctx, d.Username, d.Password)
		return s.outcome(req.Tipo, ok, msg, nil)

	case protocol.TipoLogin:
		d := req.Login
		if d.Username == "" || d.Password == "" {
			s.metrics.observeRequest(req.Tipo, "missing_fields")
			return protocol.Error(msgMissingLogin)
		}
		ok, msg := s.auth.Login(ctx, d.Username, d.Password)
		return s.outcome(req.Tipo, ok, msg, nil)

	case protocol.TipoTransaccion:
		d := req.Transaccion
		if d.Username == "" || d.CuentaOrigen == "" || d.CuentaDestino == "" || d.Cantidad == 0 {
			s.metrics.observeRequest(req.Tipo, "missing_fields")
			return protocol.Error(msgMissingTransaccion)
		}
		ok, msg, datos := s.transactions.Process(ctx, d)
		return s.outcome(req.Tipo, ok, msg, datos)
	}

	// Unreachable: DecodePayload only produces the three known tipos.
	s.logger.Warn("tipo no soportado tras validación", "remote", remote, "tipo", req.Tipo)
	return protocol.Error(msgUnsupported)
}

func (s *Server) outcome(tipo string, ok bool, msg string, datos map[string]any) protocol.Response {
	if ok {
		s.metrics.observeRequest(tipo, "ok")
		return protocol.OK(msg, datos)
	}
	s.metrics.observeRequest(tipo, "error")
	return protocol.Error(msg)
}

func (s *Server) respond(conn net.Conn, remote string, resp protocol.Response) {
	raw, err := resp.Encode()
	if err != nil {
		s.logger.Error("codificación de respuesta fallida", "remote", remote, "error", err.Error())
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return
	}
	if _, err := conn.Write(raw); err != nil {
		// The request was processed; committed side effects stand.
		s.logger.Info("respuesta no entregada", "remote", remote, "error", err.Error())
	}
}
