package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"bancored/protocol"
)

const (
	responseBufferSize = 4096
	defaultTimeout     = 10 * time.Second
)

// Client performs one authenticated request/response exchange per TCP
// connection, the only session shape the server supports.
type Client struct {
	addr    string
	key     []byte
	timeout time.Duration
}

// New returns a client for the server at addr using the shared key.
func New(addr string, key []byte) *Client {
	return &Client{addr: addr, key: key, timeout: defaultTimeout}
}

// Do packs datos under tipo, sends the envelope on a fresh connection, and
// returns the decoded response. The connection is closed either way.
func (c *Client) Do(ctx context.Context, tipo string, datos any) (protocol.Response, error) {
	raw, err := protocol.Pack(c.key, tipo, datos)
	if err != nil {
		return protocol.Response{}, err
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("connect to %s: %w", c.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return protocol.Response{}, err
	}

	if _, err := conn.Write(raw); err != nil {
		return protocol.Response{}, fmt.Errorf("send request: %w", err)
	}

	buf := make([]byte, responseBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}
	resp, err := protocol.DecodeResponse(buf[:n])
	if err != nil {
		return protocol.Response{}, err
	}
	return resp, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, username, password string) (protocol.Response, error) {
	return c.Do(ctx, protocol.TipoRegistro, protocol.RegistroData{Username: username, Password: password})
}

// Login authenticates an existing account.
func (c *Client) Login(ctx context.Context, username, password string) (protocol.Response, error) {
	return c.Do(ctx, protocol.TipoLogin, protocol.LoginData{Username: username, Password: password})
}

// Transfer submits a transfer intent.
func (c *Client) Transfer(ctx context.Context, username, cuentaOrigen, cuentaDestino string, cantidad float64) (protocol.Response, error) {
	return c.Do(ctx, protocol.TipoTransaccion, protocol.TransaccionData{
		Username:      username,
		CuentaOrigen:  cuentaOrigen,
		CuentaDestino: cuentaDestino,
		Cantidad:      cantidad,
	})
}
