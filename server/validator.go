package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bancored/crypto"
	"bancored/protocol"
	"bancored/storage"
)

// RejectKind identifies why the validation pipeline refused a message.
type RejectKind string

const (
	RejectMalformed   RejectKind = "malformed"
	RejectIntegrity   RejectKind = "integrity"
	RejectReplay      RejectKind = "replay"
	RejectUnsupported RejectKind = "unsupported"
	RejectInternal    RejectKind = "internal"
)

// Stable user-visible rejection strings.
const (
	msgMalformed   = "Mensaje malformado"
	msgIntegrity   = "MAC inválido - Integridad comprometida"
	msgReplay      = "NONCE ya usado - Replay attack detectado"
	msgUnsupported = "Tipo de mensaje no soportado"
	msgInternal    = "Error interno del servidor"
)

// RejectError carries the rejection kind, the wire message for the client, and
// the underlying cause for logs.
type RejectError struct {
	Kind    RejectKind
	Mensaje string
	cause   error
}

func (e *RejectError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *RejectError) Unwrap() error { return e.cause }

func reject(kind RejectKind, mensaje string, cause error) *RejectError {
	return &RejectError{Kind: kind, Mensaje: mensaje, cause: cause}
}

// defaultNonceTTL bounds how long an admitted nonce blocks its value.
const defaultNonceTTL = 5 * time.Minute

// Validator runs the inbound message pipeline: parse the envelope, verify the
// MAC, admit the nonce, decode the payload. It borrows the shared key and the
// store; it owns neither.
type Validator struct {
	key      []byte
	store    *storage.Store
	nonceTTL time.Duration
}

// NewValidator builds a Validator with the default nonce TTL.
func NewValidator(key []byte, store *storage.Store) *Validator {
	return &Validator{key: key, store: store, nonceTTL: defaultNonceTTL}
}

// Validate turns raw wire bytes into a typed request or a single rejection.
// The MAC is checked before the nonce is admitted so an attacker cannot burn a
// nonce slot with an unauthenticated payload; the nonce is admitted before the
// payload is decoded so a replayed but valid envelope is rejected exactly once
// per nonce.
func (v *Validator) Validate(ctx context.Context, raw []byte) (*protocol.Request, *RejectError) {
	payload, mac, nonce, err := protocol.Unpack(raw)
	if err != nil {
		return nil, reject(RejectMalformed, msgMalformed, err)
	}

	if !crypto.VerifyMAC(v.key, payload, nonce, mac) {
		return nil, reject(RejectIntegrity, msgIntegrity, errors.New("mac verification failed"))
	}

	admitted, err := v.store.AdmitNonce(ctx, nonce, v.nonceTTL)
	if err != nil {
		return nil, reject(RejectInternal, msgInternal, err)
	}
	if !admitted {
		return nil, reject(RejectReplay, msgReplay, errors.New("nonce already admitted"))
	}

	req, err := protocol.DecodePayload(payload)
	if err != nil {
		if errors.Is(err, protocol.ErrUnsupportedType) {
			return nil, reject(RejectUnsupported, msgUnsupported, err)
		}
		return nil, reject(RejectMalformed, msgMalformed, err)
	}
	return req, nil
}
