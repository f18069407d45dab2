package protocol

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"bancored/crypto"
)

// Envelope is the authenticated outer document exchanged on the wire. All three
// fields travel base64-encoded inside a single UTF-8 JSON object; encoding/json
// handles the base64 transparently for []byte fields.
type Envelope struct {
	Mensaje []byte `json:"mensaje"`
	MAC     []byte `json:"mac"`
	Nonce   []byte `json:"nonce"`
}

// Pack serializes datos under the given tipo tag, draws a fresh nonce, computes
// the MAC binding payload and nonce, and returns the encoded envelope ready for
// the wire.
func Pack(key []byte, tipo string, datos any) ([]byte, error) {
	rawDatos, err := json.Marshal(datos)
	if err != nil {
		return nil, fmt.Errorf("encode datos: %w", err)
	}
	payload, err := json.Marshal(payloadDoc{Tipo: tipo, Datos: rawDatos})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	nonce, err := crypto.NewNonce()
	if err != nil {
		return nil, err
	}
	env := Envelope{
		Mensaje: payload,
		MAC:     crypto.ComputeMAC(key, payload, nonce),
		Nonce:   nonce,
	}
	encoded, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return encoded, nil
}

// Unpack parses a received envelope and returns its payload, MAC, and nonce.
// The MAC and nonce must be exactly their fixed widths after base64 decoding
// and the payload must be valid UTF-8; anything else is ErrMalformedEnvelope.
func Unpack(raw []byte) (payload, mac, nonce []byte, err error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(env.Mensaje) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: empty mensaje", ErrMalformedEnvelope)
	}
	if len(env.MAC) != crypto.MACSize {
		return nil, nil, nil, fmt.Errorf("%w: mac length %d", ErrMalformedEnvelope, len(env.MAC))
	}
	if len(env.Nonce) != crypto.NonceSize {
		return nil, nil, nil, fmt.Errorf("%w: nonce length %d", ErrMalformedEnvelope, len(env.Nonce))
	}
	if !utf8.Valid(env.Mensaje) {
		return nil, nil, nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedEnvelope)
	}
	return env.Mensaje, env.MAC, env.Nonce, nil
}
