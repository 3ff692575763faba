package ws

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

const (
	Protocol      = 1
	signatureSkew = 5 * time.Minute
)

type ConnectParams struct {
	Protocol int            `json:"protocol"`
	Bridge   *ConnectBridge `json:"bridge"`
	Device   *ConnectDevice `json:"device"`
}

type ConnectBridge struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

type ConnectDevice struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	SignedAt  int64  `json:"signedAt"`
	Nonce     string `json:"nonce"`
}

var ErrUntrustedKey = errors.New("untrusted bridge key")

// SignaturePayload is the text a bridge signs to answer a challenge.
func SignaturePayload(bridgeID string, signedAt int64, nonce string) string {
	return fmt.Sprintf("v%d|%s|%d|%s", Protocol, bridgeID, signedAt, nonce)
}

// SignConnect builds the connect params answering nonce.
func SignConnect(key ed25519.PrivateKey, bridge ConnectBridge, nonce string, now time.Time) ConnectParams {
	signedAt := now.UnixMilli()
	sig := ed25519.Sign(key, []byte(SignaturePayload(bridge.ID, signedAt, nonce)))
	return ConnectParams{
		Protocol: Protocol,
		Bridge:   &bridge,
		Device: &ConnectDevice{
			PublicKey: EncodeKey(key.Public().(ed25519.PublicKey)),
			Signature: base64.RawURLEncoding.EncodeToString(sig),
			SignedAt:  signedAt,
			Nonce:     nonce,
		},
	}
}

// VerifyConnect validates the connect handshake and returns the bridge ID.
// With a nil trusted key any correctly self-signed bridge is accepted.
func VerifyConnect(paramsRaw json.RawMessage, challengeNonce string, trusted ed25519.PublicKey) (bridgeID string, err error) {
	var params ConnectParams
	if err := json.Unmarshal(paramsRaw, &params); err != nil {
		return "", fmt.Errorf("invalid connect params: %w", err)
	}

	if params.Protocol != Protocol {
		return "", fmt.Errorf("unsupported protocol %d", params.Protocol)
	}
	if params.Bridge == nil || params.Bridge.ID == "" {
		return "", fmt.Errorf("missing bridge info")
	}
	if params.Device == nil {
		return "", fmt.Errorf("missing device info")
	}

	dev := params.Device
	if challengeNonce == "" || dev.Nonce != challengeNonce {
		return "", fmt.Errorf("nonce mismatch")
	}

	signedAt := time.UnixMilli(dev.SignedAt)
	if math.Abs(time.Since(signedAt).Seconds()) > signatureSkew.Seconds() {
		return "", fmt.Errorf("signature expired")
	}

	pubKey, err := DecodeKey(dev.PublicKey)
	if err != nil {
		return "", err
	}
	if trusted != nil && !bytes.Equal(pubKey, trusted) {
		return "", ErrUntrustedKey
	}

	sigBytes, err := base64URLDecode(dev.Signature)
	if err != nil {
		return "", fmt.Errorf("invalid signature encoding")
	}

	payload := SignaturePayload(params.Bridge.ID, dev.SignedAt, dev.Nonce)
	if !ed25519.Verify(pubKey, []byte(payload), sigBytes) {
		slog.Warn("signature verification failed", "bridge", params.Bridge.ID)
		return "", fmt.Errorf("invalid signature")
	}

	return params.Bridge.ID, nil
}

// EncodeKey renders a public key the way it travels in config and frames.
func EncodeKey(key ed25519.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

// DecodeKey parses a base64url public key, padded or not.
func DecodeKey(s string) (ed25519.PublicKey, error) {
	b, err := base64URLDecode(s)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key")
	}
	return ed25519.PublicKey(b), nil
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
