// Package clientcrypto contains client-side helpers for device keys and signed auth headers.
package clientcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// DeviceKeys is an Ed25519 signing key pair in the unpadded base64 form Olm uses.
type DeviceKeys struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// GenerateDeviceKeys creates a new signing key pair.
func GenerateDeviceKeys() (DeviceKeys, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return DeviceKeys{}, err
	}
	return DeviceKeys{
		PublicKey:  base64.RawStdEncoding.EncodeToString(pub),
		PrivateKey: base64.RawStdEncoding.EncodeToString(priv),
	}, nil
}

func (k DeviceKeys) private() (ed25519.PrivateKey, error) {
	b, err := base64.RawStdEncoding.DecodeString(k.PrivateKey)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key: want %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return ed25519.PrivateKey(b), nil
}

// Sign returns the unpadded base64 signature of message.
func (k DeviceKeys) Sign(message string) (string, error) {
	priv, err := k.private()
	if err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(ed25519.Sign(priv, []byte(message))), nil
}

// SignUTCMessage signs the RFC 3339 rendering of at.
func (k DeviceKeys) SignUTCMessage(at time.Time) (message, signature string, err error) {
	message = at.UTC().Format(time.RFC3339)
	signature, err = k.Sign(message)
	return message, signature, err
}

// AuthorizationHeader builds the value of the authorization header for the current time.
func (k DeviceKeys) AuthorizationHeader(now time.Time) (string, error) {
	msg, sig, err := k.SignUTCMessage(now)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("signed-utc-msg %s %s %s", k.PublicKey, msg, sig), nil
}
