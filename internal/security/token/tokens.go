// Package tokens genera tokens opacos de un solo uso. En base sólo se guarda
// el digest; el valor plano viaja una única vez al usuario.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding (para guardar en DB).
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewOpaque devuelve el token plano y su digest.
func NewOpaque() (plain, digest string, err error) {
	plain, err = GenerateOpaqueToken(32)
	if err != nil {
		return "", "", err
	}
	return plain, SHA256Base64URL(plain), nil
}
