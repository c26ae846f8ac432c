// Package password hashea contraseñas de usuario con argon2id en formato PHC.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

var Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

const (
	MinLength = 8
	MaxLength = 128
)

var (
	ErrEmpty    = errors.New("empty password")
	ErrTooShort = fmt.Errorf("password must have at least %d characters", MinLength)
	ErrTooLong  = fmt.Errorf("password must have at most %d characters", MaxLength)
)

// Validate aplica la política mínima de longitud.
func Validate(plain string) error {
	n := utf8.RuneCountInString(plain)
	switch {
	case n == 0:
		return ErrEmpty
	case n < MinLength:
		return ErrTooShort
	case n > MaxLength:
		return ErrTooLong
	}
	return nil
}

// Hash devuelve un PHC string: $argon2id$v=19$m=...,t=...,p=...$<saltB64>$<dkB64>
func Hash(p Params, plain string) (string, error) {
	if plain == "" {
		return "", ErrEmpty
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

// Verify compara en tiempo constante. Un hash mal formado nunca verifica.
func Verify(plain, phc string) bool {
	p, salt, dkStored, ok := decode(phc)
	if !ok {
		return false
	}
	key := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, uint32(len(dkStored)))
	return subtle.ConstantTimeCompare(key, dkStored) == 1
}

// NeedsRehash indica si el hash fue generado con parámetros distintos a p.
func NeedsRehash(p Params, phc string) bool {
	got, _, dk, ok := decode(phc)
	if !ok {
		return true
	}
	return got.Memory != p.Memory || got.Time != p.Time ||
		got.Parallelism != p.Parallelism || uint32(len(dk)) != p.KeyLen
}

// DummyVerify gasta el mismo tiempo que un Verify real; se usa cuando el
// usuario no existe para no filtrar su existencia por timing.
func DummyVerify(plain string) {
	dummyOnce.Do(func() {
		dummyHash, _ = Hash(Default, "dummy-password-for-timing")
	})
	Verify(plain, dummyHash)
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// "$argon2id$v=19$m=65536,t=3,p=1$<salt>$<dk>" → ["", "argon2id", "v=19", "m=..", salt, dk]
func decode(phc string) (Params, []byte, []byte, bool) {
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, false
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return Params{}, nil, nil, false
	}
	var p Params
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, found := strings.Cut(kv, "=")
		if !found {
			return Params{}, nil, nil, false
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Params{}, nil, nil, false
		}
		switch k {
		case "m":
			p.Memory = uint32(n)
		case "t":
			p.Time = uint32(n)
		case "p":
			if n > 255 {
				return Params{}, nil, nil, false
			}
			p.Parallelism = uint8(n)
		default:
			return Params{}, nil, nil, false
		}
	}
	if p.Memory == 0 || p.Time == 0 || p.Parallelism == 0 {
		return Params{}, nil, nil, false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, false
	}
	dk, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(dk) == 0 {
		return Params{}, nil, nil, false
	}
	p.KeyLen = uint32(len(dk))
	return p, salt, dk, true
}
