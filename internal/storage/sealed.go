package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
)

// Sealed encrypts values before they reach the wrapped store so tokens
// never land on disk in the clear. Keys stay plaintext: lookups and
// fallback chains must keep working without decryption.
type Sealed struct {
	inner Store
	aead  cipher.AEAD
}

func NewSealed(inner Store, passphrase string) (*Sealed, error) {
	key := sha256.Sum256([]byte(passphrase))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "init cipher")
	}
	return &Sealed{inner: inner, aead: aead}, nil
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil || sealed == nil {
		return nil, err
	}
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errdef.New(errdef.CodeStorage, "sealed value for %s is truncated", key)
	}
	plain, err := s.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], []byte(key))
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "unseal %s", key)
	}
	return plain, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "generate nonce")
	}
	sealed := s.aead.Seal(nonce, nonce, value, []byte(key))
	return s.inner.Set(ctx, key, sealed)
}

func (s *Sealed) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}

func (s *Sealed) Keys(ctx context.Context) ([]string, error) {
	return s.inner.Keys(ctx)
}

func (s *Sealed) Close() error { return s.inner.Close() }
