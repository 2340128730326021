package session

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Codec transforms the serialized session on its way to and from disk.
type Codec interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(data []byte) ([]byte, error)
}

// PlainCodec stores JSON as-is; the file mode is the only protection.
type PlainCodec struct{}

func (PlainCodec) Seal(plaintext []byte) ([]byte, error) { return plaintext, nil }
func (PlainCodec) Open(data []byte) ([]byte, error)      { return data, nil }

var sealedMagic = []byte("DAS1")

const (
	saltSize      = 16
	argonTime     = 2
	argonMemoryKB = 19 * 1024
	argonThreads  = 1
)

// PassphraseCodec seals records with XChaCha20-Poly1305 under a key derived
// from a passphrase with Argon2id. Layout: magic | salt | nonce | ciphertext.
type PassphraseCodec struct {
	passphrase []byte
}

// NewPassphraseCodec returns a codec for passphrase, which must be non-empty.
func NewPassphraseCodec(passphrase string) (*PassphraseCodec, error) {
	if passphrase == "" {
		return nil, errors.New("session: encryption passphrase is empty")
	}
	return &PassphraseCodec{passphrase: []byte(passphrase)}, nil
}

func (c *PassphraseCodec) key(salt []byte) []byte {
	return argon2.IDKey(c.passphrase, salt, argonTime, argonMemoryKB, argonThreads, chacha20poly1305.KeySize)
}

func (c *PassphraseCodec) Seal(plaintext []byte) ([]byte, error) {
	header := make([]byte, len(sealedMagic)+saltSize)
	copy(header, sealedMagic)
	salt := header[len(sealedMagic):]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(header)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, header), nil
}

// Open decrypts data. Plain JSON written before encryption was enabled is
// accepted and gets sealed on the next save.
func (c *PassphraseCodec) Open(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, sealedMagic) {
		if json.Valid(data) {
			return data, nil
		}
		return nil, fmt.Errorf("%w: unrecognized format", ErrSessionCorrupted)
	}

	headerLen := len(sealedMagic) + saltSize
	if len(data) < headerLen+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: sealed record truncated", ErrSessionCorrupted)
	}
	header := data[:headerLen]
	salt := header[len(sealedMagic):]

	aead, err := chacha20poly1305.NewX(c.key(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	nonce := data[headerLen : headerLen+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, data[headerLen+aead.NonceSize():], header)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decrypt (wrong passphrase?)", ErrSessionCorrupted)
	}
	return plaintext, nil
}

var (
	_ Codec = PlainCodec{}
	_ Codec = (*PassphraseCodec)(nil)
)
