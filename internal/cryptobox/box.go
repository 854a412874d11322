package cryptobox

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptedSuffix marks recordings that have been sealed on disk.
const EncryptedSuffix = ".encrypted"

// Box seals and opens alert recordings with XChaCha20-Poly1305. The key
// is derived from a passphrase so deployments rotate it through
// configuration alone.
type Box struct {
	aead cipher.AEAD
}

func New(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("encryption passphrase must not be empty")
	}
	key := sha256.Sum256([]byte(passphrase))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and prepends the random nonce so the output
// is self-contained.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plaintext)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < b.aead.NonceSize() {
		return nil, errors.New("sealed payload shorter than nonce")
	}
	nonce, ciphertext := sealed[:b.aead.NonceSize()], sealed[b.aead.NonceSize():]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed payload: %w", err)
	}
	return plaintext, nil
}

// EncryptFile seals path into path + EncryptedSuffix. Unless
// keepPlaintext is set, the original file is removed once the sealed
// copy is on disk.
func (b *Box) EncryptFile(path string, keepPlaintext bool) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read plaintext: %w", err)
	}
	sealed, err := b.Seal(raw)
	if err != nil {
		return "", err
	}
	outPath := path + EncryptedSuffix
	if err := os.WriteFile(outPath, sealed, 0o600); err != nil {
		return "", fmt.Errorf("write sealed file: %w", err)
	}
	if !keepPlaintext {
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("remove plaintext: %w", err)
		}
	}
	return outPath, nil
}

// DecryptFile opens a sealed file. An empty outPath strips
// EncryptedSuffix from the input name.
func (b *Box) DecryptFile(path, outPath string) (string, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read sealed file: %w", err)
	}
	plaintext, err := b.Open(sealed)
	if err != nil {
		return "", err
	}
	if outPath == "" {
		outPath = strings.TrimSuffix(path, EncryptedSuffix)
		if outPath == path {
			outPath = path + ".decrypted"
		}
	}
	if err := os.WriteFile(outPath, plaintext, 0o600); err != nil {
		return "", fmt.Errorf("write plaintext: %w", err)
	}
	return outPath, nil
}
