package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// AESKeySize is the symmetric key size for AES-256-GCM (spec §6).
	AESKeySize = 32
	// GCMNonceSize is the standard 96-bit GCM nonce size.
	GCMNonceSize = 12
)

// GenerateAESKey returns a fresh random 256-bit AES key.
func GenerateAESKey() ([]byte, error) {
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating AES key: %w", err)
	}
	return key, nil
}

// SealAESGCM encrypts plaintext under key with a fresh random 96-bit nonce
// and returns nonce||ciphertext||tag, ready to store as a single blob.
// additionalData is authenticated but not encrypted (e.g. the capsule
// header hash), binding the payload to its envelope.
func SealAESGCM(key, plaintext, additionalData []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	nonce := make([]byte, GCMNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, additionalData)
	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// OpenAESGCM reverses SealAESGCM. Returns an error (rather than a panic) on
// any authentication failure — a key destroyed by crypto-shred produces the
// same "cipher: message authenticated failed" class of error as a tampered
// blob, which callers surface as KEY_DESTROYED/IntegrityFailure.
func OpenAESGCM(key, sealed, additionalData []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	if len(sealed) < GCMNonceSize {
		return nil, fmt.Errorf("sealed payload too short")
	}
	nonce, ciphertext := sealed[:GCMNonceSize], sealed[GCMNonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("decrypting payload: %w", err)
	}
	return plaintext, nil
}

// WrapKeyRSAOAEP wraps a symmetric key to an RSA public key (minimum 2048
// bits per spec §6), the hybrid-encryption scheme used to deliver a Time
// Capsule's AES key to the requester.
func WrapKeyRSAOAEP(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	if pub.Size() < 256 {
		return nil, fmt.Errorf("RSA public key too small: %d bits, minimum 2048", pub.Size()*8)
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
}

// UnwrapKeyRSAOAEP reverses WrapKeyRSAOAEP.
func UnwrapKeyRSAOAEP(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
}

// DeriveKey stretches a shared secret into an AES-256 key via HKDF-SHA256,
// binding the derivation to an info string (e.g. the capsule ID) so the
// same secret never yields the same key for two different capsules.
func DeriveKey(secret, salt []byte, info string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, secret, salt, []byte(info))
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}
