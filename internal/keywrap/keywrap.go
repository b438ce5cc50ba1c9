// Package keywrap implements the pure key-wrapping operations of the
// envelope-encryption hierarchy: generating content and folder keys,
// anonymously sealing a key to a user's public key, and symmetrically
// wrapping one key under another. It is stateless and performs no I/O.
//
// Two mechanisms are deliberately distinct. Sealing carries a key across
// user identities (share with a user), so it uses anonymous public-key
// encryption: anyone holding the recipient's public key can seal, only the
// recipient's private key can open. Wrapping stays within material the
// caller already holds (folder key over content key), so an authenticated
// symmetric AEAD is enough.
package keywrap

import (
	"crypto/rand"

	"github.com/lockboxd/lockbox/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the size of content and folder keys in bytes.
	KeySize = 32
	// NonceSize is the XChaCha20-Poly1305 nonce size in bytes.
	NonceSize = chacha20poly1305.NonceSizeX
	// PublicKeySize is the size of a user's X25519 encryption public key.
	PublicKeySize = 32
)

// GenerateKey returns a fresh random symmetric key, used once per file
// (content key) and once per folder (folder key).
func GenerateKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// GenerateKeypair returns a new X25519 keypair. The private key never
// reaches the server; the public key is what the identity registry stores.
func GenerateKeypair() (publicKey, privateKey *[PublicKeySize]byte, err error) {
	return box.GenerateKey(rand.Reader)
}

// SealForRecipient seals key to the recipient's public key using an
// anonymous sealed box. The result reveals nothing about the sender and
// can only be opened with the recipient's keypair.
func SealForRecipient(key []byte, recipientPub *[PublicKeySize]byte) ([]byte, error) {
	return box.SealAnonymous(nil, key, recipientPub, rand.Reader)
}

// OpenSealed opens a sealed box produced by SealForRecipient. It returns
// common.ErrorDecryptionFailed when the blob does not open with the given
// keypair.
func OpenSealed(sealed []byte, publicKey, privateKey *[PublicKeySize]byte) ([]byte, error) {
	key, ok := box.OpenAnonymous(nil, sealed, publicKey, privateKey)
	if !ok {
		return nil, common.ErrorDecryptionFailed
	}
	return key, nil
}

// Wrap encrypts key under wrappingKey with XChaCha20-Poly1305, returning
// the ciphertext and the random nonce used.
func Wrap(key, wrappingKey []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.NewX(wrappingKey)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(aead.NonceSize())
	ciphertext = aead.Seal(nil, nonce, key, nil)

	return ciphertext, nonce, nil
}

// Unwrap reverses Wrap. Authentication failure (wrong wrapping key,
// tampered ciphertext) surfaces as common.ErrorDecryptionFailed.
func Unwrap(ciphertext, nonce, wrappingKey []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(wrappingKey)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, common.ErrorDecryptionFailed
	}

	key, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, common.ErrorDecryptionFailed
	}
	return key, nil
}
