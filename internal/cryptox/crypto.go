package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/dmitrijs2005/hashfs/internal/common"
	"github.com/zeebo/blake3"
)

// NonceSize is the AES-GCM IV length in bytes.
const NonceSize = 12

// Envelope is an encrypted payload: a fresh random IV plus the
// AES-256-GCM ciphertext (which includes the 16-byte auth tag).
type Envelope struct {
	IV         []byte
	Ciphertext []byte
}

// Digest returns the raw 32-byte BLAKE3 digest of data.
func Digest(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// Hash returns the hex-encoded BLAKE3 digest of data. This is the
// canonical content-address format used in version entries, chain
// hashes and logs.
func Hash(data []byte) string {
	digest := blake3.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// Sign signs the ASCII bytes of a hex hash string and returns the
// Ed25519 signature hex-encoded.
func Sign(key ed25519.PrivateKey, hashHex string) string {
	return hex.EncodeToString(ed25519.Sign(key, []byte(hashHex)))
}

// Verify reports whether sigHex is a valid signature of hashHex under
// pub. It never fails: any parse error yields false.
func Verify(pub ed25519.PublicKey, hashHex, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, []byte(hashHex), sig)
}

// Encrypt seals plaintext under key with AES-256-GCM and a fresh
// random 12-byte IV. An IV is never reused: each call draws new
// randomness.
func Encrypt(key, plaintext []byte) (*Envelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	iv := make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	return &Envelope{
		IV:         iv,
		Ciphertext: aesgcm.Seal(nil, iv, plaintext, nil),
	}, nil
}

// Decrypt opens an Envelope. Tag mismatch (tampered or wrong-key
// ciphertext) surfaces as common.ErrDecryptFailure.
func Decrypt(key []byte, env *Envelope) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	if len(env.IV) != NonceSize {
		return nil, fmt.Errorf("%w: bad nonce length %d", common.ErrDecryptFailure, len(env.IV))
	}

	plaintext, err := aesgcm.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptFailure, err)
	}
	return plaintext, nil
}
