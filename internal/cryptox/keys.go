// Package cryptox implements the vault's cryptographic primitives:
// passphrase key derivation (scrypt + HKDF), BLAKE3 content hashing,
// Ed25519 signing of content hashes, and AES-256-GCM envelopes.
//
// All derived key material lives only in memory, inside a KeySet owned
// by the engine. There is no passphrase recovery: losing the passphrase
// loses the vault.
package cryptox

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/hashfs/internal/common"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

// CryptoVersion tags the key-derivation scheme. It is part of the
// scrypt salt and of the vault namespace, so bumping it forces a new
// vault identity for the same passphrase.
const CryptoVersion = "v6"

const (
	// scrypt parameters. N=2^17 targets ~100ms on current hardware.
	scryptN      = 1 << 17
	scryptR      = 8
	scryptP      = 1
	derivedLen   = 32
	minPassBytes = 8
)

// saltLabel is the fixed, versioned scrypt/HKDF salt.
const saltLabel = "HashFS-" + CryptoVersion

// KeySet is the session key material derived from a passphrase.
type KeySet struct {
	// SigKey signs content hashes and chain hashes (Ed25519).
	SigKey ed25519.PrivateKey
	// PubKey verifies signatures and derives the vault id.
	PubKey ed25519.PublicKey
	// EncKey is the AES-256-GCM key for blob, chain and index payloads.
	EncKey []byte
	// VaultID is hex(BLAKE3(PubKey)[0:16]) + "-" + CryptoVersion. It
	// names the vault's storage namespace; two passphrases can never
	// collide on it.
	VaultID string
}

// DeriveKeys turns a passphrase into the session KeySet.
//
// The passphrase is normalized to NFC and trimmed of outer whitespace
// before encoding; fewer than 8 bytes after that is rejected with
// common.ErrPassphraseTooShort. scrypt failures surface as
// common.ErrKdfFailure.
func DeriveKeys(passphrase string) (*KeySet, error) {
	normalized := strings.TrimSpace(norm.NFC.String(passphrase))
	passBytes := []byte(normalized)
	if len(passBytes) < minPassBytes {
		return nil, fmt.Errorf("%w: need at least %d bytes", common.ErrPassphraseTooShort, minPassBytes)
	}

	salt := []byte(saltLabel)

	master, err := scrypt.Key(passBytes, salt, scryptN, scryptR, scryptP, derivedLen)
	if err != nil {
		return nil, fmt.Errorf("%w: scrypt: %v", common.ErrKdfFailure, err)
	}
	defer common.WipeByteArray(master)
	common.WipeByteArray(passBytes)

	sigSeed, err := expandKey(master, salt, "signing")
	if err != nil {
		return nil, fmt.Errorf("%w: hkdf signing: %v", common.ErrKdfFailure, err)
	}
	encKey, err := expandKey(master, salt, "encryption")
	if err != nil {
		return nil, fmt.Errorf("%w: hkdf encryption: %v", common.ErrKdfFailure, err)
	}

	sigKey := ed25519.NewKeyFromSeed(sigSeed)
	pubKey := sigKey.Public().(ed25519.PublicKey)

	digest := Digest(pubKey)
	vaultID := hex.EncodeToString(digest[:16]) + "-" + CryptoVersion

	return &KeySet{
		SigKey:  sigKey,
		PubKey:  pubKey,
		EncKey:  encKey,
		VaultID: vaultID,
	}, nil
}

// expandKey derives one 32-byte subkey from the scrypt output via
// HKDF-SHA256 with a distinct info string per purpose.
func expandKey(master, salt []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, salt, []byte(info))
	key := make([]byte, derivedLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Wipe zeroes all key material. The KeySet must not be used afterwards.
func (k *KeySet) Wipe() {
	if k == nil {
		return
	}
	common.WipeByteArray(k.SigKey)
	common.WipeByteArray(k.EncKey)
	k.SigKey = nil
	k.EncKey = nil
	k.PubKey = nil
}
