// Package crypto derives the encryption keys used by the encrypted local
// store. The configured master key is never handed to SQLCipher directly;
// each store gets its own key derived with HKDF-SHA256.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// MasterKeySize is the required size of the configured master key (256 bits).
	MasterKeySize = 32

	// StoreKeySize is the size of a derived store key in bytes (256 bits).
	StoreKeySize = 32
)

// ErrInvalidMasterKey is returned when a master key is not 64 hex characters.
var ErrInvalidMasterKey = errors.New("master key must be 64 hex characters (32 bytes)")

// ParseMasterKey decodes a hex-encoded master key.
func ParseMasterKey(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMasterKey, err)
	}
	if len(raw) != MasterKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidMasterKey, len(raw))
	}
	return raw, nil
}

// DeriveStoreKey derives a store encryption key from a master key using
// HKDF-SHA256. The info parameter combines the store name and key version
// for domain separation: info = "store:" + name + ":v" + version
func DeriveStoreKey(masterKey []byte, storeName string, version int) []byte {
	info := fmt.Sprintf("store:%s:v%d", storeName, version)

	// Salt is nil: the master key is already high-entropy.
	hkdfReader := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	key := make([]byte, StoreKeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		// HKDF only fails when asked for more than 255*HashLen bytes.
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return key
}

// StoreKeyHex returns the derived store key hex-encoded, the form SQLCipher
// accepts as a raw key (x'...').
func StoreKeyHex(masterKey []byte, storeName string, version int) string {
	return hex.EncodeToString(DeriveStoreKey(masterKey, storeName, version))
}
