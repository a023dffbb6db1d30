// Package vncpass implements the XOR obfuscation applied to the legacy VNC
// password stored at /Library/Preferences/com.apple.VNCSettings.txt.
//
// This is obfuscation, not encryption: the seed is a well-known constant
// shipped with every copy of the Remote Management agent.
package vncpass

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// Seed is the fixed key the VNC service XORs the password against.
const Seed = "1734516E8BA8C5E2FF1C39567390ADCA"

// InvalidEncodingError reports a payload or key that is not valid hex.
type InvalidEncodingError struct {
	Value string
	Err   error
}

func (e *InvalidEncodingError) Error() string {
	return fmt.Sprintf("invalid hex encoding in %q: %v", e.Value, e.Err)
}

func (e *InvalidEncodingError) Unwrap() error {
	return e.Err
}

// Transform XORs a hex-encoded value against a hex-encoded key, byte by
// byte. The output is always key-length: value bytes beyond the key are
// dropped, and once the value is exhausted the key is XORed against zero.
// Apple stores a 16 byte payload no matter what, even though the maximum VNC
// password is 8 characters.
//
// Applying Transform twice with the same key restores the original value as
// long as the value is no longer than the key.
func Transform(keyHex, valueHex string) ([]byte, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, &InvalidEncodingError{Value: keyHex, Err: err}
	}
	value, err := hex.DecodeString(valueHex)
	if err != nil {
		return nil, &InvalidEncodingError{Value: valueHex, Err: err}
	}

	out := make([]byte, len(key))
	for i, kb := range key {
		var vb byte
		if i < len(value) {
			vb = value[i]
		}
		out[i] = kb ^ vb
	}
	return out, nil
}

// EncodePassword ciphers a plaintext password into the uppercase hex string
// the VNC settings file stores.
func EncodePassword(password string) (string, error) {
	ciphered, err := Transform(Seed, hex.EncodeToString([]byte(password)))
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(ciphered)), nil
}

// DecodePassword deciphers the hex string read from the VNC settings file,
// stripping the trailing NUL padding left by the key-length output.
func DecodePassword(stored string) (string, error) {
	plain, err := Transform(Seed, strings.TrimSpace(stored))
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(plain, "\x00")), nil
}
