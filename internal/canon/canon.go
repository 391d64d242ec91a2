// Package canon produces stable digests of JSON values
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// Digest canonicalizes the JSON input (RFC 8785) and returns its sha256 in
// hex, so that values differing only in key order or whitespace match.
func Digest(input []byte) (string, error) {
	canonical, err := jcs.Transform(input)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)

	return hex.EncodeToString(sum[:]), nil
}

// DigestOf marshals v and returns its digest.
func DigestOf(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return Digest(b)
}
