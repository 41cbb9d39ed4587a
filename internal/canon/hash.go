package canon

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// Domain prefixes for content-addressed fingerprints.
// The version suffix allows migrating the algorithm without collisions.
const (
	DomainProgram = "collcheck/program/v1"
	DomainConfig  = "collcheck/config/v1"
	DomainOutputs = "collcheck/outputs/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint canonically encodes v and hashes it under domain.
func Fingerprint(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", errors.WithMessagef(err, "fingerprint %s", domain)
	}
	return HashWithDomain(domain, data), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only when v is built from known-encodable values.
func MustFingerprint(domain string, v any) string {
	fp, err := Fingerprint(domain, v)
	if err != nil {
		panic(err)
	}
	return fp
}
