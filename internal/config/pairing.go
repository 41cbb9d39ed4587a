package config

import "github.com/pkg/errors"

// Pairing decides which replica a send targets (and so which replica a recv
// hears from) when the program gives no explicit source-target pairs.
type Pairing string

const (
	// PairingRing sends from replica i to replica (i+1) mod N.
	PairingRing Pairing = "ring"

	// PairingReverseRing sends from replica i to replica (i-1) mod N.
	PairingReverseRing Pairing = "reverse-ring"

	// PairingSelf sends from each replica to itself.
	PairingSelf Pairing = "self"
)

// Pairings lists the supported policies.
var Pairings = []Pairing{PairingRing, PairingReverseRing, PairingSelf}

// ParsePairing returns the policy called name; the empty string selects ring.
func ParsePairing(name string) (Pairing, error) {
	if name == "" {
		return PairingRing, nil
	}
	p := Pairing(name)
	if !p.Valid() {
		return "", errors.Errorf("unknown pairing policy %q (want ring, reverse-ring or self)", name)
	}
	return p, nil
}

// Valid reports whether p is a supported policy.
func (p Pairing) Valid() bool {
	switch p {
	case PairingRing, PairingReverseRing, PairingSelf:
		return true
	}
	return false
}

// Target returns the replica that replica sends to, among n replicas.
func (p Pairing) Target(replica, n int) int {
	switch p {
	case PairingReverseRing:
		return (replica - 1 + n) % n
	case PairingSelf:
		return replica
	default:
		return (replica + 1) % n
	}
}

// Source returns the replica that replica receives from, among n replicas.
func (p Pairing) Source(replica, n int) int {
	switch p {
	case PairingReverseRing:
		return (replica + 1) % n
	case PairingSelf:
		return replica
	default:
		return (replica - 1 + n) % n
	}
}
