package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes keep hashes of different record kinds apart.
const (
	DomainVariantSet = "tagbatch/variantset/v1"
	DomainSweep      = "tagbatch/sweep/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data) as hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SpecHash identifies a compiled variant set. Runs record it so a trace
// can be tied to the exact definitions that produced it.
func SpecHash(set VariantSet) (string, error) {
	canonical, err := MarshalCanonical(set.ToValue())
	if err != nil {
		return "", fmt.Errorf("SpecHash: %w", err)
	}
	return hashWithDomain(DomainVariantSet, canonical), nil
}

// OutputsHash digests the outputs of one sweep. Two sweeps with equal
// digests emitted the same values in the same order.
func OutputsHash(outputs Array) (string, error) {
	canonical, err := MarshalCanonical(outputs)
	if err != nil {
		return "", fmt.Errorf("OutputsHash: %w", err)
	}
	return hashWithDomain(DomainSweep, canonical), nil
}
