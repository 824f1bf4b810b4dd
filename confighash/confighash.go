// Package confighash computes the content digest of a split-configuration
// document. The digest is what gets submitted to the vault's config update
// operation; the vault itself stores it verbatim and never re-derives it.
//
// Hashing goes through a canonical form so that formatting differences
// (whitespace, key order) in the source document do not change the digest:
// the document is decoded and re-encoded compactly with object keys sorted.
package confighash

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"lukechampine.com/blake3"
)

// Canonicalize returns the canonical encoding of a JSON document: compact,
// object keys sorted, numbers kept in their source representation.
func Canonicalize(doc []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("confighash: decode document: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("confighash: trailing data after document")
	}
	canonical, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("confighash: encode canonical form: %w", err)
	}
	return canonical, nil
}

// Sum returns the BLAKE3-256 digest of the document's canonical form.
func Sum(doc []byte) ([32]byte, error) {
	canonical, err := Canonicalize(doc)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(canonical), nil
}

// SumUint256 returns the digest as the 256-bit integer form the vault stores.
func SumUint256(doc []byte) (uint256.Int, error) {
	digest, err := Sum(doc)
	if err != nil {
		return uint256.Int{}, err
	}
	var hash uint256.Int
	hash.SetBytes32(digest[:])
	return hash, nil
}
