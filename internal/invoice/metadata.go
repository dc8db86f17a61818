// Package invoice implements the invoice dispatcher of spec.md §4.3:
// LUD-06 metadata hashing, amount validation, and candidate dispatch
// with exponential backoff across the selector's candidate stream.
package invoice

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"switchgear/internal/apperr"
	"switchgear/internal/model"
)

// marshalNoEscape is json.Marshal without Go's default HTML escaping
// of <, >, and &. The metadata array's bytes are a cross-implementation
// hash input (DescriptionHash), so they must match byte-for-byte
// regardless of what characters an offer's text happens to contain.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MetadataJSON returns the canonical LUD-06 metadata array
// serialization for m, in the fixed field order spec.md §4.3
// requires: text/plain, text/long-desc?, image?, identifier?. Field
// ordering and the absence of inter-token whitespace are part of the
// wire contract, so this hand-builds the array instead of deferring
// to a generic map-based JSON encode (whose key order is undefined).
func MetadataJSON(m model.OfferMetadata) ([]byte, error) {
	entries := [][2]string{{"text/plain", m.Text}}

	if m.LongText != "" {
		entries = append(entries, [2]string{"text/long-desc", m.LongText})
	}
	if m.Image != nil {
		b64 := base64.StdEncoding.EncodeToString(m.Image.Data)
		tag := "image/png;base64"
		if m.Image.Format == model.ImageJPEG {
			tag = "image/jpeg;base64"
		}
		entries = append(entries, [2]string{tag, b64})
	}
	if m.Identifier != nil {
		tag := "text/email"
		if m.Identifier.Kind == model.IdentifierText {
			tag = "text/identifier"
		}
		entries = append(entries, [2]string{tag, m.Identifier.Value})
	}

	pairs := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		pair, err := marshalNoEscape([2]string{e[0], e[1]})
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata entry %q: %w", e[0], err)
		}
		pairs = append(pairs, pair)
	}

	out, err := marshalNoEscape(pairs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata array: %w", err)
	}
	return out, nil
}

// DescriptionHash returns the SHA-256 of m's canonical metadata JSON,
// the LUD-06 description_hash bound into the invoice.
func DescriptionHash(m model.OfferMetadata) ([32]byte, []byte, error) {
	raw, err := MetadataJSON(m)
	if err != nil {
		return [32]byte{}, nil, err
	}
	return sha256.Sum256(raw), raw, nil
}

// ValidateAmount enforces spec.md §4.3's bounds check.
func ValidateAmount(amountMsat, minSendable, maxSendable int64) error {
	if amountMsat <= 0 {
		return apperr.InvalidAmount("amount_msat must be a positive integer")
	}
	if amountMsat < minSendable || amountMsat > maxSendable {
		return apperr.InvalidAmount(fmt.Sprintf("amount_msat must be between %d and %d", minSendable, maxSendable))
	}
	return nil
}
