// Package cursor encodes opaque pagination tokens for list endpoints.
package cursor

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Cursor marks a position in a paged listing. Seq is the storage sequence
// of the last item on the previous page; pages resume after it.
type Cursor struct {
	Seq uint64 `json:"seq"`
	// FilterHash invalidates the token when the request filter changes.
	FilterHash string `json:"filter_hash,omitempty"`
}

// New builds a cursor that resumes after seq under the given filter.
func New(seq uint64, filter string) Cursor {
	return Cursor{Seq: seq, FilterHash: HashFilter(filter)}
}

// Encode encodes a cursor to an opaque base64 token.
func Encode(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode decodes an opaque token back into a cursor.
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, fmt.Errorf("empty token")
	}

	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode base64: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal cursor: %w", err)
	}
	return c, nil
}

// HashFilter computes a short hash of the filter string for token
// validation. Returns an empty string for an empty filter.
func HashFilter(filter string) string {
	if filter == "" {
		return ""
	}
	h := sha256.Sum256([]byte(filter))
	return hex.EncodeToString(h[:8])
}

// ValidateFilter reports an error when the token was minted under a
// different filter than the current request.
func (c Cursor) ValidateFilter(filter string) error {
	if c.FilterHash != HashFilter(filter) {
		return fmt.Errorf("filter changed since token was issued")
	}
	return nil
}
