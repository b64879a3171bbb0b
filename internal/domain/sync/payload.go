package sync

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"
	"gorm.io/datatypes"
)

var errEmptyPayload = errors.New("payload is empty")

// Payload is an opaque entity state. Data holds the caller's JSON with
// insignificant whitespace removed and is what gets stored. Canonical only
// feeds Hash: two payloads are equal when their canonical encodings hash to
// the same value, so object key order, whitespace and Unicode normalization
// form do not matter.
type Payload struct {
	Data      datatypes.JSON
	Canonical datatypes.JSON
	Hash      string
}

func (p Payload) Equal(other Payload) bool {
	return p.Hash != "" && p.Hash == other.Hash
}

// CanonicalizePayload validates raw JSON and returns its canonical form.
// Absent, null and empty values are rejected.
func CanonicalizePayload(raw []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Payload{}, errEmptyPayload
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return Payload{}, fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return Payload{}, errors.New("invalid json: trailing data")
	}
	if isEmptyValue(value) {
		return Payload{}, errEmptyPayload
	}

	canonical, err := encodeCanonical(normalizeValue(value))
	if err != nil {
		return Payload{}, err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return Payload{}, fmt.Errorf("invalid json: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return Payload{
		Data:      datatypes.JSON(compact.Bytes()),
		Canonical: datatypes.JSON(canonical),
		Hash:      hex.EncodeToString(sum[:]),
	}, nil
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}
	return false
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case string:
		return norm.NFC.String(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[norm.NFC.String(key)] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}
		return out
	}
	return value
}

// encodeCanonical relies on encoding/json sorting map keys.
func encodeCanonical(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
