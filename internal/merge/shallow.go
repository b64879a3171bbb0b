package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	syncdomain "partner-sync-go/internal/domain/sync"
)

var ErrNotObject = errors.New("merge: both sides must be json objects")

// Shallow merges two JSON objects key by key. Keys present in the local
// payload replace the server's; nested values are not merged.
type Shallow struct{}

func NewShallow() *Shallow {
	return &Shallow{}
}

func (Shallow) Merge(_ context.Context, input syncdomain.MergeInput) ([]byte, error) {
	server, err := decodeObject(input.ServerData)
	if err != nil {
		return nil, fmt.Errorf("server data: %w", err)
	}
	local, err := decodeObject(input.LocalData)
	if err != nil {
		return nil, fmt.Errorf("local data: %w", err)
	}

	merged := make(map[string]json.RawMessage, len(server)+len(local))
	for key, value := range server {
		merged[key] = value
	}
	for key, value := range local {
		merged[key] = value
	}

	return json.Marshal(merged)
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &object); err != nil {
		return nil, err
	}
	return object, nil
}
