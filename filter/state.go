package filter

import (
	"encoding/base64"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeState packs specs into a URL-safe token, suitable for a query
// parameter or a bookmark.
func EncodeState(specs []Spec) (string, error) {
	if len(specs) == 0 {
		return "", nil
	}
	b, err := msgpack.Marshal(specs)
	if err != nil {
		return "", fmt.Errorf("filter: encode state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeState reverses EncodeState. An empty token yields no specs.
func DecodeState(token string) ([]Spec, error) {
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("filter: decode state: %w", err)
	}
	var specs []Spec
	if err := msgpack.Unmarshal(b, &specs); err != nil {
		return nil, fmt.Errorf("filter: decode state: %w", err)
	}
	return specs, nil
}
