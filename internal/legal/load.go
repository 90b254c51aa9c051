package legal

import (
	"encoding/json"
	"fmt"
	"io"
)

// ReadPassages decodes a JSON array of passages.
func ReadPassages(r io.Reader) ([]Passage, error) {
	var passages []Passage
	if err := json.NewDecoder(r).Decode(&passages); err != nil {
		return nil, fmt.Errorf("decoding passages: %w", err)
	}
	return passages, nil
}
