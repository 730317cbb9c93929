package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"streamscout/models"
)

// EncodeCandidates serializes a post-processed candidate list for storage.
func EncodeCandidates(list []models.Candidate) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(list); err != nil {
		return nil, fmt.Errorf("encode candidates: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCandidates deserializes a stored candidate list.
func DecodeCandidates(data []byte) ([]models.Candidate, error) {
	var list []models.Candidate
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return list, nil
}
