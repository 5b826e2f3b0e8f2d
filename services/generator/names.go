package generator

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// NameGenerator produces directory names for stage outputs. Names must be
// unique across concurrent requests.
type NameGenerator interface {
	Next() (string, error)
}

// HexNames draws Bytes random bytes (default 8) and hex encodes them.
type HexNames struct {
	Bytes int
	Rand  io.Reader
}

func (h HexNames) Next() (string, error) {
	n := h.Bytes
	if n <= 0 {
		n = 8
	}
	src := h.Rand
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", fmt.Errorf("random name: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
