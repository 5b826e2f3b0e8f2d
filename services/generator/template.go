package generator

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Binding replaces every occurrence of Token with Value.
type Binding struct {
	Token string
	Value string
}

// Apply runs bindings over text in order.
func Apply(text string, bindings []Binding) string {
	for _, b := range bindings {
		if b.Token == "" {
			continue
		}
		text = strings.ReplaceAll(text, b.Token, b.Value)
	}
	return text
}

func readTemplate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
		}
		return "", fmt.Errorf("read template %s: %w", path, err)
	}
	return string(data), nil
}
