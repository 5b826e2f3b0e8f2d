package generator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingParameter is returned when productId, guid or serial is empty.
	ErrMissingParameter = errors.New("missing required parameters (productId, guid, serial)")
	// ErrDescriptorNotFound is matched by *DescriptorNotFoundError.
	ErrDescriptorNotFound = errors.New("descriptor not found")
	// ErrTemplateNotFound is returned when a SQL dump template is absent.
	ErrTemplateNotFound = errors.New("template not found")
)

// DescriptorNotFoundError lists every path tried while resolving a descriptor.
type DescriptorNotFoundError struct {
	ProductID string
	Tried     []string
}

func (e *DescriptorNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "descriptor not found for %q. Tried:", e.ProductID)
	for i, p := range e.Tried {
		fmt.Fprintf(&b, "\n%d. %s", i+1, p)
	}
	return b.String()
}

func (e *DescriptorNotFoundError) Is(target error) bool {
	return target == ErrDescriptorNotFound
}
