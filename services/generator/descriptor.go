package generator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DescriptorInfo identifies the descriptor file used for a generation.
type DescriptorInfo struct {
	Path string `json:"descriptor_path"`
	Size int64  `json:"descriptor_size"`
}

// NormalizeProductID replaces each separator character with a dash.
func NormalizeProductID(productID, separators string) string {
	if separators == "" {
		return productID
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(separators, r) {
			return '-'
		}
		return r
	}, productID)
}

func (g *Generator) descriptorCandidates(normalized string) []string {
	d := g.cfg.Layout.Descriptor
	return []string{
		filepath.Join(g.cfg.BaseDir, d.Dir, normalized, d.File),
		filepath.Join(g.cfg.AltBaseDir, d.Dir, normalized, d.File),
		filepath.Join(g.cfg.DocumentRoot, d.DocRootDir, d.Dir, normalized, d.File),
	}
}

func (g *Generator) resolveDescriptor(productID string) (DescriptorInfo, error) {
	normalized := NormalizeProductID(productID, g.cfg.Layout.Descriptor.Separators)
	tried := g.descriptorCandidates(normalized)
	for _, candidate := range tried {
		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return DescriptorInfo{}, fmt.Errorf("stat descriptor %s: %w", candidate, err)
		}
		if info.IsDir() {
			continue
		}
		resolved, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			resolved = candidate
		}
		return DescriptorInfo{Path: resolved, Size: info.Size()}, nil
	}
	return DescriptorInfo{}, &DescriptorNotFoundError{ProductID: productID, Tried: tried}
}
