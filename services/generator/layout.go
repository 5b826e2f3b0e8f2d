package generator

import (
	"errors"
	"fmt"
)

// Source names where a binding takes its value from.
type Source string

const (
	SourcePreviousURL Source = "previous_url"
	SourceGUID        Source = "guid"
	SourceSerial      Source = "serial"
	SourceProductID   Source = "product_id"
)

// Layout describes where inputs live and how each stage names its outputs.
// Paths are relative to the generator's base directory.
type Layout struct {
	Descriptor DescriptorLayout `yaml:"descriptor"`
	Package    PackageStage     `yaml:"package"`
	SQLStages  []SQLStage       `yaml:"sql_stages"`
}

type DescriptorLayout struct {
	Dir  string `yaml:"dir"`
	File string `yaml:"file"`
	// DocRootDir is joined under the document root for the last fallback.
	DocRootDir string `yaml:"docroot_dir"`
	// Separators are replaced with '-' in the product identifier.
	Separators string `yaml:"separators"`
}

// PackageStage zips the descriptor into a single file.
type PackageStage struct {
	Name     string `yaml:"name"`
	Root     string `yaml:"root"`
	Scratch  string `yaml:"scratch"`
	Archive  string `yaml:"archive"`
	Output   string `yaml:"output"`
	Mimetype string `yaml:"mimetype"`
}

// SQLStage substitutes bindings into a dump template and materializes it.
type SQLStage struct {
	Name     string        `yaml:"name"`
	Template string        `yaml:"template"`
	Root     string        `yaml:"root"`
	WorkFile string        `yaml:"work_file"`
	Output   string        `yaml:"output"`
	Bindings []BindingSpec `yaml:"bindings"`
}

type BindingSpec struct {
	Token  string `yaml:"token"`
	Source Source `yaml:"source"`
}

// DefaultLayout returns the layout the service ships with.
func DefaultLayout() Layout {
	return Layout{
		Descriptor: DescriptorLayout{
			Dir:        "Maker",
			File:       "com.apple.MobileGestalt.plist",
			DocRootDir: "bee33",
			Separators: ",",
		},
		Package: PackageStage{
			Name:     "stage1",
			Root:     "firststp",
			Scratch:  "Caches",
			Archive:  "temp.zip",
			Output:   "fixedfile",
			Mimetype: "application/epub+zip",
		},
		SQLStages: []SQLStage{
			{
				Name:     "stage2",
				Template: "BLDatabaseManager.png",
				Root:     "2ndd",
				WorkFile: "BLDatabaseManager.sqlite",
				Output:   "belliloveu.png",
				Bindings: []BindingSpec{
					{Token: "KEYOOOOOO", Source: SourcePreviousURL},
				},
			},
			{
				Name:     "stage3",
				Template: "downloads.28.png",
				Root:     "last",
				WorkFile: "downloads.sqlitedb",
				Output:   "apllefuckedhhh.png",
				Bindings: []BindingSpec{
					{Token: "https://google.com", Source: SourcePreviousURL},
					{Token: "GOODKEY", Source: SourceGUID},
				},
			},
		},
	}
}

// Roots lists every stage output root in pipeline order.
func (l Layout) Roots() []string {
	roots := []string{l.Package.Root}
	for _, s := range l.SQLStages {
		roots = append(roots, s.Root)
	}
	return roots
}

// Validate checks that every stage can produce a uniquely named output.
func (l Layout) Validate() error {
	if l.Descriptor.Dir == "" || l.Descriptor.File == "" {
		return errors.New("descriptor dir and file are required")
	}
	p := l.Package
	if p.Name == "" || p.Root == "" || p.Scratch == "" || p.Archive == "" || p.Output == "" {
		return errors.New("package stage requires name, root, scratch, archive and output")
	}
	if p.Archive == p.Output {
		return errors.New("package archive and output must differ")
	}

	names := map[string]struct{}{p.Name: {}}
	for i, s := range l.SQLStages {
		if s.Name == "" || s.Template == "" || s.Root == "" || s.WorkFile == "" || s.Output == "" {
			return fmt.Errorf("sql stage %d requires name, template, root, work_file and output", i)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		names[s.Name] = struct{}{}
		for _, b := range s.Bindings {
			if b.Token == "" {
				return fmt.Errorf("stage %s: binding token is required", s.Name)
			}
			switch b.Source {
			case SourcePreviousURL, SourceGUID, SourceSerial, SourceProductID:
			default:
				return fmt.Errorf("stage %s: unknown binding source %q", s.Name, b.Source)
			}
		}
	}
	return nil
}

func (s SQLStage) resolve(p Parameters, previousURL string) []Binding {
	out := make([]Binding, 0, len(s.Bindings))
	for _, b := range s.Bindings {
		var v string
		switch b.Source {
		case SourcePreviousURL:
			v = previousURL
		case SourceGUID:
			v = p.GUID
		case SourceSerial:
			v = p.Serial
		case SourceProductID:
			v = p.ProductID
		}
		out = append(out, Binding{Token: b.Token, Value: v})
	}
	return out
}
