// Package buildfile loads build settings from an HCL file.
//
//	target         = "aarch64-linux-android"
//	enable_codegen = true
//	vector_size    = 4
//
// Every attribute is optional. Settings given on the command line override
// the file.
package buildfile

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/goplus/luaubuild/internal/config"
)

// DefaultName is the build file looked up in the working directory.
const DefaultName = "luaubuild.hcl"

// File holds the attributes present in a build file. Absent attributes are
// nil.
type File struct {
	Target        *string `hcl:"target,optional"`
	Host          *string `hcl:"host,optional"`
	OutDir        *string `hcl:"out_dir,optional"`
	SourceDir     *string `hcl:"source_dir,optional"`
	Profile       *string `hcl:"profile,optional"`
	MaxCStackSize *int    `hcl:"max_cstack_size,optional"`
	UseLongjmp    *bool   `hcl:"use_longjmp,optional"`
	EnableCodegen *bool   `hcl:"enable_codegen,optional"`
	VectorSize    *int    `hcl:"vector_size,optional"`
}

// Load parses the build file at path.
func Load(path string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: parse %s: %w", config.ErrInvalidConfiguration, path, diags)
	}
	return decode(hclFile.Body, path)
}

// Parse parses build file content; filename is used in diagnostics.
func Parse(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: parse %s: %w", config.ErrInvalidConfiguration, filename, diags)
	}
	return decode(hclFile.Body, filename)
}

func decode(body hcl.Body, filename string) (*File, error) {
	var f File
	if diags := gohcl.DecodeBody(body, nil, &f); diags.HasErrors() {
		return nil, fmt.Errorf("%w: decode %s: %w", config.ErrInvalidConfiguration, filename, diags)
	}
	return &f, nil
}

// Apply sets the attributes present in f on b.
func (f *File) Apply(b *config.Builder) *config.Builder {
	if f.Target != nil {
		b.Target(*f.Target)
	}
	if f.Host != nil {
		b.Host(*f.Host)
	}
	if f.OutDir != nil {
		b.OutDir(*f.OutDir)
	}
	if f.SourceDir != nil {
		b.SourceDir(*f.SourceDir)
	}
	if f.Profile != nil {
		b.ProfileName(*f.Profile)
	}
	if f.MaxCStackSize != nil {
		b.MaxCStackSize(*f.MaxCStackSize)
	}
	if f.UseLongjmp != nil {
		b.UseLongjmp(*f.UseLongjmp)
	}
	if f.EnableCodegen != nil {
		b.EnableCodegen(*f.EnableCodegen)
	}
	if f.VectorSize != nil {
		b.VectorSize(*f.VectorSize)
	}
	return b
}
