package testutil

import (
	"github.com/spf13/afero"

	"cs-go/internal/cs"
	"cs-go/internal/output"
)

// NewTestProvider creates a provider writing into a fresh in-memory
// filesystem and downloading through catalog.
func NewTestProvider(catalog cs.Catalog, opts output.Options) (*output.Provider, afero.Fs) {
	fs := afero.NewMemMapFs()
	return output.NewProvider(fs, catalog, opts), fs
}
