package build

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Prefix layout:
//
//	prefix/
//	  Cellar/<name>/<version>/        # keg
//	    .install.json                 # receipt
//	    bin/<exe>
//	  bin/<exe> -> ../Cellar/<name>/<version>/bin/<exe>
//	  var/gotap/locks/<name>.lock
//	  var/gotap/staging/<name>-<version>-*/
const receiptFile = ".install.json"

// Receipt records a successful install.
type Receipt struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Revision    int               `json:"revision"`
	URL         string            `json:"url"`
	SHA256      string            `json:"sha256"`
	Recipe      string            `json:"recipe,omitempty"`
	Module      string            `json:"module,omitempty"`
	SourceHash  string            `json:"source_hash,omitempty"`
	Commit      string            `json:"commit,omitempty"`
	Binaries    []string          `json:"binaries"`
	RuntimeDeps []string          `json:"runtime_deps,omitempty"`
	Injections  map[string]string `json:"injections,omitempty"`
	Stripped    bool              `json:"stripped"`
	InstallTime time.Time         `json:"install_time"`

	// Keg is the install directory. Cached is set when Install found the
	// keg already present.
	Keg    string `json:"-"`
	Cached bool   `json:"-"`
}

// ID returns name@version.
func (r *Receipt) ID() string {
	return r.Name + "@" + r.Version
}

// loadReceipt reads the receipt of a keg.
func loadReceipt(keg string) (*Receipt, error) {
	data, err := os.ReadFile(filepath.Join(keg, receiptFile))
	if err != nil {
		return nil, err
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	r.Keg = keg
	return &r, nil
}

// saveReceipt writes the receipt of a keg.
func saveReceipt(keg string, r *Receipt) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(keg, receiptFile), data, 0o644)
}

// Installed returns the receipts of all installed kegs, sorted by name
// and version.
func (b *Builder) Installed() ([]*Receipt, error) {
	names, err := os.ReadDir(b.cellar())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var receipts []*Receipt
	for _, n := range names {
		if !n.IsDir() {
			continue
		}
		rs, err := b.receiptsOf(n.Name())
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, rs...)
	}
	return receipts, nil
}

// receiptsOf returns the receipts of every installed version of name.
// Kegs without a receipt are not installed.
func (b *Builder) receiptsOf(name string) ([]*Receipt, error) {
	dir := filepath.Join(b.cellar(), name)
	versions, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var receipts []*Receipt
	for _, v := range versions {
		if !v.IsDir() {
			continue
		}
		r, err := loadReceipt(filepath.Join(dir, v.Name()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		receipts = append(receipts, r)
	}
	slices.SortFunc(receipts, func(a, b *Receipt) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Version, b.Version)
	})
	return receipts, nil
}
