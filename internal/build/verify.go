package build

import (
	"bytes"
	"debug/buildinfo"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/gotap/formula"
)

// minLiteralVersion bounds the literal search of embedsVersion: shorter
// strings such as "1" occur by chance in any binary and prove nothing.
const minLiteralVersion = 5

// verifyVersion checks that the declared version was injected at link
// time into a symbol of the module being built.
//
// The go command omits -ldflags from the build info of -trimpath builds,
// so when the setting is absent the binary must contain the version
// string literally.
func (b *Builder) verifyVersion(st *install) error {
	r, rc := st.recipe, st.receipt
	var syms []string
	for sym, val := range rc.Injections {
		if val != r.Version {
			continue
		}
		if rc.Module != "" && !symbolIn(sym, rc.Module) {
			return fmt.Errorf("-X %s: symbol is outside module %s", sym, rc.Module)
		}
		syms = append(syms, sym)
	}
	if len(syms) == 0 {
		return fmt.Errorf("no -X injection sets version %s", r.Version)
	}

	for _, bin := range rc.Binaries {
		p := filepath.Join(st.keg, "bin", bin)
		info, err := buildinfo.ReadFile(p)
		if err != nil {
			return fmt.Errorf("%s: %w", bin, err)
		}
		if rc.Module != "" && info.Main.Path != "" && info.Main.Path != rc.Module {
			return fmt.Errorf("%s: built from module %s, want %s", bin, info.Main.Path, rc.Module)
		}
		if ldflags, ok := setting(info, "-ldflags"); ok {
			inj, _, err := formula.ParseLdflags(ldflags)
			if err != nil {
				return fmt.Errorf("%s: %w", bin, err)
			}
			for _, sym := range syms {
				if inj[sym] != r.Version {
					return fmt.Errorf("%s: -X %s=%s not in build info", bin, sym, r.Version)
				}
			}
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if err := embedsVersion(data, r.Version); err != nil {
			return fmt.Errorf("%s: %w", bin, err)
		}
	}
	b.log.Debug("version verified", "formula", r.ID(), "symbols", syms)
	return nil
}

// embedsVersion looks for version as a literal in a binary built without
// an -ldflags build setting.
func embedsVersion(data []byte, version string) error {
	if len(version) < minLiteralVersion {
		return fmt.Errorf("version %q is too short to verify in a -trimpath binary (want at least %d characters)",
			version, minLiteralVersion)
	}
	if !bytes.Contains(data, []byte(version)) {
		return fmt.Errorf("version %s not embedded", version)
	}
	return nil
}

// symbolIn reports whether an -X symbol such as
// example.com/m/internal/cli.Version belongs to module mod.
func symbolIn(sym, mod string) bool {
	i := strings.LastIndex(sym, ".")
	if i <= 0 {
		return false
	}
	pkg := sym[:i]
	return pkg == mod || strings.HasPrefix(pkg, mod+"/") || pkg == "main"
}

func setting(info *buildinfo.BuildInfo, key string) (string, bool) {
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value, true
		}
	}
	return "", false
}
