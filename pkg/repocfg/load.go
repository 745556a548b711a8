package repocfg

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const fileName = "branchless.toml"

// Load reads <metaDir>/branchless.toml and merges it over Default. A
// missing file is not an error: Load returns the default config unchanged,
// the same way LoadGlobal treats an absent ~/.zeta.toml.
func Load(metaDir string) (*Config, error) {
	cfg := Default()
	if len(metaDir) == 0 {
		return cfg, nil
	}
	path := filepath.Join(metaDir, fileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	var rc Config
	if _, err := toml.DecodeFile(path, &rc); err != nil {
		return nil, err
	}
	cfg.Overwrite(&rc)
	return cfg, nil
}
