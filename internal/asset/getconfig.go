package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ConfigOptions controls GetConfig lookups.
type ConfigOptions struct {
	// SearchUp walks parent directories from the asset toward the project
	// root looking for each candidate name.
	SearchUp bool
	// ProjectRoot bounds the upward search.
	ProjectRoot string
	// ParseAs forces a parser ("json", "yaml", "toml") for files whose
	// extension does not identify one, e.g. ".swcrc".
	ParseAs string
}

// ConfigFile is the decoded result of a GetConfig lookup.
type ConfigFile struct {
	FilePath string
	Value    any
}

// GetConfig searches for the first existing file among the candidate names,
// decodes it by extension (JSON, YAML, or TOML), and registers it as a
// connected file so its contents participate in the asset's cache identity.
// Returns nil when no candidate exists.
func (a *Asset) GetConfig(names []string, opts ConfigOptions) (*ConfigFile, error) {
	if a.frozen {
		return nil, ErrAssetFrozen
	}
	if a.inputFS == nil {
		return nil, fmt.Errorf("asset %s has no input filesystem", a.id)
	}

	path, ok, err := a.findConfig(names, opts)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	data, err := afero.ReadFile(a.inputFS, path)
	if err != nil {
		return nil, &ContentReadError{Path: path, Err: err}
	}

	value, err := decodeConfig(path, data, opts.ParseAs)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	if err := a.AddConnectedFile(ConnectedFile{
		FilePath: path,
		Hash:     hex.EncodeToString(sum[:]),
	}); err != nil {
		return nil, err
	}

	return &ConfigFile{FilePath: path, Value: value}, nil
}

// findConfig locates the first existing candidate, optionally walking up
// from the asset's directory to the project root.
func (a *Asset) findConfig(names []string, opts ConfigOptions) (string, bool, error) {
	dirs := []string{filepath.Dir(a.filePath)}
	if opts.SearchUp {
		root := filepath.Clean(opts.ProjectRoot)
		dir := filepath.Dir(a.filePath)
		for dir != root && dir != "." && dir != string(filepath.Separator) {
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dirs = append(dirs, parent)
			dir = parent
		}
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			exists, err := afero.Exists(a.inputFS, candidate)
			if err != nil {
				return "", false, &ContentReadError{Path: candidate, Err: err}
			}
			if exists {
				return candidate, true, nil
			}
		}
	}
	return "", false, nil
}

// decodeConfig picks a decoder from the file extension, or from the forced
// format for extensionless rc files.
func decodeConfig(path string, data []byte, parseAs string) (any, error) {
	format := parseAs
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = "yaml"
		case ".toml":
			format = "toml"
		default:
			format = "json"
		}
	}

	var value any
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case "json":
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q for %s", format, path)
	}
	return value, nil
}
