package communities

import (
	"bytes"
	_ "embed"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type CatalogEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type catalogFile struct {
	Communities []CatalogEntry `yaml:"communities"`
}

// LoadCatalog reads the community catalog at path, or the built-in one when
// path is empty.
func LoadCatalog(path string) ([]CatalogEntry, error) {
	data := defaultCatalog
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read catalog")
		}
		data = b
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) ([]CatalogEntry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f catalogFile
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}

	seen := make(map[string]struct{}, len(f.Communities))
	out := make([]CatalogEntry, 0, len(f.Communities))
	for i, c := range f.Communities {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, errors.Errorf("catalog entry %d: missing name", i+1)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, errors.Errorf("catalog entry %d: duplicate name %q", i+1, c.Name)
		}
		seen[c.Name] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}
