package efficacylens

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var defaultSynonymsYAML []byte

// SynonymTable resolves disease names to a canonical entry. It is immutable
// after construction and safe for concurrent use.
type SynonymTable struct {
	canonical map[string]string
	entries   map[string][]string
}

var (
	defaultTableOnce sync.Once
	defaultTable     *SynonymTable
)

// DefaultSynonymTable returns the embedded table, parsed once per process.
func DefaultSynonymTable() *SynonymTable {
	defaultTableOnce.Do(func() {
		t, err := ParseSynonymTable(defaultSynonymsYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded synonyms.yaml: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

func LoadSynonymFile(path string) (*SynonymTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synonym table: %w", err)
	}
	return ParseSynonymTable(data)
}

func ParseSynonymTable(data []byte) (*SynonymTable, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse synonym table: %w", err)
	}
	t := &SynonymTable{
		canonical: map[string]string{},
		entries:   map[string][]string{},
	}
	for name, synonyms := range raw {
		canon := normalizeDisease(name)
		if canon == "" {
			return nil, fmt.Errorf("synonym table: empty canonical name")
		}
		if err := t.bind(canon, canon); err != nil {
			return nil, err
		}
		for _, s := range synonyms {
			syn := normalizeDisease(s)
			if syn == "" {
				continue
			}
			if err := t.bind(syn, canon); err != nil {
				return nil, err
			}
			t.entries[canon] = append(t.entries[canon], syn)
		}
	}
	return t, nil
}

func (t *SynonymTable) bind(name, canon string) error {
	if prev, ok := t.canonical[name]; ok && prev != canon {
		return fmt.Errorf("synonym table: %q listed under both %q and %q", name, prev, canon)
	}
	t.canonical[name] = canon
	return nil
}

// Canonical returns the canonical entry that name belongs to, if any.
func (t *SynonymTable) Canonical(name string) (string, bool) {
	c, ok := t.canonical[normalizeDisease(name)]
	return c, ok
}

func (t *SynonymTable) Synonyms(canonical string) []string {
	return append([]string(nil), t.entries[normalizeDisease(canonical)]...)
}

func (t *SynonymTable) Canonicals() []string {
	out := make([]string, 0, len(t.entries))
	seen := map[string]bool{}
	for _, c := range t.canonical {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func normalizeDisease(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
