package sale

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// providerAliases maps fingerprints of known recurring misspellings onto the
// fingerprint of the directory spelling.
var providerAliases = map[string]string{
	"marybetancourt": "marybetandcourt",
}

// Directory maps provider identifiers to display names.
type Directory map[string]string

// LoadDirectory reads a YAML file of `id: name` pairs.
func LoadDirectory(path string) (Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider directory: %w", err)
	}

	dir := Directory{}
	if err := yaml.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("failed to parse provider directory: %w", err)
	}
	return dir, nil
}

// Name looks up a provider's display name by id.
func (d Directory) Name(id string) (string, bool) {
	name, ok := d[id]
	return name, ok
}

// ProviderMatch is the outcome of resolving a provider name.
type ProviderMatch struct {
	ID   string
	Name string // Directory spelling
	Rule string // exact, alias, substring or tokens
}

type directoryEntry struct {
	id          string
	name        string
	normalized  string
	fingerprint string
	tokens      []string
}

// entries returns the directory sorted by id so every tier is deterministic.
func (d Directory) entries() []directoryEntry {
	out := make([]directoryEntry, 0, len(d))
	for id, name := range d {
		n := NormalizePerson(name)
		if n == "" {
			continue
		}
		out = append(out, directoryEntry{
			id:          id,
			name:        name,
			normalized:  n,
			fingerprint: strings.ReplaceAll(n, " ", ""),
			tokens:      strings.Fields(n),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ResolveProvider finds the directory entry for a free-text provider name.
// Rules apply in order and the first hit wins:
//
//  1. exact match on the spacing-insensitive fingerprint
//  2. alias table of known misspellings
//  3. substring containment in either direction (middle names, initials)
//  4. the only entry whose tokens all appear, in order, in the input with the
//     same first and last token (an extra middle name or initial)
//
// Anything else is unresolved; near-miss spellings are never guessed.
func (d Directory) ResolveProvider(name string) (ProviderMatch, bool) {
	desired := NormalizePerson(name)
	if desired == "" {
		return ProviderMatch{}, false
	}
	fingerprint := strings.ReplaceAll(desired, " ", "")
	entries := d.entries()

	for _, e := range entries {
		if e.fingerprint == fingerprint {
			return ProviderMatch{ID: e.id, Name: e.name, Rule: "exact"}, true
		}
	}

	if alias, ok := providerAliases[fingerprint]; ok {
		for _, e := range entries {
			if e.fingerprint == alias {
				return ProviderMatch{ID: e.id, Name: e.name, Rule: "alias"}, true
			}
		}
	}

	for _, e := range entries {
		if strings.Contains(desired, e.normalized) || strings.Contains(e.normalized, desired) {
			return ProviderMatch{ID: e.id, Name: e.name, Rule: "substring"}, true
		}
	}

	tokens := strings.Fields(desired)
	found := -1
	for i, e := range entries {
		if !tokensWithin(e.tokens, tokens) {
			continue
		}
		if found >= 0 {
			return ProviderMatch{}, false
		}
		found = i
	}
	if found >= 0 {
		e := entries[found]
		return ProviderMatch{ID: e.id, Name: e.name, Rule: "tokens"}, true
	}

	return ProviderMatch{}, false
}

// tokensWithin reports whether want is an ordered subsequence of have that
// starts and ends on the same tokens. Single-token names never qualify.
func tokensWithin(want, have []string) bool {
	if len(want) < 2 || len(have) < len(want) {
		return false
	}
	if want[0] != have[0] || want[len(want)-1] != have[len(have)-1] {
		return false
	}
	i := 0
	for _, tok := range have {
		if i < len(want) && tok == want[i] {
			i++
		}
	}
	return i == len(want)
}
