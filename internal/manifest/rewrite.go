// Package manifest rewrites a streaming playlist so segment references
// point at their uploaded URLs instead of local filenames.
package manifest

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"media-ingest/internal/fsio"
)

// Rewrite replaces every occurrence of each segment filename in the
// manifest with its uploaded URL and writes the result back atomically.
// Substitution is literal replace-all, which is safe because generated
// segment names are fixed-width and never substrings of one another; maps
// that violate that, or that name a segment the manifest never references,
// are rejected.
func Rewrite(manifestPath string, urlByName map[string]string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest %s: %w", manifestPath, err)
	}
	text := string(data)

	names := make([]string, 0, len(urlByName))
	for name, url := range urlByName {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("empty segment name in substitution map")
		}
		if strings.TrimSpace(url) == "" {
			return fmt.Errorf("empty url for segment %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, other := range names {
			if other != name && strings.Contains(other, name) {
				return fmt.Errorf("segment name %q is a substring of %q; replace-all would corrupt the manifest", name, other)
			}
		}
	}

	for _, name := range names {
		if !strings.Contains(text, name) {
			return fmt.Errorf("manifest does not reference segment %q", name)
		}
		text = strings.ReplaceAll(text, name, urlByName[name])
	}

	if err := fsio.WriteBytes(manifestPath, []byte(text)); err != nil {
		return fmt.Errorf("write rewritten manifest: %w", err)
	}
	return nil
}
