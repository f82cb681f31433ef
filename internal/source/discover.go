package source

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Discover expands trace arguments into file paths. A directory expands to
// the trace files it contains (its whole tree when recursive is set), a glob
// pattern expands to the matching trace files, and any other argument is
// kept as is so that a missing file is reported against its own name.
// The result is deduplicated and keeps argument order.
func Discover(args []string, recursive bool) ([]string, error) {
	seen := make(map[string]bool)
	var result []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}

	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			pattern := filepath.Join(escapeMeta(arg), "*")
			if recursive {
				pattern = filepath.Join(escapeMeta(arg), "**", "*")
			}
			matches, err := globTraces(pattern)
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}
		if hasMeta(arg) {
			matches, err := globTraces(arg)
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}
		add(arg)
	}
	return result, nil
}

// globTraces returns the sorted regular files matching pattern whose names
// carry a trace extension.
func globTraces(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	matches = slices.DeleteFunc(matches, func(m string) bool {
		_, _, err := Detect(m)
		return err != nil
	})
	slices.Sort(matches)
	return matches, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

func escapeMeta(p string) string {
	var b strings.Builder
	for _, c := range p {
		if strings.ContainsRune("*?[]{}\\", c) && filepath.Separator != '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
