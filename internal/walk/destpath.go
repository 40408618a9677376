package walk

import (
	"fmt"
	"os"
	"path/filepath"
)

// resolveDestinations computes the destination path for each source,
// following cp's target-directory convention: with more than one source,
// or a single source paired with --no-target-directory=false and an
// existing directory target, each source lands inside target named after
// its own base name. A single source with --no-target-directory, or paired
// with a target that is not an existing directory, is copied verbatim to
// target.
func resolveDestinations(sources []string, target string, noTargetDirectory bool) ([]string, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no source operands")
	}

	targetIsDir := false
	if info, err := os.Stat(target); err == nil {
		targetIsDir = info.IsDir()
	}

	if noTargetDirectory {
		if len(sources) > 1 {
			return nil, fmt.Errorf("extra operand %q: --no-target-directory requires exactly one source", sources[1])
		}
		return []string{target}, nil
	}

	if len(sources) == 1 && !targetIsDir {
		return []string{target}, nil
	}

	dsts := make([]string, len(sources))
	for i, src := range sources {
		dsts[i] = filepath.Join(target, filepath.Base(filepath.Clean(src)))
	}
	return dsts, nil
}

// expandGlobs replaces any source operand containing glob metacharacters
// with its filepath.Glob expansion, preserving operand order. An operand
// with no metacharacters, or whose pattern matches nothing, is passed
// through unchanged so a literal (possibly nonexistent) path still
// surfaces a NotFound error from the walker instead of silently vanishing.
func expandGlobs(sources []string) ([]string, error) {
	var out []string
	for _, src := range sources {
		if !hasMeta(src) {
			out = append(out, src)
			continue
		}
		matches, err := filepath.Glob(src)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", src, err)
		}
		if len(matches) == 0 {
			out = append(out, src)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}

func hasMeta(path string) bool {
	for _, c := range path {
		switch c {
		case '*', '?', '[', '\\':
			return true
		}
	}
	return false
}
