package walk

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/parcp/parcp/internal/filter"
)

// loadGitignoreChain parses dir/.gitignore, if present, into a filter chain.
// Lines are added in reverse so that, combined with Chain's first-match-wins
// evaluation, the last matching line in the file wins — matching real
// gitignore semantics within a single file.
func loadGitignoreChain(dir string) (*filter.Chain, error) {
	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	chain := filter.NewChain()
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		negate := strings.HasPrefix(line, "!")
		pattern := line
		if negate {
			pattern = line[1:]
		}
		if negate {
			_ = chain.AddInclude(pattern)
		} else {
			_ = chain.AddExclude(pattern)
		}
	}
	if chain.Empty() {
		return nil, nil
	}
	return chain, nil
}

// extendIgnore layers dir's own .gitignore (if any and if enabled) on top of
// the inherited chain, with dir's rules taking precedence over its
// ancestors'. Patterns are matched against paths relative to the overall
// copy root rather than the directory that declared them — an
// approximation that holds for the common case (unanchored patterns like
// "*.log" or "build/") and diverges from git only for rarely-used anchored
// patterns declared below the root.
func (w *Walker) extendIgnore(parent *filter.Chain, dir string) (*filter.Chain, error) {
	if !w.cfg.Gitignore {
		return parent, nil
	}
	local, err := loadGitignoreChain(dir)
	if err != nil || local == nil {
		return parent, err
	}
	if parent == nil {
		return local, nil
	}
	return parent.Combine(local), nil
}
