package gitsync

import (
	"fmt"
	"path"
	"strings"
)

// Change is one entry from git's short status output.
type Change struct {
	// Flag is the two-character porcelain status code, e.g. " M", "??", "D ".
	Flag string
	// Path is the repository-relative file path.
	Path string
}

// IsDelete reports whether the change removes a file.
func (c Change) IsDelete() bool {
	return strings.Contains(c.Flag, "D")
}

// reservedPrefixes are repository paths that sync operations never touch.
// Session bookkeeping and git internals live there.
var reservedPrefixes = []string{".sessions/", ".git/"}

func isReservedPath(p string) bool {
	clean := path.Clean(strings.TrimPrefix(p, "./"))
	for _, prefix := range reservedPrefixes {
		if clean == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(clean, prefix) {
			return true
		}
	}
	return false
}

// ParsePorcelain parses `git status --porcelain` output into changes,
// dropping entries under reserved paths. Rename entries keep only the
// destination path.
func ParsePorcelain(output string) []Change {
	var changes []Change
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		flag := line[:2]
		p := strings.TrimSpace(line[3:])
		if idx := strings.Index(p, " -> "); idx >= 0 {
			p = p[idx+4:]
		}
		p = strings.Trim(p, `"`)
		if p == "" || isReservedPath(p) {
			continue
		}
		changes = append(changes, Change{Flag: flag, Path: p})
	}
	return changes
}

// bulkDeleteThreshold caps how many deletions are itemized in commit
// messages and change listings. A fresh clone replacing stale local state
// can delete hundreds of files; listing each one would drown the rest.
const bulkDeleteThreshold = 10

// TitleResolver turns a repository path into a human-readable label for
// commit messages. Implementations may read the file; a nil resolver or an
// empty result falls back to the file name.
type TitleResolver interface {
	PostTitle(absPath string) string
}

// describeChange renders one change as a commit message line.
func describeChange(c Change, label string) string {
	verb := "Updated"
	switch {
	case strings.Contains(c.Flag, "?"), strings.Contains(c.Flag, "A"):
		verb = "Added"
	case c.IsDelete():
		verb = "Deleted"
	case strings.Contains(c.Flag, "R"):
		verb = "Renamed"
	}
	return fmt.Sprintf("%s %s (%s)", verb, label, c.Path)
}

// FormatChanges builds the per-file commit message lines for changes.
// When deletions exceed bulkDeleteThreshold they are left out entirely;
// other changes are always itemized. A first sync into a stale workspace
// would otherwise flood the message with deletion noise.
func FormatChanges(changes []Change, resolver TitleResolver, root string) []string {
	var deletes, others []Change
	for _, c := range changes {
		if c.IsDelete() {
			deletes = append(deletes, c)
		} else {
			others = append(others, c)
		}
	}

	var lines []string
	for _, c := range others {
		lines = append(lines, describeChange(c, labelFor(c, resolver, root)))
	}
	if len(deletes) <= bulkDeleteThreshold {
		for _, c := range deletes {
			lines = append(lines, describeChange(c, labelFor(c, resolver, root)))
		}
	}
	return lines
}

func labelFor(c Change, resolver TitleResolver, root string) string {
	if resolver != nil && !c.IsDelete() && strings.HasSuffix(c.Path, ".md") {
		if title := resolver.PostTitle(path.Join(root, c.Path)); title != "" {
			return title
		}
	}
	return path.Base(c.Path)
}
