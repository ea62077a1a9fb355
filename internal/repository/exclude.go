package repository

import (
	"path"
	"strings"
)

// Exclusions matches vault-relative paths that are never indexed. A pattern ending in
// "/" excludes a folder; anything else is a path.Match glob tried against the full path
// and the base name.
type Exclusions []string

// Match reports whether file is excluded. Hidden folders are always excluded.
func (e Exclusions) Match(file string) bool {
	for _, seg := range strings.Split(path.Dir(file), "/") {
		if strings.HasPrefix(seg, ".") && seg != "." {
			return true
		}
	}
	for _, p := range e {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(file, p) {
				return true
			}
			continue
		}
		if ok, _ := path.Match(p, file); ok {
			return true
		}
		if ok, _ := path.Match(p, path.Base(file)); ok {
			return true
		}
	}
	return false
}
