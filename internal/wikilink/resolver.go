// Package wikilink wires cross-file task references into parent/child edges.
//
// A task links a child by a [[Name]] reference in its child block or, for a
// frontmatter task, in its children list. The link resolves to a vault file
// whose frontmatter task becomes the child. Link edges form a DAG: an edge is
// only added when the parent is not reachable from the child. A child linked by
// several parents is listed under each of them but keeps its first parent.
package wikilink

import (
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/taskflow/internal/model"
	"github.com/metalagman/taskflow/internal/task"
)

// MaxDepth bounds reachability checks and date propagation along edges.
const MaxDepth = 64

// Resolver rebuilds link edges over the whole task store.
type Resolver struct {
	store   *task.Store
	exclude func(string) bool
}

// New creates a resolver. Paths for which exclude returns true never resolve.
func New(store *task.Store, exclude func(string) bool) *Resolver {
	if exclude == nil {
		exclude = func(string) bool { return false }
	}
	return &Resolver{store: store, exclude: exclude}
}

// Resolve clears all link edges and wires them again from the current link targets.
// files lists the vault paths link names resolve against.
func (r *Resolver) Resolve(files []string) {
	idx := r.index(files)
	wired, rejected := 0, 0
	r.store.Mutate(func(tx task.Tx) {
		tasks := tx.Tasks()
		for _, t := range tasks {
			clearLinks(tx, t)
		}
		for _, parent := range tasks {
			for _, name := range parent.LinkTargets {
				file := idx.resolve(name)
				if file == "" {
					continue
				}
				child, ok := tx.Task(model.TaskID(file, model.FrontmatterLine))
				if !ok {
					continue
				}
				switch {
				case child.ID == parent.ID, slices.Contains(parent.ChildIDs, child.ID):
					continue
				case reachable(tx, child.ID, parent.ID, MaxDepth):
					rejected++
					log.Warn().Str("task_id", parent.ID).Str("child", child.ID).Msg("link would create a cycle")
					continue
				}
				parent.ChildIDs = append(parent.ChildIDs, child.ID)
				parent.LinkChildIDs = append(parent.LinkChildIDs, child.ID)
				// a child referenced by several parents keeps the first one
				if child.ParentID == "" {
					child.ParentID = parent.ID
					child.ParentViaLink = true
				}
				wired++
			}
		}
		for _, t := range tasks {
			if t.ParentID == "" && t.StartDate != "" {
				inherit(tx, t, t.StartDate, MaxDepth)
			}
		}
	})
	log.Debug().Int("wired", wired).Int("rejected", rejected).Msg("links resolved")
}

// clearLinks undoes the link edges and link-inherited dates of t.
func clearLinks(tx task.Tx, t *model.Task) {
	if len(t.LinkChildIDs) > 0 {
		linked := make(map[string]struct{}, len(t.LinkChildIDs))
		for _, id := range t.LinkChildIDs {
			linked[id] = struct{}{}
		}
		kept := t.ChildIDs[:0]
		for _, id := range t.ChildIDs {
			if _, ok := linked[id]; !ok {
				kept = append(kept, id)
			}
		}
		t.ChildIDs = kept
		t.LinkChildIDs = nil
	}
	if t.ParentViaLink {
		t.ParentID = ""
		t.ParentViaLink = false
		if t.StartDateInherited {
			if t.EndDate == t.StartDate && t.EndTime != "" {
				t.EndDate = ""
			}
			t.StartDate = ""
			t.StartDateInherited = false
		}
	}
}

// reachable reports whether target can be reached from id along child edges.
func reachable(tx task.Tx, id, target string, depth int) bool {
	if id == target {
		return true
	}
	if depth == 0 {
		// too deep to prove acyclic
		return true
	}
	t, ok := tx.Task(id)
	if !ok {
		return false
	}
	for _, c := range t.ChildIDs {
		if reachable(tx, c, target, depth-1) {
			return true
		}
	}
	return false
}

// inherit pushes date into time-only link children owned by t and on down their link edges.
func inherit(tx task.Tx, t *model.Task, date string, depth int) {
	if depth == 0 {
		return
	}
	for _, id := range t.LinkChildIDs {
		c, ok := tx.Task(id)
		if !ok || c.ParentID != t.ID {
			continue
		}
		if c.StartDate == "" && c.StartTime != "" {
			c.StartDate = date
			c.StartDateInherited = true
			if c.EndDate == "" && c.EndTime != "" {
				c.EndDate = date
			}
		}
		next := date
		if c.StartDate != "" {
			next = c.StartDate
		}
		inherit(tx, c, next, depth-1)
	}
	// indentation children already carry their dates; walk them for nested link edges
	for _, id := range t.ChildIDs {
		if c, ok := tx.Task(id); ok && !c.ParentViaLink && len(c.ChildIDs) > 0 {
			next := date
			if c.StartDate != "" {
				next = c.StartDate
			}
			inherit(tx, c, next, depth-1)
		}
	}
}

type fileIndex struct {
	exact  map[string]string
	byBase map[string][]string
}

func (r *Resolver) index(files []string) fileIndex {
	idx := fileIndex{exact: make(map[string]string), byBase: make(map[string][]string)}
	sorted := append([]string(nil), files...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) < len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	for _, f := range sorted {
		if r.exclude(f) {
			continue
		}
		idx.exact[strings.ToLower(f)] = f
		base := strings.ToLower(path.Base(f))
		idx.byBase[base] = append(idx.byBase[base], f)
	}
	return idx
}

// resolve maps a link name to a file: exact path, then path plus extension, then the
// shortest path with a matching base name.
func (idx fileIndex) resolve(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return ""
	}
	key := strings.ToLower(name)
	if f, ok := idx.exact[key]; ok {
		return f
	}
	if !strings.HasSuffix(key, ".md") {
		key += ".md"
	}
	if f, ok := idx.exact[key]; ok {
		return f
	}
	if candidates := idx.byBase[path.Base(key)]; len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}
