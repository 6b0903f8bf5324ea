package metatree

import (
	"github.com/orbiton/metatree/internal/ordered"
)

// Extend merges the overlays into the model's schema and re-validates the
// currently materialized values under each overlaid path against the
// merged nodes. Values outside the overlaid paths are never re-validated,
// so the cost is bounded by the overlay, not the tree.
//
// Extend is all-or-nothing: if any already-set value fails under the
// merged schema, the model keeps its previous schema and values.
func (m *Model) Extend(overlays []Overlay) error {
	merged, err := Merge(m.schema, overlays)
	if err != nil {
		return err
	}

	// Rebuild affected subtrees against the merged schema before touching
	// the model, so a late failure leaves everything in place.
	type rebuilt struct {
		path string
		node *treeNode
	}
	var rebuilds []rebuilt
	seen := map[string]bool{}
	for _, ov := range overlays {
		if seen[ov.Path] {
			continue
		}
		seen[ov.Path] = true
		cur := m.lookup(ov.Path)
		if cur == nil {
			continue
		}
		ns, err := PathOf(merged, ov.Path)
		if err != nil {
			return err
		}
		vn, iss := buildValueNode(ns, cur.snapshot(), ov.Path)
		if iss != nil {
			return iss
		}
		rebuilds = append(rebuilds, rebuilt{path: ov.Path, node: vn})
	}

	for _, rb := range rebuilds {
		segs := splitPath(rb.path)
		if len(segs) == 0 {
			if rb.node.children == nil {
				rb.node.children = ordered.NewMap[*treeNode]()
			}
			m.root = rb.node
			continue
		}
		parent := m.lookup(joinPath(segs[:len(segs)-1]))
		if parent == nil {
			continue
		}
		if err := attachChild(parent, segs[len(segs)-1], rb.node, rb.path); err != nil {
			return err
		}
	}

	m.schema = merged
	m.root.schema = merged
	// Intermediate nodes along each overlay path still reference schema
	// nodes from before the merge; repoint them at their merged versions.
	for _, ov := range overlays {
		segs := splitPath(ov.Path)
		for i := 1; i < len(segs); i++ {
			prefix := joinPath(segs[:i])
			if tn := m.lookup(prefix); tn != nil {
				if ns, err := PathOf(merged, prefix); err == nil {
					tn.schema = ns
				}
			}
		}
	}
	return nil
}

// AddSchemaEntry extends the model with a single fragment at the given dot
// path, creating intermediate object nodes as needed.
func (m *Model) AddSchemaEntry(path string, fragment *SchemaNode) error {
	return m.Extend([]Overlay{{Path: path, Fragment: fragment}})
}
