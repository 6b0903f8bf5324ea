package metatree

import (
	"reflect"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/orbiton/metatree/i18n"
	"github.com/orbiton/metatree/internal/ordered"
)

// Model is a mutable document instance parameterized by a schema. Every
// write validates against the schema node at the written path; reads of
// untouched paths return schema defaults without materializing storage.
//
// A Model is single-writer: hand an independent instance to another
// goroutine with Copy.
type Model struct {
	schema  *SchemaNode
	root    *treeNode
	extra   *ExtraNamespace
	history []string
}

// Item is one flat (dot path, value) pair.
type Item struct {
	Path  string
	Value any
}

// UpdateOutcome reports the result of transferring one path during Update.
type UpdateOutcome struct {
	Path string
	Err  error
}

type treeNode struct {
	schema   *SchemaNode
	value    any                     // leaf kinds
	children *ordered.Map[*treeNode] // object kind
	items    []*treeNode             // array kind
}

// NewModel returns an empty model over the given schema.
func NewModel(schema *SchemaNode) *Model {
	return &Model{
		schema: schema,
		root:   &treeNode{schema: schema, children: ordered.NewMap[*treeNode]()},
	}
}

// NewModelWith builds a model whose schema is first extended by the given
// overlays.
func NewModelWith(schema *SchemaNode, overlays []Overlay) (*Model, error) {
	merged, err := Merge(schema, overlays)
	if err != nil {
		return nil, err
	}
	return NewModel(merged), nil
}

// Schema returns the model's effective schema.
func (m *Model) Schema() *SchemaNode { return m.schema }

// Extra returns the captured unmodeled flat entries. Never nil.
func (m *Model) Extra() *ExtraNamespace {
	if m.extra == nil {
		m.extra = NewExtraNamespace()
	}
	return m.extra
}

// History returns the append-only history log.
func (m *Model) History() []string { return m.history }

// AddHistory appends one history entry.
func (m *Model) AddHistory(entry string) { m.history = append(m.history, entry) }

func pathNotFound(path string) Issues {
	return AppendIssues(nil, Issue{
		Path:    path,
		Code:    CodePathNotFound,
		Message: i18n.T(CodePathNotFound, nil),
	})
}

// lookup returns the materialized node at path, or nil.
func (m *Model) lookup(path string) *treeNode {
	cur := m.root
	for _, seg := range splitPath(path) {
		if cur == nil {
			return nil
		}
		switch {
		case cur.children != nil:
			next, ok := cur.children.Get(seg)
			if !ok {
				return nil
			}
			cur = next
		case cur.schema != nil && cur.schema.Kind == KindArray:
			i, ok := asIndex(seg)
			if !ok || i >= len(cur.items) {
				return nil
			}
			cur = cur.items[i]
		default:
			return nil
		}
	}
	return cur
}

// Materialized reports whether a TreeNode has been allocated for path.
// Reads of non-materialized paths are served from schema defaults.
func (m *Model) Materialized(path string) bool { return m.lookup(path) != nil }

// Get returns the value at path, falling back to the schema default (or a
// kind-appropriate zero value) when the path has never been written.
// Read-only access never materializes storage.
func (m *Model) Get(path string) (any, error) {
	s, err := PathOf(m.schema, path)
	if err != nil {
		return nil, err
	}
	if tn := m.lookup(path); tn != nil {
		return tn.snapshot(), nil
	}
	return defaultFor(s), nil
}

// GetString is Get with a string assertion; the zero value is returned on
// any mismatch.
func (m *Model) GetString(path string) string {
	v, err := m.Get(path)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetNumber is Get with a numeric assertion.
func (m *Model) GetNumber(path string) float64 {
	v, err := m.Get(path)
	if err != nil {
		return 0
	}
	f, _ := toFloat(v)
	return f
}

// GetInt is Get with an integer assertion.
func (m *Model) GetInt(path string) int64 {
	v, err := m.Get(path)
	if err != nil {
		return 0
	}
	i, _ := toInt(v)
	return i
}

// GetBool is Get with a boolean assertion.
func (m *Model) GetBool(path string) bool {
	v, err := m.Get(path)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

// defaultFor returns the declared default or the kind's zero value.
func defaultFor(s *SchemaNode) any {
	if s.Default != nil {
		return s.Default
	}
	switch s.Kind {
	case KindString:
		return ""
	case KindNumber:
		return float64(0)
	case KindInteger:
		return int64(0)
	case KindBool:
		return false
	case KindObject:
		return map[string]any{}
	case KindArray:
		return []any{}
	default:
		return nil
	}
}

// snapshot renders the materialized subtree as plain values with no shared
// mutable structure.
func (tn *treeNode) snapshot() any {
	switch {
	case tn.children != nil:
		out := make(map[string]any, tn.children.Len())
		tn.children.Range(func(name string, child *treeNode) bool {
			out[name] = child.snapshot()
			return true
		})
		return out
	case tn.schema != nil && tn.schema.Kind == KindArray:
		out := make([]any, len(tn.items))
		for i, it := range tn.items {
			out[i] = it.snapshot()
		}
		return out
	default:
		return tn.value
	}
}

// Set validates value against the schema node at path and stores it,
// materializing intermediate nodes as needed. The model is unmodified when
// validation fails.
func (m *Model) Set(path string, value any) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return pathNotFound(path)
	}
	target, err := PathOf(m.schema, path)
	if err != nil {
		return err
	}
	if target.Readonly {
		return AppendIssues(nil, Issue{
			Path:    path,
			Code:    CodeReadonly,
			Message: i18n.T(CodeReadonly, nil),
		})
	}
	vn, iss := buildValueNode(target, value, path)
	if iss != nil {
		return iss
	}
	parent, lastSeg, err := m.materializeParents(segs, path)
	if err != nil {
		return err
	}
	return attachChild(parent, lastSeg, vn, path)
}

// materializeParents returns the parent node of the final segment,
// allocating object intermediates as needed. Missing nodes are built
// detached and linked in only once the whole chain, including the final
// attachment point, is known to be valid: a failed write must not leave
// empty containers behind. Array hops require the indexed element to
// exist already.
func (m *Model) materializeParents(segs []string, full string) (*treeNode, string, error) {
	last := segs[len(segs)-1]
	cur := m.root
	i := 0
walk:
	for ; i < len(segs)-1; i++ {
		seg := segs[i]
		switch {
		case cur.children != nil:
			next, ok := cur.children.Get(seg)
			if !ok {
				break walk
			}
			cur = next
		case cur.schema != nil && cur.schema.Kind == KindArray:
			idx, ok := asIndex(seg)
			if !ok || idx >= len(cur.items) {
				return nil, "", pathNotFound(joinPath(segs[:i+1]))
			}
			cur = cur.items[idx]
		default:
			return nil, "", pathNotFound(joinPath(segs[:i+1]))
		}
	}

	if i == len(segs)-1 {
		if err := checkAttachable(cur, last, full); err != nil {
			return nil, "", err
		}
		return cur, last, nil
	}

	mount, mountSeg := cur, segs[i]
	var head, tail *treeNode
	for ; i < len(segs)-1; i++ {
		seg := segs[i]
		ps := cur.schema
		if tail != nil {
			if tail.children == nil {
				// A freshly built array has no elements to hop into.
				return nil, "", pathNotFound(joinPath(segs[:i+1]))
			}
			ps = tail.schema
		}
		cs, err := childSchema(ps, seg)
		if err != nil {
			return nil, "", pathNotFound(joinPath(segs[:i+1]))
		}
		node := newContainerNode(cs)
		if node == nil {
			return nil, "", pathNotFound(joinPath(segs[:i+1]))
		}
		if tail == nil {
			head = node
		} else {
			tail.children.Set(seg, node)
		}
		tail = node
	}
	if err := checkAttachable(tail, last, full); err != nil {
		return nil, "", err
	}
	mount.children.Set(mountSeg, head)
	return tail, last, nil
}

// checkAttachable verifies the final segment can be linked under parent
// before anything is mutated.
func checkAttachable(parent *treeNode, seg, full string) error {
	switch {
	case parent.children != nil:
		return nil
	case parent.schema != nil && parent.schema.Kind == KindArray:
		if i, ok := asIndex(seg); ok && i < len(parent.items) {
			return nil
		}
		return pathNotFound(full)
	default:
		return pathNotFound(full)
	}
}

// newContainerNode allocates an empty node for a container schema; leaf
// schemas return nil since a leaf can not be an intermediate hop.
func newContainerNode(s *SchemaNode) *treeNode {
	switch s.Kind {
	case KindObject, KindAny:
		return &treeNode{schema: s, children: ordered.NewMap[*treeNode]()}
	case KindArray:
		return &treeNode{schema: s}
	default:
		return nil
	}
}

func attachChild(parent *treeNode, seg string, vn *treeNode, full string) error {
	switch {
	case parent.children != nil:
		parent.children.Set(seg, vn)
		return nil
	case parent.schema != nil && parent.schema.Kind == KindArray:
		i, ok := asIndex(seg)
		if !ok || i >= len(parent.items) {
			return pathNotFound(full)
		}
		parent.items[i] = vn
		return nil
	default:
		return pathNotFound(full)
	}
}

// buildValueNode validates a whole value (scalar or container) against a
// schema node and builds the corresponding subtree. Nothing is linked into
// the model until the entire value has validated.
func buildValueNode(s *SchemaNode, v any, path string) (*treeNode, Issues) {
	switch s.Kind {
	case KindObject:
		if sub, ok := v.(*Model); ok {
			v = sub.Tree()
		}
		mv, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(path, s, v)
		}
		node := &treeNode{schema: s, children: ordered.NewMap[*treeNode]()}
		// Declared properties first, in declaration order, then extra keys.
		var iss Issues
		if s.Properties != nil {
			s.Properties.Range(func(name string, cs *SchemaNode) bool {
				cv, present := mv[name]
				if !present {
					return true
				}
				child, ci := buildValueNode(cs, cv, pathSeg(path, name))
				if ci != nil {
					iss = ci
					return false
				}
				node.children.Set(name, child)
				return true
			})
			if iss != nil {
				return nil, iss
			}
		}
		extras := make([]string, 0)
		for name := range mv {
			if _, declared := s.Prop(name); !declared {
				extras = append(extras, name)
			}
		}
		sort.Strings(extras)
		for _, name := range extras {
			cs, err := childSchema(s, name)
			if err != nil {
				return nil, pathNotFound(pathSeg(path, name))
			}
			child, ci := buildValueNode(cs, mv[name], pathSeg(path, name))
			if ci != nil {
				return nil, ci
			}
			node.children.Set(name, child)
		}
		return node, nil
	case KindArray:
		av, ok := v.([]any)
		if !ok {
			return nil, mismatch(path, s, v)
		}
		node := &treeNode{schema: s}
		for i, ev := range av {
			es, err := elementSchema(s, i)
			if err != nil {
				return nil, pathNotFound(pathIndex(path, i))
			}
			child, ci := buildValueNode(es, ev, pathIndex(path, i))
			if ci != nil {
				return nil, ci
			}
			node.items = append(node.items, child)
		}
		return node, nil
	case KindUnion:
		for _, variant := range s.Variants {
			if vn, iss := buildValueNode(variant, v, path); iss == nil {
				return vn, nil
			}
		}
		return nil, mismatch(path, s, v)
	case KindAny:
		// Untyped subtrees keep their raw shape so round trips preserve them.
		switch tv := v.(type) {
		case map[string]any:
			node := &treeNode{schema: anyNode, children: ordered.NewMap[*treeNode]()}
			names := make([]string, 0, len(tv))
			for name := range tv {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				child, iss := buildValueNode(anyNode, tv[name], pathSeg(path, name))
				if iss != nil {
					return nil, iss
				}
				node.children.Set(name, child)
			}
			return node, nil
		case []any:
			node := &treeNode{schema: &SchemaNode{Kind: KindArray, Items: anyNode, ExtraItems: true}}
			for i, ev := range tv {
				child, iss := buildValueNode(anyNode, ev, pathIndex(path, i))
				if iss != nil {
					return nil, iss
				}
				node.items = append(node.items, child)
			}
			return node, nil
		default:
			return &treeNode{schema: s, value: v}, nil
		}
	default:
		out, iss := coerceScalar(s, v, path)
		if iss != nil {
			return nil, iss
		}
		return &treeNode{schema: s, value: out}, nil
	}
}

// elementSchema returns the schema for index i of an array node.
func elementSchema(s *SchemaNode, i int) (*SchemaNode, error) {
	if len(s.TupleItems) > 0 {
		if i < len(s.TupleItems) {
			return s.TupleItems[i], nil
		}
		if s.ExtraItems {
			return anyNode, nil
		}
		return nil, errNoPointerToken("item")
	}
	if s.Items != nil {
		return s.Items, nil
	}
	return anyNode, nil
}

// AppendItem validates value against the element schema of the array at
// listPath and appends it, returning the new element's index. A raw
// mapping is accepted for object-kind elements.
func (m *Model) AppendItem(listPath string, value any) (int, error) {
	s, err := PathOf(m.schema, listPath)
	if err != nil {
		return 0, err
	}
	if s.Kind != KindArray {
		return 0, AppendIssues(nil, Issue{
			Path:    listPath,
			Code:    CodeTypeMismatch,
			Message: i18n.T(CodeTypeMismatch, nil),
			Params:  map[string]any{"expected": KindArray.String(), "got": s.Kind.String()},
		})
	}
	segs := splitPath(listPath)
	list := m.lookup(listPath)
	idx := 0
	if list != nil {
		idx = len(list.items)
	}
	es, err := elementSchema(s, idx)
	if err != nil {
		return 0, pathNotFound(pathIndex(listPath, idx))
	}
	vn, iss := buildValueNode(es, value, pathIndex(listPath, idx))
	if iss != nil {
		return 0, iss
	}
	if list == nil {
		parent, lastSeg, err := m.materializeParents(segs, listPath)
		if err != nil {
			return 0, err
		}
		list = &treeNode{schema: s}
		if err := attachChild(parent, lastSeg, list, listPath); err != nil {
			return 0, err
		}
	}
	list.items = append(list.items, vn)
	return idx, nil
}

// Delete removes the materialized value at path. Deleting a never-written
// path is a no-op as long as the schema knows the path.
func (m *Model) Delete(path string) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return pathNotFound(path)
	}
	s, err := PathOf(m.schema, path)
	if err != nil {
		return err
	}
	if s.Readonly {
		return AppendIssues(nil, Issue{
			Path:    path,
			Code:    CodeReadonly,
			Message: i18n.T(CodeReadonly, nil),
		})
	}
	parentPath := joinPath(segs[:len(segs)-1])
	parent := m.lookup(parentPath)
	if parent == nil || parent.children == nil {
		return nil
	}
	parent.children.Delete(segs[len(segs)-1])
	return nil
}

// Copy returns a deep clone sharing no mutable state with the receiver.
// Schema nodes are immutable and stay shared.
func (m *Model) Copy() *Model {
	out := &Model{schema: m.schema, root: m.root.deepCopy()}
	if m.extra != nil {
		out.extra = m.extra.Copy()
	}
	out.history = append([]string(nil), m.history...)
	return out
}

func (tn *treeNode) deepCopy() *treeNode {
	out := &treeNode{schema: tn.schema, value: tn.value}
	if tn.children != nil {
		out.children = ordered.NewMap[*treeNode]()
		tn.children.Range(func(name string, child *treeNode) bool {
			out.children.Set(name, child.deepCopy())
			return true
		})
	}
	if tn.items != nil {
		out.items = make([]*treeNode, len(tn.items))
		for i, it := range tn.items {
			out.items[i] = it.deepCopy()
		}
	}
	return out
}

// Tree renders the materialized contents as nested plain values.
func (m *Model) Tree() map[string]any {
	t, _ := m.root.snapshot().(map[string]any)
	if t == nil {
		t = map[string]any{}
	}
	return t
}

// Equal compares two models by their materialized trees.
func (m *Model) Equal(other *Model) bool {
	if other == nil {
		return false
	}
	return reflect.DeepEqual(m.Tree(), other.Tree())
}

// Range iterates the materialized leaves depth-first in schema declaration
// order, calling fn with each dot path and value until fn returns false.
// Iteration reflects the tree at call time and can be restarted freely.
func (m *Model) Range(fn func(path string, value any) bool, opts ...IterOpt) {
	var opt IterOpt
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	rangeNode(m.root, "", opt, fn)
}

func rangeNode(tn *treeNode, path string, opt IterOpt, fn func(path string, value any) bool) bool {
	switch {
	case tn.children != nil:
		// Schema declaration order first, then ad-hoc keys.
		emitted := map[string]bool{}
		if tn.schema != nil && tn.schema.Properties != nil {
			for _, name := range tn.schema.Properties.Keys() {
				child, ok := tn.children.Get(name)
				if !ok {
					continue
				}
				emitted[name] = true
				if !rangeNode(child, pathSeg(path, name), opt, fn) {
					return false
				}
			}
		}
		cont := true
		tn.children.Range(func(name string, child *treeNode) bool {
			if emitted[name] {
				return true
			}
			cont = rangeNode(child, pathSeg(path, name), opt, fn)
			return cont
		})
		return cont
	case tn.schema != nil && tn.schema.Kind == KindArray:
		for i, it := range tn.items {
			if !rangeNode(it, pathIndex(path, i), opt, fn) {
				return false
			}
		}
		return true
	default:
		if tn.schema != nil {
			if tn.schema.Kind == KindData && !opt.IncludeData {
				return true
			}
			if opt.PrimaryOnly && tn.schema.Binding != nil && tn.schema.Binding.Section != PrimarySection {
				return true
			}
		}
		return fn(path, tn.value)
	}
}

// Items returns the flat (path, value) pairs of the materialized tree.
func (m *Model) Items(opts ...IterOpt) []Item {
	var out []Item
	m.Range(func(path string, value any) bool {
		out = append(out, Item{Path: path, Value: value})
		return true
	}, opts...)
	return out
}

// Keys returns the flat dot paths of the materialized tree.
func (m *Model) Keys(opts ...IterOpt) []string {
	var out []string
	m.Range(func(path string, _ any) bool {
		out = append(out, path)
		return true
	}, opts...)
	return out
}

// Values returns the flat values of the materialized tree.
func (m *Model) Values(opts ...IterOpt) []any {
	var out []any
	m.Range(func(_ string, value any) bool {
		out = append(out, value)
		return true
	}, opts...)
	return out
}

// ToFlatDict returns the materialized tree as a flat dot-path map.
func (m *Model) ToFlatDict(opts ...IterOpt) map[string]any {
	out := map[string]any{}
	m.Range(func(path string, value any) bool {
		out[path] = value
		return true
	}, opts...)
	return out
}

// Update transfers every flat leaf of other into the receiver. Per-path
// failures are collected in the returned outcome list rather than aborting
// the transfer. Extra-namespace entries and history are carried over too.
func (m *Model) Update(other *Model, opts ...UpdateOpt) []UpdateOutcome {
	var opt UpdateOpt
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	var outcomes []UpdateOutcome
	other.Range(func(path string, value any) bool {
		err := m.Set(path, value)
		outcomes = append(outcomes, UpdateOutcome{Path: path, Err: err})
		return true
	}, IterOpt{IncludeData: opt.IncludeData, PrimaryOnly: opt.PrimaryOnly})

	if other.extra != nil {
		other.extra.Range(func(section string, c Card) bool {
			m.Extra().Put(section, c.Key, c.Value, c.Comment)
			return true
		})
	}
	m.history = append(m.history, other.history...)
	return outcomes
}

// UpdateFlat applies a flat dot-path mapping, collecting per-path outcomes.
// Keys are applied in sorted order for determinism.
func (m *Model) UpdateFlat(entries map[string]any) []UpdateOutcome {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	outcomes := make([]UpdateOutcome, 0, len(keys))
	for _, k := range keys {
		outcomes = append(outcomes, UpdateOutcome{Path: k, Err: m.Set(k, entries[k])})
	}
	return outcomes
}

// Validate checks the materialized tree for missing required properties.
// Set never enforces required, so partially built documents stay usable;
// Validate is the explicit whole-document check.
func (m *Model) Validate() error {
	var iss Issues
	var walk func(s *SchemaNode, tn *treeNode, path string)
	walk = func(s *SchemaNode, tn *treeNode, path string) {
		if s.Kind != KindObject || s.Properties == nil {
			return
		}
		s.Properties.Range(func(name string, cs *SchemaNode) bool {
			var child *treeNode
			if tn != nil && tn.children != nil {
				child, _ = tn.children.Get(name)
			}
			if cs.Required && child == nil && cs.Default == nil {
				iss = AppendIssues(iss, Issue{
					Path:    pathSeg(path, name),
					Code:    CodeRequired,
					Message: i18n.T(CodeRequired, nil),
				})
			}
			if cs.Kind == KindObject {
				walk(cs, child, pathSeg(path, name))
			}
			return true
		})
	}
	walk(m.schema, m.root, "")
	if iss != nil {
		return iss
	}
	return nil
}

// treeDoc is the nested serialization envelope; unmodeled flat entries ride
// along under _extra so external codecs can round-trip them.
type treeDoc struct {
	Tree    map[string]any    `json:"tree"`
	Extra   map[string][]Card `json:"_extra,omitempty"`
	History []string          `json:"history,omitempty"`
}

// MarshalJSON renders the model for the nested serialized format boundary.
func (m *Model) MarshalJSON() ([]byte, error) {
	doc := treeDoc{Tree: m.Tree(), History: m.history}
	if m.extra != nil && m.extra.Len() > 0 {
		doc.Extra = m.extra.toMap()
	}
	return json.Marshal(doc)
}

// FromJSON rebuilds a model from the nested serialized format.
func FromJSON(data []byte, schema *SchemaNode) (*Model, error) {
	var doc treeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, AppendIssues(nil, Issue{
			Code:    CodeParseError,
			Message: i18n.T(CodeParseError, nil),
			Cause:   err,
		})
	}
	m := NewModel(schema)
	root, iss := buildValueNode(schema, doc.Tree, "")
	if iss != nil {
		return nil, iss
	}
	if root.children == nil {
		root.children = ordered.NewMap[*treeNode]()
	}
	m.root = root
	for section, cards := range doc.Extra {
		for _, c := range cards {
			m.Extra().Put(section, c.Key, c.Value, c.Comment)
		}
	}
	m.history = doc.History
	return m, nil
}
