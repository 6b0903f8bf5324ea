package metatree

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orbiton/metatree/i18n"
	"github.com/orbiton/metatree/internal/ordered"
)

// PrimarySection is the implicit default section for flat-namespace bindings.
const PrimarySection = "PRIMARY"

// maxKeywordLen bounds flat-namespace keys.
const maxKeywordLen = 8

// Binding declares where a schema node lives in the flat sectioned namespace.
type Binding struct {
	Keyword string // flat key, at most eight characters
	Section string // section name; PrimarySection when the document omits it
}

// Column describes one named column of a tabular bulk-array dtype.
type Column struct {
	Name string
	Type string
}

// SchemaNode is one node of a loaded schema tree. Nodes are immutable once
// built; Merge and Extend produce new nodes rather than editing in place.
type SchemaNode struct {
	Kind        Kind
	Title       string
	Description string
	Default     any
	Required    bool
	Readonly    bool
	Enum        []any
	Minimum     *float64
	Maximum     *float64

	// Object
	Properties  *ordered.Map[*SchemaNode]
	AllowExtra  bool        // additionalProperties != false
	ExtraSchema *SchemaNode // additionalProperties given as a schema

	// Array
	Items      *SchemaNode
	TupleItems []*SchemaNode
	ExtraItems bool // additionalItems != false

	// Union
	Variants []*SchemaNode

	// Bulk typed-array descriptor
	NDim    int
	DType   string
	Columns []Column

	Binding *Binding
}

// ShortDoc returns the first line of the node's documentation, used as the
// flat-namespace comment.
func (s *SchemaNode) ShortDoc() string {
	doc := s.Title
	if doc == "" {
		doc = s.Description
	}
	if i := strings.IndexByte(doc, '\n'); i >= 0 {
		doc = doc[:i]
	}
	return doc
}

// Prop returns the named property of an object node.
func (s *SchemaNode) Prop(name string) (*SchemaNode, bool) {
	if s.Properties == nil {
		return nil, false
	}
	return s.Properties.Get(name)
}

// Load parses a declarative schema document (YAML or JSON) into a schema
// tree, resolving references through r. A nil resolver still supports local
// pointers within the document.
func Load(doc []byte, r *Resolver) (*SchemaNode, error) {
	if r == nil {
		r = NewResolver(nil)
	}
	return r.loadBytes("", doc)
}

// ParseFragment parses a schema fragment for use as an overlay. It is Load
// under a name that reads well at overlay call sites.
func ParseFragment(doc []byte, r *Resolver) (*SchemaNode, error) {
	return Load(doc, r)
}

// PathOf descends the schema tree along a dot path. Unknown trailing
// segments under a node whose additionalProperties allow them resolve to a
// permissive any-node; otherwise the descent fails with path_not_found.
func PathOf(root *SchemaNode, path string) (*SchemaNode, error) {
	cur := root
	segs := splitPath(path)
	for i, seg := range segs {
		next, err := childSchema(cur, seg)
		if err != nil {
			return nil, AppendIssues(nil, Issue{
				Path:    joinPath(segs[:i+1]),
				Code:    CodePathNotFound,
				Message: i18n.T(CodePathNotFound, nil),
			})
		}
		cur = next
	}
	return cur, nil
}

var anyNode = &SchemaNode{Kind: KindAny, AllowExtra: true, ExtraItems: true}

func newProps() *ordered.Map[*SchemaNode] { return ordered.NewMap[*SchemaNode]() }

// childSchema resolves one path segment against a schema node.
func childSchema(s *SchemaNode, seg string) (*SchemaNode, error) {
	switch s.Kind {
	case KindObject:
		if p, ok := s.Prop(seg); ok {
			return p, nil
		}
		if s.ExtraSchema != nil {
			return s.ExtraSchema, nil
		}
		if s.AllowExtra {
			return anyNode, nil
		}
		return nil, fmt.Errorf("no property %q", seg)
	case KindArray:
		i, ok := asIndex(seg)
		if !ok {
			return nil, fmt.Errorf("segment %q is not an index", seg)
		}
		if len(s.TupleItems) > 0 {
			if i < len(s.TupleItems) {
				return s.TupleItems[i], nil
			}
			if s.ExtraItems {
				return anyNode, nil
			}
			return nil, fmt.Errorf("index %d beyond tuple", i)
		}
		if s.Items != nil {
			return s.Items, nil
		}
		return anyNode, nil
	case KindUnion:
		for _, v := range s.Variants {
			if c, err := childSchema(v, seg); err == nil {
				return c, nil
			}
		}
		return nil, fmt.Errorf("no variant with %q", seg)
	case KindAny:
		return anyNode, nil
	default:
		return nil, fmt.Errorf("%s node has no children", s.Kind)
	}
}

// WalkSchema visits every named schema location depth-first in declaration
// order, descending object properties and union variants. fn returning
// false stops the walk.
func WalkSchema(root *SchemaNode, fn func(path string, n *SchemaNode) bool) {
	walkSchema(root, "", fn)
}

func walkSchema(s *SchemaNode, path string, fn func(path string, n *SchemaNode) bool) bool {
	if !fn(path, s) {
		return false
	}
	switch s.Kind {
	case KindObject:
		if s.Properties == nil {
			return true
		}
		cont := true
		s.Properties.Range(func(name string, child *SchemaNode) bool {
			cont = walkSchema(child, pathSeg(path, name), fn)
			return cont
		})
		return cont
	case KindUnion:
		for _, v := range s.Variants {
			if !walkSchema(v, path, fn) {
				return false
			}
		}
	}
	return true
}

// clone returns a shallow copy of the node with its own Properties table.
// Subtrees stay shared; merge clones only the nodes it touches.
func (s *SchemaNode) clone() *SchemaNode {
	out := *s
	if s.Properties != nil {
		out.Properties = s.Properties.Clone()
	}
	return &out
}

// ---- document decoding ----

type mapEntry struct {
	key string
	val *yaml.Node
}

// deref follows document and alias indirections.
func deref(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch {
		case n.Kind == yaml.DocumentNode && len(n.Content) == 1:
			n = n.Content[0]
		case n.Kind == yaml.AliasNode && n.Alias != nil:
			n = n.Alias
		default:
			return n
		}
	}
	return n
}

func mapEntries(n *yaml.Node) ([]mapEntry, bool) {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, false
	}
	out := make([]mapEntry, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, mapEntry{key: n.Content[i].Value, val: n.Content[i+1]})
	}
	return out, true
}

func anyValue(n *yaml.Node) (any, error) {
	var v any
	if err := deref(n).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func malformed(path, msg string) Issues {
	return AppendIssues(nil, Issue{
		Path:    path,
		Code:    CodeMalformedNode,
		Message: i18n.T(CodeMalformedNode, nil),
		Hint:    msg,
	})
}

// decodeSchema converts one document mapping into a SchemaNode, resolving
// $ref/extends through the document context.
func decodeSchema(dc *docCtx, n *yaml.Node, path string) (*SchemaNode, error) {
	n = deref(n)
	if n == nil {
		return nil, malformed(path, "empty node")
	}
	entries, ok := mapEntries(n)
	if !ok {
		return nil, malformed(path, "schema node must be a mapping")
	}

	keys := make(map[string]*yaml.Node, len(entries))
	for _, e := range entries {
		keys[e.key] = e.val
	}

	// $ref replaces the node; extra local keys layer on top of the target.
	if refNode, ok := keys["$ref"]; ok {
		target, err := dc.resolveString(refNode, path)
		if err != nil {
			return nil, err
		}
		if len(entries) == 1 {
			return target, nil
		}
		delete(keys, "$ref")
		local, err := decodeAttrs(dc, keys, path)
		if err != nil {
			return nil, err
		}
		return layerNodes(target, local), nil
	}

	if extNode, ok := keys["extends"]; ok {
		base, err := dc.resolveString(extNode, path)
		if err != nil {
			return nil, err
		}
		delete(keys, "extends")
		local, err := decodeAttrs(dc, keys, path)
		if err != nil {
			return nil, err
		}
		return layerNodes(base, local), nil
	}

	// allOf folds every entry into one node; anyOf builds a union.
	if allNode, ok := keys["allOf"]; ok {
		seq := deref(allNode)
		if seq.Kind != yaml.SequenceNode {
			return nil, malformed(path, "allOf must be a sequence")
		}
		var acc *SchemaNode
		for _, item := range seq.Content {
			part, err := decodeSchema(dc, item, path)
			if err != nil {
				return nil, err
			}
			acc = layerNodes(acc, part)
		}
		if acc == nil {
			return nil, malformed(path, "allOf is empty")
		}
		return acc, nil
	}
	if anyNodeSeq, ok := keys["anyOf"]; ok {
		seq := deref(anyNodeSeq)
		if seq.Kind != yaml.SequenceNode {
			return nil, malformed(path, "anyOf must be a sequence")
		}
		u := &SchemaNode{Kind: KindUnion}
		for _, item := range seq.Content {
			part, err := decodeSchema(dc, item, path)
			if err != nil {
				return nil, err
			}
			u.Variants = append(u.Variants, part)
		}
		if len(u.Variants) == 0 {
			return nil, malformed(path, "anyOf is empty")
		}
		return u, nil
	}

	return decodeAttrs(dc, keys, path)
}

// decodeAttrs decodes the plain (non-combining) attributes of a node.
func decodeAttrs(dc *docCtx, keys map[string]*yaml.Node, path string) (*SchemaNode, error) {
	out := &SchemaNode{AllowExtra: true, ExtraItems: true}

	// Kind: explicit tag, or inferred from shape.
	if tn, ok := keys["type"]; ok {
		tag := deref(tn)
		if tag.Kind != yaml.ScalarNode {
			return nil, malformed(path, "type must be a string tag")
		}
		k, ok := ParseKind(tag.Value)
		if !ok {
			return nil, AppendIssues(nil, Issue{
				Path:    path,
				Code:    CodeUnknownType,
				Message: i18n.T(CodeUnknownType, nil),
				Params:  map[string]any{"got": tag.Value},
			})
		}
		out.Kind = k
	} else if _, ok := keys["properties"]; ok {
		out.Kind = KindObject
	} else if _, hasN := keys["ndim"]; hasN {
		out.Kind = KindData
	} else if _, hasD := keys["dtype"]; hasD {
		out.Kind = KindData
	} else {
		out.Kind = KindAny
	}

	if err := decodeScalarAttrs(out, keys, path); err != nil {
		return nil, err
	}

	switch out.Kind {
	case KindObject:
		if err := decodeObjectAttrs(dc, out, keys, path); err != nil {
			return nil, err
		}
	case KindArray:
		if err := decodeArrayAttrs(dc, out, keys, path); err != nil {
			return nil, err
		}
	case KindData:
		if err := decodeDataAttrs(out, keys, path); err != nil {
			return nil, err
		}
	}

	if err := decodeBinding(out, keys, path); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeScalarAttrs(out *SchemaNode, keys map[string]*yaml.Node, path string) error {
	if v, ok := keys["title"]; ok {
		out.Title = deref(v).Value
	}
	if v, ok := keys["description"]; ok {
		out.Description = deref(v).Value
	}
	if v, ok := keys["default"]; ok {
		d, err := anyValue(v)
		if err != nil {
			return malformed(path, "bad default: "+err.Error())
		}
		out.Default = d
	}
	if v, ok := keys["required"]; ok {
		// Boolean spelling on the property itself; the list spelling is
		// handled by the enclosing object.
		if deref(v).Kind == yaml.ScalarNode {
			var b bool
			if err := deref(v).Decode(&b); err == nil {
				out.Required = b
			}
		}
	}
	if v, ok := keys["readonly"]; ok {
		var b bool
		if err := deref(v).Decode(&b); err != nil {
			return malformed(path, "readonly must be a boolean")
		}
		out.Readonly = b
	}
	if v, ok := keys["enum"]; ok {
		seq := deref(v)
		if seq.Kind != yaml.SequenceNode {
			return malformed(path, "enum must be a sequence")
		}
		for _, item := range seq.Content {
			ev, err := anyValue(item)
			if err != nil {
				return malformed(path, "bad enum member: "+err.Error())
			}
			out.Enum = append(out.Enum, ev)
		}
	}
	if v, ok := keys["minimum"]; ok {
		var f float64
		if err := deref(v).Decode(&f); err != nil {
			return malformed(path, "minimum must be numeric")
		}
		out.Minimum = &f
	}
	if v, ok := keys["maximum"]; ok {
		var f float64
		if err := deref(v).Decode(&f); err != nil {
			return malformed(path, "maximum must be numeric")
		}
		out.Maximum = &f
	}
	return nil
}

func decodeObjectAttrs(dc *docCtx, out *SchemaNode, keys map[string]*yaml.Node, path string) error {
	out.Properties = ordered.NewMap[*SchemaNode]()
	if v, ok := keys["properties"]; ok {
		props, ok := mapEntries(v)
		if !ok {
			return malformed(path, "properties must be a mapping")
		}
		for _, p := range props {
			child, err := decodeSchema(dc, p.val, pathSeg(path, p.key))
			if err != nil {
				return err
			}
			out.Properties.Set(p.key, child)
		}
	}
	if v, ok := keys["additionalProperties"]; ok {
		ap := deref(v)
		if ap.Kind == yaml.ScalarNode {
			var b bool
			if err := ap.Decode(&b); err != nil {
				return malformed(path, "additionalProperties must be a boolean or schema")
			}
			out.AllowExtra = b
		} else {
			extra, err := decodeSchema(dc, ap, pathSeg(path, "*"))
			if err != nil {
				return err
			}
			out.AllowExtra = true
			out.ExtraSchema = extra
		}
	}
	// Draft-4 style required list marks the named properties.
	if v, ok := keys["required"]; ok {
		req := deref(v)
		if req.Kind == yaml.SequenceNode {
			for _, item := range req.Content {
				name := deref(item).Value
				if child, ok := out.Properties.Get(name); ok {
					c := child.clone()
					c.Required = true
					out.Properties.Set(name, c)
				}
			}
		}
	}
	return nil
}

func decodeArrayAttrs(dc *docCtx, out *SchemaNode, keys map[string]*yaml.Node, path string) error {
	if v, ok := keys["items"]; ok {
		it := deref(v)
		switch it.Kind {
		case yaml.MappingNode:
			item, err := decodeSchema(dc, it, pathSeg(path, "items"))
			if err != nil {
				return err
			}
			out.Items = item
		case yaml.SequenceNode:
			for i, sub := range it.Content {
				item, err := decodeSchema(dc, sub, pathIndex(path, i))
				if err != nil {
					return err
				}
				out.TupleItems = append(out.TupleItems, item)
			}
		default:
			return malformed(path, "items must be a mapping or sequence")
		}
	}
	if v, ok := keys["additionalItems"]; ok {
		var b bool
		if err := deref(v).Decode(&b); err != nil {
			return malformed(path, "additionalItems must be a boolean")
		}
		out.ExtraItems = b
	}
	return nil
}

func decodeDataAttrs(out *SchemaNode, keys map[string]*yaml.Node, path string) error {
	if v, ok := keys["ndim"]; ok {
		if err := deref(v).Decode(&out.NDim); err != nil {
			return malformed(path, "ndim must be an integer")
		}
	}
	if v, ok := keys["dtype"]; ok {
		dt := deref(v)
		switch dt.Kind {
		case yaml.ScalarNode:
			out.DType = dt.Value
		case yaml.SequenceNode:
			for _, col := range dt.Content {
				cols, ok := mapEntries(col)
				if !ok {
					return malformed(path, "dtype column must be a mapping")
				}
				var c Column
				for _, e := range cols {
					switch e.key {
					case "name":
						c.Name = deref(e.val).Value
					case "type":
						c.Type = deref(e.val).Value
					}
				}
				if c.Name == "" {
					return malformed(path, "dtype column needs a name")
				}
				out.Columns = append(out.Columns, c)
			}
		default:
			return malformed(path, "dtype must be a tag or column list")
		}
	}
	return nil
}

func decodeBinding(out *SchemaNode, keys map[string]*yaml.Node, path string) error {
	kw, ok := keys["keyword"]
	if !ok {
		if _, hasSection := keys["section"]; hasSection && out.Kind == KindData {
			// data nodes may carry a bare section for payload placement
			out.Binding = &Binding{Section: deref(keys["section"]).Value}
		}
		return nil
	}
	key := deref(kw).Value
	if len(key) > maxKeywordLen {
		return AppendIssues(nil, Issue{
			Path:    path,
			Code:    CodeKeyTooLong,
			Message: i18n.T(CodeKeyTooLong, nil),
			Params:  map[string]any{"keyword": key, "max": maxKeywordLen},
		})
	}
	if out.Kind == KindObject || out.Kind == KindArray {
		return malformed(path, "keyword binding not valid on object or array nodes")
	}
	b := &Binding{Keyword: key, Section: PrimarySection}
	if sec, ok := keys["section"]; ok {
		s := deref(sec)
		b.Section = s.Value
		if b.Section == "" {
			b.Section = PrimarySection
		}
	}
	out.Binding = b
	return nil
}
