package metatree

// Overlay inserts a schema fragment at a dot path of an existing schema.
// Overlays in one Merge/Extend call apply in order, so a later overlay may
// address a path a previous one created.
type Overlay struct {
	Path     string
	Fragment *SchemaNode
}

// Merge applies the overlays to root and returns the merged schema. The
// input root is never modified; only the nodes along each overlay path are
// cloned, everything else is shared with the input.
func Merge(root *SchemaNode, overlays []Overlay) (*SchemaNode, error) {
	out := root
	for _, ov := range overlays {
		if ov.Fragment == nil {
			return nil, malformed(ov.Path, "overlay fragment is nil")
		}
		merged, err := mergeAt(out, splitPath(ov.Path), ov.Fragment, "")
		if err != nil {
			return nil, err
		}
		out = merged
	}
	return out, nil
}

func mergeAt(cur *SchemaNode, segs []string, frag *SchemaNode, walked string) (*SchemaNode, error) {
	if len(segs) == 0 {
		if cur != nil && (frag.Kind == KindAny || (cur.Kind == KindObject && frag.Kind == KindObject)) {
			// Untyped fragments refine the target in place; object
			// fragments layer onto object targets.
			return layerNodes(cur, frag), nil
		}
		// Anything else replaces the target wholesale.
		return frag, nil
	}

	if cur == nil {
		cur = &SchemaNode{Kind: KindObject, AllowExtra: true, ExtraItems: true}
	}
	if cur.Kind != KindObject {
		return nil, malformed(walked, "can not extend through a non-object node")
	}

	out := cur.clone()
	if out.Properties == nil {
		out.Properties = newProps()
	}
	child, _ := out.Properties.Get(segs[0])
	next, err := mergeAt(child, segs[1:], frag, pathSeg(walked, segs[0]))
	if err != nil {
		return nil, err
	}
	out.Properties.Set(segs[0], next)
	return out, nil
}

// layerNodes layers over on top of base: over wins on the attributes it
// sets, base fills in the rest. Object properties are unioned key-wise,
// recursing where both sides declare the same property.
func layerNodes(base, over *SchemaNode) *SchemaNode {
	if base == nil {
		return over
	}
	if over == nil {
		return base
	}

	// A kind change that is not a refinement abandons the base structure;
	// only the documentation attributes carry across.
	if over.Kind != KindAny && over.Kind != base.Kind {
		out := over.clone()
		if out.Title == "" {
			out.Title = base.Title
		}
		if out.Description == "" {
			out.Description = base.Description
		}
		return out
	}

	out := base.clone()
	if over.Kind != KindAny {
		out.Kind = over.Kind
	}
	if over.Title != "" {
		out.Title = over.Title
	}
	if over.Description != "" {
		out.Description = over.Description
	}
	if over.Default != nil {
		out.Default = over.Default
	}
	if over.Required {
		out.Required = true
	}
	if over.Readonly {
		out.Readonly = true
	}
	if over.Enum != nil {
		out.Enum = over.Enum
	}
	if over.Minimum != nil {
		out.Minimum = over.Minimum
	}
	if over.Maximum != nil {
		out.Maximum = over.Maximum
	}
	if over.Binding != nil {
		out.Binding = over.Binding
	}
	if over.Items != nil {
		out.Items = over.Items
	}
	if over.TupleItems != nil {
		out.TupleItems = over.TupleItems
	}
	if over.Variants != nil {
		out.Variants = over.Variants
	}
	if over.DType != "" {
		out.DType = over.DType
	}
	if over.Columns != nil {
		out.Columns = over.Columns
	}
	if over.NDim != 0 {
		out.NDim = over.NDim
	}

	if base.Kind == KindObject && over.Kind == KindObject {
		// Permissions intersect: a side that forbids extra keys keeps
		// them forbidden in the merged node.
		out.AllowExtra = base.AllowExtra && over.AllowExtra
		if over.ExtraSchema != nil {
			out.ExtraSchema = over.ExtraSchema
		}
		if out.Properties == nil {
			out.Properties = newProps()
		}
		if over.Properties != nil {
			over.Properties.Range(func(name string, op *SchemaNode) bool {
				if bp, ok := out.Properties.Get(name); ok {
					out.Properties.Set(name, layerNodes(bp, op))
				} else {
					out.Properties.Set(name, op)
				}
				return true
			})
		}
	}
	return out
}
