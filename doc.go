package metatree

// Package metatree provides:
//
// - A declarative schema model (objects, arrays, enums, numeric bounds,
//   bulk-array descriptors) loaded from JSON/YAML documents with $ref
//   resolution across documents (Load/Resolver)
// - A validating, lazily materialized document tree with dot-path access
//   (Model: Get/Set/AppendItem/Copy/Update and flat iteration)
// - A bidirectional binding between tree paths and a flat, sectioned,
//   short-keyword namespace (Project/Absorb), with unmodeled keywords
//   preserved per section for round-trip fidelity
// - Runtime schema extension via path-addressed overlays (Merge/Extend),
//   applied copy-on-write and atomically against already-set values
// - Interactive introspection (Search, FindBindings)
//
// Design policy:
// - Keep only public APIs in the root package; put plumbing under internal/.
// - Schemas are immutable once built; overlays always produce new merged
//   copies, so a built schema is safe to share between models.
// - The core performs no I/O. Document bytes come from an injected
//   DocProvider; array payloads and container encodings live outside.
//
// Typical usage:
//
//  root, err := metatree.Load(doc, metatree.NewResolver(provider))
//  m := metatree.NewModel(root)
//  err = m.Set("meta.target.ra", 42.5)
//  proj := metatree.Project(m)
//  m2, err := metatree.Absorb(proj.Flat, root)
