package metatree

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orbiton/metatree/i18n"
)

// DocProvider supplies raw schema documents by logical name. Implementations
// live outside the core (filesystem, embedded assets, registries); the
// resolver never touches I/O itself.
type DocProvider interface {
	Fetch(name string) ([]byte, error)
}

// nsScheme marks namespaced package references: "ns:pkg/schema". The part
// after the scheme is handed to the DocProvider verbatim, so a provider can
// map logical package names to wherever its documents live.
const nsScheme = "ns:"

// refID identifies a reference target: resolved document identity plus the
// pointer within it. Cycle detection and memoization both key on it.
type refID struct {
	doc     string
	pointer string
}

// Resolver loads schema documents and resolves $ref/extends targets.
// Successful resolutions are cached by identity; a reference whose identity
// is already on the active resolution stack is cyclic and rejected at
// schema-build time.
type Resolver struct {
	provider DocProvider
	docs     map[string]*yaml.Node
	cache    map[refID]*SchemaNode
	active   []refID
	anon     int
}

// NewResolver returns a Resolver backed by the given provider. A nil
// provider limits resolution to local pointers.
func NewResolver(p DocProvider) *Resolver {
	return &Resolver{
		provider: p,
		docs:     make(map[string]*yaml.Node),
		cache:    make(map[refID]*SchemaNode),
	}
}

// Load fetches the named document through the provider and builds its
// schema tree.
func (r *Resolver) Load(name string) (*SchemaNode, error) {
	doc, err := r.fetch(name, "")
	if err != nil {
		return nil, err
	}
	return r.resolve(&docCtx{name: name, root: doc, res: r}, refID{doc: name})
}

// docCtx carries the document a node is being decoded from, so local
// pointers resolve against the right tree.
type docCtx struct {
	name string
	root *yaml.Node
	res  *Resolver
}

// resolveString resolves the reference held by a scalar document node.
func (dc *docCtx) resolveString(n *yaml.Node, path string) (*SchemaNode, error) {
	ref := deref(n)
	if ref == nil || ref.Kind != yaml.ScalarNode || ref.Value == "" {
		return nil, malformed(path, "reference must be a non-empty string")
	}
	return dc.res.resolveRef(dc, ref.Value, path)
}

// loadBytes parses raw document bytes under the given identity. Unnamed
// documents get a fresh identity so two inline loads never share a cache
// slot.
func (r *Resolver) loadBytes(name string, doc []byte) (*SchemaNode, error) {
	if name == "" {
		r.anon++
		name = "inline-" + strconv.Itoa(r.anon)
	}
	root, err := parseDocument(doc)
	if err != nil {
		return nil, AppendIssues(nil, Issue{
			Code:    CodeParseError,
			Message: i18n.T(CodeParseError, nil),
			Cause:   err,
		})
	}
	r.docs[name] = root
	return r.resolve(&docCtx{name: name, root: root, res: r}, refID{doc: name})
}

// resolveRef classifies a reference and resolves it to a schema node.
//
// Forms:
//
//	#/defs/target            local pointer
//	other.schema.yaml        whole foreign document
//	other.schema.yaml#/defs  pointer into a foreign document
//	ns:pkg/schema            namespaced package reference
func (r *Resolver) resolveRef(dc *docCtx, ref, path string) (*SchemaNode, error) {
	docPart, pointer, _ := strings.Cut(ref, "#")

	target := dc
	id := refID{doc: dc.name, pointer: pointer}
	if docPart != "" {
		name := docPart
		if strings.HasPrefix(name, nsScheme) {
			name = strings.TrimPrefix(name, nsScheme)
		}
		root, err := r.fetch(name, path)
		if err != nil {
			return nil, err
		}
		target = &docCtx{name: name, root: root, res: r}
		id = refID{doc: name, pointer: pointer}
	}
	return r.resolve(target, id)
}

// resolve decodes the subtree addressed by id, memoizing the result and
// rejecting identities already on the active stack.
func (r *Resolver) resolve(dc *docCtx, id refID) (*SchemaNode, error) {
	if n, ok := r.cache[id]; ok {
		return n, nil
	}
	for _, act := range r.active {
		if act == id {
			return nil, AppendIssues(nil, Issue{
				Code:    CodeCyclicReference,
				Message: i18n.T(CodeCyclicReference, nil),
				Hint:    refChain(append(r.active, id)),
			})
		}
	}
	r.active = append(r.active, id)
	defer func() { r.active = r.active[:len(r.active)-1] }()

	target, err := pointerLookup(dc.root, id.pointer)
	if err != nil {
		return nil, AppendIssues(nil, Issue{
			Code:    CodePathNotFound,
			Message: i18n.T(CodePathNotFound, nil),
			Hint:    id.doc + "#" + id.pointer,
			Cause:   err,
		})
	}
	node, err := decodeSchema(dc, target, "")
	if err != nil {
		return nil, err
	}
	r.cache[id] = node
	return node, nil
}

func (r *Resolver) fetch(name, path string) (*yaml.Node, error) {
	if doc, ok := r.docs[name]; ok {
		return doc, nil
	}
	if r.provider == nil {
		return nil, malformed(path, "no document provider for reference to "+name)
	}
	raw, err := r.provider.Fetch(name)
	if err != nil {
		return nil, AppendIssues(nil, Issue{
			Path:    path,
			Code:    CodeParseError,
			Message: i18n.T(CodeParseError, nil),
			Hint:    "fetch " + name,
			Cause:   err,
		})
	}
	root, err := parseDocument(raw)
	if err != nil {
		return nil, AppendIssues(nil, Issue{
			Path:    path,
			Code:    CodeParseError,
			Message: i18n.T(CodeParseError, nil),
			Hint:    "parse " + name,
			Cause:   err,
		})
	}
	r.docs[name] = root
	return root, nil
}

func refChain(ids []refID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.doc + "#" + id.pointer
	}
	return strings.Join(parts, " -> ")
}

// parseDocument decodes YAML or JSON bytes into a node tree. YAML is a
// superset of JSON, so a single decoder covers both inputs.
func parseDocument(doc []byte) (*yaml.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

// pointerLookup walks a JSON-pointer fragment ("/defs/target") through a
// document tree. Tokens use ~0/~1 escapes per RFC 6901.
func pointerLookup(root *yaml.Node, pointer string) (*yaml.Node, error) {
	cur := deref(root)
	if pointer == "" || pointer == "/" {
		return cur, nil
	}
	for _, tok := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		cur = deref(cur)
		switch cur.Kind {
		case yaml.MappingNode:
			var next *yaml.Node
			for i := 0; i+1 < len(cur.Content); i += 2 {
				if cur.Content[i].Value == tok {
					next = cur.Content[i+1]
					break
				}
			}
			if next == nil {
				return nil, errNoPointerToken(tok)
			}
			cur = next
		case yaml.SequenceNode:
			i, ok := asIndex(tok)
			if !ok || i >= len(cur.Content) {
				return nil, errNoPointerToken(tok)
			}
			cur = cur.Content[i]
		default:
			return nil, errNoPointerToken(tok)
		}
	}
	return deref(cur), nil
}

type errNoPointerToken string

func (e errNoPointerToken) Error() string { return "no pointer token " + string(e) }
