package metatree

import (
	"regexp"

	"github.com/orbiton/metatree/internal/ordered"
)

// Card is one flat-namespace entry: a short keyword, its value, and an
// optional comment (the bound node's one-line documentation).
type Card struct {
	Key     string `json:"key"`
	Value   any    `json:"value"`
	Comment string `json:"comment,omitempty"`
}

// FlatSection groups the cards of one named section.
type FlatSection struct {
	Name  string
	Cards []Card
}

// FlatDoc is a sectioned flat keyword store, sections in emission order
// with the primary section first.
type FlatDoc []FlatSection

// Section returns the cards of the named section.
func (d FlatDoc) Section(name string) []Card {
	for _, s := range d {
		if s.Name == name {
			return s.Cards
		}
	}
	return nil
}

// Lookup finds a card by section and key.
func (d FlatDoc) Lookup(section, key string) (Card, bool) {
	for _, c := range d.Section(section) {
		if c.Key == key {
			return c, true
		}
	}
	return Card{}, false
}

func (d *FlatDoc) add(section string, c Card) {
	for i := range *d {
		if (*d)[i].Name == section {
			(*d)[i].Cards = append((*d)[i].Cards, c)
			return
		}
	}
	*d = append(*d, FlatSection{Name: section, Cards: []Card{c}})
}

// Projection is the result of flattening a model: the sectioned cards plus
// the dot paths that could not be represented because their schema nodes
// carry no binding. Omission is the designed degradation, not an error.
type Projection struct {
	Flat    FlatDoc
	Omitted []string
}

// reserved container keywords, managed by the container codec; they are
// never captured into or re-emitted from the extra namespace.
var builtinKeyword = regexp.MustCompile(
	`^($|SIMPLE$|BITPIX$|NAXIS[0-9]{0,3}$|XTENSION$|PCOUNT$|GCOUNT$|EXTEND$` +
		`|BSCALE$|BZERO$|BLANK$|DATAMAX$|DATAMIN$|EXTNAME$|EXTVER$|EXTLEVEL$` +
		`|GROUPS$|TFIELDS$|TBCOL[0-9]{1,3}$|TFORM[0-9]{1,3}$|TTYPE[0-9]{1,3}$` +
		`|TUNIT[0-9]{1,3}$|TSCAL[0-9]{1,3}$|TZERO[0-9]{1,3}$|TNULL[0-9]{1,3}$` +
		`|TDISP[0-9]{1,3}$|HISTORY$)`)

// sentinel values treated as absent when absorbing a flat document.
func isAbsentValue(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return s == "" || s == "N/A" || s == "#TODO"
}

// Project flattens the model's bound leaves into a sectioned keyword
// document in schema declaration order. Unbound leaves are listed in
// Omitted; history entries become HISTORY cards; captured extra entries are
// re-emitted into their sections after the modeled cards.
func Project(m *Model) Projection {
	out := Projection{Flat: FlatDoc{{Name: PrimarySection}}}

	m.Range(func(path string, value any) bool {
		s, err := PathOf(m.Schema(), path)
		if err != nil || s.Binding == nil || s.Binding.Keyword == "" {
			out.Omitted = append(out.Omitted, path)
			return true
		}
		out.Flat.add(s.Binding.Section, Card{
			Key:     s.Binding.Keyword,
			Value:   value,
			Comment: s.ShortDoc(),
		})
		return true
	})

	for _, entry := range m.History() {
		out.Flat.add(PrimarySection, Card{Key: "HISTORY", Value: entry})
	}

	if m.extra != nil {
		m.extra.Range(func(section string, c Card) bool {
			if !builtinKeyword.MatchString(c.Key) {
				out.Flat.add(section, c)
			}
			return true
		})
	}
	return out
}

// Absorb reconstructs a model from a flat sectioned document. Cards whose
// (section, key) matches a schema binding are coerced and set; unmatched
// cards are captured verbatim into the extra namespace of their section.
// Only a matched card that can not be coerced makes Absorb fail.
func Absorb(flat FlatDoc, schema *SchemaNode) (*Model, error) {
	m := NewModel(schema)
	idx := bindingIndex(schema)

	for _, section := range flat {
		for _, c := range section.Cards {
			if c.Key == "HISTORY" {
				if s, ok := c.Value.(string); ok {
					m.AddHistory(s)
				}
				continue
			}
			if builtinKeyword.MatchString(c.Key) {
				continue
			}
			if isAbsentValue(c.Value) {
				continue
			}
			paths := idx[bindingKey{section: section.Name, keyword: c.Key}]
			if len(paths) == 0 {
				m.Extra().Put(section.Name, c.Key, c.Value, c.Comment)
				continue
			}
			for _, p := range paths {
				if err := m.Set(p, c.Value); err != nil {
					return nil, err
				}
			}
		}
	}
	return m, nil
}

type bindingKey struct {
	section string
	keyword string
}

// bindingIndex maps every (section, keyword) binding to the dot paths that
// declare it, in schema declaration order.
func bindingIndex(schema *SchemaNode) map[bindingKey][]string {
	idx := map[bindingKey][]string{}
	WalkSchema(schema, func(path string, n *SchemaNode) bool {
		if n.Binding != nil && n.Binding.Keyword != "" {
			k := bindingKey{section: n.Binding.Section, keyword: n.Binding.Keyword}
			idx[k] = append(idx[k], path)
		}
		return true
	})
	return idx
}

// FindBindings returns the dot paths bound to the given flat keyword, in
// schema declaration order. The match is exact and case-sensitive.
func FindBindings(schema *SchemaNode, keyword string) []string {
	var out []string
	WalkSchema(schema, func(path string, n *SchemaNode) bool {
		if n.Binding != nil && n.Binding.Keyword == keyword {
			out = append(out, path)
		}
		return true
	})
	return out
}

// SectionBinding pairs one flat keyword with the dot path bound to it.
type SectionBinding struct {
	Keyword string
	Path    string
}

// BindingsForSection returns every (keyword, path) binding declared for
// the named section, in schema declaration order. Data nodes carrying a
// bare section have no keyword and are not listed.
func BindingsForSection(schema *SchemaNode, section string) []SectionBinding {
	var out []SectionBinding
	WalkSchema(schema, func(path string, n *SchemaNode) bool {
		if n.Binding != nil && n.Binding.Keyword != "" && n.Binding.Section == section {
			out = append(out, SectionBinding{Keyword: n.Binding.Keyword, Path: path})
		}
		return true
	})
	return out
}

// ExtraNamespace holds flat entries that matched no schema binding, per
// section, in capture order. Entries are never validated and survive every
// round trip untouched.
type ExtraNamespace struct {
	sections *ordered.Map[*ordered.Map[Card]]
}

// NewExtraNamespace returns an empty namespace.
func NewExtraNamespace() *ExtraNamespace {
	return &ExtraNamespace{sections: ordered.NewMap[*ordered.Map[Card]]()}
}

// Put stores a card under section/key, replacing an earlier capture of the
// same key.
func (e *ExtraNamespace) Put(section, key string, value any, comment string) {
	sec, ok := e.sections.Get(section)
	if !ok {
		sec = ordered.NewMap[Card]()
		e.sections.Set(section, sec)
	}
	sec.Set(key, Card{Key: key, Value: value, Comment: comment})
}

// Get returns the captured card under section/key.
func (e *ExtraNamespace) Get(section, key string) (Card, bool) {
	sec, ok := e.sections.Get(section)
	if !ok {
		return Card{}, false
	}
	return sec.Get(key)
}

// Sections returns the section names in capture order.
func (e *ExtraNamespace) Sections() []string { return e.sections.Keys() }

// Cards returns the cards of one section in capture order.
func (e *ExtraNamespace) Cards(section string) []Card {
	sec, ok := e.sections.Get(section)
	if !ok {
		return nil
	}
	out := make([]Card, 0, sec.Len())
	sec.Range(func(_ string, c Card) bool {
		out = append(out, c)
		return true
	})
	return out
}

// Len returns the total number of captured cards.
func (e *ExtraNamespace) Len() int {
	n := 0
	e.sections.Range(func(_ string, sec *ordered.Map[Card]) bool {
		n += sec.Len()
		return true
	})
	return n
}

// Range visits every captured card, sections and keys in capture order.
func (e *ExtraNamespace) Range(fn func(section string, c Card) bool) {
	e.sections.Range(func(name string, sec *ordered.Map[Card]) bool {
		cont := true
		sec.Range(func(_ string, c Card) bool {
			cont = fn(name, c)
			return cont
		})
		return cont
	})
}

// Copy returns an independent clone.
func (e *ExtraNamespace) Copy() *ExtraNamespace {
	out := NewExtraNamespace()
	e.Range(func(section string, c Card) bool {
		out.Put(section, c.Key, c.Value, c.Comment)
		return true
	})
	return out
}

func (e *ExtraNamespace) toMap() map[string][]Card {
	out := make(map[string][]Card, e.sections.Len())
	for _, name := range e.sections.Keys() {
		out[name] = e.Cards(name)
	}
	return out
}
