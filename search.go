package metatree

import "strings"

// Match is one search hit: the dot path of the matching node and its
// description.
type Match struct {
	Path        string
	Description string
}

// Search scans the schema for nodes whose name, title or description
// contains substring, case-insensitively, and returns the hits depth-first
// in declaration order. By default the description is the one-line form;
// SearchOpt{Verbose: true} keeps the full title and description.
func Search(schema *SchemaNode, substring string, opts ...SearchOpt) []Match {
	var opt SearchOpt
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	needle := strings.ToLower(substring)

	var out []Match
	WalkSchema(schema, func(path string, n *SchemaNode) bool {
		if path == "" {
			return true
		}
		name := path
		if i := strings.LastIndexByte(path, '.'); i >= 0 {
			name = path[i+1:]
		}
		hit := strings.Contains(strings.ToLower(name), needle) ||
			strings.Contains(strings.ToLower(n.Title), needle) ||
			strings.Contains(strings.ToLower(n.Description), needle)
		if !hit {
			return true
		}
		desc := n.ShortDoc()
		if opt.Verbose {
			desc = strings.TrimSpace(n.Title + "\n\n" + n.Description)
		}
		out = append(out, Match{Path: path, Description: desc})
		return true
	})
	return out
}
