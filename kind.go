package metatree

// Kind tags the type family of a schema node.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindNumber
	KindInteger
	KindBool
	KindObject
	KindArray // array of schema-validated items
	KindData  // bulk typed-array descriptor (ndim/dtype only; payload lives outside)
	KindUnion
	KindNull
)

// String returns the document tag for the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindData:
		return "data"
	case KindUnion:
		return "union"
	case KindNull:
		return "null"
	default:
		return "any"
	}
}

// ParseKind maps a document type tag to a Kind.
func ParseKind(tag string) (Kind, bool) {
	switch tag {
	case "string":
		return KindString, true
	case "number":
		return KindNumber, true
	case "integer":
		return KindInteger, true
	case "boolean":
		return KindBool, true
	case "object":
		return KindObject, true
	case "array":
		return KindArray, true
	case "data":
		return KindData, true
	case "null":
		return KindNull, true
	case "any":
		return KindAny, true
	default:
		return KindAny, false
	}
}
