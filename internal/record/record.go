package record

import "fmt"

// Type identifies a kind of record. Its value is the archive directory that
// holds records of that kind (e.g. "posts/12.json" is a posts record).
type Type string

const (
	Users Type = "users"
	Terms Type = "terms"
	Posts Type = "posts"

	// None is the "no more types" sentinel persisted once a run has
	// walked past the last type in its order.
	None Type = ""
)

// DefaultOrder is the fixed global processing order. Users come first so
// authors exist before the posts that reference them.
var DefaultOrder = []Type{Users, Terms, Posts}

// SchemaPrefix is the common prefix of every bundled schema identifier.
const SchemaPrefix = "https://wordpress.org/schema/"

// Schema identifiers. Meta has no directory of its own; it is referenced
// from the other schemas.
const (
	UserSchema = SchemaPrefix + "user.json"
	PostSchema = SchemaPrefix + "post.json"
	MetaSchema = SchemaPrefix + "meta.json"
	TermSchema = SchemaPrefix + "term.json"
)

var schemaMap = map[Type]string{
	Users: UserSchema,
	Posts: PostSchema,
	Terms: TermSchema,
}

// SchemaID returns the schema identifier records of type t validate against.
func SchemaID(t Type) (string, bool) {
	id, ok := schemaMap[t]
	return id, ok
}

// Parse converts a directory name into a Type.
func Parse(s string) (Type, error) {
	for _, t := range DefaultOrder {
		if string(t) == s {
			return t, nil
		}
	}
	return None, fmt.Errorf("unknown record type %q", s)
}

// ParseOrder converts a list of names into an order, rejecting unknown and
// duplicate types.
func ParseOrder(names []string) ([]Type, error) {
	seen := make(map[Type]bool, len(names))
	order := make([]Type, 0, len(names))
	for _, n := range names {
		t, err := Parse(n)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			return nil, fmt.Errorf("duplicate record type %q", n)
		}
		seen[t] = true
		order = append(order, t)
	}
	return order, nil
}

// IndexOf returns the position of t in order, or -1.
func IndexOf(order []Type, t Type) int {
	for i, o := range order {
		if o == t {
			return i
		}
	}
	return -1
}
