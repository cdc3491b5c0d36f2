package layout

import "fmt"

// Kind identifies the entity an identifier refers to.
//
// Each kind owns a fixed low-order bit tag. Read from the least significant
// bit, the tags form a prefix code:
//
//	Relation     ......1   (1 bit)
//	Vertex       .....00   (2 bits)
//	PropertyKey  ....010   (3 bits)
//	EdgeLabel    ....110   (3 bits)
//
// PropertyKey and EdgeLabel share the schema-type class tag 10 (2 bits).
type Kind uint8

const (
	// Vertex identifies graph vertices.
	Vertex Kind = iota + 1
	// Relation identifies edges and properties.
	Relation
	// PropertyKey identifies property-key schema types.
	PropertyKey
	// EdgeLabel identifies edge-label schema types.
	EdgeLabel
)

// Kinds lists every kind in decode priority order: longer tags first.
var Kinds = []Kind{PropertyKey, EdgeLabel, Vertex, Relation}

const (
	schemaTypeTagBits  = 2
	schemaTypeTagValue = 0b10
	maxTagBits         = 3
)

type tag struct {
	bits  uint
	value uint64
}

var tags = [...]tag{
	Vertex:      {bits: 2, value: 0b00},
	Relation:    {bits: 1, value: 0b1},
	PropertyKey: {bits: 3, value: 0b010},
	EdgeLabel:   {bits: 3, value: 0b110},
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= Vertex && k <= EdgeLabel
}

// TagBits returns the width of the kind's tag, or 0 for an unknown kind.
func (k Kind) TagBits() uint {
	if !k.Valid() {
		return 0
	}
	return tags[k].bits
}

// TagValue returns the kind's tag, or 0 for an unknown kind.
func (k Kind) TagValue() uint64 {
	if !k.Valid() {
		return 0
	}
	return tags[k].value
}

// IsSchemaType reports whether k is a schema type (property key or edge label).
// Schema-type ids carry no partition.
func (k Kind) IsSchemaType() bool {
	return k == PropertyKey || k == EdgeLabel
}

// Partitioned reports whether ids of this kind carry a partition field.
func (k Kind) Partitioned() bool {
	return k == Vertex || k == Relation
}

func (k Kind) matches(id uint64) bool {
	t := tags[k]
	return id&(1<<t.bits-1) == t.value
}

func (k Kind) String() string {
	switch k {
	case Vertex:
		return "vertex"
	case Relation:
		return "relation"
	case PropertyKey:
		return "property-key"
	case EdgeLabel:
		return "edge-label"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}
