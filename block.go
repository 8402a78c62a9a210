package anvil

import (
	"sort"
	"strings"
)

// Block is a block state: a namespaced identifier plus optional state
// properties. Properties are kept sorted by key so that comparison, hashing
// and palette membership checks are deterministic.
type Block struct {
	// Name is the namespaced identifier, e.g. "minecraft:oak_stairs".
	Name string
	// Properties holds the state properties sorted by key. A nil slice and
	// an empty slice mean the same thing: a block without properties.
	Properties []Property
}

// Property is a single block state property, e.g. facing=north.
type Property struct {
	Key, Value string
}

// NewBlock creates a block from an identifier. An identifier without a
// namespace is placed in the minecraft namespace.
func NewBlock(name string) Block {
	return Block{Name: normalizeID(name)}
}

// NewBlockWithProperties creates a block with state properties.
//
//	anvil.NewBlockWithProperties("campfire", map[string]string{"lit": "true"})
func NewBlockWithProperties(name string, properties map[string]string) Block {
	b := NewBlock(name)
	if len(properties) == 0 {
		return b
	}
	b.Properties = make([]Property, 0, len(properties))
	for k, v := range properties {
		b.Properties = append(b.Properties, Property{Key: k, Value: v})
	}
	sort.Slice(b.Properties, func(i, j int) bool { return b.Properties[i].Key < b.Properties[j].Key })
	return b
}

// WithProperty returns a copy of the block with the property set, keeping
// the property list sorted.
func (b Block) WithProperty(key, value string) Block {
	props := make([]Property, 0, len(b.Properties)+1)
	inserted := false
	for _, p := range b.Properties {
		if p.Key == key {
			props = append(props, Property{Key: key, Value: value})
			inserted = true
			continue
		}
		if !inserted && p.Key > key {
			props = append(props, Property{Key: key, Value: value})
			inserted = true
		}
		props = append(props, p)
	}
	if !inserted {
		props = append(props, Property{Key: key, Value: value})
	}
	return Block{Name: b.Name, Properties: props}
}

// Property returns the value of a state property.
func (b Block) Property(key string) (string, bool) {
	for _, p := range b.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Equal reports whether two blocks share the same identifier and the same
// property set. Absent and empty property sets are equivalent.
func (b Block) Equal(other Block) bool {
	if b.Name != other.Name || len(b.Properties) != len(other.Properties) {
		return false
	}
	for i, p := range b.Properties {
		if other.Properties[i] != p {
			return false
		}
	}
	return true
}

// Key returns the canonical state string for the block,
// e.g. "minecraft:oak_stairs[facing=north,half=bottom]". Two blocks are
// equal exactly when their keys are equal.
func (b Block) Key() string {
	if len(b.Properties) == 0 {
		return b.Name
	}
	var sb strings.Builder
	sb.Grow(len(b.Name) + 2 + len(b.Properties)*16)
	sb.WriteString(b.Name)
	sb.WriteByte('[')
	for i, p := range b.Properties {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.Key)
		sb.WriteByte('=')
		sb.WriteString(p.Value)
	}
	sb.WriteByte(']')
	return sb.String()
}

// String implements fmt.Stringer.
func (b Block) String() string { return b.Key() }

// compound converts the block to its palette entry form: a Name tag and,
// only when properties exist, a Properties compound.
func (b Block) compound() Compound {
	c := Compound{"Name": b.Name}
	if len(b.Properties) > 0 {
		props := make(map[string]any, len(b.Properties))
		for _, p := range b.Properties {
			props[p.Key] = p.Value
		}
		c["Properties"] = props
	}
	return c
}

// blockFromCompound reads a palette entry back into a Block. An empty
// Properties compound is treated the same as an absent one.
func blockFromCompound(c Compound) (Block, error) {
	name, err := c.String("Name")
	if err != nil {
		return Block{}, err
	}
	b := Block{Name: name}
	if !c.Has("Properties") {
		return b, nil
	}
	props, err := c.Compound("Properties")
	if err != nil {
		return Block{}, err
	}
	if len(props) == 0 {
		return b, nil
	}
	b.Properties = make([]Property, 0, len(props))
	for k, v := range props {
		s, ok := v.(string)
		if !ok {
			return Block{}, &InvalidTagTypeError{Name: "Properties"}
		}
		b.Properties = append(b.Properties, Property{Key: k, Value: s})
	}
	sort.Slice(b.Properties, func(i, j int) bool { return b.Properties[i].Key < b.Properties[j].Key })
	return b, nil
}

// matchesCompound compares the block against a palette entry without
// building a Block from it. The flush pass probes palettes with this for
// every pending edit, so it must not allocate.
func (b Block) matchesCompound(v any) bool {
	c, err := asCompound(v, "palette")
	if err != nil {
		return false
	}
	name, ok := c["Name"].(string)
	if !ok || name != b.Name {
		return false
	}
	pv, ok := c["Properties"]
	if !ok {
		return len(b.Properties) == 0
	}
	props, err := asCompound(pv, "Properties")
	if err != nil {
		return false
	}
	if len(props) != len(b.Properties) {
		return false
	}
	for _, p := range b.Properties {
		s, ok := props[p.Key].(string)
		if !ok || s != p.Value {
			return false
		}
	}
	return true
}

// normalizeID places an identifier without a namespace into the minecraft
// namespace.
func normalizeID(id string) string {
	if strings.Contains(id, ":") {
		return id
	}
	return "minecraft:" + id
}
