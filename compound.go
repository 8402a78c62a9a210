package anvil

// Compound is a generic NBT compound, shaped the way the nbt package decodes
// one into a map. Chunk trees are kept in this form so tags the engine does
// not know about survive a read/modify/write cycle untouched.
type Compound map[string]any

// Has reports whether a tag with the given name exists.
func (c Compound) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// String returns the string tag with the given name.
func (c Compound) String(name string) (string, error) {
	v, ok := c[name]
	if !ok {
		return "", &MissingTagError{Name: name}
	}
	s, ok := v.(string)
	if !ok {
		return "", &InvalidTagTypeError{Name: name}
	}
	return s, nil
}

// Int returns the int tag with the given name.
func (c Compound) Int(name string) (int32, error) {
	v, ok := c[name]
	if !ok {
		return 0, &MissingTagError{Name: name}
	}
	i, ok := v.(int32)
	if !ok {
		return 0, &InvalidTagTypeError{Name: name}
	}
	return i, nil
}

// Byte returns the byte tag with the given name as a signed value. NBT bytes
// are signed in Java but the nbt package decodes them as Go bytes, so both
// representations are accepted.
func (c Compound) Byte(name string) (int8, error) {
	v, ok := c[name]
	if !ok {
		return 0, &MissingTagError{Name: name}
	}
	switch b := v.(type) {
	case byte:
		return int8(b), nil
	case int8:
		return b, nil
	}
	return 0, &InvalidTagTypeError{Name: name}
}

// SetByte stores a byte tag with the given name.
func (c Compound) SetByte(name string, v int8) {
	c[name] = byte(v)
}

// Compound returns the child compound with the given name.
func (c Compound) Compound(name string) (Compound, error) {
	v, ok := c[name]
	if !ok {
		return nil, &MissingTagError{Name: name}
	}
	return asCompound(v, name)
}

// List returns the list tag with the given name. The nbt package decodes
// every list into []any regardless of the element type.
func (c Compound) List(name string) ([]any, error) {
	v, ok := c[name]
	if !ok {
		return nil, &MissingTagError{Name: name}
	}
	l, ok := v.([]any)
	if !ok {
		return nil, &InvalidTagTypeError{Name: name}
	}
	return l, nil
}

// LongArray returns the long array tag with the given name.
func (c Compound) LongArray(name string) ([]int64, error) {
	v, ok := c[name]
	if !ok {
		return nil, &MissingTagError{Name: name}
	}
	a, ok := v.([]int64)
	if !ok {
		return nil, &InvalidTagTypeError{Name: name}
	}
	return a, nil
}

// asCompound converts a decoded tag value to a Compound. Values written by
// this package are stored as Compound; values straight out of the nbt decoder
// arrive as map[string]any.
func asCompound(v any, name string) (Compound, error) {
	switch m := v.(type) {
	case Compound:
		return m, nil
	case map[string]any:
		return Compound(m), nil
	}
	return nil, &InvalidTagTypeError{Name: name}
}

// compoundList converts the elements of a list tag to compounds.
func compoundList(l []any, name string) ([]Compound, error) {
	out := make([]Compound, len(l))
	for i, v := range l {
		m, err := asCompound(v, name)
		if err != nil {
			return nil, &InvalidListError{Name: name}
		}
		out[i] = m
	}
	return out, nil
}
