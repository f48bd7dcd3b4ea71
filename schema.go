package ecalveto

import (
	"fmt"
)

type Kind int

const (
	Int Kind = iota
	Float
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Source names the veto-result field a feature is copied from. Index is the
// 0-based element of an array field, or -1 for a scalar field.
type Source struct {
	Field string
	Index int
}

func scalar(field string) *Source { return &Source{Field: field, Index: -1} }

type Feature struct {
	Name    string
	Kind    Kind
	Default float64
	// Source is nil for features computed by the pipeline itself.
	Source *Source
}

// Schema is an ordered, immutable set of features.
type Schema struct {
	features []Feature
	index    map[string]int
}

func NewSchema(features ...Feature) (*Schema, error) {
	s := &Schema{
		features: make([]Feature, len(features)),
		index:    make(map[string]int, len(features)),
	}
	copy(s.features, features)
	for i, f := range s.features {
		if f.Name == "" {
			return nil, fmt.Errorf("feature %d has no name", i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate feature %q", f.Name)
		}
		s.index[f.Name] = i
	}
	return s, nil
}

func mustSchema(features ...Feature) *Schema {
	s, err := NewSchema(features...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Len() int { return len(s.features) }

func (s *Schema) Feature(i int) Feature { return s.features[i] }

func (s *Schema) Features() []Feature {
	out := make([]Feature, len(s.features))
	copy(out, s.features)
	return out
}

func (s *Schema) Names() []string {
	names := make([]string, len(s.features))
	for i, f := range s.features {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the named feature.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Defaults returns a fresh vector holding every feature's default value.
func (s *Schema) Defaults() *Vector {
	v := &Vector{schema: s, values: make([]float64, len(s.features))}
	for i, f := range s.features {
		v.values[i] = f.Default
	}
	return v
}

// Project copies the values of v into dst following the order of s. Every
// feature of s must exist in v's schema.
func (s *Schema) Project(v *Vector, dst []float64) error {
	if len(dst) != len(s.features) {
		return fmt.Errorf("projection needs %d slots, got %d", len(s.features), len(dst))
	}
	for i, f := range s.features {
		j, ok := v.schema.index[f.Name]
		if !ok {
			return fmt.Errorf("feature %q missing from source vector", f.Name)
		}
		dst[i] = v.values[j]
	}
	return nil
}

// Vector holds one value per feature of its schema. Int features are stored
// as whole float64 values.
type Vector struct {
	schema *Schema
	values []float64
}

func (v *Vector) Schema() *Schema { return v.schema }

func (v *Vector) Get(name string) (float64, bool) {
	i, ok := v.schema.index[name]
	if !ok {
		return 0, false
	}
	return v.values[i], true
}

func (v *Vector) MustGet(name string) float64 {
	x, ok := v.Get(name)
	if !ok {
		panic(fmt.Errorf("ecalveto: unknown feature %q", name))
	}
	return x
}

func (v *Vector) Set(name string, x float64) error {
	i, ok := v.schema.index[name]
	if !ok {
		return fmt.Errorf("unknown feature %q", name)
	}
	if v.schema.features[i].Kind == Int {
		x = float64(int32(x))
	}
	v.values[i] = x
	return nil
}

// At returns the value in position i.
func (v *Vector) At(i int) float64 { return v.values[i] }

func (v *Vector) SetAt(i int, x float64) {
	if v.schema.features[i].Kind == Int {
		x = float64(int32(x))
	}
	v.values[i] = x
}

// Values returns a copy of the values in schema order.
func (v *Vector) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}
