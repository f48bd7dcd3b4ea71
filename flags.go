package ecalveto

import (
	"fmt"
	"strconv"
	"strings"
)

// ArrayFlags is a repeatable flag. Defaults are dropped on the first Set.
type ArrayFlags[T any] struct {
	Array   []T
	parse   func(string) (T, error)
	beenSet bool
}

func (f *ArrayFlags[T]) Set(valueStr string) error {
	value, err := f.parse(valueStr)
	if err != nil {
		return err
	}

	if !f.beenSet {
		f.beenSet = true
		f.Array = nil
	}

	f.Array = append(f.Array, value)
	return nil
}

func (f *ArrayFlags[T]) String() string {
	if f == nil {
		return "[]"
	}
	return fmt.Sprint(f.Array)
}

// Len returns the number of values, given or default.
func (f *ArrayFlags[T]) Len() int { return len(f.Array) }

func NewFloatArrayFlags(defaults ...float64) *ArrayFlags[float64] {
	return &ArrayFlags[float64]{
		Array: defaults,
		parse: func(s string) (float64, error) { return strconv.ParseFloat(s, 64) },
	}
}

func NewStringArrayFlags(defaults ...string) *ArrayFlags[string] {
	return &ArrayFlags[string]{
		Array: defaults,
		parse: func(s string) (string, error) {
			if s == "" {
				return "", fmt.Errorf("empty value")
			}
			return s, nil
		},
	}
}

// SplitList splits a comma separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
