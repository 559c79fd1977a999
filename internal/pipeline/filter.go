package pipeline

// Filter is a predicate over documents
type Filter interface {
	filterName() string
}

// Eq matches documents whose Field equals Value
type Eq struct {
	Field string
	Value interface{}
}

// SizeEq matches documents whose array Field has exactly N elements
type SizeEq struct {
	Field string
	N     int
}

// SizeLt matches documents whose array Field has fewer than N elements
type SizeLt struct {
	Field string
	N     int
}

// And matches documents satisfying every filter
type And []Filter

func (Eq) filterName() string     { return "eq" }
func (SizeEq) filterName() string { return "sizeEq" }
func (SizeLt) filterName() string { return "sizeLt" }
func (And) filterName() string    { return "and" }

// All combines filters, skipping nils. It returns nil when nothing remains
// and the single filter when only one does.
func All(filters ...Filter) Filter {
	var out And
	for _, f := range filters {
		if f == nil {
			continue
		}
		if nested, ok := f.(And); ok {
			out = append(out, nested...)
			continue
		}
		out = append(out, f)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// Flatten returns the leaf filters of f
func Flatten(f Filter) []Filter {
	if f == nil {
		return nil
	}
	if and, ok := f.(And); ok {
		var out []Filter
		for _, inner := range and {
			out = append(out, Flatten(inner)...)
		}
		return out
	}
	return []Filter{f}
}
