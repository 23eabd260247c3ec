package challenge

import "sort"

// Registry maps challenge type names to drivers. It is written only during
// engine construction and read-only afterwards.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// NewDefaultRegistry creates a registry with all four built-in drivers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&CryptoNLDriver{})
	r.Register(&AmbiguousLogicDriver{})
	r.Register(&CodeExecutionDriver{})
	r.Register(&MultiStepDriver{})
	return r
}

// Register adds a driver keyed by its Name.
func (r *Registry) Register(d Driver) {
	r.drivers[d.Name()] = d
}

// Get returns the driver for a challenge type, or nil.
func (r *Registry) Get(name string) Driver {
	return r.drivers[name]
}

// List returns all registered drivers.
func (r *Registry) List() []Driver {
	out := make([]Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		out = append(out, d)
	}
	return out
}

// Select scores each driver by the size of the intersection between its
// dimensions and the requested ones and returns the top count. With no
// requested dimensions every driver scores 1 and the order is arbitrary.
func (r *Registry) Select(dimensions []Dimension, count int) []Driver {
	if count <= 0 {
		count = 1
	}

	type scored struct {
		driver Driver
		score  int
	}
	items := make([]scored, 0, len(r.drivers))
	for _, d := range r.drivers {
		s := 1
		if len(dimensions) > 0 {
			s = 0
			for _, want := range dimensions {
				if HasDimension(d.Dimensions(), want) {
					s++
				}
			}
		}
		items = append(items, scored{driver: d, score: s})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })

	if count > len(items) {
		count = len(items)
	}
	out := make([]Driver, 0, count)
	for _, it := range items[:count] {
		out = append(out, it.driver)
	}
	return out
}
