package resource

import "fmt"

// Type is a tracked consumption dimension on a search node.
type Type int

const (
	CPU Type = iota
	Memory

	// NumTypes sizes fixed arrays indexed by Type.
	NumTypes = int(Memory) + 1
)

func Types() []Type {
	return []Type{CPU, Memory}
}

func (t Type) String() string {
	switch t {
	case CPU:
		return "cpu"
	case Memory:
		return "memory"
	}
	return fmt.Sprintf("resource(%d)", int(t))
}

func (t Type) Valid() bool {
	return t >= 0 && int(t) < NumTypes
}

func Parse(name string) (Type, error) {
	switch name {
	case "cpu":
		return CPU, nil
	case "memory":
		return Memory, nil
	}
	return 0, fmt.Errorf("unknown resource type %q", name)
}

// Catalog fixes, at construction time, which resource types have statistics
// enabled on this node and the node's capacity for each, in abstract units.
// It is immutable afterwards.
type Catalog struct {
	enabled  [NumTypes]bool
	capacity [NumTypes]int64
}

// NewCatalog enables every resource type with a positive capacity.
func NewCatalog(capacities map[Type]int64) *Catalog {
	c := &Catalog{}
	for t, capacity := range capacities {
		if !t.Valid() || capacity <= 0 {
			continue
		}
		c.enabled[t] = true
		c.capacity[t] = capacity
	}
	return c
}

func (c *Catalog) Enabled(t Type) bool {
	if !t.Valid() {
		return false
	}
	return c.enabled[t]
}

func (c *Catalog) Capacity(t Type) int64 {
	if !t.Valid() {
		return 0
	}
	return c.capacity[t]
}

func (c *Catalog) EnabledTypes() []Type {
	types := make([]Type, 0, NumTypes)
	for _, t := range Types() {
		if c.enabled[t] {
			types = append(types, t)
		}
	}
	return types
}
