package domain

import (
	"context"
	"sort"
	"time"
)

// Condition is the physical state of an equipment item, best first.
type Condition string

const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
	ConditionDamaged   Condition = "damaged"
)

var conditionOrdinal = map[Condition]int{
	ConditionExcellent: 0,
	ConditionGood:      1,
	ConditionFair:      2,
	ConditionPoor:      3,
	ConditionDamaged:   4,
}

func (c Condition) Valid() bool {
	_, ok := conditionOrdinal[c]
	return ok
}

// Ordinal returns 0 for excellent up to 4 for damaged.
func (c Condition) Ordinal() int {
	return conditionOrdinal[c]
}

// DamageDelta is how many grades worse after is than before. Improvements count as zero.
func DamageDelta(before, after Condition) int {
	d := after.Ordinal() - before.Ordinal()
	if d < 0 {
		return 0
	}
	return d
}

// DependencyKind says whether a linked item must travel with its parent.
type DependencyKind string

const (
	DependencyRequired    DependencyKind = "required"
	DependencyOptional    DependencyKind = "optional"
	DependencyRecommended DependencyKind = "recommended"
)

func (k DependencyKind) Valid() bool {
	switch k {
	case DependencyRequired, DependencyOptional, DependencyRecommended:
		return true
	}
	return false
}

// Dependency links an item to another item of the same tenant.
type Dependency struct {
	EquipmentID string         `json:"equipmentId"`
	Kind        DependencyKind `json:"kind"`
	Quantity    int            `json:"quantity"`
}

// EquipmentItem is a rentable unit type with a fixed pool size.
type EquipmentItem struct {
	ID            string       `json:"id"`
	TenantID      string       `json:"tenantId"`
	Category      string       `json:"category"`
	Name          string       `json:"name"`
	TotalQuantity int          `json:"totalQuantity"`
	Condition     Condition    `json:"condition"`
	Dependencies  []Dependency `json:"dependencies"`
	IsActive      bool         `json:"isActive"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Validate checks the fields an item must always satisfy.
func (e *EquipmentItem) Validate() error {
	if e.Name == "" {
		return NewValidationError("equipment name is required", nil)
	}
	if e.TotalQuantity < 1 {
		return NewValidationError("total quantity must be positive",
			map[string]any{"totalQuantity": e.TotalQuantity})
	}
	if !e.Condition.Valid() {
		return NewValidationError("unknown condition", map[string]any{"condition": e.Condition})
	}
	return nil
}

// EquipmentFilter narrows catalog listings.
type EquipmentFilter struct {
	Category   string
	ActiveOnly bool
}

// EquipmentRepository defines data access for the catalog
type EquipmentRepository interface {
	Create(ctx context.Context, item *EquipmentItem) error
	Update(ctx context.Context, item *EquipmentItem) error
	GetByID(ctx context.Context, tenantID, id string) (*EquipmentItem, error)
	List(ctx context.Context, tenantID string, filter EquipmentFilter) ([]*EquipmentItem, error)
	SetDependencies(ctx context.Context, tenantID, id string, deps []Dependency) error
}

// ValidateDependencies checks a proposed dependency set for item id against
// the tenant graph. graph maps every known item to its current edges; the
// proposed set replaces graph[id].
func ValidateDependencies(id string, deps []Dependency, graph map[string][]Dependency) error {
	seen := make(map[string]bool, len(deps))
	for _, d := range deps {
		if d.EquipmentID == id {
			return NewValidationError("equipment cannot depend on itself", map[string]any{"equipmentId": id})
		}
		if _, ok := graph[d.EquipmentID]; !ok {
			return NewNotFoundError("equipment", d.EquipmentID)
		}
		if !d.Kind.Valid() {
			return NewValidationError("unknown dependency kind", map[string]any{"kind": d.Kind})
		}
		if d.Quantity < 1 {
			return NewValidationError("dependency quantity must be positive",
				map[string]any{"equipmentId": d.EquipmentID, "quantity": d.Quantity})
		}
		if seen[d.EquipmentID] {
			return NewValidationError("duplicate dependency", map[string]any{"equipmentId": d.EquipmentID})
		}
		seen[d.EquipmentID] = true
	}

	proposed := make(map[string][]Dependency, len(graph))
	for k, v := range graph {
		proposed[k] = v
	}
	proposed[id] = deps
	if path := FindCycle(proposed); path != nil {
		return NewCycleError(path)
	}
	return nil
}

const (
	white = iota
	grey
	black
)

// FindCycle runs a colouring DFS over the graph and returns the first cycle
// found as a closed path, or nil when the graph is acyclic.
func FindCycle(graph map[string][]Dependency) []string {
	color := make(map[string]int, len(graph))
	var stack []string

	var visit func(n string) []string
	visit = func(n string) []string {
		color[n] = grey
		stack = append(stack, n)
		for _, d := range graph[n] {
			switch color[d.EquipmentID] {
			case grey:
				for i, s := range stack {
					if s == d.EquipmentID {
						cycle := append([]string{}, stack[i:]...)
						return append(cycle, d.EquipmentID)
					}
				}
			case white:
				if c := visit(d.EquipmentID); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if color[n] == white {
			if c := visit(n); c != nil {
				return c
			}
		}
	}
	return nil
}

// Line is a requested equipment quantity, possibly pulled in by a parent.
type Line struct {
	EquipmentID string
	Quantity    int
	DerivedFrom string
}

// ExpandDependencies adds the dependencies of each requested line,
// multiplying quantities down the tree and merging lines by equipment id.
// Optional and recommended links are followed only when includeOptional is set.
func ExpandDependencies(lines []Line, lookup func(id string) (*EquipmentItem, error), includeOptional bool) ([]Line, error) {
	merged := make(map[string]*Line)
	var order []string
	add := func(l Line) {
		if existing, ok := merged[l.EquipmentID]; ok {
			existing.Quantity += l.Quantity
			return
		}
		cp := l
		merged[l.EquipmentID] = &cp
		order = append(order, l.EquipmentID)
	}

	var walk func(id string, qty int, path map[string]bool) error
	walk = func(id string, qty int, path map[string]bool) error {
		item, err := lookup(id)
		if err != nil {
			return err
		}
		path[id] = true
		defer delete(path, id)
		for _, d := range item.Dependencies {
			if d.Kind != DependencyRequired && !includeOptional {
				continue
			}
			if path[d.EquipmentID] {
				return NewCycleError([]string{id, d.EquipmentID})
			}
			child := qty * d.Quantity
			add(Line{EquipmentID: d.EquipmentID, Quantity: child, DerivedFrom: id})
			if err := walk(d.EquipmentID, child, path); err != nil {
				return err
			}
		}
		return nil
	}

	for _, l := range lines {
		add(Line{EquipmentID: l.EquipmentID, Quantity: l.Quantity})
		if err := walk(l.EquipmentID, l.Quantity, map[string]bool{}); err != nil {
			return nil, err
		}
	}

	out := make([]Line, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}
	return out, nil
}
