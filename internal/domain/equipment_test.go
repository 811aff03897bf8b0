package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCycle(t *testing.T) {
	acyclic := map[string][]Dependency{
		"camera":  {{EquipmentID: "battery", Kind: DependencyRequired, Quantity: 2}},
		"battery": {{EquipmentID: "charger", Kind: DependencyOptional, Quantity: 1}},
		"charger": nil,
	}
	assert.Nil(t, FindCycle(acyclic))

	cyclic := map[string][]Dependency{
		"a": {{EquipmentID: "b", Kind: DependencyRequired, Quantity: 1}},
		"b": {{EquipmentID: "c", Kind: DependencyRequired, Quantity: 1}},
		"c": {{EquipmentID: "a", Kind: DependencyRequired, Quantity: 1}},
	}
	cycle := FindCycle(cyclic)
	require.NotNil(t, cycle)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
}

func TestValidateDependencies(t *testing.T) {
	graph := map[string][]Dependency{
		"camera":  {{EquipmentID: "battery", Kind: DependencyRequired, Quantity: 2}},
		"battery": nil,
		"tripod":  nil,
	}

	err := ValidateDependencies("battery", []Dependency{{EquipmentID: "camera", Kind: DependencyRequired, Quantity: 1}}, graph)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDependencyCycle))
	assert.Equal(t, CodeValidation, CodeOf(err))

	err = ValidateDependencies("camera", []Dependency{{EquipmentID: "camera", Kind: DependencyRequired, Quantity: 1}}, graph)
	assert.True(t, errors.Is(err, ErrValidation))

	err = ValidateDependencies("camera", []Dependency{{EquipmentID: "lens", Kind: DependencyRequired, Quantity: 1}}, graph)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = ValidateDependencies("camera", []Dependency{{EquipmentID: "tripod", Kind: "mandatory", Quantity: 1}}, graph)
	assert.True(t, errors.Is(err, ErrValidation))

	err = ValidateDependencies("camera", []Dependency{
		{EquipmentID: "battery", Kind: DependencyRequired, Quantity: 2},
		{EquipmentID: "tripod", Kind: DependencyRecommended, Quantity: 1},
	}, graph)
	assert.NoError(t, err)
}

func TestExpandDependencies(t *testing.T) {
	catalog := map[string]*EquipmentItem{
		"camera": {ID: "camera", Dependencies: []Dependency{
			{EquipmentID: "battery", Kind: DependencyRequired, Quantity: 2},
			{EquipmentID: "tripod", Kind: DependencyRecommended, Quantity: 1},
		}},
		"battery": {ID: "battery", Dependencies: []Dependency{
			{EquipmentID: "cell", Kind: DependencyRequired, Quantity: 3},
		}},
		"cell":   {ID: "cell"},
		"tripod": {ID: "tripod"},
	}
	lookup := func(id string) (*EquipmentItem, error) {
		item, ok := catalog[id]
		if !ok {
			return nil, NewNotFoundError("equipment", id)
		}
		return item, nil
	}

	lines, err := ExpandDependencies([]Line{{EquipmentID: "camera", Quantity: 2}, {EquipmentID: "battery", Quantity: 1}}, lookup, false)
	require.NoError(t, err)

	got := map[string]Line{}
	for _, l := range lines {
		got[l.EquipmentID] = l
	}
	assert.Len(t, got, 3)
	assert.Equal(t, 2, got["camera"].Quantity)
	// 2 cameras x 2 batteries, plus one requested directly
	assert.Equal(t, 5, got["battery"].Quantity)
	assert.Equal(t, "camera", got["battery"].DerivedFrom)
	assert.Equal(t, 15, got["cell"].Quantity)
	assert.NotContains(t, got, "tripod")

	lines, err = ExpandDependencies([]Line{{EquipmentID: "camera", Quantity: 1}}, lookup, true)
	require.NoError(t, err)
	assert.Len(t, lines, 4)

	_, err = ExpandDependencies([]Line{{EquipmentID: "lens", Quantity: 1}}, lookup, false)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDamageDelta(t *testing.T) {
	assert.Equal(t, 0, DamageDelta(ConditionGood, ConditionGood))
	assert.Equal(t, 2, DamageDelta(ConditionGood, ConditionPoor))
	assert.Equal(t, 0, DamageDelta(ConditionPoor, ConditionExcellent))
	assert.Equal(t, 4, DamageDelta(ConditionExcellent, ConditionDamaged))
}
