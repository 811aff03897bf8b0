package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

func TestCatalogCreateAndUpdate(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{})

	_, err := f.catalog.CreateEquipment(f.ctx, f.scope("mgr-1"), EquipmentInput{Name: "", TotalQuantity: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.catalog.CreateEquipment(f.ctx, f.scope("mgr-1"), EquipmentInput{Name: "Light", TotalQuantity: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)

	item := f.equipment("Aputure 300d", 4)
	assert.True(t, item.IsActive)

	updated, err := f.catalog.UpdateEquipment(f.ctx, f.scope("mgr-1"), item.ID, EquipmentInput{TotalQuantity: 6, IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 6, updated.TotalQuantity)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "Aputure 300d", updated.Name)

	_, err = f.catalog.UpdateEquipment(f.ctx, f.scope("fac-1"), item.ID, EquipmentInput{TotalQuantity: 1})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	active, err := f.catalog.ListEquipment(f.ctx, f.scope("stu-1"), domain.EquipmentFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSetDependenciesRejectsCycles(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{})
	a := f.equipment("Camera", 1)
	b := f.equipment("Cage", 1)
	c := f.equipment("Battery", 1)

	_, err := f.catalog.SetDependencies(f.ctx, f.scope("mgr-1"), a.ID, []domain.Dependency{{EquipmentID: b.ID, Kind: domain.DependencyRequired, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.catalog.SetDependencies(f.ctx, f.scope("mgr-1"), b.ID, []domain.Dependency{{EquipmentID: c.ID, Kind: domain.DependencyRequired, Quantity: 1}})
	require.NoError(t, err)

	_, err = f.catalog.SetDependencies(f.ctx, f.scope("mgr-1"), c.ID, []domain.Dependency{{EquipmentID: a.ID, Kind: domain.DependencyRequired, Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrDependencyCycle)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = f.catalog.SetDependencies(f.ctx, f.scope("mgr-1"), c.ID, []domain.Dependency{{EquipmentID: c.ID, Kind: domain.DependencyRequired, Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.catalog.SetDependencies(f.ctx, f.scope("mgr-1"), c.ID, []domain.Dependency{{EquipmentID: "ghost", Kind: domain.DependencyRequired, Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := f.catalog.GetEquipment(f.ctx, f.scope("stu-1"), c.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Dependencies)

	// Replacing a's edge with an empty set clears it.
	cleared, err := f.catalog.SetDependencies(f.ctx, f.scope("mgr-1"), a.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, cleared.Dependencies)
}

func TestUpdateEquipmentKeepsCommittedCapacity(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{SkipApproval: true})
	cam := f.equipment("Sony FX3", 2)

	_, err := f.reserve("stu-1", cam.ID, 1, interval(15, 17))
	require.NoError(t, err)
	_, err = f.reserve("stu-2", cam.ID, 1, interval(16, 18))
	require.NoError(t, err)

	_, err = f.catalog.UpdateEquipment(f.ctx, f.scope("mgr-1"), cam.ID, EquipmentInput{TotalQuantity: 1})
	require.ErrorIs(t, err, domain.ErrValidation)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 2, de.Details["committed"])

	stored, err := f.catalog.GetEquipment(f.ctx, f.scope("stu-1"), cam.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.TotalQuantity)

	trail := f.auditTrail()
	last := trail[len(trail)-1]
	assert.Equal(t, domain.ActionUpdate, last.Action)
	assert.Equal(t, domain.ResultFailure, last.Result)

	// Once the first booking is over, one unit is enough.
	f.setNow(day(17, 12))
	updated, err := f.catalog.UpdateEquipment(f.ctx, f.scope("mgr-1"), cam.ID, EquipmentInput{TotalQuantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalQuantity)
}

func TestConcurrentDependencyEditsCannotCloseCycle(t *testing.T) {
	f := newFixture(t, domain.TenantSettings{})
	req := func(id string) []domain.Dependency {
		return []domain.Dependency{{EquipmentID: id, Kind: domain.DependencyRequired, Quantity: 1}}
	}
	a := f.equipment("Camera", 1)
	c := f.equipment("Monitor", 1)
	b := f.equipment("Cage", 1, req(c.ID)...)
	d := f.equipment("Cable", 1, req(a.ID)...)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, edge := range [][2]string{{a.ID, b.ID}, {c.ID, d.ID}} {
		wg.Add(1)
		go func(i int, from, to string) {
			defer wg.Done()
			_, errs[i] = f.catalog.SetDependencies(f.ctx, f.scope("mgr-1"), from, req(to))
		}(i, edge[0], edge[1])
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.ErrorIs(t, err, domain.ErrDependencyCycle)
		}
	}
	assert.Equal(t, 1, failed)

	all, err := f.catalog.ListEquipment(f.ctx, f.scope("mgr-1"), domain.EquipmentFilter{})
	require.NoError(t, err)
	graph := make(map[string][]domain.Dependency, len(all))
	for _, item := range all {
		graph[item.ID] = item.Dependencies
	}
	assert.Nil(t, domain.FindCycle(graph))
}
