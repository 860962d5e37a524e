package engine

import (
	"context"

	"villagekeep/internal/eventbus"
	"villagekeep/internal/task"
	logx "villagekeep/pkg/logx"
)

// CheckConsistency returns busy heroes and structures that no live record
// holds to idle, and reports the repaired ids.
func (e *Engine) CheckConsistency(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	held := map[task.Slot]bool{}
	for _, r := range e.tasks.List() {
		if r.Completed {
			continue
		}
		for _, s := range r.Slots() {
			held[s] = true
		}
	}

	var repaired []string
	for _, id := range e.state.HeroIDs() {
		h := e.state.Heroes[id]
		if !h.Status.Busy() {
			continue
		}
		if held[task.Slot{Entity: task.HeroKey(id), Category: task.CategoryActivity}] {
			continue
		}
		e.log.Info("hero status repaired", logx.String("hero", id), logx.String("was", string(h.Status)))
		h.SetIdle()
		repaired = append(repaired, id)
	}
	for _, id := range e.state.StructureIDs() {
		st := e.state.Structures[id]
		if !st.Status.Busy() {
			continue
		}
		if held[task.Slot{Entity: task.StructureKey(id), Category: task.CategoryConstruction}] {
			continue
		}
		e.log.Info("structure status repaired", logx.String("structure", id), logx.String("was", string(st.Status)))
		st.SetIdle()
		repaired = append(repaired, id)
	}
	if len(repaired) == 0 {
		return nil, nil
	}
	e.dirty.Store(true)
	e.publish(eventbus.ConsistencyRepaired, eventbus.RepairNotice{EntityIDs: repaired})
	return repaired, e.flushLocked(ctx)
}
