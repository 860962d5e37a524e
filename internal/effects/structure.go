package effects

import (
	"fmt"

	"villagekeep/internal/task"
	"villagekeep/internal/village"
)

func scaledCost(base map[string]int, factor int) map[string]int {
	if factor < 1 {
		factor = 1
	}
	out := make(map[string]int, len(base))
	for k, v := range base {
		out[k] = v * factor
	}
	return out
}

func chargeResources(c *Ctx, r *task.Record, cost map[string]int) error {
	if !c.State.Resources.SpendAll(cost) {
		return fmt.Errorf("%w: need %v", ErrInsufficient, cost)
	}
	if len(cost) > 0 {
		r.Cost.Resources = cost
	}
	return nil
}

func refundResources(c *Ctx, r task.Record) {
	for res, n := range r.Cost.Resources {
		c.State.Resources.Add(res, n)
	}
}

// assignBuilder marks the optional builder hero busy.
func assignBuilder(c *Ctx, r *task.Record) error {
	if r.SubjectID == "" {
		return nil
	}
	return occupyHero(c, r, village.StatusBuilding, 0)
}

func buildHandler() Handler {
	return Handler{
		OnStart: func(c *Ctx, r *task.Record) error {
			st, ok := c.State.Structure(r.Kind.StructureID)
			if ok && st.Built {
				return fmt.Errorf("%w: %s", ErrAlreadyBuilt, st.ID)
			}
			if r.SubjectID != "" {
				if _, ok := c.State.Hero(r.SubjectID); !ok {
					return fmt.Errorf("%w: hero %q", ErrUnknownEntity, r.SubjectID)
				}
			}
			if err := chargeResources(c, r, c.Catalog.Spec(task.TagBuild).Cost); err != nil {
				return err
			}
			if !ok {
				st = c.State.AddStructure(village.Structure{ID: r.Kind.StructureID, Type: r.Kind.StructureID})
			}
			st.Status = village.StatusConstructing
			st.RemainingMs = r.RemainingMs(c.Now)
			return assignBuilder(c, r)
		},
		OnCompletion: func(c *Ctx, r task.Record) error {
			if st, ok := c.State.Structure(r.Kind.StructureID); ok {
				st.Built = true
				if st.Level < 1 {
					st.Level = 1
				}
				st.SetIdle()
			}
			releaseHero(c, r.SubjectID)
			return nil
		},
		OnCancel: func(c *Ctx, r task.Record) error {
			refundResources(c, r)
			if st, ok := c.State.Structure(r.Kind.StructureID); ok {
				st.SetIdle()
			}
			releaseHero(c, r.SubjectID)
			return nil
		},
	}
}

func upgradeHandler() Handler {
	return Handler{
		OnStart: func(c *Ctx, r *task.Record) error {
			st, ok := c.State.Structure(r.Kind.StructureID)
			if !ok {
				return fmt.Errorf("%w: structure %q", ErrUnknownEntity, r.Kind.StructureID)
			}
			if !st.Built {
				return fmt.Errorf("%w: %s", ErrNotBuilt, st.ID)
			}
			if r.SubjectID != "" {
				if _, ok := c.State.Hero(r.SubjectID); !ok {
					return fmt.Errorf("%w: hero %q", ErrUnknownEntity, r.SubjectID)
				}
			}
			cost := scaledCost(c.Catalog.Spec(task.TagUpgrade).Cost, st.Level)
			if err := chargeResources(c, r, cost); err != nil {
				return err
			}
			st.Status = village.StatusUpgrading
			st.RemainingMs = r.RemainingMs(c.Now)
			return assignBuilder(c, r)
		},
		OnCompletion: func(c *Ctx, r task.Record) error {
			if st, ok := c.State.Structure(r.Kind.StructureID); ok {
				st.Level++
				st.SetIdle()
			}
			releaseHero(c, r.SubjectID)
			return nil
		},
		OnCancel: func(c *Ctx, r task.Record) error {
			refundResources(c, r)
			if st, ok := c.State.Structure(r.Kind.StructureID); ok {
				st.SetIdle()
			}
			releaseHero(c, r.SubjectID)
			return nil
		},
	}
}

func productionHandler() Handler {
	return Handler{
		OnInterval: func(c *Ctx, r task.Record, ticks int64) error {
			per := c.Catalog.Spec(task.TagAutoProduction).PerTick
			if per <= 0 {
				return nil
			}
			for i := int64(0); i < ticks; i++ {
				if c.State.Resources.Add(r.Kind.Resource, per) == 0 {
					break
				}
			}
			return nil
		},
	}
}
