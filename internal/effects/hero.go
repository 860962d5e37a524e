package effects

import (
	"fmt"

	"villagekeep/internal/task"
	"villagekeep/internal/village"
)

// occupyHero charges the kind's energy cost and marks the hero busy.
func occupyHero(c *Ctx, r *task.Record, status village.Status, energyCost int) error {
	h, ok := c.State.Hero(r.SubjectID)
	if !ok {
		return fmt.Errorf("%w: hero %q", ErrUnknownEntity, r.SubjectID)
	}
	if energyCost > 0 {
		if h.Energy < energyCost {
			return fmt.Errorf("%w: hero %s needs %d energy, has %d", ErrInsufficient, h.ID, energyCost, h.Energy)
		}
		h.AddEnergy(-energyCost)
		r.Cost.Energy = energyCost
	}
	h.Status = status
	h.ActiveKind = r.Kind.String()
	h.RemainingMs = r.RemainingMs(c.Now)
	h.RestRecovered = 0
	return nil
}

// releaseHero returns the hero to idle. A missing hero is not an error: the
// record outlived its subject and completion still has to clean up.
func releaseHero(c *Ctx, heroID string) *village.Hero {
	h, ok := c.State.Hero(heroID)
	if !ok {
		return nil
	}
	h.SetIdle()
	return h
}

func refundEnergy(c *Ctx, r task.Record) {
	if r.Cost.Energy <= 0 {
		return
	}
	if h, ok := c.State.Hero(r.SubjectID); ok {
		h.AddEnergy(r.Cost.Energy)
	}
}

func restHandler() Handler {
	return Handler{
		OnStart: func(c *Ctx, r *task.Record) error {
			return occupyHero(c, r, village.StatusResting, 0)
		},
		OnInterval: func(c *Ctx, r task.Record, ticks int64) error {
			h, ok := c.State.Hero(r.SubjectID)
			if !ok {
				return nil
			}
			per := c.Catalog.Spec(task.TagRest).EnergyPerTick
			for i := int64(0); i < ticks; i++ {
				applied := h.AddEnergy(per)
				if applied <= 0 {
					break
				}
				h.RestRecovered += applied
			}
			return nil
		},
		OnCompletion: func(c *Ctx, r task.Record) error {
			releaseHero(c, r.SubjectID)
			return nil
		},
		OnCancel: func(c *Ctx, r task.Record) error {
			releaseHero(c, r.SubjectID)
			return nil
		},
	}
}

type reward func(c *Ctx, r task.Record, h *village.Hero) error

// heroJob builds the handler for deadline tasks that occupy a hero, charge
// energy up front and grant a reward at completion.
func heroJob(status village.Status, grant reward) Handler {
	return Handler{
		OnStart: func(c *Ctx, r *task.Record) error {
			return occupyHero(c, r, status, c.Catalog.Spec(r.Kind.Tag).EnergyCost)
		},
		OnCompletion: func(c *Ctx, r task.Record) error {
			h := releaseHero(c, r.SubjectID)
			return grant(c, r, h)
		},
		OnCancel: func(c *Ctx, r task.Record) error {
			refundEnergy(c, r)
			releaseHero(c, r.SubjectID)
			return nil
		},
	}
}

func gatherReward(c *Ctx, r task.Record, _ *village.Hero) error {
	n := c.Catalog.Spec(task.TagGather).Yield[r.Kind.Resource]
	c.State.Resources.Add(r.Kind.Resource, n)
	return nil
}

func yieldReward(c *Ctx, r task.Record, _ *village.Hero) error {
	for res, n := range c.Catalog.Spec(r.Kind.Tag).Yield {
		c.State.Resources.Add(res, n)
	}
	return nil
}

func trainReward(c *Ctx, r task.Record, h *village.Hero) error {
	grantXP(c, h, c.Catalog.Spec(r.Kind.Tag).XP)
	return nil
}

func missionReward(c *Ctx, r task.Record, h *village.Hero) error {
	if err := yieldReward(c, r, h); err != nil {
		return err
	}
	grantXP(c, h, c.Catalog.Spec(r.Kind.Tag).XP)
	c.State.Counters.MissionsCompleted++
	return nil
}

func grantXP(c *Ctx, h *village.Hero, xp int) {
	if h == nil || xp <= 0 {
		return
	}
	h.XP += xp
	if per := c.Catalog.XPPerLevel; per > 0 {
		h.Level = 1 + h.XP/per
	}
}

func dailyMissionHandler() Handler {
	base := heroJob(village.StatusOnMission, missionReward)
	return Handler{
		OnStart: func(c *Ctx, r *task.Record) error {
			cnt := &c.State.Counters
			cnt.RollDay(c.Now)
			limit := cnt.DailyLimit
			if limit <= 0 {
				limit = village.DefaultDailyLimit
			}
			if cnt.DailyDone >= limit {
				return fmt.Errorf("%w: %d/%d", ErrDailyLimit, cnt.DailyDone, limit)
			}
			if err := base.OnStart(c, r); err != nil {
				return err
			}
			cnt.DailyDone++
			return nil
		},
		OnCompletion: base.OnCompletion,
		OnCancel: func(c *Ctx, r task.Record) error {
			cnt := &c.State.Counters
			if cnt.LastProcessedDay == village.DayKey(r.StartedAt) && cnt.DailyDone > 0 {
				cnt.DailyDone--
			}
			return base.OnCancel(c, r)
		},
	}
}
