package task

// Category groups kinds that exclude each other on the same entity.
type Category string

const (
	CategoryActivity     Category = "activity"
	CategoryMission      Category = "mission"
	CategoryConstruction Category = "construction"
	CategoryProduction   Category = "production"
)

// Slot is one (entity, category) pair a live task occupies. Two records
// conflict iff they occupy a common slot.
type Slot struct {
	Entity   string
	Category Category
}

func (s Slot) String() string { return s.Entity + "/" + string(s.Category) }

// Entity key prefixes. Heroes and structures share the id namespace of the
// village, mission slots and producers get their own.
const (
	producerVillage = "village"
)

// HeroKey, StructureKey, etc. build the entity part of a Slot.
func HeroKey(id string) string { return "hero:" + id }
func StructureKey(id string) string { return "structure:" + id }
func MissionSlotKey(id string) string { return "mission-slot:" + id }
func DailySlotKey(id string) string { return "daily-slot:" + id }
func ProducerKey(id string) string {
	if id == "" {
		id = producerVillage
	}
	return "producer:" + id
}

// Slots returns the slots a record with kind k and subject occupies.
//
// This is the single compatibility table for the engine:
//
//	rest, gather, work, train     hero/activity
//	mission(s)                    hero/activity, mission-slot:s/mission
//	daily_mission(s)              hero/activity, daily-slot:s/mission
//	build(st), upgrade(st)        structure:st/construction (+ hero/activity when a builder is assigned)
//	auto_production(r)            producer/production:r
func Slots(k Kind, subjectID string) []Slot {
	var out []Slot
	hero := func() {
		if subjectID != "" {
			out = append(out, Slot{Entity: HeroKey(subjectID), Category: CategoryActivity})
		}
	}
	switch k.Tag {
	case TagRest, TagGather, TagWork, TagTrain:
		hero()
	case TagMission:
		hero()
		out = append(out, Slot{Entity: MissionSlotKey(k.SlotID), Category: CategoryMission})
	case TagDailyMission:
		hero()
		out = append(out, Slot{Entity: DailySlotKey(k.SlotID), Category: CategoryMission})
	case TagBuild, TagUpgrade:
		out = append(out, Slot{Entity: StructureKey(k.StructureID), Category: CategoryConstruction})
		hero()
	case TagAutoProduction:
		out = append(out, Slot{Entity: ProducerKey(subjectID), Category: CategoryProduction + Category(":"+k.Resource)})
	}
	return out
}

// Conflicts returns the slots shared by a and b.
func Conflicts(a, b []Slot) []Slot {
	var out []Slot
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
			}
		}
	}
	return out
}

// Occupies reports whether any of slots belongs to the given entity id
// (hero or structure).
func Occupies(slots []Slot, entityID string) bool {
	hk, sk := HeroKey(entityID), StructureKey(entityID)
	for _, s := range slots {
		if s.Entity == hk || s.Entity == sk {
			return true
		}
	}
	return false
}
