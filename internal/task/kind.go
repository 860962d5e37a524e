package task

import (
	"fmt"
	"strings"

	"villagekeep/internal/village"
)

// Tag names a task kind.
type Tag string

const (
	TagRest           Tag = "rest"
	TagGather         Tag = "gather"
	TagWork           Tag = "work"
	TagTrain          Tag = "train"
	TagBuild          Tag = "build"
	TagUpgrade        Tag = "upgrade"
	TagMission        Tag = "mission"
	TagDailyMission   Tag = "daily_mission"
	TagAutoProduction Tag = "auto_production"
)

// Tags lists every known tag in a stable order.
var Tags = []Tag{
	TagRest, TagGather, TagWork, TagTrain, TagBuild,
	TagUpgrade, TagMission, TagDailyMission, TagAutoProduction,
}

// Kind is the tagged variant describing what a task does.
//
// Only the payload field matching Tag is meaningful:
//   - gather, auto_production: Resource
//   - build, upgrade: StructureID
//   - mission, daily_mission: SlotID
type Kind struct {
	Tag         Tag    `json:"tag"`
	Resource    string `json:"resource,omitempty"`
	StructureID string `json:"structure_id,omitempty"`
	SlotID      string `json:"slot_id,omitempty"`
}

func Rest() Kind { return Kind{Tag: TagRest} }
func Gather(resource string) Kind { return Kind{Tag: TagGather, Resource: resource} }
func Work() Kind { return Kind{Tag: TagWork} }
func Train() Kind { return Kind{Tag: TagTrain} }
func Build(structureID string) Kind { return Kind{Tag: TagBuild, StructureID: structureID} }
func Upgrade(structureID string) Kind { return Kind{Tag: TagUpgrade, StructureID: structureID} }
func Mission(slotID string) Kind { return Kind{Tag: TagMission, SlotID: slotID} }
func DailyMission(slotID string) Kind { return Kind{Tag: TagDailyMission, SlotID: slotID} }
func AutoProduction(resource string) Kind { return Kind{Tag: TagAutoProduction, Resource: resource} }

// Known reports whether k.Tag is a registered tag.
func (k Kind) Known() bool {
	for _, t := range Tags {
		if t == k.Tag {
			return true
		}
	}
	return false
}

// Validate checks that the payload required by the tag is present.
func (k Kind) Validate() error {
	switch k.Tag {
	case TagRest, TagWork, TagTrain:
		return nil
	case TagGather:
		switch k.Resource {
		case village.Food, village.Wood, village.Stone:
		case "":
			return fmt.Errorf("%s: resource required", k.Tag)
		default:
			return fmt.Errorf("%s: cannot gather %q", k.Tag, k.Resource)
		}
	case TagAutoProduction:
		if strings.TrimSpace(k.Resource) == "" {
			return fmt.Errorf("%s: resource required", k.Tag)
		}
	case TagBuild, TagUpgrade:
		if strings.TrimSpace(k.StructureID) == "" {
			return fmt.Errorf("%s: structure id required", k.Tag)
		}
	case TagMission, TagDailyMission:
		if strings.TrimSpace(k.SlotID) == "" {
			return fmt.Errorf("%s: slot id required", k.Tag)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, k.Tag)
	}
	return nil
}

// Repeating reports whether the kind is a pure repeating-effect kind
// (interval effects are its whole purpose, completion is optional).
func (k Kind) Repeating() bool { return k.Tag == TagAutoProduction }

// Soft reports whether the kind's interval effects are gateable: while the
// suspension gate is held they are dropped instead of caught up.
func (k Kind) Soft() bool { return k.Tag == TagAutoProduction }

// String renders the compact "tag:payload" form used in logs and by the
// legacy save format.
func (k Kind) String() string {
	switch {
	case k.Resource != "":
		return string(k.Tag) + ":" + k.Resource
	case k.StructureID != "":
		return string(k.Tag) + ":" + k.StructureID
	case k.SlotID != "":
		return string(k.Tag) + ":" + k.SlotID
	default:
		return string(k.Tag)
	}
}

// ParseKind parses the compact "tag[:payload]" form.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Kind{}, fmt.Errorf("%w: empty", ErrUnknownKind)
	}
	tag, payload, _ := strings.Cut(s, ":")
	k := Kind{Tag: Tag(strings.ToLower(strings.TrimSpace(tag)))}
	payload = strings.TrimSpace(payload)
	switch k.Tag {
	case TagGather, TagAutoProduction:
		k.Resource = payload
	case TagBuild, TagUpgrade:
		k.StructureID = payload
	case TagMission, TagDailyMission:
		k.SlotID = payload
	case TagRest, TagWork, TagTrain:
	default:
		return Kind{}, fmt.Errorf("%w: %q", ErrUnknownKind, tag)
	}
	if err := k.Validate(); err != nil {
		return Kind{}, err
	}
	return k, nil
}
