package snapshot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"villagekeep/internal/task"
	"villagekeep/internal/village"
)

// CurrentVersion is the schema version Encode writes.
const CurrentVersion = 5

// Doc is a snapshot in generic form, as decoded from JSON with UseNumber.
type Doc = map[string]any

// Step upgrades a document from version From to From+1. Steps only add or
// rename fields and must be safe to apply twice.
type Step struct {
	From  int
	Name  string
	Apply func(Doc) error
}

// Steps is the ordered migration chain.
var Steps = []Step{
	{From: 1, Name: "timers-to-tasks", Apply: timersToTasks},
	{From: 2, Name: "tagged-kinds", Apply: taggedKinds},
	{From: 3, Name: "daily-counters", Apply: dailyCounters},
	{From: 4, Name: "rest-intervals", Apply: restIntervals},
}

// StoredVersion returns the document's version (1 when absent or unreadable).
func StoredVersion(doc Doc) int {
	v, ok := asInt(doc["version"])
	if !ok || v < 1 {
		return 1
	}
	return int(v)
}

// Migrate applies every step after the document's stored version, fills any
// required field still missing, and stamps CurrentVersion. A document newer
// than CurrentVersion is left untouched.
func Migrate(doc Doc) (Doc, error) {
	from := StoredVersion(doc)
	if from > CurrentVersion {
		return doc, nil
	}
	for _, st := range Steps {
		if st.From < from {
			continue
		}
		if err := st.Apply(doc); err != nil {
			return nil, fmt.Errorf("migrate v%d (%s): %w", st.From, st.Name, err)
		}
		doc["version"] = st.From + 1
	}
	fillDefaults(doc)
	doc["version"] = CurrentVersion
	return doc, nil
}

// fillDefaults supplies the fields the current schema requires, whatever
// version the document was written at. Present values are never replaced.
func fillDefaults(doc Doc) {
	for _, key := range []string{"heroes", "structures", "tasks"} {
		setDefault(doc, key, []any{})
	}

	res, ok := doc["resources"].(Doc)
	if !ok {
		res = Doc{}
		doc["resources"] = res
	}
	if _, ok := res["amounts"].(Doc); !ok {
		res["amounts"] = Doc{}
	}
	caps, ok := res["caps"].(Doc)
	if !ok {
		caps = Doc{}
		res["caps"] = caps
	}
	for name, v := range village.DefaultCaps {
		setDefault(caps, name, v)
	}

	c, ok := doc["counters"].(Doc)
	if !ok {
		c = Doc{}
		doc["counters"] = c
	}
	setDefault(c, "daily_limit", village.DefaultDailyLimit)
	setDefault(c, "daily_done", 0)
	setDefault(c, "last_processed_day", "")
	setDefault(c, "missions_completed", 0)

	for _, h := range objects(doc["heroes"]) {
		if m, ok := asInt(h["max_energy"]); !ok || m < 1 {
			h["max_energy"] = village.DefaultMaxEnergy
		}
		if lvl, ok := asInt(h["level"]); !ok || lvl < 1 {
			h["level"] = 1
		}
		if _, ok := asInt(h["energy"]); !ok {
			h["energy"] = intOr(h["max_energy"], village.DefaultMaxEnergy)
		}
		if str(h["status"]) == "" {
			h["status"] = string(village.StatusIdle)
		}
	}

	for _, st := range objects(doc["structures"]) {
		lvl, hasLevel := asInt(st["level"])
		if _, ok := st["built"].(bool); !ok {
			st["built"] = hasLevel && lvl > 0
		}
		if !hasLevel {
			if st["built"] == true {
				st["level"] = 1
			} else {
				st["level"] = 0
			}
		}
		if str(st["status"]) == "" {
			st["status"] = string(village.StatusIdle)
		}
	}

	ids := newLegacyIDs(objects(doc["tasks"]))
	for _, rec := range objects(doc["tasks"]) {
		if str(rec["id"]) == "" {
			rec["id"] = ids.next()
		}
		setDefault(rec, "started_at", 0)
		setDefault(rec, "duration_ms", 0)
		if _, ok := rec["deadline_at"]; !ok {
			rec["deadline_at"] = intOr(rec["started_at"], 0) + intOr(rec["duration_ms"], 0)
		}
		if _, ok := rec["completed"].(bool); !ok {
			rec["completed"] = false
		}
	}
}

// legacyIDs hands out "legacy-N" ids for records saved without one, skipping
// any already taken.
type legacyIDs struct {
	taken map[string]bool
	n     int
}

func newLegacyIDs(recs []Doc) *legacyIDs {
	ids := &legacyIDs{taken: make(map[string]bool, len(recs))}
	for _, rec := range recs {
		if id := str(rec["id"]); id != "" {
			ids.taken[id] = true
		}
	}
	return ids
}

func (l *legacyIDs) next() string {
	for {
		id := fmt.Sprintf("legacy-%d", l.n)
		l.n++
		if !l.taken[id] {
			l.taken[id] = true
			return id
		}
	}
}

// v1 -> v2: timers become tasks with explicit deadlines; resources become
// {amounts, caps}.
func timersToTasks(doc Doc) error {
	setDefault(doc, "heroes", []any{})
	setDefault(doc, "structures", []any{})
	if _, ok := doc["tasks"]; !ok {
		timers := objects(doc["timers"])
		ids := newLegacyIDs(timers)
		tasks := make([]any, 0, len(timers))
		for _, t := range timers {
			rec := Doc{}
			copyUnknown(rec, t, "type", "hero", "start", "duration")
			rec["id"] = str(t["id"])
			if rec["id"] == "" {
				rec["id"] = ids.next()
			}
			rec["kind"] = str(t["type"])
			rec["subject_id"] = str(t["hero"])
			start := intOr(t["start"], 0)
			dur := intOr(t["duration"], 0)
			rec["started_at"] = start
			rec["duration_ms"] = dur
			rec["deadline_at"] = start + dur
			rec["completed"] = false
			tasks = append(tasks, rec)
		}
		doc["tasks"] = tasks
		delete(doc, "timers")
	}
	if res, ok := doc["resources"].(Doc); ok {
		if _, nested := res["amounts"]; !nested {
			flat := Doc{}
			for k, v := range res {
				flat[k] = v
			}
			doc["resources"] = Doc{"amounts": flat, "caps": Doc{}}
		}
	}
	for _, rec := range objects(doc["tasks"]) {
		if _, ok := rec["deadline_at"]; !ok {
			rec["deadline_at"] = intOr(rec["started_at"], 0) + intOr(rec["duration_ms"], 0)
		}
		if _, ok := rec["completed"]; !ok {
			rec["completed"] = false
		}
	}
	return nil
}

// v2 -> v3: "tag:payload" kind strings become tagged objects; heroes trade
// busy for status and gain max_energy. Records whose kind cannot be parsed
// move to quarantined_tasks so no data is lost.
func taggedKinds(doc Doc) error {
	kept := make([]any, 0)
	var quarantined []any
	if q, ok := doc["quarantined_tasks"].([]any); ok {
		quarantined = q
	}
	activeBySubject := map[string]task.Kind{}
	for _, rec := range objects(doc["tasks"]) {
		k, ok := kindOf(rec["kind"])
		if !ok {
			quarantined = append(quarantined, rec)
			continue
		}
		rec["kind"] = kindDoc(k)
		if sid := str(rec["subject_id"]); sid != "" {
			activeBySubject[sid] = k
		}
		kept = append(kept, rec)
	}
	doc["tasks"] = kept
	if len(quarantined) > 0 {
		doc["quarantined_tasks"] = quarantined
	}

	for _, h := range objects(doc["heroes"]) {
		if _, ok := h["max_energy"]; !ok {
			h["max_energy"] = village.DefaultMaxEnergy
		}
		if lvl, ok := asInt(h["level"]); !ok || lvl < 1 {
			h["level"] = 1
		}
		if _, ok := h["energy"]; !ok {
			h["energy"] = intOr(h["max_energy"], village.DefaultMaxEnergy)
		}
		if _, ok := h["status"]; !ok {
			status := village.StatusIdle
			if b, _ := h["busy"].(bool); b {
				status = village.StatusWorking
				if k, ok := activeBySubject[str(h["id"])]; ok {
					status = statusFor(k.Tag)
				}
			}
			h["status"] = string(status)
		}
		if _, ok := h["remaining_ms"]; !ok {
			if left, ok := asInt(h["time_left"]); ok && left > 0 {
				h["remaining_ms"] = left
			}
		}
		delete(h, "busy")
		delete(h, "time_left")
	}
	return nil
}

// v3 -> v4: daily mission counters; structures carry a level.
func dailyCounters(doc Doc) error {
	c, ok := doc["counters"].(Doc)
	if !ok {
		c = Doc{}
		doc["counters"] = c
	}
	setDefault(c, "daily_limit", village.DefaultDailyLimit)
	setDefault(c, "daily_done", 0)
	setDefault(c, "last_processed_day", "")
	setDefault(c, "missions_completed", 0)

	for _, st := range objects(doc["structures"]) {
		built, isBool := st["built"].(bool)
		lvl, hasLevel := asInt(st["level"])
		if !isBool {
			built = hasLevel && lvl > 0
			st["built"] = built
		}
		if !hasLevel {
			if built {
				st["level"] = 1
			} else {
				st["level"] = 0
			}
		}
		setDefault(st, "status", string(village.StatusIdle))
	}
	return nil
}

// v4 -> v5: rest records tick per minute; heroes track rest_recovered;
// counters remember the last active time for offline detection.
func restIntervals(doc Doc) error {
	for _, rec := range objects(doc["tasks"]) {
		k, _ := rec["kind"].(Doc)
		if str(k["tag"]) != string(task.TagRest) {
			continue
		}
		setDefault(rec, "interval_ms", int64(60_000))
		if _, ok := rec["last_tick_at"]; !ok {
			rec["last_tick_at"] = intOr(rec["started_at"], 0)
		}
	}
	for _, h := range objects(doc["heroes"]) {
		setDefault(h, "rest_recovered", 0)
	}
	if c, ok := doc["counters"].(Doc); ok {
		if _, ok := c["last_active_at"]; !ok {
			c["last_active_at"] = intOr(doc["saved_at"], 0)
		}
	}
	if _, ok := doc["resources"].(Doc); !ok {
		doc["resources"] = Doc{}
	}
	if res, ok := doc["resources"].(Doc); ok {
		caps, ok := res["caps"].(Doc)
		if !ok {
			caps = Doc{}
			res["caps"] = caps
		}
		for name, v := range village.DefaultCaps {
			setDefault(caps, name, v)
		}
		if _, ok := res["amounts"].(Doc); !ok {
			res["amounts"] = Doc{}
		}
	}
	return nil
}

func kindOf(v any) (task.Kind, bool) {
	switch x := v.(type) {
	case string:
		k, err := task.ParseKind(x)
		return k, err == nil
	case Doc:
		b, err := json.Marshal(x)
		if err != nil {
			return task.Kind{}, false
		}
		var k task.Kind
		if err := json.Unmarshal(b, &k); err != nil {
			return task.Kind{}, false
		}
		return k, k.Validate() == nil
	}
	return task.Kind{}, false
}

func kindDoc(k task.Kind) Doc {
	out := Doc{"tag": string(k.Tag)}
	if k.Resource != "" {
		out["resource"] = k.Resource
	}
	if k.StructureID != "" {
		out["structure_id"] = k.StructureID
	}
	if k.SlotID != "" {
		out["slot_id"] = k.SlotID
	}
	return out
}

func statusFor(tag task.Tag) village.Status {
	switch tag {
	case task.TagRest:
		return village.StatusResting
	case task.TagGather:
		return village.StatusGathering
	case task.TagTrain:
		return village.StatusTraining
	case task.TagMission, task.TagDailyMission:
		return village.StatusOnMission
	case task.TagBuild, task.TagUpgrade:
		return village.StatusBuilding
	}
	return village.StatusWorking
}

func objects(v any) []Doc {
	arr, _ := v.([]any)
	out := make([]Doc, 0, len(arr))
	for _, it := range arr {
		if m, ok := it.(Doc); ok {
			out = append(out, m)
		}
	}
	return out
}

func copyUnknown(dst, src Doc, skip ...string) {
	for k, v := range src {
		skipped := false
		for _, s := range skip {
			if k == s {
				skipped = true
				break
			}
		}
		if !skipped {
			dst[k] = v
		}
	}
}

func setDefault(m Doc, key string, v any) {
	if _, ok := m[key]; !ok {
		m[key] = v
	}
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	}
	return ""
}

func intOr(v any, def int64) int64 {
	if n, ok := asInt(v); ok {
		return n
	}
	return def
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		if f, err := x.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(x), true
	case int:
		return int64(x), true
	case int64:
		return x, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
