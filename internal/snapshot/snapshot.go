// Package snapshot encodes the village state and task records into a
// versioned blob, and upgrades older blobs through the migration chain.
package snapshot

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"villagekeep/internal/task"
	"villagekeep/internal/village"
)

//go:embed container.schema.json
var containerSchemaJSON string

//go:embed current.schema.json
var currentSchemaJSON string

var (
	containerSchema = jsonschema.MustCompileString("container.schema.json", containerSchemaJSON)
	currentSchema   = jsonschema.MustCompileString("current.schema.json", currentSchemaJSON)
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Snapshot is the persisted form of the engine state.
type Snapshot struct {
	Version    int                 `json:"version"`
	SavedAt    int64               `json:"saved_at"`
	Heroes     []village.Hero      `json:"heroes"`
	Structures []village.Structure `json:"structures"`
	Resources  village.Resources   `json:"resources"`
	Tasks      []task.Record       `json:"tasks"`
	Counters   village.Counters    `json:"counters"`

	// Extensions holds top-level keys this build does not know about. They
	// are written back unchanged.
	Extensions map[string]json.RawMessage `json:"-"`
}

var knownKeys = map[string]bool{
	"version": true, "saved_at": true, "heroes": true, "structures": true,
	"resources": true, "tasks": true, "counters": true,
}

// FromState captures st and records at savedAt.
func FromState(st *village.State, records []task.Record, savedAt int64) Snapshot {
	s := Snapshot{
		Version:    CurrentVersion,
		SavedAt:    savedAt,
		Heroes:     st.HeroList(),
		Structures: st.StructureList(),
		Tasks:      records,
		Counters:   st.Counters,
	}
	if st.Resources != nil {
		s.Resources = village.Resources{
			Amounts: copyInts(st.Resources.Amounts),
			Caps:    copyInts(st.Resources.Caps),
		}
	} else {
		s.Resources = village.Resources{Amounts: map[string]int{}, Caps: map[string]int{}}
	}
	if s.Tasks == nil {
		s.Tasks = []task.Record{}
	}
	return s
}

// State rebuilds the entity model.
func (s Snapshot) State() *village.State {
	st := village.NewState()
	for _, h := range s.Heroes {
		if strings.TrimSpace(h.ID) == "" {
			continue
		}
		st.AddHero(h)
	}
	for _, x := range s.Structures {
		if strings.TrimSpace(x.ID) == "" {
			continue
		}
		st.AddStructure(x)
	}
	if s.Resources.Caps != nil {
		st.Resources = village.NewResources(s.Resources.Caps)
	}
	for k, v := range s.Resources.Amounts {
		st.Resources.Amounts[k] = v
	}
	st.Counters = s.Counters
	if st.Counters.DailyLimit <= 0 {
		st.Counters.DailyLimit = village.DefaultDailyLimit
	}
	return st
}

// Codec turns snapshots into blobs and back.
type Codec struct {
	// Compress writes zstd frames. Decode accepts both forms regardless.
	Compress bool
}

// Encode uses an uncompressed codec.
func Encode(s Snapshot) ([]byte, error) { return Codec{}.Encode(s) }

// Decode accepts compressed and plain blobs.
func Decode(blob []byte) (Snapshot, error) { return Codec{}.Decode(blob) }

func (c Codec) Encode(s Snapshot) ([]byte, error) {
	s.Version = CurrentVersion
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if len(s.Extensions) > 0 {
		var top map[string]json.RawMessage
		if err := json.Unmarshal(raw, &top); err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
		for k, v := range s.Extensions {
			if !knownKeys[k] {
				top[k] = v
			}
		}
		if raw, err = json.Marshal(top); err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
	}
	if !c.Compress {
		return raw, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (c Codec) Decode(blob []byte) (Snapshot, error) {
	var s Snapshot
	doc, err := DecodeDoc(blob)
	if err != nil {
		return s, err
	}
	if _, err := Migrate(doc); err != nil {
		return s, corrupt("migration failed", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return s, corrupt("re-encode", err)
	}
	norm, err := parseDoc(raw)
	if err != nil {
		return s, err
	}
	if err := currentSchema.Validate(norm); err != nil {
		return s, corrupt("migrated document invalid", err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, corrupt("decode fields", err)
	}
	for k := range norm {
		if knownKeys[k] {
			continue
		}
		if s.Extensions == nil {
			s.Extensions = map[string]json.RawMessage{}
		}
		b, _ := json.Marshal(norm[k])
		s.Extensions[k] = b
	}
	for i := range s.Tasks {
		s.Tasks[i].Normalize()
	}
	s.Version = CurrentVersion
	return s, nil
}

// DecodeDoc decompresses blob if needed and checks it is a snapshot
// container of any version.
func DecodeDoc(blob []byte) (Doc, error) {
	blob = bytes.TrimSpace(blob)
	if len(blob) == 0 {
		return nil, corrupt("empty blob", nil)
	}
	if bytes.HasPrefix(blob, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(blob, nil)
		if err != nil {
			return nil, corrupt("zstd frame", err)
		}
		blob = out
	}
	doc, err := parseDoc(blob)
	if err != nil {
		return nil, err
	}
	if err := containerSchema.Validate(doc); err != nil {
		return nil, corrupt("not a snapshot container", err)
	}
	return doc, nil
}

func parseDoc(b []byte) (Doc, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, corrupt("json", err)
	}
	if dec.More() {
		return nil, corrupt("trailing data", nil)
	}
	doc, ok := v.(Doc)
	if !ok {
		return nil, corrupt("top level is not an object", nil)
	}
	return doc, nil
}

// ExtensionKeys lists preserved unknown keys, sorted.
func (s Snapshot) ExtensionKeys() []string {
	out := make([]string, 0, len(s.Extensions))
	for k := range s.Extensions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func copyInts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
