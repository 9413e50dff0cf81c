package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ElementID is the gateway's stable element path, e.g. "48".
type ElementID string

// StatusKey names one status facet of an element. Keys are always stored
// lowercased, see NormalizeKey.
type StatusKey string

func NormalizeKey(s string) StatusKey {
	return StatusKey(strings.ToLower(strings.TrimSpace(s)))
}

// StatusValue is either the flag sentinel (status present, no payload) or a
// textual payload. The zero value is an empty textual payload, not a flag.
type StatusValue struct {
	Text string
	flag bool
}

func Flag() StatusValue {
	return StatusValue{flag: true}
}

func Text(s string) StatusValue {
	return StatusValue{Text: s}
}

func (v StatusValue) IsFlag() bool {
	return v.flag
}

func (v StatusValue) String() string {
	if v.flag {
		return "FLAG"
	}
	return v.Text
}

// ElementSnapshot holds the statuses of one element at one poll instant.
// Published snapshots are never mutated, use Clone before changing one.
type ElementSnapshot map[StatusKey]StatusValue

// Get distinguishes a missing key (ok == false) from a key present with the
// flag sentinel (ok == true, v.IsFlag()).
func (e ElementSnapshot) Get(key StatusKey) (StatusValue, bool) {
	v, ok := e[key]
	return v, ok
}

func (e ElementSnapshot) Has(key StatusKey) bool {
	_, ok := e[key]
	return ok
}

// Value returns the textual payload of key, false when absent or a flag.
func (e ElementSnapshot) Value(key StatusKey) (string, bool) {
	v, ok := e[key]
	if !ok || v.IsFlag() {
		return "", false
	}
	return v.Text, true
}

func (e ElementSnapshot) Keys() []StatusKey {
	keys := make([]StatusKey, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ValueKeys returns the keys carrying a textual payload, sorted.
func (e ElementSnapshot) ValueKeys() []StatusKey {
	var keys []StatusKey
	for _, k := range e.Keys() {
		if !e[k].IsFlag() {
			keys = append(keys, k)
		}
	}
	return keys
}

func (e ElementSnapshot) Clone() ElementSnapshot {
	out := make(ElementSnapshot, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// WorldSnapshot maps every known element to its statuses. It is replaced
// wholesale on every publish.
type WorldSnapshot map[ElementID]ElementSnapshot

func (w WorldSnapshot) IDs() []ElementID {
	ids := make([]ElementID, 0, len(w))
	for id := range w {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone copies the element map. Element snapshots are shared, they are
// immutable once published.
func (w WorldSnapshot) Clone() WorldSnapshot {
	out := make(WorldSnapshot, len(w))
	for id, e := range w {
		out[id] = e
	}
	return out
}

// ElementMetadata is the declared descriptor of an element, fetched at most
// once per process.
type ElementMetadata struct {
	ID       ElementID `json:"id"`
	Name     string    `json:"name"`
	ClassID  string    `json:"class_id"`
	Actions  []string  `json:"actions,omitempty"`
	Statuses []string  `json:"statuses,omitempty"`
}

func (m ElementMetadata) HasAction(action string) bool {
	for _, a := range m.Actions {
		if strings.EqualFold(a, action) {
			return true
		}
	}
	return false
}

type Kind int

const (
	KindUnknown Kind = iota
	KindCover
	KindLightDimmer
	KindLightOnOff
	KindSwitchOutlet
	KindSwitch
	KindClimate
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindCover:
		return "cover"
	case KindLightDimmer:
		return "light_dimmer"
	case KindLightOnOff:
		return "light_onoff"
	case KindSwitchOutlet:
		return "switch_outlet"
	case KindSwitch:
		return "switch"
	case KindClimate:
		return "climate"
	default:
		return fmt.Sprintf("Unknown Kind(%d)", k)
	}
}

func (k Kind) IsLight() bool {
	return k == KindLightDimmer || k == KindLightOnOff
}

// CacheData is what gets persisted between runs.
type CacheData struct {
	Metadata   map[ElementID]ElementMetadata `json:"metadata"`
	LastUpdate time.Time                     `json:"last_update"`
}
