package data

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// FieldSet is a set of dotted wire-form field paths, e.g.
// "recordingSettings.mode". The diff engine reports changes and the
// echo-suppression table matches entries at this granularity.
type FieldSet map[string]struct{}

func NewFieldSet(paths ...string) FieldSet {
	s := make(FieldSet, len(paths))
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

func (s FieldSet) Add(path string)      { s[path] = struct{}{} }
func (s FieldSet) Remove(path string)   { delete(s, path) }
func (s FieldSet) Has(path string) bool { _, ok := s[path]; return ok }
func (s FieldSet) Empty() bool          { return len(s) == 0 }

// Paths returns the members sorted, for stable logs and tests.
func (s FieldSet) Paths() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Extras retains unknown top-level wire keys on an object. They are not
// typed but survive serialization, so firmware additions round-trip.
type Extras map[string]any

// DeviceHeader is the common header every adoptable device shares.
type DeviceHeader struct {
	ID               string      `json:"id"`
	MAC              string      `json:"mac,omitempty"`
	ModelKey         ModelType   `json:"modelKey,omitempty"`
	Name             string      `json:"name,omitempty"`
	Type             string      `json:"type,omitempty"`
	State            DeviceState `json:"state,omitempty"`
	FirmwareVersion  string      `json:"firmwareVersion,omitempty"`
	HardwareRevision string      `json:"hardwareRevision,omitempty"`
	IsAdopted        bool        `json:"isAdopted,omitempty"`
	UpSince          *Timestamp  `json:"upSince,omitempty"`
	LastSeen         *Timestamp  `json:"lastSeen,omitempty"`
	ConnectionHost   string      `json:"connectionHost,omitempty"`
	Permissions      []string    `json:"permissions,omitempty"`
}

func (h *DeviceHeader) DeviceID() string { return h.ID }

func (h *DeviceHeader) DeviceMAC() string { return h.MAC }

func (h *DeviceHeader) DeviceName() string { return h.Name }

func (h *DeviceHeader) DeviceState() DeviceState { return h.State }

// normalize canonicalizes ingest-only header fields. A malformed MAC
// rejects the whole object.
func (h *DeviceHeader) normalize() error {
	if h.MAC == "" {
		return nil
	}
	mac, err := NormalizeMAC(h.MAC)
	if err != nil {
		return err
	}
	h.MAC = mac
	return nil
}

// Object is anything addressable by id in the bootstrap graph.
type Object interface {
	DeviceID() string
	Model() ModelType
}

// Device is an adoptable device variant with the common header.
type Device interface {
	Object
	DeviceMAC() string
	DeviceName() string
	DeviceState() DeviceState
}

// volatileClearer is implemented by devices that carry live telemetry
// which must be dropped when the device transitions to disconnected.
type volatileClearer interface {
	clearVolatile()
}

// extrasCarrier gives the codec access to an object's extras bag.
type extrasCarrier interface {
	extras() Extras
	setExtras(Extras)
}

var knownKeysCache sync.Map // reflect.Type -> map[string]struct{}

// knownKeys returns the set of top-level JSON keys a struct type
// declares, including embedded structs. Cached per type.
func knownKeys(t reflect.Type) map[string]struct{} {
	if v, ok := knownKeysCache.Load(t); ok {
		return v.(map[string]struct{})
	}
	keys := make(map[string]struct{})
	collectKeys(t, keys)
	knownKeysCache.Store(t, keys)
	return keys
}

func collectKeys(t reflect.Type, keys map[string]struct{}) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collectKeys(ft, keys)
				continue
			}
		}
		tag := f.Tag.Get("json")
		if tag == "-" || !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		keys[name] = struct{}{}
	}
}

// decodeObject fills v (a pointer to an object struct) from a canonical
// wire map. Keys the type does not declare land in the extras bag.
func decodeObject(m map[string]any, v any) error {
	t := reflect.TypeOf(v)
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("data: decode target must be a struct pointer, got %T", v)
	}
	known := knownKeys(t.Elem())
	typed := make(map[string]any, len(m))
	var extra Extras
	for k, val := range m {
		if _, ok := known[k]; ok {
			typed[k] = val
		} else {
			if extra == nil {
				extra = Extras{}
			}
			extra[k] = val
		}
	}
	raw, err := json.Marshal(typed)
	if err != nil {
		return fmt.Errorf("data: re-encode: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("data: decode %T: %w", v, err)
	}
	if ec, ok := v.(extrasCarrier); ok && extra != nil {
		ec.setExtras(extra)
	}
	return nil
}

// encodeObject renders an object back to its canonical wire map,
// overlaying retained extras. Typed fields win over stale extras.
func encodeObject(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("data: encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if ec, ok := v.(extrasCarrier); ok {
		for k, val := range ec.extras() {
			if _, exists := m[k]; !exists {
				m[k] = val
			}
		}
	}
	return m, nil
}

// ToWire emits only the listed dotted field paths of an object. The
// mutation path uses it to build minimal PATCH bodies.
func ToWire(v any, fields FieldSet) ([]byte, error) {
	full, err := encodeObject(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, path := range fields.Paths() {
		val, ok := lookupPath(full, path)
		if !ok {
			continue
		}
		insertPath(out, path, val)
	}
	return json.Marshal(out)
}

func lookupPath(m map[string]any, path string) (any, bool) {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func insertPath(m map[string]any, path string, val any) {
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		child, ok := m[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[part] = child
		}
		m = child
	}
	m[parts[len(parts)-1]] = val
}

// mergeInto deep-merges src into dst. Nested objects merge key-wise;
// scalars and arrays overwrite.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				mergeInto(dv, sv)
				continue
			}
		}
		dst[k] = deepCopyValue(v)
	}
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

// changedPaths records the leaf paths of partial whose values differ
// from old. Both sides must be JSON-normalized maps.
func changedPaths(old map[string]any, partial map[string]any, prefix string, out FieldSet) {
	for k, v := range partial {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if pv, ok := v.(map[string]any); ok {
			if ov, ok := old[k].(map[string]any); ok {
				changedPaths(ov, pv, path, out)
				continue
			}
		}
		if !reflect.DeepEqual(old[k], v) {
			out.Add(path)
		}
	}
}

// applyPartial merges a sparse wire partial into obj, returning a fresh
// object of the same concrete type plus the set of fields that actually
// changed. The original object is left untouched so readers holding a
// reference never observe a torn record.
func applyPartial(obj any, partial map[string]any) (any, FieldSet, error) {
	old, err := encodeObject(obj)
	if err != nil {
		return nil, nil, err
	}
	changed := FieldSet{}
	changedPaths(old, partial, "", changed)

	merged := deepCopyValue(old).(map[string]any)
	mergeInto(merged, partial)

	fresh := reflect.New(reflect.TypeOf(obj).Elem()).Interface()
	if err := decodeObject(merged, fresh); err != nil {
		return nil, nil, err
	}
	return fresh, changed, nil
}

// Clone returns an independent deep copy of a device object, made by a
// wire round trip so extras survive. Mutate the clone freely; the
// original stays visible to readers.
func Clone(obj any) (any, error) {
	m, err := encodeObject(obj)
	if err != nil {
		return nil, err
	}
	fresh := reflect.New(reflect.TypeOf(obj).Elem()).Interface()
	if err := decodeObject(m, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Diff compares two objects of the same concrete type and returns the
// dotted paths that changed plus the minimal wire body carrying just
// those fields.
func Diff(old, updated any) (FieldSet, []byte, error) {
	om, err := encodeObject(old)
	if err != nil {
		return nil, nil, err
	}
	nm, err := encodeObject(updated)
	if err != nil {
		return nil, nil, err
	}
	changed := FieldSet{}
	changedPaths(om, nm, "", changed)
	// Fields cleared entirely on the updated side still count.
	for k := range om {
		if _, ok := nm[k]; !ok {
			changed.Add(k)
		}
	}
	if changed.Empty() {
		return changed, nil, nil
	}
	body, err := ToWire(updated, changed)
	if err != nil {
		return nil, nil, err
	}
	return changed, body, nil
}
