package data

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/uilibs/uiprotect/ws"
)

const (
	// maxEventHistory bounds the in-memory recent-events map.
	maxEventHistory = 512

	// DefaultRingReset clears a camera's ringing flag when the
	// controller never sends the end packet for a ring event.
	DefaultRingReset = 3 * time.Second

	// DefaultDivergenceStrikes is how many stream inconsistencies
	// within DefaultDivergenceWindow force a full re-bootstrap.
	DefaultDivergenceStrikes = 3
	DefaultDivergenceWindow  = time.Minute
)

// EchoFilter suppresses self-initiated field echoes. Consume reports
// whether the (device, path) change was registered by a local write and
// removes the entry on a hit.
type EchoFilter interface {
	Consume(deviceID, path string) bool
}

// Change is one applied mutation of the graph, fanned out to
// subscribers in apply order.
type Change struct {
	Action  ws.Action
	Model   ModelType
	ID      string
	Object  any
	Old     any
	Changed FieldSet
	Packet  *ws.Packet
}

// Bootstrap is the root of the object graph: one NVR plus every adopted
// device, keyed by 24-hex-digit id. It is created by ParseBootstrap,
// mutated only through ApplyPacket (single writer), and replaced
// wholesale on refresh.
type Bootstrap struct {
	AuthUserID   string `json:"authUserId,omitempty"`
	AccessKey    string `json:"accessKey,omitempty"`
	LastUpdateID string `json:"lastUpdateId,omitempty"`

	NVR *NVR `json:"nvr"`

	Cameras   map[string]*Camera   `json:"cameras"`
	Lights    map[string]*Light    `json:"lights"`
	Sensors   map[string]*Sensor   `json:"sensors"`
	Viewers   map[string]*Viewer   `json:"viewers"`
	Chimes    map[string]*Chime    `json:"chimes"`
	Doorlocks map[string]*Doorlock `json:"doorlocks"`
	Bridges   map[string]*Bridge   `json:"bridges"`
	Liveviews map[string]*Liveview `json:"liveviews"`
	Keyrings  map[string]*Keyring  `json:"keyrings"`
	UlpUsers  map[string]*UlpUser  `json:"ulpUsers"`

	// Events holds only recent events; older ones fall out in
	// insertion order.
	Events map[string]*Event `json:"-"`

	Extras Extras `json:"-"`

	// RingReset clears isRinging when no ring end packet arrives.
	RingReset time.Duration `json:"-"`

	// OnDerived receives changes produced outside packet application,
	// currently only ring reset timer expiry.
	OnDerived func(Change) `json:"-"`

	mu         sync.RWMutex
	log        zerolog.Logger
	eventOrder []string
	idLookup   map[string]ModelType
	macLookup  map[string]string

	strikes        []time.Time
	strikeLimit    int
	strikeWindow   time.Duration
	ringTimers     map[string]*time.Timer
}

type deviceRef struct {
	model ModelType
	id    string
}

// ParseBootstrap decodes the GET /bootstrap document. The NVR record is
// required; device groups may be empty or, for groups newer controller
// versions introduced, absent entirely.
func ParseBootstrap(raw []byte, log zerolog.Logger) (*Bootstrap, error) {
	m, err := decodeWireObject(raw)
	if err != nil {
		return nil, fmt.Errorf("data: bootstrap: %w", err)
	}

	b := newBootstrap(log)
	b.AuthUserID, _ = m["authUserId"].(string)
	b.AccessKey, _ = m["accessKey"].(string)
	b.LastUpdateID, _ = m["lastUpdateId"].(string)
	delete(m, "authUserId")
	delete(m, "accessKey")
	delete(m, "lastUpdateId")

	nvrRaw, ok := m["nvr"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("data: bootstrap: missing nvr record")
	}
	nvr := &NVR{}
	if err := decodeObject(nvrRaw, nvr); err != nil {
		return nil, fmt.Errorf("data: bootstrap nvr: %w", err)
	}
	if err := nvr.normalize(); err != nil {
		return nil, fmt.Errorf("data: bootstrap nvr: %w", err)
	}
	b.NVR = nvr
	delete(m, "nvr")

	for _, model := range deviceModels {
		key := model.BootstrapKey()
		section, present := m[key]
		delete(m, key)
		if !present {
			// Older controllers lack doorlocks/keyrings/ulpUsers.
			continue
		}
		list, ok := section.([]any)
		if !ok {
			return nil, fmt.Errorf("data: bootstrap: %s is not a list", key)
		}
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("data: bootstrap: %s entry is not an object", key)
			}
			if err := b.insertFromMap(model, obj); err != nil {
				return nil, fmt.Errorf("data: bootstrap %s: %w", key, err)
			}
		}
	}

	if len(m) > 0 {
		b.Extras = Extras(m)
	}
	b.checkReferences()
	return b, nil
}

func newBootstrap(log zerolog.Logger) *Bootstrap {
	return &Bootstrap{
		Cameras:      map[string]*Camera{},
		Lights:       map[string]*Light{},
		Sensors:      map[string]*Sensor{},
		Viewers:      map[string]*Viewer{},
		Chimes:       map[string]*Chime{},
		Doorlocks:    map[string]*Doorlock{},
		Bridges:      map[string]*Bridge{},
		Liveviews:    map[string]*Liveview{},
		Keyrings:     map[string]*Keyring{},
		UlpUsers:     map[string]*UlpUser{},
		Events:       map[string]*Event{},
		idLookup:     map[string]ModelType{},
		macLookup:    map[string]string{},
		ringTimers:   map[string]*time.Timer{},
		RingReset:    DefaultRingReset,
		strikeLimit:  DefaultDivergenceStrikes,
		strikeWindow: DefaultDivergenceWindow,
		log:          log.With().Str("component", "bootstrap").Logger(),
	}
}

// SetDivergenceLimits overrides the strike threshold and window.
func (b *Bootstrap) SetDivergenceLimits(strikes int, window time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if strikes > 0 {
		b.strikeLimit = strikes
	}
	if window > 0 {
		b.strikeWindow = window
	}
}

// MarshalWire renders the bootstrap back to its wire shape: device maps
// become lists, the events map is omitted, extras are preserved.
func (b *Bootstrap) MarshalWire() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := map[string]any{
		"authUserId":   b.AuthUserID,
		"accessKey":    b.AccessKey,
		"lastUpdateId": b.LastUpdateID,
	}
	for k, v := range b.Extras {
		out[k] = v
	}
	nvr, err := encodeObject(b.NVR)
	if err != nil {
		return nil, err
	}
	out["nvr"] = nvr

	for _, model := range deviceModels {
		list := []any{}
		for _, id := range b.deviceIDs(model) {
			obj, _ := b.lookupDevice(model, id)
			m, err := encodeObject(obj)
			if err != nil {
				return nil, err
			}
			list = append(list, m)
		}
		out[model.BootstrapKey()] = list
	}
	return json.Marshal(out)
}

// insertFromMap decodes and registers one device during parse.
func (b *Bootstrap) insertFromMap(model ModelType, m map[string]any) error {
	obj := newDeviceObject(model)
	if err := decodeObject(m, obj); err != nil {
		return err
	}
	if n, ok := obj.(interface{ normalize() error }); ok {
		if err := n.normalize(); err != nil {
			return err
		}
	}
	o, ok := obj.(Object)
	if !ok || o.DeviceID() == "" {
		return fmt.Errorf("%s without id", model)
	}
	b.storeDevice(model, o.DeviceID(), obj)
	return nil
}

// newDeviceObject returns a fresh zero object for a model.
func newDeviceObject(model ModelType) any {
	switch model {
	case ModelCamera:
		return &Camera{}
	case ModelLight:
		return &Light{}
	case ModelSensor:
		return &Sensor{}
	case ModelViewer:
		return &Viewer{}
	case ModelChime:
		return &Chime{}
	case ModelDoorlock:
		return &Doorlock{}
	case ModelBridge:
		return &Bridge{}
	case ModelLiveview:
		return &Liveview{}
	case ModelKeyring:
		return &Keyring{}
	case ModelUlpUser:
		return &UlpUser{}
	case ModelNVR:
		return &NVR{}
	case ModelEvent:
		return &Event{}
	}
	return nil
}

func (b *Bootstrap) lookupDevice(model ModelType, id string) (any, bool) {
	switch model {
	case ModelCamera:
		v, ok := b.Cameras[id]
		return v, ok
	case ModelLight:
		v, ok := b.Lights[id]
		return v, ok
	case ModelSensor:
		v, ok := b.Sensors[id]
		return v, ok
	case ModelViewer:
		v, ok := b.Viewers[id]
		return v, ok
	case ModelChime:
		v, ok := b.Chimes[id]
		return v, ok
	case ModelDoorlock:
		v, ok := b.Doorlocks[id]
		return v, ok
	case ModelBridge:
		v, ok := b.Bridges[id]
		return v, ok
	case ModelLiveview:
		v, ok := b.Liveviews[id]
		return v, ok
	case ModelKeyring:
		v, ok := b.Keyrings[id]
		return v, ok
	case ModelUlpUser:
		v, ok := b.UlpUsers[id]
		return v, ok
	}
	return nil, false
}

func (b *Bootstrap) storeDevice(model ModelType, id string, obj any) {
	switch model {
	case ModelCamera:
		b.Cameras[id] = obj.(*Camera)
	case ModelLight:
		b.Lights[id] = obj.(*Light)
	case ModelSensor:
		b.Sensors[id] = obj.(*Sensor)
	case ModelViewer:
		b.Viewers[id] = obj.(*Viewer)
	case ModelChime:
		b.Chimes[id] = obj.(*Chime)
	case ModelDoorlock:
		b.Doorlocks[id] = obj.(*Doorlock)
	case ModelBridge:
		b.Bridges[id] = obj.(*Bridge)
	case ModelLiveview:
		b.Liveviews[id] = obj.(*Liveview)
	case ModelKeyring:
		b.Keyrings[id] = obj.(*Keyring)
	case ModelUlpUser:
		b.UlpUsers[id] = obj.(*UlpUser)
	default:
		return
	}
	b.idLookup[id] = model
	if dev, ok := obj.(Device); ok && dev.DeviceMAC() != "" {
		b.macLookup[dev.DeviceMAC()] = id
	}
}

func (b *Bootstrap) removeDevice(model ModelType, id string) (any, bool) {
	obj, ok := b.lookupDevice(model, id)
	if !ok {
		return nil, false
	}
	switch model {
	case ModelCamera:
		delete(b.Cameras, id)
	case ModelLight:
		delete(b.Lights, id)
	case ModelSensor:
		delete(b.Sensors, id)
	case ModelViewer:
		delete(b.Viewers, id)
	case ModelChime:
		delete(b.Chimes, id)
	case ModelDoorlock:
		delete(b.Doorlocks, id)
	case ModelBridge:
		delete(b.Bridges, id)
	case ModelLiveview:
		delete(b.Liveviews, id)
	case ModelKeyring:
		delete(b.Keyrings, id)
	case ModelUlpUser:
		delete(b.UlpUsers, id)
	}
	delete(b.idLookup, id)
	if dev, ok := obj.(Device); ok {
		delete(b.macLookup, dev.DeviceMAC())
	}
	return obj, true
}

func (b *Bootstrap) deviceIDs(model ModelType) []string {
	var ids []string
	switch model {
	case ModelCamera:
		for id := range b.Cameras {
			ids = append(ids, id)
		}
	case ModelLight:
		for id := range b.Lights {
			ids = append(ids, id)
		}
	case ModelSensor:
		for id := range b.Sensors {
			ids = append(ids, id)
		}
	case ModelViewer:
		for id := range b.Viewers {
			ids = append(ids, id)
		}
	case ModelChime:
		for id := range b.Chimes {
			ids = append(ids, id)
		}
	case ModelDoorlock:
		for id := range b.Doorlocks {
			ids = append(ids, id)
		}
	case ModelBridge:
		for id := range b.Bridges {
			ids = append(ids, id)
		}
	case ModelLiveview:
		for id := range b.Liveviews {
			ids = append(ids, id)
		}
	case ModelKeyring:
		for id := range b.Keyrings {
			ids = append(ids, id)
		}
	case ModelUlpUser:
		for id := range b.UlpUsers {
			ids = append(ids, id)
		}
	}
	return ids
}

// GetDeviceByID resolves any adopted device without knowing its model.
func (b *Bootstrap) GetDeviceByID(id string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	model, ok := b.idLookup[id]
	if !ok {
		return nil, false
	}
	return b.lookupDevice(model, id)
}

// GetDeviceByMAC resolves a device from any MAC spelling.
func (b *Bootstrap) GetDeviceByMAC(mac string) (any, bool) {
	norm, err := NormalizeMAC(mac)
	if err != nil {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.macLookup[norm]
	if !ok {
		return nil, false
	}
	return b.lookupDevice(b.idLookup[id], id)
}

// ReplaceDevice commits a locally mutated copy of a known device. The
// mutation path uses it after a successful write so the graph reflects
// the change before the controller echoes it.
func (b *Bootstrap) ReplaceDevice(model ModelType, id string, obj any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.lookupDevice(model, id); !ok {
		return false
	}
	b.storeDevice(model, id, obj)
	return true
}

// checkReferences warns about dangling camera references. Unresolved
// ids are retained so a later camera add repairs them.
func (b *Bootstrap) checkReferences() {
	for id, chime := range b.Chimes {
		for _, camID := range chime.CameraIDs {
			if _, ok := b.Cameras[camID]; !ok {
				b.log.Warn().Str("chime_id", id).Str("camera_id", camID).
					Msg("chime references unknown camera")
			}
		}
	}
	for id, light := range b.Lights {
		if light.CameraID == "" {
			continue
		}
		if _, ok := b.Cameras[light.CameraID]; !ok {
			b.log.Warn().Str("light_id", id).Str("camera_id", light.CameraID).
				Msg("light bound to unknown camera")
		}
	}
}

// noteStrike records one stream inconsistency and reports whether the
// threshold was crossed within the window.
func (b *Bootstrap) noteStrike() bool {
	now := time.Now()
	kept := b.strikes[:0]
	for _, t := range b.strikes {
		if now.Sub(t) < b.strikeWindow {
			kept = append(kept, t)
		}
	}
	b.strikes = append(kept, now)
	return len(b.strikes) >= b.strikeLimit
}

// Close stops internal timers. The graph stays readable.
func (b *Bootstrap) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, t := range b.ringTimers {
		t.Stop()
		delete(b.ringTimers, id)
	}
}
