package data

import (
	"fmt"
	"time"

	"github.com/uilibs/uiprotect/ws"
)

// serverDerived are header fields the controller computes itself. They
// are part of the volatile-stats surface and are excluded from echo
// suppression at the source as well (see the root package ignore
// table); the diff engine additionally skips them when deciding whether
// an update is worth a notification after filtering.
var serverDerived = NewFieldSet("lastSeen", "upSince", "uptime", "stats", "storageStats", "systemInfo")

// ApplyPacket applies one decoded websocket packet to the graph. It
// returns the changes to fan out, in order, and reports whether the
// stream has diverged far enough that the caller must do a full
// re-bootstrap.
//
// Idempotency: a packet carrying the same update id as the graph is a
// replay duplicate and is dropped whole.
func (b *Bootstrap) ApplyPacket(pkt *ws.Packet, filter EchoFilter) ([]Change, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	action := pkt.Action
	if action.NewUpdateID != "" && action.NewUpdateID == b.LastUpdateID {
		b.log.Debug().Str("update_id", action.NewUpdateID).Msg("dropping replayed packet")
		return nil, false, nil
	}

	model := ModelType(action.ModelKey)
	if !model.Known() {
		b.log.Debug().Str("model", action.ModelKey).Msg("unknown model key, dropping packet")
		b.advance(action.NewUpdateID)
		return nil, false, nil
	}

	var (
		changes  []Change
		diverged bool
		err      error
	)
	switch action.Action {
	case ws.ActionRemove:
		changes, diverged = b.applyRemove(model, pkt)
	case ws.ActionAdd:
		changes, err = b.applyAdd(model, pkt)
	case ws.ActionUpdate:
		changes, err = b.applyUpdate(model, pkt, filter)
	default:
		err = fmt.Errorf("data: unknown action %q", action.Action)
	}
	if err != nil {
		// A payload the codec cannot reconcile is a protocol strike,
		// not a crash: log, count, continue.
		b.log.Warn().Err(err).Str("model", string(model)).Str("id", action.ID).
			Msg("failed to apply packet")
		diverged = b.noteStrike() || diverged
		b.advance(action.NewUpdateID)
		return nil, diverged, nil
	}

	b.advance(action.NewUpdateID)
	return changes, diverged, nil
}

func (b *Bootstrap) advance(updateID string) {
	if updateID != "" {
		b.LastUpdateID = updateID
	}
}

func (b *Bootstrap) applyRemove(model ModelType, pkt *ws.Packet) ([]Change, bool) {
	id := pkt.Action.ID
	if model == ModelEvent {
		// Events phase out of retention on their own; a remove for an
		// unknown event is routine.
		if old, ok := b.Events[id]; ok {
			b.dropEvent(id)
			return []Change{{Action: ws.ActionRemove, Model: model, ID: id, Old: old, Packet: pkt}}, false
		}
		return nil, false
	}
	if model == ModelNVR {
		b.log.Warn().Str("id", id).Msg("ignoring nvr remove")
		return nil, false
	}

	old, ok := b.removeDevice(model, id)
	if !ok {
		b.log.Warn().Str("model", string(model)).Str("id", id).
			Msg("remove for unknown device")
		return nil, b.noteStrike()
	}
	return []Change{{Action: ws.ActionRemove, Model: model, ID: id, Old: old, Packet: pkt}}, false
}

func (b *Bootstrap) applyAdd(model ModelType, pkt *ws.Packet) ([]Change, error) {
	if len(pkt.Payload) == 0 {
		return nil, nil
	}
	m, err := decodeWireObject(pkt.Payload)
	if err != nil {
		return nil, err
	}

	if model == ModelEvent {
		event := &Event{}
		if err := decodeObject(m, event); err != nil {
			return nil, err
		}
		event.clampTimes()
		return b.ingestEvent(event, pkt), nil
	}

	if model == ModelNVR {
		nvr := &NVR{}
		if err := decodeObject(m, nvr); err != nil {
			return nil, err
		}
		if err := nvr.normalize(); err != nil {
			return nil, err
		}
		old := b.NVR
		b.NVR = nvr
		return []Change{{Action: ws.ActionAdd, Model: model, ID: nvr.ID, Object: nvr, Old: old, Packet: pkt}}, nil
	}

	obj := newDeviceObject(model)
	if err := decodeObject(m, obj); err != nil {
		return nil, err
	}
	if n, ok := obj.(interface{ normalize() error }); ok {
		if err := n.normalize(); err != nil {
			return nil, err
		}
	}
	o := obj.(Object)
	if o.DeviceID() == "" {
		return nil, fmt.Errorf("add without id")
	}
	if _, exists := b.lookupDevice(model, o.DeviceID()); exists {
		// Duplicate adds happen across reconnect races; the newer
		// object wins.
		b.log.Warn().Str("model", string(model)).Str("id", o.DeviceID()).
			Msg("duplicate add, overwriting")
	}
	b.storeDevice(model, o.DeviceID(), obj)
	b.checkReferences()
	return []Change{{Action: ws.ActionAdd, Model: model, ID: o.DeviceID(), Object: obj, Packet: pkt}}, nil
}

func (b *Bootstrap) applyUpdate(model ModelType, pkt *ws.Packet, filter EchoFilter) ([]Change, error) {
	if len(pkt.Payload) == 0 {
		return nil, nil
	}
	partial, err := decodeWireObject(pkt.Payload)
	if err != nil {
		return nil, err
	}
	if len(partial) == 0 {
		return nil, nil
	}
	id := pkt.Action.ID

	if model == ModelEvent {
		return b.updateEvent(id, partial, pkt)
	}

	if model == ModelNVR {
		if b.NVR == nil || (id != "" && id != b.NVR.ID) {
			// Another NVR in a stacked deployment; not ours.
			return nil, nil
		}
		fresh, changed, err := applyPartial(b.NVR, partial)
		if err != nil {
			return nil, err
		}
		old := b.NVR
		b.NVR = fresh.(*NVR)
		if changed.Empty() {
			return nil, nil
		}
		return []Change{{Action: ws.ActionUpdate, Model: model, ID: b.NVR.ID, Object: b.NVR, Old: old, Changed: changed, Packet: pkt}}, nil
	}

	obj, ok := b.lookupDevice(model, id)
	if !ok {
		b.log.Debug().Str("model", string(model)).Str("id", id).
			Msg("update for unknown device")
		return nil, nil
	}
	fresh, changed, err := applyPartial(obj, partial)
	if err != nil {
		return nil, err
	}
	if n, ok := fresh.(interface{ normalize() error }); ok {
		if err := n.normalize(); err != nil {
			return nil, err
		}
	}

	// A transition to disconnected drops volatile telemetry while
	// keeping configuration.
	if dev, ok := fresh.(Device); ok && changed.Has("state") && dev.DeviceState() == StateDisconnected {
		if vc, ok := fresh.(volatileClearer); ok {
			vc.clearVolatile()
		}
	}

	b.storeDevice(model, id, fresh)
	if model == ModelChime || model == ModelLight {
		b.checkReferences()
	}

	// Echo suppression: changes we initiated ourselves are consumed
	// from the notification, one packet per registration.
	if filter != nil {
		for _, path := range changed.Paths() {
			if serverDerived.Has(path) {
				continue
			}
			if filter.Consume(id, path) {
				changed.Remove(path)
			}
		}
	}
	if changed.Empty() {
		return nil, nil
	}
	return []Change{{Action: ws.ActionUpdate, Model: model, ID: id, Object: fresh, Old: obj, Changed: changed, Packet: pkt}}, nil
}

// ingestEvent stores an event and derives device state from it.
func (b *Bootstrap) ingestEvent(event *Event, pkt *ws.Packet) []Change {
	b.Events[event.ID] = event
	b.eventOrder = append(b.eventOrder, event.ID)
	for len(b.eventOrder) > maxEventHistory {
		oldest := b.eventOrder[0]
		b.eventOrder = b.eventOrder[1:]
		delete(b.Events, oldest)
	}

	changes := []Change{{Action: ws.ActionAdd, Model: ModelEvent, ID: event.ID, Object: event, Packet: pkt}}
	if derived := b.deriveFromEventStart(event); derived != nil {
		changes = append(changes, *derived)
	}
	return changes
}

func (b *Bootstrap) updateEvent(id string, partial map[string]any, pkt *ws.Packet) ([]Change, error) {
	event, ok := b.Events[id]
	if !ok {
		// Updates for events outside the retention window are routine.
		b.log.Debug().Str("id", id).Msg("update for unknown event")
		return nil, nil
	}
	fresh, changed, err := applyPartial(event, partial)
	if err != nil {
		return nil, err
	}
	next := fresh.(*Event)
	// Completed events never un-complete.
	if event.End != nil && next.End == nil {
		next.End = event.End
		changed.Remove("end")
	}
	next.clampTimes()
	b.Events[id] = next

	if changed.Empty() {
		return nil, nil
	}
	if changed.Has("end") && next.End != nil {
		b.deriveFromEventEnd(next)
	}
	return []Change{{Action: ws.ActionUpdate, Model: ModelEvent, ID: id, Object: next, Old: event, Changed: changed, Packet: pkt}}, nil
}

// deriveFromEventStart maps a starting event onto its target device.
func (b *Bootstrap) deriveFromEventStart(event *Event) *Change {
	switch {
	case event.Type.IsMotionKind() || event.Type == EventSmartAudioDetect ||
		event.Type == EventRing || event.Type == EventNFCCardScanned ||
		event.Type == EventFingerprintIdentified:
		return b.deriveCameraStart(event)
	case event.Type == EventSensorMotion || event.Type == EventSensorOpened ||
		event.Type == EventSensorClosed:
		return b.deriveSensorStart(event)
	case event.Type == EventLightMotion:
		return b.deriveLightStart(event)
	}
	return nil
}

func (b *Bootstrap) deriveCameraStart(event *Event) *Change {
	cam, ok := b.Cameras[event.TargetID()]
	if !ok {
		if event.TargetID() != "" {
			b.log.Warn().Str("camera_id", event.TargetID()).Str("event_id", event.ID).
				Msg("event for unknown camera")
		}
		return nil
	}
	next := *cam
	changed := FieldSet{}

	switch {
	case event.Type.IsMotionKind():
		next.IsMotionDetected = true
		next.LastMotion = event.Start
		next.LastMotionEventID = event.ID
		changed.Add("isMotionDetected")
		changed.Add("lastMotion")
		changed.Add("lastMotionEventId")
		if event.Type != EventMotion {
			next.IsSmartDetected = true
			changed.Add("isSmartDetected")
			b.recordSmartDetects(&next, event, changed)
		}
	case event.Type == EventSmartAudioDetect:
		if event.Start != nil {
			next.LastSmartAudioDetect = event.Start
			changed.Add("lastSmartAudioDetect")
		}
		b.recordSmartDetects(&next, event, changed)
	case event.Type == EventRing:
		next.IsRinging = true
		next.LastRing = event.Start
		changed.Add("isRinging")
		changed.Add("lastRing")
		b.armRingReset(cam.ID)
	case event.Type == EventNFCCardScanned:
		next.LastNFCCardScanned = event.Start
		changed.Add("lastNfcCardScanned")
	case event.Type == EventFingerprintIdentified:
		next.LastFingerprint = event.Start
		changed.Add("lastFingerprintIdentified")
	}
	if changed.Empty() {
		return nil
	}
	b.storeDevice(ModelCamera, next.ID, &next)
	return &Change{Action: ws.ActionUpdate, Model: ModelCamera, ID: next.ID, Object: &next, Old: cam, Changed: changed}
}

func (b *Bootstrap) recordSmartDetects(cam *Camera, event *Event, changed FieldSet) {
	if len(event.SmartDetectTypes) == 0 || event.Start == nil {
		return
	}
	if cam.LastSmartDetects == nil {
		cam.LastSmartDetects = map[SmartDetectType]Timestamp{}
	} else {
		copied := make(map[SmartDetectType]Timestamp, len(cam.LastSmartDetects))
		for k, v := range cam.LastSmartDetects {
			copied[k] = v
		}
		cam.LastSmartDetects = copied
	}
	if cam.LastSmartDetectEventIDs == nil {
		cam.LastSmartDetectEventIDs = map[SmartDetectType]string{}
	} else {
		copied := make(map[SmartDetectType]string, len(cam.LastSmartDetectEventIDs))
		for k, v := range cam.LastSmartDetectEventIDs {
			copied[k] = v
		}
		cam.LastSmartDetectEventIDs = copied
	}
	for _, st := range event.SmartDetectTypes {
		cam.LastSmartDetects[st] = *event.Start
		cam.LastSmartDetectEventIDs[st] = event.ID
	}
	changed.Add("lastSmartDetects")
	changed.Add("lastSmartDetectEventIds")
}

func (b *Bootstrap) deriveSensorStart(event *Event) *Change {
	sensor, ok := b.Sensors[event.TargetID()]
	if !ok {
		return nil
	}
	next := *sensor
	changed := FieldSet{}
	switch event.Type {
	case EventSensorMotion:
		next.IsMotionDetected = true
		next.MotionDetectedAt = event.Start
		next.LastMotionEventID = event.ID
		changed.Add("isMotionDetected")
		changed.Add("motionDetectedAt")
	case EventSensorOpened, EventSensorClosed:
		next.IsOpened = event.Type == EventSensorOpened
		next.OpenStatusChangedAt = event.Start
		next.LastContactEventID = event.ID
		changed.Add("isOpened")
		changed.Add("openStatusChangedAt")
	}
	if changed.Empty() {
		return nil
	}
	b.storeDevice(ModelSensor, next.ID, &next)
	return &Change{Action: ws.ActionUpdate, Model: ModelSensor, ID: next.ID, Object: &next, Old: sensor, Changed: changed}
}

func (b *Bootstrap) deriveLightStart(event *Event) *Change {
	light, ok := b.Lights[event.TargetID()]
	if !ok {
		return nil
	}
	next := *light
	next.IsPIRMotionDetected = true
	next.LastMotion = event.Start
	next.LastMotionEventID = event.ID
	b.storeDevice(ModelLight, next.ID, &next)
	return &Change{
		Action: ws.ActionUpdate, Model: ModelLight, ID: next.ID, Object: &next, Old: light,
		Changed: NewFieldSet("isPirMotionDetected", "lastMotion"),
	}
}

// deriveFromEventEnd clears the flags an event start set. The clears
// fold into the event-update notification rather than producing a
// second one.
func (b *Bootstrap) deriveFromEventEnd(event *Event) {
	switch {
	case event.Type.IsMotionKind():
		if cam, ok := b.Cameras[event.TargetID()]; ok && cam.LastMotionEventID == event.ID {
			next := *cam
			next.IsMotionDetected = false
			next.IsSmartDetected = false
			next.LastMotionEnd = event.End
			b.storeDevice(ModelCamera, next.ID, &next)
		}
	case event.Type == EventRing:
		if cam, ok := b.Cameras[event.TargetID()]; ok && cam.IsRinging {
			b.disarmRingReset(cam.ID)
			next := *cam
			next.IsRinging = false
			b.storeDevice(ModelCamera, next.ID, &next)
		}
	case event.Type == EventSensorMotion:
		if sensor, ok := b.Sensors[event.TargetID()]; ok && sensor.LastMotionEventID == event.ID {
			next := *sensor
			next.IsMotionDetected = false
			b.storeDevice(ModelSensor, next.ID, &next)
		}
	case event.Type == EventLightMotion:
		if light, ok := b.Lights[event.TargetID()]; ok && light.LastMotionEventID == event.ID {
			next := *light
			next.IsPIRMotionDetected = false
			b.storeDevice(ModelLight, next.ID, &next)
		}
	}
}

// armRingReset starts (or restarts) the fallback that clears a ringing
// flag when the controller never sends the ring end packet.
func (b *Bootstrap) armRingReset(cameraID string) {
	if b.RingReset <= 0 {
		return
	}
	if t, ok := b.ringTimers[cameraID]; ok {
		t.Stop()
	}
	b.ringTimers[cameraID] = time.AfterFunc(b.RingReset, func() {
		b.resetRing(cameraID)
	})
}

func (b *Bootstrap) disarmRingReset(cameraID string) {
	if t, ok := b.ringTimers[cameraID]; ok {
		t.Stop()
		delete(b.ringTimers, cameraID)
	}
}

func (b *Bootstrap) resetRing(cameraID string) {
	b.mu.Lock()
	delete(b.ringTimers, cameraID)
	cam, ok := b.Cameras[cameraID]
	if !ok || !cam.IsRinging {
		b.mu.Unlock()
		return
	}
	next := *cam
	next.IsRinging = false
	b.storeDevice(ModelCamera, cameraID, &next)
	onDerived := b.OnDerived
	b.mu.Unlock()

	if onDerived != nil {
		onDerived(Change{
			Action: ws.ActionUpdate, Model: ModelCamera, ID: cameraID,
			Object: &next, Old: cam, Changed: NewFieldSet("isRinging"),
		})
	}
}

func (b *Bootstrap) dropEvent(id string) {
	delete(b.Events, id)
	for i, eid := range b.eventOrder {
		if eid == id {
			b.eventOrder = append(b.eventOrder[:i], b.eventOrder[i+1:]...)
			break
		}
	}
}
