package data

// EventMetadata is the type-dependent bag attached to an event. Shapes
// vary too much across firmware to type fully; the keys most consumers
// need are lifted, everything else stays in the map.
type EventMetadata map[string]any

// DeviceID extracts the nested metadata.deviceId.id reference when the
// event targets a non-camera device.
func (m EventMetadata) DeviceID() string {
	ref, ok := m["deviceId"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := ref["id"].(string)
	return id
}

// Event is a first-class object on the stream: motion, ring, smart
// detections, and device lifecycle kinds.
type Event struct {
	extrasBag

	ID                  string            `json:"id"`
	ModelKey            ModelType         `json:"modelKey,omitempty"`
	Type                EventType         `json:"type"`
	Start               *Timestamp        `json:"start,omitempty"`
	End                 *Timestamp        `json:"end,omitempty"`
	Score               int               `json:"score,omitempty"`
	CameraID            string            `json:"camera,omitempty"`
	SmartDetectTypes    []SmartDetectType `json:"smartDetectTypes,omitempty"`
	SmartDetectEventIDs []string          `json:"smartDetectEvents,omitempty"`
	ThumbnailID         string            `json:"thumbnail,omitempty"`
	HeatmapID           string            `json:"heatmap,omitempty"`
	UserID              string            `json:"user,omitempty"`
	Metadata            EventMetadata     `json:"metadata,omitempty"`
}

func (e *Event) DeviceID() string { return e.ID }

func (e *Event) Model() ModelType { return ModelEvent }

// TargetID is the device the event refers to: the camera when set,
// otherwise the metadata device reference.
func (e *Event) TargetID() string {
	if e.CameraID != "" {
		return e.CameraID
	}
	return e.Metadata.DeviceID()
}

// Completed reports whether the event has ended. An event completes
// exactly once; the diff engine never clears a set end.
func (e *Event) Completed() bool { return e.End != nil }

// clampTimes enforces end >= start. Clock skew between devices can
// deliver an end before the start; the start is clamped to the end.
func (e *Event) clampTimes() {
	if e.Start != nil && e.End != nil && e.End.Before(e.Start.Time) {
		clamped := *e.End
		e.Start = &clamped
	}
}
