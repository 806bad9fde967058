package data

// Read accessors. The graph has a single writer (the reader task); all
// reads go through the bootstrap lock and return whole device records,
// which are replaced copy-on-write, so callers never observe a torn
// record.

func (b *Bootstrap) GetCamera(id string) (*Camera, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.Cameras[id]
	return c, ok
}

func (b *Bootstrap) GetLight(id string) (*Light, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.Lights[id]
	return l, ok
}

func (b *Bootstrap) GetSensor(id string) (*Sensor, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.Sensors[id]
	return s, ok
}

func (b *Bootstrap) GetViewer(id string) (*Viewer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.Viewers[id]
	return v, ok
}

func (b *Bootstrap) GetChime(id string) (*Chime, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.Chimes[id]
	return c, ok
}

func (b *Bootstrap) GetDoorlock(id string) (*Doorlock, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.Doorlocks[id]
	return d, ok
}

func (b *Bootstrap) GetLiveview(id string) (*Liveview, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.Liveviews[id]
	return l, ok
}

func (b *Bootstrap) GetEvent(id string) (*Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.Events[id]
	return e, ok
}

// CameraList snapshots the camera set for iteration.
func (b *Bootstrap) CameraList() []*Camera {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Camera, 0, len(b.Cameras))
	for _, c := range b.Cameras {
		out = append(out, c)
	}
	return out
}

// DeviceCount returns the number of adopted devices across all models.
func (b *Bootstrap) DeviceCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.idLookup)
}

// UpdateID returns the current stream position.
func (b *Bootstrap) UpdateID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.LastUpdateID
}
