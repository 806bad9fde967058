package data

// NVRStorageStats is volatile controller storage telemetry.
type NVRStorageStats struct {
	Utilization float64 `json:"utilization,omitempty"`
	Capacity    int64   `json:"capacity,omitempty"`
	RemainingMs int64   `json:"remainingCapacity,omitempty"`
}

// NVRSystemInfo is volatile controller host telemetry.
type NVRSystemInfo struct {
	CPUAverageLoad float64 `json:"cpuAverageLoad,omitempty"`
	CPUTemperature float64 `json:"cpuTemperature,omitempty"`
	MemoryTotal    int64   `json:"memoryTotal,omitempty"`
	MemoryAvail    int64   `json:"memoryAvailable,omitempty"`
}

// NVR is the controller record. Exactly one exists per bootstrap.
type NVR struct {
	DeviceHeader
	extrasBag

	Version                      string           `json:"version,omitempty"`
	Host                         string           `json:"host,omitempty"`
	Timezone                     string           `json:"timezone,omitempty"`
	Uptime                       int64            `json:"uptime,omitempty"`
	IsUpdating                   bool             `json:"isUpdating,omitempty"`
	IsRecordingOff               bool             `json:"isRecordingDisabled,omitempty"`
	RecordingRetentionDurationMs int64            `json:"recordingRetentionDurationMs,omitempty"`
	StorageStats                 *NVRStorageStats `json:"storageStats,omitempty"`
	SystemInfo                   *NVRSystemInfo   `json:"systemInfo,omitempty"`
	DoorbellSettings             map[string]any   `json:"doorbellSettings,omitempty"`
	SmartDetectAgreementStatus   string           `json:"smartDetectAgreementStatus,omitempty"`
}

func (n *NVR) Model() ModelType { return ModelNVR }

func (n *NVR) clearVolatile() {
	n.StorageStats = nil
	n.SystemInfo = nil
}

// LiveviewSlot is one pane group of a saved layout.
type LiveviewSlot struct {
	CameraIDs     []string `json:"cameras,omitempty"`
	CycleMode     string   `json:"cycleMode,omitempty"`
	CycleInterval int      `json:"cycleInterval,omitempty"`
}

// Liveview is a saved multi-camera layout on the controller.
type Liveview struct {
	extrasBag

	ID        string         `json:"id"`
	ModelKey  ModelType      `json:"modelKey,omitempty"`
	Name      string         `json:"name,omitempty"`
	IsDefault bool           `json:"isDefault,omitempty"`
	IsGlobal  bool           `json:"isGlobal,omitempty"`
	Layout    int            `json:"layout,omitempty"`
	Slots     []LiveviewSlot `json:"slots,omitempty"`
	OwnerID   string         `json:"owner,omitempty"`
}

func (l *Liveview) DeviceID() string { return l.ID }

func (l *Liveview) Model() ModelType { return ModelLiveview }

// Keyring is an NFC card or fingerprint registered on the controller.
// Present on newer controller versions only.
type Keyring struct {
	extrasBag

	ID           string     `json:"id"`
	ModelKey     ModelType  `json:"modelKey,omitempty"`
	DeviceType   string     `json:"deviceType,omitempty"`
	ReaderID     string     `json:"deviceId,omitempty"`
	RegistryType string     `json:"registryType,omitempty"`
	RegistryID   string     `json:"registryId,omitempty"`
	UlpUserID    string     `json:"ulpUser,omitempty"`
	LastActivity *Timestamp `json:"lastActivity,omitempty"`
}

func (k *Keyring) DeviceID() string { return k.ID }

func (k *Keyring) Model() ModelType { return ModelKeyring }

// UlpUser is a unified-location-platform user record. Present on newer
// controller versions only.
type UlpUser struct {
	extrasBag

	ID        string    `json:"id"`
	ModelKey  ModelType `json:"modelKey,omitempty"`
	UlpID     string    `json:"ulpId,omitempty"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	FullName  string    `json:"fullName,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	Status    string    `json:"status,omitempty"`
}

func (u *UlpUser) DeviceID() string { return u.ID }

func (u *UlpUser) Model() ModelType { return ModelUlpUser }
