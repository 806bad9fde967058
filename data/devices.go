package data

import (
	"fmt"
	"net/url"
	"strconv"
)

// extrasBag is embedded by every graph object to retain unknown keys.
type extrasBag struct {
	Extras Extras `json:"-"`
}

func (b *extrasBag) extras() Extras     { return b.Extras }
func (b *extrasBag) setExtras(e Extras) { b.Extras = e }

// CameraChannel is one encode of a camera stream: resolution, rate and
// the RTSP alias it is published under.
type CameraChannel struct {
	ID            int    `json:"id"`
	VideoID       string `json:"videoId,omitempty"`
	Name          string `json:"name,omitempty"`
	Enabled       bool   `json:"enabled"`
	IsRTSPEnabled bool   `json:"isRtspEnabled"`
	RTSPAlias     string `json:"rtspAlias,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	FPS           int    `json:"fps,omitempty"`
	Bitrate       int    `json:"bitrate,omitempty"`
	MinBitrate    int    `json:"minBitrate,omitempty"`
	MaxBitrate    int    `json:"maxBitrate,omitempty"`
	IDRInterval   int    `json:"idrInterval,omitempty"`
}

// RTSPURL builds the plaintext stream URL for the channel, or "" if
// RTSP is not enabled on it.
func (c *CameraChannel) RTSPURL(host string, port int) string {
	if !c.IsRTSPEnabled || c.RTSPAlias == "" {
		return ""
	}
	return fmt.Sprintf("rtsp://%s/%s", joinHostPort(host, port), url.PathEscape(c.RTSPAlias))
}

// RTSPSURL builds the TLS stream URL for the channel, or "" if RTSP is
// not enabled on it.
func (c *CameraChannel) RTSPSURL(host string, port int) string {
	if !c.IsRTSPEnabled || c.RTSPAlias == "" {
		return ""
	}
	return fmt.Sprintf("rtsps://%s/%s?enableSrtp", joinHostPort(host, port), url.PathEscape(c.RTSPAlias))
}

func joinHostPort(host string, port int) string {
	if port <= 0 {
		return host
	}
	return host + ":" + strconv.Itoa(port)
}

// RecordingSettings controls when and how a camera records. Paddings
// and delays are milliseconds.
type RecordingSettings struct {
	Mode                  RecordingMode `json:"mode,omitempty"`
	PrePadding            int           `json:"prePadding,omitempty"`
	PostPadding           int           `json:"postPadding,omitempty"`
	MinMotionEventTrigger int           `json:"minMotionEventTrigger,omitempty"`
	EndMotionEventDelay   int           `json:"endMotionEventDelay,omitempty"`
	EnableMotionDetection *bool         `json:"enableMotionDetection,omitempty"`
	UseNewMotionAlgorithm bool          `json:"useNewMotionAlgorithm,omitempty"`
	Geofencing            string        `json:"geofencing,omitempty"`
}

// ISPSettings is the imaging pipeline tuning block.
type ISPSettings struct {
	AEMode              string    `json:"aeMode,omitempty"`
	IRLEDMode           IRLEDMode `json:"irLedMode,omitempty"`
	IRLEDLevel          int       `json:"irLedLevel,omitempty"`
	WDR                 int       `json:"wdr,omitempty"`
	ICRSensitivity      int       `json:"icrSensitivity,omitempty"`
	Brightness          int       `json:"brightness,omitempty"`
	Contrast            int       `json:"contrast,omitempty"`
	Hue                 int       `json:"hue,omitempty"`
	Saturation          int       `json:"saturation,omitempty"`
	Sharpness           int       `json:"sharpness,omitempty"`
	Denoise             int       `json:"denoise,omitempty"`
	IsFlippedVertical   bool      `json:"isFlippedVertical,omitempty"`
	IsFlippedHorizontal bool      `json:"isFlippedHorizontal,omitempty"`
	ZoomPosition        int       `json:"zoomPosition,omitempty"`
	DZoomCenterX        int       `json:"dZoomCenterX,omitempty"`
	DZoomCenterY        int       `json:"dZoomCenterY,omitempty"`
	DZoomScale          int       `json:"dZoomScale,omitempty"`
}

// SmartDetectSettings selects which classifications a camera runs.
type SmartDetectSettings struct {
	ObjectTypes             []SmartDetectType `json:"objectTypes,omitempty"`
	AudioTypes              []string          `json:"audioTypes,omitempty"`
	AutoTrackingObjectTypes []SmartDetectType `json:"autoTrackingObjectTypes,omitempty"`
}

// TalkbackSettings describes the inbound audio socket on the camera.
type TalkbackSettings struct {
	TypeFmt       string `json:"typeFmt,omitempty"`
	TypeIn        string `json:"typeIn,omitempty"`
	BindAddr      string `json:"bindAddr,omitempty"`
	BindPort      int    `json:"bindPort,omitempty"`
	FilterAddr    string `json:"filterAddr,omitempty"`
	FilterPort    int    `json:"filterPort,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	SamplingRate  int    `json:"samplingRate,omitempty"`
	BitsPerSample int    `json:"bitsPerSample,omitempty"`
	Quality       int    `json:"quality,omitempty"`
}

// LCDMessage is the text shown on a doorbell display.
type LCDMessage struct {
	Type    DoorbellMessageType `json:"type,omitempty"`
	Text    string              `json:"text,omitempty"`
	ResetAt *Timestamp          `json:"resetAt,omitempty"`
}

// LEDSettings controls the status LED. BlinkRate is milliseconds
// between blinks, 0 is solid.
type LEDSettings struct {
	IsEnabled bool `json:"isEnabled"`
	BlinkRate int  `json:"blinkRate,omitempty"`
}

// OSDSettings controls the on-stream overlay.
type OSDSettings struct {
	IsNameEnabled bool `json:"isNameEnabled,omitempty"`
	IsDateEnabled bool `json:"isDateEnabled,omitempty"`
	IsLogoEnabled bool `json:"isLogoEnabled,omitempty"`
}

// WifiStats is volatile radio telemetry.
type WifiStats struct {
	Channel        int `json:"channel,omitempty"`
	Frequency      int `json:"frequency,omitempty"`
	SignalQuality  int `json:"signalQuality,omitempty"`
	SignalStrength int `json:"signalStrength,omitempty"`
}

// VideoStats is volatile recording-span telemetry.
type VideoStats struct {
	RecordingStart *Timestamp `json:"recordingStart,omitempty"`
	RecordingEnd   *Timestamp `json:"recordingEnd,omitempty"`
}

// CameraStats is the volatile telemetry block on a camera. Cleared
// when the camera transitions to disconnected.
type CameraStats struct {
	RxBytes int64       `json:"rxBytes,omitempty"`
	TxBytes int64       `json:"txBytes,omitempty"`
	Wifi    *WifiStats  `json:"wifi,omitempty"`
	Video   *VideoStats `json:"video,omitempty"`
}

// Camera is the camera device variant.
type Camera struct {
	DeviceHeader
	extrasBag

	IsDark            bool      `json:"isDark,omitempty"`
	IsMicEnabled      bool      `json:"isMicEnabled,omitempty"`
	MicVolume         int       `json:"micVolume,omitempty"`
	VideoMode         VideoMode `json:"videoMode,omitempty"`
	HasSpeaker        bool      `json:"hasSpeaker,omitempty"`
	CurrentResolution string    `json:"currentResolution,omitempty"`
	BridgeID          string    `json:"bridge,omitempty"`

	Channels            []CameraChannel      `json:"channels,omitempty"`
	RecordingSettings   *RecordingSettings   `json:"recordingSettings,omitempty"`
	ISPSettings         *ISPSettings         `json:"ispSettings,omitempty"`
	SmartDetectSettings *SmartDetectSettings `json:"smartDetectSettings,omitempty"`
	TalkbackSettings    *TalkbackSettings    `json:"talkbackSettings,omitempty"`
	LCDMessage          *LCDMessage          `json:"lcdMessage,omitempty"`
	LEDSettings         *LEDSettings         `json:"ledSettings,omitempty"`
	OSDSettings         *OSDSettings         `json:"osdSettings,omitempty"`
	Stats               *CameraStats         `json:"stats,omitempty"`

	// Motion and ring state, partly derived from event packets.
	IsMotionDetected bool       `json:"isMotionDetected,omitempty"`
	IsSmartDetected  bool       `json:"isSmartDetected,omitempty"`
	IsRinging        bool       `json:"isRinging,omitempty"`
	LastMotion       *Timestamp `json:"lastMotion,omitempty"`
	LastMotionEnd    *Timestamp `json:"lastMotionEnd,omitempty"`
	LastRing         *Timestamp `json:"lastRing,omitempty"`

	LastMotionEventID       string                        `json:"lastMotionEventId,omitempty"`
	LastSmartDetects        map[SmartDetectType]Timestamp `json:"lastSmartDetects,omitempty"`
	LastSmartDetectEventIDs map[SmartDetectType]string    `json:"lastSmartDetectEventIds,omitempty"`
	LastSmartAudioDetect    *Timestamp                    `json:"lastSmartAudioDetect,omitempty"`
	LastNFCCardScanned      *Timestamp                    `json:"lastNfcCardScanned,omitempty"`
	LastFingerprint         *Timestamp                    `json:"lastFingerprintIdentified,omitempty"`
}

func (c *Camera) Model() ModelType { return ModelCamera }

func (c *Camera) clearVolatile() {
	c.Stats = nil
	c.CurrentResolution = ""
}

// IsDoorbell reports whether the camera has a chime/ring surface.
func (c *Camera) IsDoorbell() bool { return c.LCDMessage != nil || c.HasSpeaker && c.LastRing != nil }

// LightDeviceSettings is the PIR block on a floodlight.
type LightDeviceSettings struct {
	IsIndicatorEnabled bool   `json:"isIndicatorEnabled,omitempty"`
	LEDLevel           int    `json:"ledLevel,omitempty"`
	LuxSensitivity     string `json:"luxSensitivity,omitempty"`
	PIRDuration        int    `json:"pirDuration,omitempty"`
	PIRSensitivity     int    `json:"pirSensitivity,omitempty"`
}

// LightModeSettings controls when the light turns on.
type LightModeSettings struct {
	Mode     LightMode       `json:"mode,omitempty"`
	EnableAt LightModeEnable `json:"enableAt,omitempty"`
}

// Light is the floodlight device variant.
type Light struct {
	DeviceHeader
	extrasBag

	IsPIRMotionDetected bool                 `json:"isPirMotionDetected,omitempty"`
	IsLightOn           bool                 `json:"isLightOn,omitempty"`
	IsLocating          bool                 `json:"isLocating,omitempty"`
	LightDeviceSettings *LightDeviceSettings `json:"lightDeviceSettings,omitempty"`
	LightModeSettings   *LightModeSettings   `json:"lightModeSettings,omitempty"`
	IsLEDForceOn        bool                 `json:"isLedForceOn,omitempty"`
	CameraID            string               `json:"camera,omitempty"`
	IsCameraPaired      bool                 `json:"isCameraPaired,omitempty"`
	LastMotion          *Timestamp           `json:"lastMotion,omitempty"`
	LastMotionEventID   string               `json:"lastMotionEventId,omitempty"`
}

func (l *Light) Model() ModelType { return ModelLight }

// SensorReading is one telemetry channel on a sensor.
type SensorReading struct {
	Value  *float64     `json:"value,omitempty"`
	Status SensorStatus `json:"status,omitempty"`
}

// BatteryStatus is the sensor battery block.
type BatteryStatus struct {
	Percentage *int `json:"percentage,omitempty"`
	IsLow      bool `json:"isLow,omitempty"`
}

// SensorStats groups the telemetry channels.
type SensorStats struct {
	Light       *SensorReading `json:"light,omitempty"`
	Humidity    *SensorReading `json:"humidity,omitempty"`
	Temperature *SensorReading `json:"temperature,omitempty"`
}

// Sensor is the contact/environment sensor variant.
type Sensor struct {
	DeviceHeader
	extrasBag

	MountType           MountType      `json:"mountType,omitempty"`
	BatteryStatus       *BatteryStatus `json:"batteryStatus,omitempty"`
	Stats               *SensorStats   `json:"stats,omitempty"`
	IsOpened            bool           `json:"isOpened,omitempty"`
	IsMotionDetected    bool           `json:"isMotionDetected,omitempty"`
	LeakDetectedAt      *Timestamp     `json:"leakDetectedAt,omitempty"`
	TamperingDetectedAt *Timestamp     `json:"tamperingDetectedAt,omitempty"`
	OpenStatusChangedAt *Timestamp     `json:"openStatusChangedAt,omitempty"`
	MotionDetectedAt    *Timestamp     `json:"motionDetectedAt,omitempty"`
	AlarmTriggeredAt    *Timestamp     `json:"alarmTriggeredAt,omitempty"`
	CameraID            string         `json:"camera,omitempty"`
	LastMotionEventID   string         `json:"lastMotionEventId,omitempty"`
	LastContactEventID  string         `json:"lastContactEventId,omitempty"`
}

func (s *Sensor) Model() ModelType { return ModelSensor }

func (s *Sensor) clearVolatile() { s.Stats = nil }

// Viewer is the viewport device variant: a screen bound to a liveview.
type Viewer struct {
	DeviceHeader
	extrasBag

	LiveviewID      string `json:"liveview,omitempty"`
	SoftwareVersion string `json:"softwareVersion,omitempty"`
}

func (v *Viewer) Model() ModelType { return ModelViewer }

// ChimeRingSetting is the per-camera tone and volume on a chime.
type ChimeRingSetting struct {
	CameraID    string `json:"camera"`
	RepeatTimes int    `json:"repeatTimes,omitempty"`
	TrackNo     int    `json:"trackNo,omitempty"`
	Volume      int    `json:"volume,omitempty"`
}

// Chime is the doorbell chime variant.
type Chime struct {
	DeviceHeader
	extrasBag

	Volume       int                `json:"volume,omitempty"`
	IsProbing    bool               `json:"isProbingForWifi,omitempty"`
	CameraIDs    []string           `json:"cameraIds,omitempty"`
	RingSettings []ChimeRingSetting `json:"ringSettings,omitempty"`
	LastRing     *Timestamp         `json:"lastRing,omitempty"`
}

func (c *Chime) Model() ModelType { return ModelChime }

// Doorlock is the smart lock variant.
type Doorlock struct {
	DeviceHeader
	extrasBag

	LockStatus      string         `json:"lockStatus,omitempty"`
	BatteryStatus   *BatteryStatus `json:"batteryStatus,omitempty"`
	AutoCloseTimeMs int            `json:"autoCloseTimeMs,omitempty"`
	CameraID        string         `json:"camera,omitempty"`
	PrivateToken    string         `json:"privateToken,omitempty"`
}

func (d *Doorlock) Model() ModelType { return ModelDoorlock }

// Bridge relays low-power devices onto the network.
type Bridge struct {
	DeviceHeader
	extrasBag
}

func (b *Bridge) Model() ModelType { return ModelBridge }
