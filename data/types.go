// Package data holds the typed UniFi Protect object graph: the
// bootstrap, every adopted device variant, events, and the JSON wire
// codec that keeps them synchronized with the controller.
//
// Enums are string types over the wire values. The controller grows new
// values between firmware releases, so every enum is open on decode: an
// unrecognized value is kept verbatim and reported by Known() == false.
// Serialization always round-trips the raw string.
package data

// ModelType is the wire discriminator distinguishing object variants.
type ModelType string

const (
	ModelCamera   ModelType = "camera"
	ModelChime    ModelType = "chime"
	ModelBridge   ModelType = "bridge"
	ModelDoorlock ModelType = "doorlock"
	ModelEvent    ModelType = "event"
	ModelKeyring  ModelType = "keyring"
	ModelLight    ModelType = "light"
	ModelLiveview ModelType = "liveview"
	ModelNVR      ModelType = "nvr"
	ModelSensor   ModelType = "sensor"
	ModelUlpUser  ModelType = "ulpUser"
	ModelViewer   ModelType = "viewer"
)

// deviceModels are the model types stored in bootstrap device maps,
// in bootstrap wire-key order.
var deviceModels = []ModelType{
	ModelCamera, ModelLight, ModelSensor, ModelViewer, ModelChime,
	ModelDoorlock, ModelBridge, ModelLiveview, ModelKeyring, ModelUlpUser,
}

// Known reports whether the model type is part of the closed set the
// diff engine dispatches on.
func (m ModelType) Known() bool {
	switch m {
	case ModelCamera, ModelChime, ModelBridge, ModelDoorlock, ModelEvent,
		ModelKeyring, ModelLight, ModelLiveview, ModelNVR, ModelSensor,
		ModelUlpUser, ModelViewer:
		return true
	}
	return false
}

// BootstrapKey returns the bootstrap JSON key holding this model's
// device list ("camera" -> "cameras").
func (m ModelType) BootstrapKey() string {
	switch m {
	case ModelKeyring:
		return "keyrings"
	case ModelUlpUser:
		return "ulpUsers"
	default:
		return string(m) + "s"
	}
}

// RestPath returns the private-API collection path segment for the
// model ("camera" -> "cameras").
func (m ModelType) RestPath() string {
	return string(m) + "s"
}

// DeviceState is the connectivity lattice of a device.
type DeviceState string

const (
	StateConnected    DeviceState = "CONNECTED"
	StateConnecting   DeviceState = "CONNECTING"
	StateDisconnected DeviceState = "DISCONNECTED"
)

func (s DeviceState) Known() bool {
	switch s {
	case StateConnected, StateConnecting, StateDisconnected:
		return true
	}
	return false
}

// EventType tags event objects. The list is the subset the diff engine
// derives device state from, plus lifecycle kinds; anything else decodes
// as an unknown value and is carried through untouched.
type EventType string

const (
	EventMotion                EventType = "motion"
	EventRing                  EventType = "ring"
	EventSmartDetectZone       EventType = "smartDetectZone"
	EventSmartDetectLine       EventType = "smartDetectLine"
	EventSmartAudioDetect      EventType = "smartAudioDetect"
	EventNFCCardScanned        EventType = "nfcCardScanned"
	EventFingerprintIdentified EventType = "fingerprintIdentified"
	EventSensorMotion          EventType = "sensorMotion"
	EventSensorOpened          EventType = "sensorOpened"
	EventSensorClosed          EventType = "sensorClosed"
	EventSensorAlarm           EventType = "sensorAlarm"
	EventSensorExtremeValues   EventType = "sensorExtremeValues"
	EventLightMotion           EventType = "lightMotion"
	EventDoorlockOpened        EventType = "doorlockOpened"
	EventDoorlockClosed        EventType = "doorlockClosed"
	EventDeviceAdopted         EventType = "deviceAdopted"
	EventDeviceUnadopted       EventType = "deviceUnadopted"
	EventDeviceConnected       EventType = "deviceConnected"
	EventDeviceDisconnected    EventType = "deviceDisconnected"
	EventDeviceRebooted        EventType = "deviceRebooted"
	EventFirmwareUpdate        EventType = "fwUpdate"
	EventRecordingDeleted      EventType = "recordingDeleted"
	EventVideoExported         EventType = "videoExported"
)

func (e EventType) Known() bool {
	switch e {
	case EventMotion, EventRing, EventSmartDetectZone, EventSmartDetectLine,
		EventSmartAudioDetect, EventNFCCardScanned, EventFingerprintIdentified,
		EventSensorMotion, EventSensorOpened, EventSensorClosed,
		EventSensorAlarm, EventSensorExtremeValues, EventLightMotion,
		EventDoorlockOpened, EventDoorlockClosed, EventDeviceAdopted,
		EventDeviceUnadopted, EventDeviceConnected, EventDeviceDisconnected,
		EventDeviceRebooted, EventFirmwareUpdate, EventRecordingDeleted,
		EventVideoExported:
		return true
	}
	return false
}

// IsMotionKind reports whether the event drives camera motion state.
func (e EventType) IsMotionKind() bool {
	return e == EventMotion || e == EventSmartDetectZone || e == EventSmartDetectLine
}

// SmartDetectType is a server-side motion classification.
type SmartDetectType string

const (
	SmartDetectPerson       SmartDetectType = "person"
	SmartDetectVehicle      SmartDetectType = "vehicle"
	SmartDetectAnimal       SmartDetectType = "animal"
	SmartDetectPackage      SmartDetectType = "package"
	SmartDetectLicensePlate SmartDetectType = "licensePlate"
	SmartDetectFace         SmartDetectType = "face"
)

func (s SmartDetectType) Known() bool {
	switch s {
	case SmartDetectPerson, SmartDetectVehicle, SmartDetectAnimal,
		SmartDetectPackage, SmartDetectLicensePlate, SmartDetectFace:
		return true
	}
	return false
}

// RecordingMode controls when a camera records.
type RecordingMode string

const (
	RecordingModeAlways     RecordingMode = "always"
	RecordingModeNever      RecordingMode = "never"
	RecordingModeSchedule   RecordingMode = "schedule"
	RecordingModeDetections RecordingMode = "detections"
)

func (m RecordingMode) Known() bool {
	switch m {
	case RecordingModeAlways, RecordingModeNever, RecordingModeSchedule,
		RecordingModeDetections:
		return true
	}
	return false
}

// VideoMode selects the camera capture profile.
type VideoMode string

const (
	VideoModeDefault     VideoMode = "default"
	VideoModeHighFPS     VideoMode = "highFps"
	VideoModeHomekit     VideoMode = "homekit"
	VideoModeSport       VideoMode = "sport"
	VideoModeSlowShutter VideoMode = "slowShutter"
)

func (m VideoMode) Known() bool {
	switch m {
	case VideoModeDefault, VideoModeHighFPS, VideoModeHomekit,
		VideoModeSport, VideoModeSlowShutter:
		return true
	}
	return false
}

// IRLEDMode controls the infrared illuminator.
type IRLEDMode string

const (
	IRLEDModeAuto      IRLEDMode = "auto"
	IRLEDModeOn        IRLEDMode = "on"
	IRLEDModeAutoNoLED IRLEDMode = "autoFilterOnly"
	IRLEDModeOff       IRLEDMode = "off"
	IRLEDModeManual    IRLEDMode = "manual"
	IRLEDModeCustom    IRLEDMode = "custom"
)

func (m IRLEDMode) Known() bool {
	switch m {
	case IRLEDModeAuto, IRLEDModeOn, IRLEDModeAutoNoLED, IRLEDModeOff,
		IRLEDModeManual, IRLEDModeCustom:
		return true
	}
	return false
}

// MountType describes how a sensor is mounted.
type MountType string

const (
	MountTypeNone   MountType = "none"
	MountTypeLeak   MountType = "leak"
	MountTypeDoor   MountType = "door"
	MountTypeWindow MountType = "window"
	MountTypeGarage MountType = "garage"
)

func (m MountType) Known() bool {
	switch m {
	case MountTypeNone, MountTypeLeak, MountTypeDoor, MountTypeWindow,
		MountTypeGarage:
		return true
	}
	return false
}

// LightMode controls when a light turns on.
type LightMode string

const (
	LightModeMotion   LightMode = "motion"
	LightModeWhenDark LightMode = "always"
	LightModeManual   LightMode = "off"
	LightModeSchedule LightMode = "schedule"
)

func (m LightMode) Known() bool {
	switch m {
	case LightModeMotion, LightModeWhenDark, LightModeManual, LightModeSchedule:
		return true
	}
	return false
}

// LightModeEnable gates the light mode by ambient condition.
type LightModeEnable string

const (
	LightEnableDark   LightModeEnable = "dark"
	LightEnableAlways LightModeEnable = "fulltime"
	LightEnableNight  LightModeEnable = "night"
)

func (m LightModeEnable) Known() bool {
	switch m {
	case LightEnableDark, LightEnableAlways, LightEnableNight:
		return true
	}
	return false
}

// DoorbellMessageType tags the LCD message shown on a doorbell.
type DoorbellMessageType string

const (
	DoorbellMessageLeavePackage  DoorbellMessageType = "LEAVE_PACKAGE_AT_DOOR"
	DoorbellMessageDoNotDisturb  DoorbellMessageType = "DO_NOT_DISTURB"
	DoorbellMessageCustomMessage DoorbellMessageType = "CUSTOM_MESSAGE"
	DoorbellMessageImage         DoorbellMessageType = "IMAGE"
)

func (m DoorbellMessageType) Known() bool {
	switch m {
	case DoorbellMessageLeavePackage, DoorbellMessageDoNotDisturb,
		DoorbellMessageCustomMessage, DoorbellMessageImage:
		return true
	}
	return false
}

// SensorStatus grades a sensor telemetry reading.
type SensorStatus string

const (
	SensorStatusOffline SensorStatus = "offline"
	SensorStatusSafe    SensorStatus = "safe"
	SensorStatusNeutral SensorStatus = "neutral"
	SensorStatusLow     SensorStatus = "low"
	SensorStatusHigh    SensorStatus = "high"
)

func (s SensorStatus) Known() bool {
	switch s {
	case SensorStatusOffline, SensorStatusSafe, SensorStatusNeutral,
		SensorStatusLow, SensorStatusHigh:
		return true
	}
	return false
}
