package uiprotect

import (
	"context"
	"fmt"

	"github.com/uilibs/uiprotect/data"
)

// PatchDevice applies mutate to a copy of the device, writes the
// resulting minimal diff to the controller and commits the copy
// locally. The changed field paths are registered for echo suppression
// first, so the controller's websocket echo of this write produces no
// notification. Server-derived fields are never suppressed.
//
// A mutate that changes nothing is a no-op, no request is sent.
func (c *Client) PatchDevice(ctx context.Context, model data.ModelType, id string, mutate func(obj any) error) error {
	boot := c.Bootstrap()
	if boot == nil {
		return fmt.Errorf("%w: client not started", ErrState)
	}
	current, ok := boot.GetDeviceByID(id)
	if !ok {
		return fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	if o, ok := current.(data.Object); ok && o.Model() != model {
		return fmt.Errorf("%w: %s is a %s, not a %s", ErrBadRequest, id, o.Model(), model)
	}

	fresh, err := data.Clone(current)
	if err != nil {
		return err
	}
	if err := mutate(fresh); err != nil {
		return err
	}

	changed, body, err := data.Diff(current, fresh)
	if err != nil {
		return err
	}
	if changed.Empty() {
		return nil
	}

	c.ignore.Register(id, changed.Paths())
	c.ignore.sweep()

	path := apiPath + "/" + model.RestPath() + "/" + id
	if _, err := c.patch(ctx, path, body); err != nil {
		// The write never landed; the registered paths simply age out.
		return err
	}
	boot.ReplaceDevice(model, id, fresh)
	return nil
}

// SetRecordingMode changes a camera's recording mode.
func (c *Client) SetRecordingMode(ctx context.Context, cameraID string, mode data.RecordingMode) error {
	return c.PatchDevice(ctx, data.ModelCamera, cameraID, func(obj any) error {
		cam := obj.(*data.Camera)
		if cam.RecordingSettings == nil {
			cam.RecordingSettings = &data.RecordingSettings{}
		}
		cam.RecordingSettings.Mode = mode
		return nil
	})
}

// SetCameraName renames a camera.
func (c *Client) SetCameraName(ctx context.Context, cameraID, name string) error {
	return c.PatchDevice(ctx, data.ModelCamera, cameraID, func(obj any) error {
		obj.(*data.Camera).Name = name
		return nil
	})
}

// SetLightMode changes when a light turns on and for whom.
func (c *Client) SetLightMode(ctx context.Context, lightID string, mode data.LightMode, enable data.LightModeEnable) error {
	return c.PatchDevice(ctx, data.ModelLight, lightID, func(obj any) error {
		light := obj.(*data.Light)
		if light.LightModeSettings == nil {
			light.LightModeSettings = &data.LightModeSettings{}
		}
		light.LightModeSettings.Mode = mode
		if enable != "" {
			light.LightModeSettings.EnableAt = enable
		}
		return nil
	})
}

// SetStatusLight toggles a camera's status LED.
func (c *Client) SetStatusLight(ctx context.Context, cameraID string, enabled bool) error {
	return c.PatchDevice(ctx, data.ModelCamera, cameraID, func(obj any) error {
		cam := obj.(*data.Camera)
		if cam.LEDSettings == nil {
			cam.LEDSettings = &data.LEDSettings{}
		}
		cam.LEDSettings.IsEnabled = enabled
		return nil
	})
}

// SetLCDMessage writes a doorbell's display message.
func (c *Client) SetLCDMessage(ctx context.Context, cameraID string, msg *data.LCDMessage) error {
	return c.PatchDevice(ctx, data.ModelCamera, cameraID, func(obj any) error {
		obj.(*data.Camera).LCDMessage = msg
		return nil
	})
}

// SetLightForceOn forces a floodlight on or off regardless of mode.
func (c *Client) SetLightForceOn(ctx context.Context, lightID string, on bool) error {
	return c.PatchDevice(ctx, data.ModelLight, lightID, func(obj any) error {
		obj.(*data.Light).IsLEDForceOn = on
		return nil
	})
}

// RebootDevice asks the controller to reboot an adopted device.
func (c *Client) RebootDevice(ctx context.Context, model data.ModelType, id string) error {
	path := apiPath + "/" + model.RestPath() + "/" + id + "/reboot"
	_, err := c.post(ctx, path, nil)
	return err
}

// PlayChime rings a chime's speaker.
func (c *Client) PlayChime(ctx context.Context, chimeID string) error {
	path := apiPath + "/chimes/" + chimeID + "/play-speaker"
	_, err := c.post(ctx, path, nil)
	return err
}

// OpenDoorlock unlocks a doorlock.
func (c *Client) OpenDoorlock(ctx context.Context, doorlockID string) error {
	path := apiPath + "/doorlocks/" + doorlockID + "/open"
	_, err := c.post(ctx, path, nil)
	return err
}

// CloseDoorlock locks a doorlock.
func (c *Client) CloseDoorlock(ctx context.Context, doorlockID string) error {
	path := apiPath + "/doorlocks/" + doorlockID + "/close"
	_, err := c.post(ctx, path, nil)
	return err
}
