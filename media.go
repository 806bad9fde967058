package uiprotect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/uilibs/uiprotect/data"
)

// GetCameraSnapshot fetches a current JPEG frame. Zero width and
// height request the camera's full resolution.
func (c *Client) GetCameraSnapshot(ctx context.Context, cameraID string, width, height int) ([]byte, error) {
	q := url.Values{}
	q.Set("ts", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if width > 0 {
		q.Set("w", strconv.Itoa(width))
	}
	if height > 0 {
		q.Set("h", strconv.Itoa(height))
	}
	if width == 0 && height == 0 {
		q.Set("highQuality", "true")
	}
	path := apiPath + "/cameras/" + url.PathEscape(cameraID) + "/snapshot?" + q.Encode()
	return c.get(ctx, path)
}

// GetPackageSnapshot fetches a frame from a doorbell's package camera.
func (c *Client) GetPackageSnapshot(ctx context.Context, cameraID string) ([]byte, error) {
	q := url.Values{}
	q.Set("ts", strconv.FormatInt(time.Now().UnixMilli(), 10))
	path := apiPath + "/cameras/" + url.PathEscape(cameraID) + "/package-snapshot?" + q.Encode()
	return c.get(ctx, path)
}

// ExportVideo streams recorded footage for the window into w. Exports
// can run to gigabytes, so the body is copied through instead of
// buffered; the request is not retried.
func (c *Client) ExportVideo(ctx context.Context, cameraID string, start, end time.Time, channel int, w io.Writer) error {
	if !end.After(start) {
		return fmt.Errorf("%w: export window is empty", ErrBadRequest)
	}
	q := url.Values{}
	q.Set("camera", cameraID)
	q.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("end", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("channel", strconv.Itoa(channel))
	path := apiPath + "/video/export?" + q.Encode()

	if err := c.auth.ensure(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.auth.cfg.baseURL()+path, nil)
	if err != nil {
		return err
	}
	c.auth.decorate(req)
	resp, err := c.auth.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromStatus(resp.StatusCode, readErrorMessage(resp))
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// Talkback streams raw audio to a camera speaker. The caller supplies
// audio in the encoding the camera's TalkbackSettings advertise; the
// body is streamed through, not buffered.
func (c *Client) Talkback(ctx context.Context, cameraID string, audio io.Reader) error {
	path := apiPath + "/cameras/" + url.PathEscape(cameraID) + "/talkback-stream"
	if err := c.auth.ensure(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.auth.cfg.baseURL()+path, audio)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.auth.decorate(req)
	resp, err := c.auth.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromStatus(resp.StatusCode, readErrorMessage(resp))
	}
	return nil
}

// GetEventThumbnail fetches the JPEG thumbnail attached to an event.
func (c *Client) GetEventThumbnail(ctx context.Context, thumbnailID string) ([]byte, error) {
	return c.get(ctx, apiPath+"/thumbnails/"+url.PathEscape(thumbnailID))
}

// GetEventHeatmap fetches the motion heatmap attached to an event.
func (c *Client) GetEventHeatmap(ctx context.Context, heatmapID string) ([]byte, error) {
	return c.get(ctx, apiPath+"/heatmaps/"+url.PathEscape(heatmapID))
}

// EventQuery narrows a GetEvents call. Zero fields are omitted.
type EventQuery struct {
	Start time.Time
	End   time.Time
	Limit int
	Types []data.EventType
}

// GetEvents queries the controller's event history, which reaches far
// beyond the in-memory retention window.
func (c *Client) GetEvents(ctx context.Context, query EventQuery) ([]*data.Event, error) {
	q := url.Values{}
	if !query.Start.IsZero() {
		q.Set("start", strconv.FormatInt(query.Start.UnixMilli(), 10))
	}
	if !query.End.IsZero() {
		q.Set("end", strconv.FormatInt(query.End.UnixMilli(), 10))
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	for _, t := range query.Types {
		q.Add("types", string(t))
	}
	path := apiPath + "/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	raw, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var events []*data.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("%w: events payload: %v", ErrProtocol, err)
	}
	return events, nil
}
