package uiprotect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uilibs/uiprotect/data"
)

// publicAPIPath is the integration API the controller authenticates by
// X-API-KEY alone, no cookie session.
const publicAPIPath = "/proxy/protect/integration/v1"

// MetaInfo is the public-API application descriptor.
type MetaInfo struct {
	ApplicationVersion string `json:"applicationVersion"`
}

// GetMetaInfo fetches the controller's public-API version descriptor.
// Works with an API key alone.
func (c *Client) GetMetaInfo(ctx context.Context) (*MetaInfo, error) {
	raw, err := c.get(ctx, publicAPIPath+"/meta/info")
	if err != nil {
		return nil, err
	}
	info := &MetaInfo{}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, fmt.Errorf("%w: meta info payload: %v", ErrProtocol, err)
	}
	return info, nil
}

// GetPublicCameras lists adopted cameras through the public API. The
// public document is a subset of the private one, so only the shared
// fields are populated.
func (c *Client) GetPublicCameras(ctx context.Context) ([]*data.Camera, error) {
	raw, err := c.get(ctx, publicAPIPath+"/cameras")
	if err != nil {
		return nil, err
	}
	var cams []*data.Camera
	if err := json.Unmarshal(raw, &cams); err != nil {
		return nil, fmt.Errorf("%w: cameras payload: %v", ErrProtocol, err)
	}
	return cams, nil
}
