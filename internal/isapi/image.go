package isapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const maxSnapshotAttempts = 2

// ResponseStatus codes the snapshot endpoint answers with instead of an
// image.
const (
	statusCodeDeviceError   = 3
	statusCodeInvalidXMLErr = 6
)

// GetCameraImage fetches a JPEG snapshot for a stream. Width/height are
// forwarded from the stream profile unless the caller asks for a thumbnail
// (width <= 100). Cameras that answer the standard picture endpoint with an
// "Invalid XML Content" status document get switched permanently to the
// StreamingProxy picture URL; transient "Device Error" answers are retried.
func (c *Client) GetCameraImage(ctx context.Context, stream *CameraStreamInfo, width, height int) ([]byte, error) {
	return c.getCameraImage(ctx, stream, width, height, 0)
}

func (c *Client) getCameraImage(ctx context.Context, stream *CameraStreamInfo, width, height, attempt int) ([]byte, error) {
	q := url.Values{}
	if width == 0 || width > 100 {
		q.Set("videoResolutionWidth", strconv.Itoa(stream.Width))
		q.Set("videoResolutionHeight", strconv.Itoa(stream.Height))
	}
	path := fmt.Sprintf("Streaming/channels/%d/picture", stream.ID)
	if stream.UseAlternatePictureURL {
		path = fmt.Sprintf("ContentMgmt/StreamingProxy/channels/%d/picture", stream.ID)
	}
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	rc, err := c.RequestStream(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	if bytes.HasPrefix(data, []byte("<?xml ")) {
		status, perr := ParseISAPIResponse("application/xml", data)
		if perr != nil {
			return nil, perr
		}
		code := DeepGetInt(status, "ResponseStatus.statusCode", 0)
		if code == statusCodeInvalidXMLErr && !stream.UseAlternatePictureURL {
			stream.UseAlternatePictureURL = true
			return c.getCameraImage(ctx, stream, width, height, attempt)
		}
		if code == statusCodeDeviceError && attempt < maxSnapshotAttempts {
			return c.getCameraImage(ctx, stream, width, height, attempt+1)
		}
		return nil, fmt.Errorf("%w: snapshot status code %d (%s)", ErrUnsupported,
			code, DeepGetStr(status, "ResponseStatus.statusString"))
	}
	return data, nil
}
