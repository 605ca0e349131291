package capture

import (
	"context"
	"errors"

	"smartattend/internal/faceclient"
	"smartattend/internal/roster"
)

// FrameSource grabs a single still from the lecture-hall camera.
type FrameSource func(ctx context.Context) ([]byte, error)

// FaceServiceDetector identifies faces through the recognition microservice.
// When the client runs in skip mode it delegates to Fallback.
type FaceServiceDetector struct {
	Client    *faceclient.Client
	Frames    FrameSource
	Fallback  Detector
	Threshold float64
}

// Detect searches one frame against the gallery and keeps matching roster entries
// in roster order. Gallery entries are keyed by the student's external id, the
// same key enrollment registers them under.
func (d *FaceServiceDetector) Detect(ctx context.Context, ids []roster.Identity) ([]roster.Identity, error) {
	if d.Client == nil || d.Client.Skip {
		if d.Fallback == nil {
			return nil, errors.New("detection: no detector configured")
		}
		return d.Fallback.Detect(ctx, ids)
	}
	if d.Frames == nil {
		return nil, &DetectionError{Kind: ErrDeviceLost}
	}

	frame, err := d.Frames(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fromContext(ctx.Err())
		}
		return nil, &DetectionError{Kind: ErrDeviceLost, Err: err}
	}

	res, err := d.Client.Search(ctx, faceclient.Image{Bytes: frame}, len(ids), d.Threshold)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fromContext(ctx.Err())
		}
		return nil, err
	}

	matched := make(map[string]bool, len(res.Matches))
	for _, m := range res.Matches {
		matched[m.UserID] = true
	}
	out := make([]roster.Identity, 0, len(matched))
	for _, id := range ids {
		if matched[id.ExternalID] {
			out = append(out, id)
		}
	}
	return out, nil
}
