package enroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"smartattend/internal/cloudinary"
	"smartattend/internal/faceclient"
)

// Enrollment failure kinds, matched with errors.Is.
var (
	ErrDeviceDenied   = errors.New("camera access denied")
	ErrNoFaceDetected = errors.New("no face detected")
	ErrMultipleFaces  = errors.New("multiple faces detected")
)

// EnrollmentError reports why a face could not be registered.
type EnrollmentError struct {
	Kind error
	Err  error
}

func (e *EnrollmentError) Error() string {
	if e.Err == nil {
		return "enroll: " + e.Kind.Error()
	}
	return fmt.Sprintf("enroll: %v: %v", e.Kind, e.Err)
}

func (e *EnrollmentError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// FaceEnroller registers a face with the recognition gallery.
type FaceEnroller interface {
	Enroll(ctx context.Context, userID, name string, img faceclient.Image) (*faceclient.EnrollResult, error)
}

// Uploader stores a snapshot and returns where it lives.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// Enrollment is the outcome of a successful capture.
type Enrollment struct {
	Encoding    string
	SnapshotURL string
}

// Enroller captures a student's face from the front-facing camera.
type Enroller struct {
	Camera   Camera
	Faces    FaceEnroller
	Uploader Uploader
	Log      *slog.Logger
}

// Capture acquires the user-facing camera, grabs one frame, stops the stream
// and registers the frame. Camera failures are never swallowed.
func (e *Enroller) Capture(ctx context.Context, userID, name string) (Enrollment, error) {
	frame, err := Snapshot(ctx, e.Camera, Constraints{FacingMode: FacingUser})
	if err != nil {
		if errors.Is(err, ErrCameraUnavailable) {
			return Enrollment{}, &EnrollmentError{Kind: ErrDeviceDenied, Err: err}
		}
		return Enrollment{}, fmt.Errorf("enroll: read frame: %w", err)
	}

	var out Enrollment
	if e.Uploader != nil {
		res, err := e.Uploader.Upload(ctx, frame, userID+".jpg")
		if err != nil {
			e.logger().Warn("snapshot upload failed", "user_id", userID, "error", err)
		} else {
			out.SnapshotURL = res.SecureURL
		}
	}

	res, err := e.Faces.Enroll(ctx, userID, name, faceclient.Image{Bytes: frame})
	if err != nil {
		return Enrollment{}, fmt.Errorf("enroll: face service: %w", err)
	}
	// faces_detected is optional; without it Success decides
	switch {
	case res.FacesDetected != nil && *res.FacesDetected > 1:
		return Enrollment{}, &EnrollmentError{Kind: ErrMultipleFaces}
	case res.FacesDetected != nil && *res.FacesDetected == 0, !res.Success:
		var cause error
		if res.Message != "" {
			cause = errors.New(res.Message)
		}
		return Enrollment{}, &EnrollmentError{Kind: ErrNoFaceDetected, Err: cause}
	}

	out.Encoding = res.Encoding
	e.logger().Info("face enrolled", "user_id", userID, "snapshot", out.SnapshotURL != "")
	return out, nil
}

func (e *Enroller) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}
