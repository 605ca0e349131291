package enroll

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"smartattend/internal/cloudinary"
	"smartattend/internal/faceclient"
)

type fakeFaces struct {
	res   *faceclient.EnrollResult
	err   error
	frame []byte
}

func (f *fakeFaces) Enroll(_ context.Context, userID, _ string, img faceclient.Image) (*faceclient.EnrollResult, error) {
	f.frame = img.Bytes
	if f.err != nil {
		return nil, f.err
	}
	r := *f.res
	r.UserID = userID
	return &r, nil
}

func faceCount(n int) *int { return &n }

type fakeUploader struct {
	err   error
	calls int
}

func (u *fakeUploader) Upload(_ context.Context, _ []byte, filename string) (*cloudinary.UploadResult, error) {
	u.calls++
	if u.err != nil {
		return nil, u.err
	}
	return &cloudinary.UploadResult{SecureURL: "https://cdn/" + filename}, nil
}

func TestCapture_SkipModeEncoding(t *testing.T) {
	cam := NewSimulatedCamera([]byte("frame"))
	e := &Enroller{Camera: cam, Faces: faceclient.New("", true)}

	got, err := e.Capture(context.Background(), "STU-1", "Ada")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Encoding != faceclient.MockEncoding {
		t.Errorf("Encoding = %q, want %q", got.Encoding, faceclient.MockEncoding)
	}
	if cam.Open() != 0 {
		t.Errorf("stream left open: %d", cam.Open())
	}
}

func TestCapture_DeniedCamera(t *testing.T) {
	cam := &SimulatedCamera{Denied: true}
	e := &Enroller{Camera: cam, Faces: faceclient.New("", true)}

	_, err := e.Capture(context.Background(), "STU-1", "Ada")
	if !errors.Is(err, ErrDeviceDenied) || !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("err = %v, want device denied + camera unavailable", err)
	}
	var eerr *EnrollmentError
	if !errors.As(err, &eerr) {
		t.Errorf("err is not an EnrollmentError: %T", err)
	}
}

func TestCapture_NoCamera(t *testing.T) {
	e := &Enroller{Faces: faceclient.New("", true)}
	if _, err := e.Capture(context.Background(), "STU-1", "Ada"); !errors.Is(err, ErrDeviceDenied) {
		t.Errorf("err = %v", err)
	}
}

func TestCapture_FaceCounts(t *testing.T) {
	tests := []struct {
		name string
		res  faceclient.EnrollResult
		want error
	}{
		{"none", faceclient.EnrollResult{Success: false, FacesDetected: faceCount(0), Message: "no face"}, ErrNoFaceDetected},
		{"many", faceclient.EnrollResult{Success: false, FacesDetected: faceCount(2)}, ErrMultipleFaces},
		{"failed without count", faceclient.EnrollResult{Success: false, Message: "blurry"}, ErrNoFaceDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewSimulatedCamera([]byte("frame"))
			e := &Enroller{Camera: cam, Faces: &fakeFaces{res: &tt.res}}
			_, err := e.Capture(context.Background(), "STU-1", "Ada")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if cam.Open() != 0 {
				t.Error("stream left open")
			}
		})
	}
}

func TestCapture_ServiceEncodingAndSnapshot(t *testing.T) {
	faces := &fakeFaces{res: &faceclient.EnrollResult{Success: true, FacesDetected: faceCount(1), Encoding: "ref-42"}}
	up := &fakeUploader{}
	e := &Enroller{Camera: NewSimulatedCamera([]byte("frame")), Faces: faces, Uploader: up}

	got, err := e.Capture(context.Background(), "STU-1", "Ada")
	if err != nil {
		t.Fatal(err)
	}
	if got.Encoding != "ref-42" || got.SnapshotURL != "https://cdn/STU-1.jpg" {
		t.Errorf("enrollment = %+v", got)
	}
	if string(faces.frame) != "frame" {
		t.Errorf("face service got frame %q", faces.frame)
	}
}

func TestCapture_UploadFailureIsNotFatal(t *testing.T) {
	up := &fakeUploader{err: errors.New("cdn down")}
	e := &Enroller{Camera: NewSimulatedCamera([]byte("frame")), Faces: faceclient.New("", true), Uploader: up}

	got, err := e.Capture(context.Background(), "STU-1", "Ada")
	if err != nil {
		t.Fatal(err)
	}
	if got.SnapshotURL != "" || up.calls != 1 {
		t.Errorf("enrollment = %+v, calls = %d", got, up.calls)
	}
}

func TestCapture_FaceServiceError(t *testing.T) {
	e := &Enroller{Camera: NewSimulatedCamera([]byte("frame")), Faces: &fakeFaces{err: errors.New("503")}}
	_, err := e.Capture(context.Background(), "STU-1", "Ada")
	if err == nil || errors.Is(err, ErrDeviceDenied) {
		t.Errorf("err = %v", err)
	}
}

func TestSnapshot_StopsStream(t *testing.T) {
	cam := NewSimulatedCamera([]byte("still"))
	frame, err := Snapshot(context.Background(), cam, Constraints{FacingMode: FacingEnvironment})
	if err != nil || string(frame) != "still" {
		t.Fatalf("Snapshot = %q, %v", frame, err)
	}
	if cam.Open() != 0 {
		t.Error("stream left open")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Snapshot(ctx, cam, Constraints{}); !errors.Is(err, ErrCameraUnavailable) {
		t.Errorf("cancelled acquire err = %v", err)
	}
}

func TestCapture_ResponseWithoutFaceCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"user_id":"STU-2024-001","success":true,"quality":{"score":0.9,"is_frontal":true},"message":"enrolled"}`)
	}))
	defer srv.Close()

	e := &Enroller{Camera: NewSimulatedCamera([]byte("frame")), Faces: faceclient.New(srv.URL, false)}
	got, err := e.Capture(context.Background(), "STU-2024-001", "Ada")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Encoding != "STU-2024-001" {
		t.Errorf("Encoding = %q, want the gallery user id", got.Encoding)
	}
}
