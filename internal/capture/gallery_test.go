package capture

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"smartattend/internal/enroll"
	"smartattend/internal/faceclient"
	"smartattend/internal/roster"
)

// fakeGallery enrolls whatever user_id it is given and reports every enrolled
// face on search.
type fakeGallery struct {
	mu    sync.Mutex
	users []string
}

func (g *fakeGallery) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch r.URL.Path {
	case "/enroll":
		var req struct {
			UserID string `json:"user_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		g.users = append(g.users, req.UserID)
		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": req.UserID, "success": true, "message": "enrolled"})
	case "/search":
		matches := make([]faceclient.SearchMatch, 0, len(g.users))
		for _, u := range g.users {
			matches = append(matches, faceclient.SearchMatch{UserID: u, Similarity: 0.9})
		}
		_ = json.NewEncoder(w).Encode(faceclient.SearchResult{Matches: matches, FacesDetected: len(matches)})
	default:
		http.NotFound(w, r)
	}
}

func TestFaceServiceDetector_FindsEnrolledStudents(t *testing.T) {
	srv := httptest.NewServer(&fakeGallery{})
	defer srv.Close()

	client := faceclient.New(srv.URL, false)
	enroller := &enroll.Enroller{Camera: enroll.NewSimulatedCamera([]byte("face")), Faces: client}
	for _, id := range []string{"STU-2024-004", "STU-2024-001"} {
		if _, err := enroller.Capture(context.Background(), id, "student "+id); err != nil {
			t.Fatalf("Capture %s: %v", id, err)
		}
	}

	hall := enroll.NewSimulatedCamera([]byte("lecture hall"))
	d := &FaceServiceDetector{
		Client: client,
		Frames: func(ctx context.Context) ([]byte, error) {
			return enroll.Snapshot(ctx, hall, enroll.Constraints{FacingMode: enroll.FacingEnvironment})
		},
	}
	got, err := d.Detect(context.Background(), roster.Default().Lookup("AI 101"))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 2 || got[0].ExternalID != "STU-2024-001" || got[1].ExternalID != "STU-2024-004" {
		t.Errorf("detected %+v, want STU-2024-001 and STU-2024-004 in roster order", got)
	}
}
