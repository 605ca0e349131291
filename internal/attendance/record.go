package attendance

import (
	"fmt"
	"time"

	"smartattend/internal/roster"
)

// CameraStatus is the lecturer-facing camera switch.
type CameraStatus string

const (
	CameraOpen   CameraStatus = "open"
	CameraClosed CameraStatus = "closed"
)

// Detection tracks the capture run started by opening the camera.
type Detection string

const (
	DetectionIdle     Detection = "idle"
	DetectionScanning Detection = "scanning"
	DetectionSettled  Detection = "settled"
	DetectionFailed   Detection = "failed"
)

// Record is one lecture's attendance-taking occasion.
type Record struct {
	ID           string            `json:"id"`
	LectureKey   string            `json:"lectureId"`
	LectureName  string            `json:"lectureName"`
	Date         time.Time         `json:"date"`
	Attended     []roster.Identity `json:"attendedStudents"`
	Absent       []roster.Identity `json:"absentStudents"`
	CameraStatus CameraStatus      `json:"cameraStatus"`
	Detection    Detection         `json:"detection"`
}

// clone returns a copy that shares no slices with r.
func (r Record) clone() Record {
	r.Attended = append([]roster.Identity(nil), r.Attended...)
	r.Absent = append([]roster.Identity(nil), r.Absent...)
	return r
}

// Partition splits ids into those present in detected and the rest, keeping
// roster order. Detected entries not on the roster are ignored.
func Partition(ids, detected []roster.Identity) (attended, absent []roster.Identity) {
	hit := make(map[string]bool, len(detected))
	for _, d := range detected {
		hit[d.ID] = true
	}
	attended = make([]roster.Identity, 0, len(detected))
	absent = make([]roster.Identity, 0, len(ids))
	for _, id := range ids {
		if hit[id.ID] {
			attended = append(attended, id)
		} else {
			absent = append(absent, id)
		}
	}
	return attended, absent
}

// CheckPartition verifies attended and absent are disjoint and together equal ids.
func CheckPartition(r Record, ids []roster.Identity) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id.ID] = true
	}
	seen := make(map[string]bool, len(ids))
	for _, group := range [][]roster.Identity{r.Attended, r.Absent} {
		for _, id := range group {
			if seen[id.ID] {
				return fmt.Errorf("record %s: %s is both attended and absent", r.ID, id.ID)
			}
			if !want[id.ID] {
				return fmt.Errorf("record %s: %s is not on the roster", r.ID, id.ID)
			}
			seen[id.ID] = true
		}
	}
	if len(seen) != len(want) {
		return fmt.Errorf("record %s: %d of %d roster entries accounted for", r.ID, len(seen), len(want))
	}
	return nil
}
