package attendance

import (
	"math"
	"sort"
	"time"
)

// Summary aggregates the lecturer dashboard figures.
type Summary struct {
	TotalAttended     int `json:"totalAttended"`
	TotalAbsent       int `json:"totalAbsent"`
	TotalSessions     int `json:"totalSessions"`
	AverageAttendance int `json:"averageAttendance"`
}

// Summarize totals attended and absent entries across records. The average is
// a rounded percentage of attended over all entries.
func Summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		s.TotalAttended += len(r.Attended)
		s.TotalAbsent += len(r.Absent)
	}
	s.TotalSessions = len(records)
	s.AverageAttendance = percent(s.TotalAttended, s.TotalAttended+s.TotalAbsent)
	return s
}

// Status of one student in one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// HistoryEntry is one row of a student's attendance history.
type HistoryEntry struct {
	RecordID    string    `json:"id"`
	LectureName string    `json:"lectureName"`
	Date        time.Time `json:"date"`
	Status      Status    `json:"status"`
}

// History is a student's view over the session records.
type History struct {
	Entries        []HistoryEntry `json:"entries"`
	TotalSessions  int            `json:"totalSessions"`
	Present        int            `json:"present"`
	AttendanceRate int            `json:"attendanceRate"`
}

// StudentHistory lists the sessions where externalID is on the roster, newest
// first. A non-empty schedule restricts it to those lectures.
func StudentHistory(records []Record, externalID string, schedule []string) History {
	allowed := make(map[string]bool, len(schedule))
	for _, l := range schedule {
		allowed[l] = true
	}

	h := History{Entries: []HistoryEntry{}}
	for _, r := range records {
		if len(allowed) > 0 && !allowed[r.LectureKey] && !allowed[r.LectureName] {
			continue
		}
		status, ok := statusIn(r, externalID)
		if !ok {
			continue
		}
		h.Entries = append(h.Entries, HistoryEntry{
			RecordID:    r.ID,
			LectureName: r.LectureName,
			Date:        r.Date,
			Status:      status,
		})
		if status == StatusPresent {
			h.Present++
		}
	}
	sort.SliceStable(h.Entries, func(i, j int) bool {
		return h.Entries[i].Date.After(h.Entries[j].Date)
	})
	h.TotalSessions = len(h.Entries)
	h.AttendanceRate = percent(h.Present, h.TotalSessions)
	return h
}

func statusIn(r Record, externalID string) (Status, bool) {
	for _, id := range r.Attended {
		if id.ExternalID == externalID {
			return StatusPresent, true
		}
	}
	for _, id := range r.Absent {
		if id.ExternalID == externalID {
			return StatusAbsent, true
		}
	}
	return "", false
}

func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}
