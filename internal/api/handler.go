package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartattend/internal/attendance"
	"smartattend/internal/auth"
	"smartattend/internal/enroll"
	"smartattend/internal/profile"
	"smartattend/internal/roster"
)

// Sessions is the part of attendance.Service the handlers use.
type Sessions interface {
	Bootstrap(ctx context.Context, lectures []string) ([]attendance.Record, error)
	Loaded() bool
	List() ([]attendance.Record, error)
	Get(id string) (attendance.Record, error)
	Toggle(ctx context.Context, id string) (attendance.Record, error)
}

// Capturer registers a student's face.
type Capturer interface {
	Capture(ctx context.Context, userID, name string) (enroll.Enrollment, error)
}

// Check is a named readiness probe.
type Check func(ctx context.Context) error

// Handler serves the lecturer and student endpoints.
type Handler struct {
	sessions Sessions
	profiles *profile.Store
	roster   *roster.Store
	capturer Capturer
	signer   *auth.Signer
	checks   map[string]Check
	log      *slog.Logger
	now      func() time.Time
}

// Deps wires a Handler.
type Deps struct {
	Sessions Sessions
	Profiles *profile.Store
	Roster   *roster.Store
	Capturer Capturer
	Signer   *auth.Signer
	Checks   map[string]Check
	Logger   *slog.Logger
	Now      func() time.Time
}

// New returns a Handler.
func New(d Deps) *Handler {
	h := &Handler{
		sessions: d.Sessions,
		profiles: d.Profiles,
		roster:   d.Roster,
		capturer: d.Capturer,
		signer:   d.Signer,
		checks:   d.Checks,
		log:      d.Logger,
		now:      d.Now,
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Healthz runs every readiness check and reports 503 if any fails.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	result := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			result[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}
	result["sessions_loaded"] = h.sessions.Loaded()
	if status == http.StatusOK {
		result["status"] = "ok"
	} else {
		result["status"] = "degraded"
	}
	c.JSON(status, result)
}

type lecturerRequest struct {
	Name       string   `json:"name"`
	LecturerID string   `json:"lecturerId"`
	Lectures   []string `json:"lectures"`
}

// SetupLecturer saves the lecturer profile, loads the sessions for their
// lectures and issues tokens.
func (h *Handler) SetupLecturer(c *gin.Context) {
	var req lecturerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	lec, err := profile.NewLecturer(req.Name, req.LecturerID, req.Lectures)
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := h.profiles.SaveLecturer(ctx, lec); err != nil {
		h.fail(c, err)
		return
	}
	records, err := h.sessions.Bootstrap(ctx, lec.Lectures)
	if err != nil {
		h.fail(c, err)
		return
	}
	tokens, err := h.signer.Issue(lec.ID, auth.RoleLecturer, lec.LecturerID)
	if err != nil {
		h.log.Error("issue token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	h.log.Info("lecturer signed in", "lecturer_id", lec.LecturerID, "lectures", len(lec.Lectures))
	c.JSON(http.StatusCreated, gin.H{
		"lecturer": lec,
		"tokens":   tokens,
		"records":  records,
	})
}

// GetLecturer returns the saved lecturer profile.
func (h *Handler) GetLecturer(c *gin.Context) {
	lec, err := h.profiles.Lecturer(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lec)
}

// LogoutLecturer clears the lecturer profile.
func (h *Handler) LogoutLecturer(c *gin.Context) {
	if err := h.profiles.Clear(c.Request.Context(), profile.LecturerKey); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSessions returns every record with the dashboard summary.
func (h *Handler) ListSessions(c *gin.Context) {
	records, err := h.sessions.List()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"summary": attendance.Summarize(records),
	})
}

// GetSession returns one record and its attendance rate.
func (h *Handler) GetSession(c *gin.Context) {
	rec, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"record":         rec,
		"attendanceRate": attendance.Summarize([]attendance.Record{rec}).AverageAttendance,
	})
}

// ToggleCamera opens or closes the camera for a record.
func (h *Handler) ToggleCamera(c *gin.Context) {
	rec, err := h.sessions.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetRoster returns the students expected at a lecture.
func (h *Handler) GetRoster(c *gin.Context) {
	lecture := c.Param("lecture")
	c.JSON(http.StatusOK, gin.H{"lecture": lecture, "students": h.roster.Lookup(lecture)})
}

type studentRequest struct {
	Name      string   `json:"name" binding:"required"`
	StudentID string   `json:"studentId" binding:"required"`
	Schedule  []string `json:"schedule"`
}

// RegisterStudent captures the student's face and saves their profile.
func (h *Handler) RegisterStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "please fill in all required fields"})
		return
	}
	ctx := c.Request.Context()
	enr, err := h.capturer.Capture(ctx, req.StudentID, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	st, err := profile.NewStudent(req.Name, req.StudentID, req.Schedule, enr.Encoding, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	st.SnapshotURL = enr.SnapshotURL
	if err := h.profiles.SaveStudent(ctx, st); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("student registered", "student_id", st.StudentID)
	c.JSON(http.StatusCreated, st)
}

// GetStudent returns the saved student profile.
func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.profiles.Student(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// StudentAttendance returns the student's history across scheduled lectures.
// Before any sessions are loaded the history is empty.
func (h *Handler) StudentAttendance(c *gin.Context) {
	st, err := h.profiles.Student(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	records, err := h.sessions.List()
	if err != nil && !errors.Is(err, attendance.ErrNotBootstrapped) {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, attendance.StudentHistory(records, st.StudentID, st.Schedule))
}

// LogoutStudent clears the student profile.
func (h *Handler) LogoutStudent(c *gin.Context) {
	if err := h.profiles.Clear(c.Request.Context(), profile.StudentKey); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
