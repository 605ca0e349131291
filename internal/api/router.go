package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartattend/internal/auth"
)

// NewRouter builds the gin engine. mw runs after recovery and access logging.
func NewRouter(h *Handler, metrics http.Handler, mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(mw...)

	r.GET("/healthz", h.Healthz)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := r.Group("/v1")
	v1.POST("/lecturer", h.SetupLecturer)

	lecturer := v1.Group("", auth.Require(h.signer, auth.RoleLecturer))
	lecturer.GET("/lecturer", h.GetLecturer)
	lecturer.DELETE("/lecturer", h.LogoutLecturer)
	lecturer.GET("/sessions", h.ListSessions)
	lecturer.GET("/sessions/:id", h.GetSession)
	lecturer.POST("/sessions/:id/camera", h.ToggleCamera)
	lecturer.GET("/rosters/:lecture", h.GetRoster)

	v1.POST("/students", h.RegisterStudent)
	v1.GET("/students/me", h.GetStudent)
	v1.GET("/students/me/attendance", h.StudentAttendance)
	v1.DELETE("/students/me", h.LogoutStudent)

	return r
}
