package directory

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-backend/internal/platform/apierr"
	"campus-backend/internal/platform/auth"
)

type Service struct{ dir Directory }

func NewService(dir Directory) *Service { return &Service{dir: dir} }

// Roster: 担任 or admin のみ
func (s *Service) Roster(ctx context.Context, caller auth.Caller, classID string) ([]Member, error) {
	class, err := s.dir.GetClass(ctx, classID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.NotFound("class not found")
	}
	if err != nil {
		return nil, err
	}
	if !caller.CanManage(class.OwnerID()) {
		return nil, apierr.Forbidden("not the teacher of this class")
	}
	return s.dir.Roster(ctx, classID)
}

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/classes/:classId/roster", auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin), h.Roster)
}

func (h *Handler) Roster(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	res, err := h.svc.Roster(c.Request.Context(), caller, c.Param("classId"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classId": c.Param("classId"), "students": res})
}
