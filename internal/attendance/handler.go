package attendance

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campus-backend/internal/platform/apierr"
	"campus-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes: RequireAuth 済みのグループに載せる。
// ロールはルートで粗く絞り、所有者チェックはサービス側で毎回行う
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	staff := auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin)
	student := auth.RequireRole(auth.RoleStudent)

	r.POST("/attendance/generate", staff, h.CreateSession)
	r.POST("/attendance/student/submit", student, h.CheckIn)
	r.POST("/attendance/close/:id", staff, h.CloseSession)
	r.POST("/attendance/refresh/:id", h.RefreshCode)
	r.GET("/attendance/class/:classId", h.ListClassSessions)
	r.GET("/attendance/details/:id", staff, h.GetSessionDetails)
	r.GET("/attendance/details/:id/export", staff, h.ExportSession)
	r.GET("/attendance/qrcode/:id", staff, h.QRCode)
	r.POST("/attendance/mark-manual", h.MarkManually)
	r.GET("/attendance/stats", student, h.GetStats)
	r.GET("/attendance/history", student, h.GetHistory)
}

// POST /attendance/generate
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, apierr.Invalid("classId and subjectId are required"))
		return
	}
	caller, _ := auth.CallerFrom(c)
	res, err := h.svc.CreateSession(c.Request.Context(), caller, req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.Header("Location", "/api/v1/attendance/details/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

// POST /attendance/student/submit
func (h *Handler) CheckIn(c *gin.Context) {
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, apierr.Invalid("code is required"))
		return
	}
	caller, _ := auth.CallerFrom(c)
	res, err := h.svc.CheckIn(c.Request.Context(), caller, req.Code)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CloseSession(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	res, err := h.svc.CloseSession(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "attendance session closed", "session": res})
}

func (h *Handler) RefreshCode(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	res, err := h.svc.RefreshCode(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListClassSessions(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	res, err := h.svc.ListClassSessions(c.Request.Context(), caller, c.Param("classId"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": res})
}

func (h *Handler) GetSessionDetails(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	res, err := h.svc.GetSessionDetails(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ExportSession(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	buf, name, err := h.svc.ExportSession(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) QRCode(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	png, err := h.svc.QRCode(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) MarkManually(c *gin.Context) {
	var req MarkManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, apierr.Invalid("attendanceId, studentId and a valid status are required"))
		return
	}
	caller, _ := auth.CallerFrom(c)
	res, err := h.svc.MarkManually(c.Request.Context(), caller, req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetStats(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	res, err := h.svc.GetStats(c.Request.Context(), caller)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /attendance/history?page=&limit=
func (h *Handler) GetHistory(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		apierr.Write(c, apierr.Invalid("page must be a number"))
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		apierr.Write(c, apierr.Invalid("limit must be a number"))
		return
	}
	caller, _ := auth.CallerFrom(c)
	res, err := h.svc.GetHistory(c.Request.Context(), caller, page, limit)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// 未指定は 0（サービス側で既定値）
func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
