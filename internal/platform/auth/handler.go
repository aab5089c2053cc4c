package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-backend/internal/platform/apierr"
)

type Handler struct{ svc *Service }

// RegisterPublicRoutes: 認証不要
func RegisterPublicRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/login", h.Login)
}

// RegisterRoutes: RequireAuth 済みグループに載せる
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/auth/me", h.Me)
	r.POST("/admin/users", RequireRole(RoleAdmin), h.CreateUser)
}

func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, apierr.Invalid("invalid json or missing required fields"))
		return
	}
	res, err := h.svc.Signup(c.Request.Context(), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, apierr.Invalid("invalid request"))
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Me(c *gin.Context) {
	caller, _ := CallerFrom(c)
	res, err := h.svc.Me(c.Request.Context(), caller)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, apierr.Invalid("invalid json or missing required fields"))
		return
	}
	caller, _ := CallerFrom(c)
	res, err := h.svc.CreateUser(c.Request.Context(), caller, req)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.Header("Location", "/api/v1/users/"+res.ID)
	c.JSON(http.StatusCreated, res)
}
