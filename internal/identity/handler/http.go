// Package handler exposes registration, login, token refresh and the profile over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-management/backend/internal/identity/service"
	"fleet-management/backend/internal/server/middleware"
	"fleet-management/backend/internal/server/response"
	userdomain "fleet-management/backend/internal/user/domain"
)

// AuthService is the auth orchestrator the handler calls.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	ChangePassword(ctx context.Context, u *userdomain.User, current, next string) error
	Logout(ctx context.Context, userID string) error
	Profile(ctx context.Context, userID string) (*userdomain.User, error)
	UpdateProfile(ctx context.Context, userID string, in service.UpdateProfileInput) (*userdomain.User, error)
}

// CookieConfig controls the refresh-token cookie. MaxAge is the refresh-token lifetime.
type CookieConfig struct {
	MaxAge time.Duration
	Secure bool
}

type Handler struct {
	svc    AuthService
	cookie CookieConfig
}

// NewHandler returns the auth handler and registers the password binding rule.
func NewHandler(svc AuthService, cookie CookieConfig) *Handler {
	RegisterValidators()
	return &Handler{svc: svc, cookie: cookie}
}

// Register mounts the /auth routes on r. auth guards the routes that need a signed-in user.
func (h *Handler) Register(r gin.IRouter, auth gin.HandlerFunc) {
	g := r.Group("/auth")
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.POST("/refresh", h.refresh)
	g.GET("/profile", auth, h.profile)
	g.PATCH("/profile", auth, h.updateProfile)
	g.PATCH("/change-password", auth, h.changePassword)
	g.POST("/logout", auth, h.logout)
}

type registerRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Name        string `json:"name" binding:"required"`
	Password    string `json:"password" binding:"required,password"`
	PhoneNumber string `json:"phoneNumber"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type updateProfileRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1"`
	Email       *string `json:"email" binding:"omitempty,email"`
	PhoneNumber *string `json:"phoneNumber"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,password"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toUserResponse(u *userdomain.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		PhoneNumber: u.Phone,
		Role:        string(u.Role),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingError(c, err)
		return
	}
	res, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Phone:    req.PhoneNumber,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Body{Data: toUserResponse(res.User), AccessToken: res.AccessToken})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingError(c, err)
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	h.setRefreshCookie(c, res.RefreshToken)
	c.JSON(http.StatusOK, response.Body{Data: toUserResponse(res.User), AccessToken: res.AccessToken})
}

func (h *Handler) refresh(c *gin.Context) {
	tok, err := c.Cookie(middleware.RefreshCookieName)
	if err != nil || tok == "" {
		response.Message(c, http.StatusUnauthorized, middleware.ErrRefreshTokenMissing.Message)
		return
	}
	res, err := h.svc.Refresh(c.Request.Context(), tok)
	if err != nil {
		writeError(c, err)
		return
	}
	h.setRefreshCookie(c, res.RefreshToken)
	c.JSON(http.StatusOK, response.Body{AccessToken: res.AccessToken})
}

func (h *Handler) profile(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		response.Message(c, http.StatusUnauthorized, middleware.ErrUnauthorized.Message)
		return
	}
	response.Data(c, http.StatusOK, toUserResponse(u))
}

func (h *Handler) updateProfile(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		response.Message(c, http.StatusUnauthorized, middleware.ErrUnauthorized.Message)
		return
	}
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingError(c, err)
		return
	}
	updated, err := h.svc.UpdateProfile(c.Request.Context(), u.ID, service.UpdateProfileInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.PhoneNumber,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Data(c, http.StatusOK, toUserResponse(updated))
}

func (h *Handler) changePassword(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		response.Message(c, http.StatusUnauthorized, middleware.ErrUnauthorized.Message)
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingError(c, err)
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), u, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Message(c, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		writeError(c, err)
		return
	}
	h.clearRefreshCookie(c)
	response.Message(c, http.StatusOK, "Password Changed Successfully")
}

func (h *Handler) logout(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		response.Message(c, http.StatusUnauthorized, middleware.ErrUnauthorized.Message)
		return
	}
	if err := h.svc.Logout(c.Request.Context(), u.ID); err != nil {
		writeError(c, err)
		return
	}
	h.clearRefreshCookie(c)
	response.Message(c, http.StatusOK, "Logged out successfully")
}

// setRefreshCookie writes the refresh token as an HttpOnly, SameSite=Strict cookie on /.
// Max-Age is in seconds.
func (h *Handler) setRefreshCookie(c *gin.Context, tok string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.RefreshCookieName, tok, int(h.cookie.MaxAge/time.Second), "/", "", h.cookie.Secure, true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.RefreshCookieName, "", -1, "/", "", h.cookie.Secure, true)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		response.Message(c, http.StatusConflict, "An account with this email already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Message(c, http.StatusUnauthorized, service.ErrInvalidCredentials.Error())
	case errors.Is(err, service.ErrInvalidRefreshToken):
		response.Message(c, http.StatusUnauthorized, middleware.ErrInvalidSession.Message)
	case errors.Is(err, service.ErrSamePassword):
		response.Message(c, http.StatusBadRequest, "New password must be different from the current password")
	case errors.Is(err, service.ErrValidation):
		response.Message(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.Message(c, http.StatusNotFound, "User not found")
	default:
		response.Internal(c, err)
	}
}
