// Package handler exposes vehicle management over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-management/backend/internal/audit"
	"fleet-management/backend/internal/platform/rbac"
	"fleet-management/backend/internal/server/middleware"
	"fleet-management/backend/internal/server/response"
	"fleet-management/backend/internal/vehicle/domain"
	"fleet-management/backend/internal/vehicle/service"
)

// VehicleService is the vehicle service the handler calls.
type VehicleService interface {
	Create(ctx context.Context, in service.CreateInput) (*domain.Vehicle, error)
	List(ctx context.Context, p service.ListParams) ([]*domain.Vehicle, error)
	Get(ctx context.Context, id string) (*domain.Vehicle, error)
	Update(ctx context.Context, id string, in service.UpdateInput) (*domain.Vehicle, error)
	Delete(ctx context.Context, id string) error
	AssignDriver(ctx context.Context, id, driverID string) (*domain.Vehicle, error)
	UnassignDriver(ctx context.Context, id string) (*domain.Vehicle, error)
}

type Handler struct {
	svc VehicleService
}

func NewHandler(svc VehicleService) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the vehicle routes on r. Every route requires auth; the role check depends on the action.
func (h *Handler) Register(r gin.IRouter, auth gin.HandlerFunc, checker rbac.Checker, auditLogger audit.AuditLogger) {
	g := r.Group("/vehicles", auth, middleware.Audit(auditLogger))
	g.POST("", rbac.RequireRole(checker, rbac.VehicleCreate), h.create)
	g.GET("", rbac.RequireRole(checker, rbac.VehicleRead), h.list)
	g.GET("/:id", rbac.RequireRole(checker, rbac.VehicleRead), h.get)
	g.PATCH("/:id", rbac.RequireRole(checker, rbac.VehicleUpdate), h.update)
	g.DELETE("/:id", rbac.RequireRole(checker, rbac.VehicleDelete), h.delete)
	g.POST("/:id/driver", rbac.RequireRole(checker, rbac.VehicleAssignDriver), h.assignDriver)
	g.DELETE("/:id/driver", rbac.RequireRole(checker, rbac.VehicleUnassignDriver), h.unassignDriver)
}

type createRequest struct {
	PlateNumber  string  `json:"plateNumber" binding:"required,max=20"`
	Model        string  `json:"model" binding:"required,max=100"`
	Manufacturer string  `json:"manufacturer" binding:"required,max=100"`
	Year         int     `json:"year" binding:"required,min=1900"`
	Type         string  `json:"type" binding:"required,oneof=car bus truck van motorcycle"`
	SIMNumber    string  `json:"simNumber" binding:"max=30"`
	DeviceID     string  `json:"deviceId" binding:"max=100"`
	DriverID     *string `json:"driverId" binding:"omitempty,uuid"`
}

type updateRequest struct {
	Model        *string `json:"model" binding:"omitempty,min=1,max=100"`
	Manufacturer *string `json:"manufacturer" binding:"omitempty,min=1,max=100"`
	Year         *int    `json:"year" binding:"omitempty,min=1900"`
	Type         *string `json:"type" binding:"omitempty,oneof=car bus truck van motorcycle"`
	SIMNumber    *string `json:"simNumber" binding:"omitempty,max=30"`
	DeviceID     *string `json:"deviceId" binding:"omitempty,max=100"`
	DriverID     *string `json:"driverId" binding:"omitempty,uuid"`
}

type listQuery struct {
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Sort   string `form:"sort"`
	Status string `form:"status" binding:"omitempty,oneof=assigned unassigned"`
}

type assignRequest struct {
	DriverID string `json:"driverId" binding:"required,uuid"`
}

type driverResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type vehicleResponse struct {
	ID           string          `json:"id"`
	PlateNumber  string          `json:"plateNumber"`
	Model        string          `json:"model"`
	Manufacturer string          `json:"manufacturer"`
	Year         int             `json:"year"`
	Type         string          `json:"type"`
	SIMNumber    string          `json:"simNumber,omitempty"`
	DeviceID     string          `json:"deviceId,omitempty"`
	DriverID     *string         `json:"driverId"`
	Driver       *driverResponse `json:"driver,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func toResponse(v *domain.Vehicle) vehicleResponse {
	out := vehicleResponse{
		ID:           v.ID,
		PlateNumber:  v.PlateNumber,
		Model:        v.Model,
		Manufacturer: v.Manufacturer,
		Year:         v.Year,
		Type:         string(v.Type),
		SIMNumber:    v.SIMNumber,
		DeviceID:     v.DeviceID,
		DriverID:     v.DriverID,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
	if v.Driver != nil {
		out.Driver = &driverResponse{ID: v.Driver.ID, Name: v.Driver.Name, Email: v.Driver.Email, Phone: v.Driver.Phone}
	}
	return out
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingError(c, err)
		return
	}
	v, err := h.svc.Create(c.Request.Context(), service.CreateInput{
		PlateNumber:  req.PlateNumber,
		Model:        req.Model,
		Manufacturer: req.Manufacturer,
		Year:         req.Year,
		Type:         domain.Type(req.Type),
		SIMNumber:    req.SIMNumber,
		DeviceID:     req.DeviceID,
		DriverID:     req.DriverID,
	})
	if err != nil {
		writeError(c, err, errorContext{plate: req.PlateNumber, driverID: deref(req.DriverID)})
		return
	}
	response.DataWithMessage(c, http.StatusCreated, "Vehicle created successfully", toResponse(v))
}

func (h *Handler) list(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BindingError(c, err)
		return
	}
	vehicles, err := h.svc.List(c.Request.Context(), service.ListParams{Page: q.Page, Limit: q.Limit, Sort: q.Sort, Status: q.Status})
	if err != nil {
		writeError(c, err, errorContext{})
		return
	}
	out := make([]vehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, toResponse(v))
	}
	response.List(c, out, len(out))
}

func (h *Handler) get(c *gin.Context) {
	v, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, errorContext{})
		return
	}
	response.Data(c, http.StatusOK, toResponse(v))
}

func (h *Handler) update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingError(c, err)
		return
	}
	in := service.UpdateInput{
		Model:        req.Model,
		Manufacturer: req.Manufacturer,
		Year:         req.Year,
		SIMNumber:    req.SIMNumber,
		DeviceID:     req.DeviceID,
		DriverID:     req.DriverID,
	}
	if req.Type != nil {
		t := domain.Type(*req.Type)
		in.Type = &t
	}
	v, err := h.svc.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, err, errorContext{driverID: deref(req.DriverID)})
		return
	}
	response.DataWithMessage(c, http.StatusOK, "Vehicle updated successfully", toResponse(v))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err, errorContext{})
		return
	}
	response.Message(c, http.StatusOK, "Vehicle deleted successfully")
}

func (h *Handler) assignDriver(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingError(c, err)
		return
	}
	v, err := h.svc.AssignDriver(c.Request.Context(), c.Param("id"), req.DriverID)
	if err != nil {
		writeError(c, err, errorContext{driverID: req.DriverID})
		return
	}
	response.DataWithMessage(c, http.StatusOK, "Driver assigned successfully", toResponse(v))
}

func (h *Handler) unassignDriver(c *gin.Context) {
	v, err := h.svc.UnassignDriver(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, errorContext{})
		return
	}
	response.DataWithMessage(c, http.StatusOK, "Driver unassigned successfully", toResponse(v))
}

// errorContext carries request values that appear in error messages.
type errorContext struct {
	plate    string
	driverID string
}

func writeError(c *gin.Context, err error, ec errorContext) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.Message(c, http.StatusNotFound, "No vehicle found with that id")
	case errors.Is(err, domain.ErrDriverNotFound):
		response.Message(c, http.StatusNotFound, fmt.Sprintf("Driver with ID %s not found", ec.driverID))
	case errors.Is(err, domain.ErrPlateTaken):
		response.Message(c, http.StatusConflict, fmt.Sprintf("Vehicle with plate number %s already exists", ec.plate))
	case errors.Is(err, domain.ErrDriverAlreadyAssigned):
		response.Message(c, http.StatusConflict, "Driver is already assigned to another vehicle")
	case errors.Is(err, domain.ErrNoDriverAssigned):
		response.Message(c, http.StatusConflict, "No driver is currently assigned to this vehicle")
	case errors.Is(err, domain.ErrInvalid):
		response.Message(c, http.StatusBadRequest, err.Error())
	default:
		response.Internal(c, err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
