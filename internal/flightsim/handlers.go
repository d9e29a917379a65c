package flightsim

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler exposes a Sim over HTTP.
type Handler struct {
	Sim *Sim
}

func NewHandler(sim *Sim) *Handler {
	return &Handler{Sim: sim}
}

// Register mounts the flight and admin routes under r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/flight/:number", h.HandleGetFlight)
	r.GET("/admin/set-status", h.HandleListOverrides)
	r.POST("/admin/set-status", h.HandleSetStatus)
}

func (h *Handler) HandleGetFlight(c *gin.Context) {
	number := strings.TrimSpace(c.Param("number"))
	if len(number) < 2 {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Code: "INVALID_ARGUMENT", Message: "invalid flight number"})
		return
	}
	c.JSON(http.StatusOK, h.Sim.Flight(number))
}

func (h *Handler) HandleSetStatus(c *gin.Context) {
	var req struct {
		FlightNumber string `json:"flight_number"`
		Status       string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Code: "INVALID_JSON", Message: "invalid request body"})
		return
	}
	key, err := h.Sim.SetStatus(req.FlightNumber, req.Status)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Code: "INVALID_ARGUMENT", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"flight_number": key,
		"status":        req.Status,
	})
}

func (h *Handler) HandleListOverrides(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"overrides": h.Sim.Overrides()})
}
