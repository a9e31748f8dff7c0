package crosswalk

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/medication"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/crosswalks", h.ListCrosswalks)
	api.POST("/crosswalks/run", h.RunCrosswalk)
}

func (h *Handler) ListCrosswalks(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"crosswalks": h.svc.Engine().Pairs(),
	})
}

type runRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Code   string `json:"code"`
}

func (h *Handler) RunCrosswalk(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Source == "" || req.Target == "" || req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source, target and code are required")
	}
	source, err := codesystem.Parse(req.Source)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	out, err := h.svc.Translate(c.Request().Context(), source, req.Target, req.Code)
	if err != nil {
		var validationErr *codesystem.ValidationError
		var adapterErr *medication.AdapterError
		switch {
		case errors.As(err, &validationErr):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.As(err, &adapterErr):
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if out.Result == ResultUndefined {
		return c.JSON(http.StatusUnprocessableEntity, out)
	}
	return c.JSON(http.StatusOK, out)
}
