package medication

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/codes/:system/:code", h.GetCode)
	api.GET("/codes/:system/:code/ingredients", h.GetIngredients)
	api.GET("/codes/:system/:code/remaps", h.GetRemaps)
	api.GET("/codes/:system/:code/active", h.GetActive)
	api.GET("/codes/:system/:code/linked/:target", h.GetLinked)
	api.GET("/registry", h.GetRegistryStats)
	api.GET("/registry/:system", h.ListRegistry)
}

func (h *Handler) entity(c echo.Context) (Entity, error) {
	system, err := codesystem.Parse(c.Param("system"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	code := c.Param("code")
	if err := codesystem.CheckSyntax(system, code); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if system == codesystem.Local || system == codesystem.Generic {
		e, ok := h.svc.Lookup(system, code)
		if !ok {
			return nil, echo.NewHTTPError(http.StatusNotFound, "local medication not found")
		}
		return e, nil
	}
	e, err := h.svc.Get(c.Request().Context(), system, code)
	if err != nil {
		return nil, httpError(err)
	}
	ok, err := e.Valid(c.Request().Context())
	if err != nil {
		return nil, httpError(err)
	}
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "code not found in "+string(system))
	}
	return e, nil
}

func (h *Handler) GetCode(c echo.Context) error {
	e, err := h.entity(c)
	if err != nil {
		return err
	}
	if _, err := e.Status(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e.View())
}

func (h *Handler) GetIngredients(c echo.Context) error {
	e, err := h.entity(c)
	if err != nil {
		return err
	}
	ings, err := e.Ingredients(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":        e.Code(),
		"system":      e.System(),
		"ingredients": Views(ings),
	})
}

func (h *Handler) GetRemaps(c echo.Context) error {
	e, err := h.entity(c)
	if err != nil {
		return err
	}
	concept, ok := e.(*Concept)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "remaps are only defined for "+string(codesystem.Normalized))
	}
	remaps, err := concept.Remaps(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":   e.Code(),
		"remaps": Views(remaps),
	})
}

func (h *Handler) GetActive(c echo.Context) error {
	e, err := h.entity(c)
	if err != nil {
		return err
	}
	concept, ok := e.(*Concept)
	if !ok {
		return c.JSON(http.StatusOK, map[string]interface{}{"code": e.Code(), "active": []View{e.View()}})
	}
	active, err := concept.ActiveCodes(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":   e.Code(),
		"active": Views(active),
	})
}

func (h *Handler) GetLinked(c echo.Context) error {
	target, err := codesystem.Parse(c.Param("target"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.entity(c)
	if err != nil {
		return err
	}
	linked, err := e.Linked(c.Request().Context(), target)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":   e.Code(),
		"target": target,
		"linked": Views(linked),
	})
}

func (h *Handler) GetRegistryStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Stats())
}

func (h *Handler) ListRegistry(c echo.Context) error {
	system, err := codesystem.Parse(c.Param("system"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pg := pagination.FromContext(c)
	views := Views(h.svc.Registry().AllOf(system))
	return c.JSON(http.StatusOK, pagination.Page(views, pg, c.Request().URL.Path))
}

// httpError maps resolution errors onto HTTP statuses.
func httpError(err error) error {
	var adapterErr *AdapterError
	var identityErr *IdentityError
	var validationErr *codesystem.ValidationError
	switch {
	case errors.Is(err, ErrInvalidCode):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &validationErr), errors.As(err, &identityErr), errors.Is(err, ErrUnsupportedType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoAdapter):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	case errors.As(err, &adapterErr):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
