package dashboard

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medreports/medreports/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dashboard", auth.RequireRole(auth.RoleStaff))
	g.GET("/ai-stats", h.AIStats)
	g.GET("/diseases", h.Diseases)
	g.GET("/categories", h.Categories)
	g.GET("/disease-by-area", h.DiseaseByArea)
	g.GET("/top-diseases-by-area", h.TopDiseasesByArea)
	g.GET("/summary", h.Summary)
	g.GET("/filter-options", h.FilterOptions)
}

func (h *Handler) AIStats(c echo.Context) error {
	stats, err := h.svc.AIStats(c.Request().Context())
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) Diseases(c echo.Context) error {
	f, err := filterFromContext(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Diseases(c.Request().Context(), f)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Categories(c echo.Context) error {
	f, err := filterFromContext(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Categories(c.Request().Context(), f)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) DiseaseByArea(c echo.Context) error {
	f, err := filterFromContext(c)
	if err != nil {
		return err
	}
	out, err := h.svc.DiseaseByArea(c.Request().Context(), f)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) TopDiseasesByArea(c echo.Context) error {
	f, err := filterFromContext(c)
	if err != nil {
		return err
	}
	out, err := h.svc.TopDiseasesByArea(c.Request().Context(), f)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Summary(c echo.Context) error {
	f, err := filterFromContext(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Summary(c.Request().Context(), f)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) FilterOptions(c echo.Context) error {
	out, err := h.svc.FilterOptions(c.Request().Context())
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// filterFromContext reads start_date and end_date (YYYY-MM-DD, end inclusive)
// plus city, state and disease.
func filterFromContext(c echo.Context) (Filter, error) {
	f := Filter{
		City:    strings.TrimSpace(c.QueryParam("city")),
		State:   strings.TrimSpace(c.QueryParam("state")),
		Disease: strings.TrimSpace(c.QueryParam("disease")),
	}
	for _, p := range []struct {
		name     string
		dst      **time.Time
		endOfDay bool
	}{
		{"start_date", &f.From, false},
		{"end_date", &f.To, true},
	} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, p.name+" must be YYYY-MM-DD")
		}
		if p.endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		*p.dst = &t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, echo.NewHTTPError(http.StatusBadRequest, "end_date is before start_date")
	}
	return f, nil
}

func internalError(err error) error {
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
