package patient

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medreports/medreports/internal/platform/auth"
	"github.com/medreports/medreports/pkg/pagination"
)

// exportLimit caps the rows written by a single export.
const exportLimit = 10000

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleStaff))
	staff.GET("/patients", h.ListPatients)
	staff.GET("/patients/export", h.ExportPatients)
	staff.GET("/patients/:id", h.GetPatient)
	staff.POST("/patients", h.CreatePatient)
	staff.PUT("/patients/:id", h.UpdatePatient)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/patients/:id", h.DeletePatient)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		p.CreatedBy = &uid
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	params, err := searchParamsFromContext(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.SearchPatients(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

var exportHeader = []string{
	"Patient ID", "First Name", "Last Name", "Date of Birth", "Gender", "Phone", "Email",
	"Address", "Disease", "Category", "City", "State", "AI Extracted", "Created At",
}

// ExportPatients writes the filtered patient list as CSV (format=csv) or JSON.
func (h *Handler) ExportPatients(c echo.Context) error {
	params, err := searchParamsFromContext(c)
	if err != nil {
		return err
	}
	patients, _, err := h.svc.SearchPatients(c.Request().Context(), params, exportLimit, 0)
	if err != nil {
		return mapError(err)
	}
	if c.QueryParam("format") != "csv" {
		return c.JSON(http.StatusOK, patients)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/csv")
	resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="patients.csv"`)
	resp.WriteHeader(http.StatusOK)

	w := csv.NewWriter(resp)
	if err := w.Write(exportHeader); err != nil {
		return err
	}
	for _, p := range patients {
		dob := ""
		if p.DateOfBirth != nil {
			dob = p.DateOfBirth.Format("2006-01-02")
		}
		aiExtracted := "no"
		if p.AIExtracted {
			aiExtracted = "yes"
		}
		if err := w.Write([]string{
			p.PatientID, p.FirstName, p.LastName, dob, deref(p.Gender), deref(p.Phone), deref(p.Email),
			deref(p.Address), deref(p.DiseaseDiagnosis), deref(p.DiseaseCategory), deref(p.City), deref(p.State),
			aiExtracted, p.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func searchParamsFromContext(c echo.Context) (SearchParams, error) {
	params := SearchParams{
		Name:      strings.TrimSpace(c.QueryParam("name")),
		PatientID: strings.TrimSpace(c.QueryParam("patient_id")),
		City:      strings.TrimSpace(c.QueryParam("city")),
		State:     strings.TrimSpace(c.QueryParam("state")),
		Disease:   strings.TrimSpace(c.QueryParam("disease")),
		Category:  strings.TrimSpace(c.QueryParam("category")),
	}
	var err error
	if params.From, err = parseDateParam(c, "start_date", false); err != nil {
		return params, err
	}
	if params.To, err = parseDateParam(c, "end_date", true); err != nil {
		return params, err
	}
	return params, nil
}

// parseDateParam reads a YYYY-MM-DD query parameter. End dates are inclusive.
func parseDateParam(c echo.Context, name string, endOfDay bool) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
