package report

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medreports/medreports/internal/domain/patient"
	"github.com/medreports/medreports/internal/platform/auth"
	"github.com/medreports/medreports/internal/platform/blobstore"
	"github.com/medreports/medreports/internal/platform/decode"
	"github.com/medreports/medreports/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/supported-types", h.SupportedTypes)

	staff := api.Group("", auth.RequireRole(auth.RoleStaff))
	staff.GET("/patients/:id/reports", h.ListReports)
	staff.POST("/patients/:id/reports", h.UploadReport)
	staff.GET("/reports/:id", h.GetReport)
	staff.GET("/reports/:id/ai-status", h.GetAIStatus)
	staff.GET("/reports/:id/medical-data", h.GetMedicalData)
	staff.GET("/reports/:id/download", h.Download)
	staff.GET("/reports/:id/preview", h.Preview)
	staff.GET("/reports/:id/extract-text", h.ExtractText)
}

func (h *Handler) SupportedTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"extensions":  decode.SupportedExtensions(),
		"maxFileSize": blobstore.MaxFileSize,
	})
}

func (h *Handler) UploadReport(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	fh, err := c.FormFile("medical_file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no file uploaded")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload").SetInternal(err)
	}
	defer f.Close()

	rep, err := h.svc.Upload(c.Request().Context(), patientID, UploadInput{
		Title:       c.FormValue("report_title"),
		Description: c.FormValue("report_description"),
		FileName:    fh.Filename,
		Content:     f,
		UploadedBy:  auth.UserIDFromContext(c.Request().Context()),
	})
	if errors.Is(err, ErrQueueFull) {
		return c.JSON(http.StatusAccepted, map[string]interface{}{
			"message":       "report stored but processing could not be queued",
			"report":        rep,
			"ai_processing": false,
		})
	}
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":       "report uploaded, processing started",
		"report":        rep,
		"ai_processing": true,
	})
}

func (h *Handler) ListReports(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	reports, total, err := h.svc.ListReports(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(reports, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetReport(c echo.Context) error {
	id, err := reportID(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.GetReport(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) GetAIStatus(c echo.Context) error {
	id, err := reportID(c)
	if err != nil {
		return err
	}
	status, err := h.svc.AIStatus(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) GetMedicalData(c echo.Context) error {
	id, err := reportID(c)
	if err != nil {
		return err
	}
	data, err := h.svc.MedicalData(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	if data == nil {
		return c.JSON(http.StatusOK, map[string]string{"message": "no extracted medical data available"})
	}
	return c.JSON(http.StatusOK, data)
}

func (h *Handler) Download(c echo.Context) error {
	return h.serveFile(c, "attachment")
}

// Preview serves the file inline. Only types a browser renders without
// running content are allowed.
func (h *Handler) Preview(c echo.Context) error {
	return h.serveFile(c, "inline")
}

func (h *Handler) serveFile(c echo.Context, disposition string) error {
	id, err := reportID(c)
	if err != nil {
		return err
	}
	rc, rep, meta, err := h.svc.Open(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	defer rc.Close()

	contentType := meta.ContentType
	if !decode.Previewable(contentType) {
		if disposition == "inline" {
			return echo.NewHTTPError(http.StatusUnsupportedMediaType, "file type cannot be previewed")
		}
		contentType = echo.MIMEOctetStream
	}
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, contentType)
	resp.Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType(disposition, map[string]string{"filename": rep.FileName}))
	if meta.Size > 0 {
		resp.Header().Set(echo.HeaderContentLength, fmt.Sprint(meta.Size))
	}
	resp.WriteHeader(http.StatusOK)
	_, err = io.Copy(resp, rc)
	return err
}

func (h *Handler) ExtractText(c echo.Context) error {
	id, err := reportID(c)
	if err != nil {
		return err
	}
	text, err := h.svc.Text(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, text)
}

func reportID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid report id")
	}
	return id, nil
}

func mapError(err error) error {
	var decodeErr *decode.DecodeError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	case errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, blobstore.ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	case errors.Is(err, ErrUnsupportedType), errors.Is(err, decode.ErrUnsupportedFormat):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, blobstore.ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &decodeErr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
