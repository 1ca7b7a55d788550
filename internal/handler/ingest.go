package handler

import (
	"io"
	"net/http"

	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/middleware"
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/deppfellow/osmcha-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// maxFeatureDocumentBytes caps ingested GeoJSON documents.
const maxFeatureDocumentBytes = 5 << 20

// IngestHandler serves the detector submission endpoints.
type IngestHandler struct {
	Handler
	service *service.IngestService
}

// NewIngestHandler constructs an IngestHandler.
func NewIngestHandler(s *server.Server, svc *service.IngestService) *IngestHandler {
	return &IngestHandler{
		Handler: NewHandler(s),
		service: svc,
	}
}

// AddSuspicionRequest is one detector report.
type AddSuspicionRequest struct {
	service.SuspicionPayload
}

func (r *AddSuspicionRequest) Validate() error {
	return validate.Struct(r)
}

// AddSuspicion records a detector report against a changeset, creating
// the changeset and reasons as needed.
func (h *IngestHandler) AddSuspicion(c echo.Context, req *AddSuspicionRequest) (map[string]string, error) {
	if err := h.service.AddSuspicion(c.Request().Context(), &req.SuspicionPayload); err != nil {
		return nil, err
	}
	return map[string]string{"detail": "Suspicion recorded"}, nil
}

// CreateFeature accepts a full GeoJSON feature document. The body is
// consumed raw because the document's shape is validated by the service,
// not by struct binding.
func (h *IngestHandler) CreateFeature(c echo.Context) error {
	logger := middleware.GetLogger(c).With().
		Str("operation", "create_feature").
		Logger()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxFeatureDocumentBytes))
	if err != nil {
		logger.Error().Err(err).Msg("failed to read request body")
		return errs.NewBadRequestError("Could not read request body", false, nil, nil, nil)
	}

	if err := h.service.CreateFeature(c.Request().Context(), body); err != nil {
		return err
	}

	logger.Info().Int("body_bytes", len(body)).Msg("feature document ingested")
	return c.JSON(http.StatusCreated, map[string]string{"detail": "Feature created"})
}
