package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
	"EnerCast/internal/repository"
	xhttp "EnerCast/pkg/http"
	xlogger "EnerCast/pkg/logger"
	xutil "EnerCast/pkg/util"
)

// maxMeasurementRange bounds a single aggregated query.
const maxMeasurementRange = 90 * 24 * time.Hour

// MeasurementsEchoHandler exposes aggregated building measurements.
type MeasurementsEchoHandler struct {
	logger *xlogger.Logger
	source domrepo.MeasurementSource
	now    func() time.Time
}

func NewMeasurementsEchoHandler(logger *xlogger.Logger, source domrepo.MeasurementSource) *MeasurementsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &MeasurementsEchoHandler{logger: logger, source: source, now: time.Now}
}

func (h *MeasurementsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/buildings/:building_id/measurements", h.Aggregated)
}

// Aggregated returns bucketed measurements; the range defaults to the last day.
func (h *MeasurementsEchoHandler) Aggregated(c echo.Context) error {
	req := &models.MeasurementsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	width, err := repository.ParseBucket(req.Bucket)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_BUCKET", "bucket", err.Error(), 400))
	}
	now := h.now().UTC()
	to := xutil.ParseTimeDefault(req.To, now)
	from := xutil.ParseTimeDefault(req.From, to.Add(-24*time.Hour))
	if !from.Before(to) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RANGE", "from", "from must be before to", 400))
	}
	if to.Sub(from) > maxMeasurementRange {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RANGE", "from", "range must not exceed 90 days", 400))
	}
	from, to = xutil.AlignFromTo(from, to, width)

	points, err := h.source.GetAggregated(c.Request().Context(), req.BuildingID, req.Metric, from, to, req.Bucket)
	if err != nil {
		h.logger.Error("aggregated measurements failed",
			xlogger.String("building_id", req.BuildingID),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	if points == nil {
		points = []models.AggregatedPoint{}
	}
	return xhttp.ListResponse(c, points, int64(len(points)))
}
