package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"EnerCast/internal/domain/models"
	"EnerCast/internal/service/ratelimit"
	"EnerCast/internal/usecase"
	xhttp "EnerCast/pkg/http"
	xlogger "EnerCast/pkg/logger"
)

// ForecastUsecase is what the forecast routes need from the service layer.
type ForecastUsecase interface {
	RequestForecast(ctx context.Context, req *models.ForecastRequest) (*models.ForecastResult, error)
	GetForecast(ctx context.Context, id, requestedBy string) (*models.ForecastResult, error)
	GetLatestForecast(ctx context.Context, buildingID string, ft models.ForecastType, horizon, requestedBy string) (*models.ForecastResult, error)
	GetOptimization(ctx context.Context, buildingID, requestedBy string, timeRangeHours int) (*models.OptimizationSummary, error)
	TrainModel(ctx context.Context, in usecase.TrainInput) (*models.TrainingResult, error)
	GetModelPerformance(ctx context.Context, buildingID string, modelType models.ModelType, requestedBy string) (*models.ModelPerformance, error)
	ConfigureForecastParameters(ctx context.Context, buildingID string, p models.ForecastParameters, requestedBy string) error
	ForecastParameters(ctx context.Context, buildingID string) (models.ForecastParameters, error)
	HealthCheck(ctx context.Context) models.HealthReport
}

// ForecastEchoHandler serves the forecasting API under /api/v1.
type ForecastEchoHandler struct {
	logger *xlogger.Logger
	svc    ForecastUsecase
	rl     *ratelimit.Limiter
}

func NewForecastEchoHandler(logger *xlogger.Logger, svc ForecastUsecase, rl *ratelimit.Limiter) *ForecastEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ForecastEchoHandler{logger: logger, svc: svc, rl: rl}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/forecast", h.RequestForecast, h.rateLimit)
	g.GET("/forecast/latest/:building_id", h.LatestForecast)
	g.GET("/forecast/:id", h.GetForecast)
	g.POST("/optimization", h.Optimization, h.rateLimit)
	g.POST("/model/train", h.TrainModel, h.rateLimit)
	g.GET("/model/performance", h.ModelPerformance)
	g.PUT("/buildings/:building_id/parameters", h.ConfigureParameters)
	g.GET("/buildings/:building_id/parameters", h.GetParameters)
	g.GET("/health", h.Health)
}

// rateLimit applies the per-client token bucket, keyed by IP and route.
func (h *ForecastEchoHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rl != nil && !h.rl.Allow(c.RealIP()+":"+c.Path()) {
			h.logger.Warn("rate limited",
				xlogger.String("remote", c.RealIP()),
				xlogger.String("route", c.Path()),
			)
			c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(int(h.rl.RetryAfter().Seconds())))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
		}
		return next(c)
	}
}

func (h *ForecastEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.Int("status", appErr.Status), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *ForecastEchoHandler) RequestForecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.RequestForecast(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "request forecast", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) GetForecast(c echo.Context) error {
	req := &models.GetForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.GetForecast(c.Request().Context(), req.ID, req.RequestedBy)
	if err != nil {
		return h.fail(c, "get forecast", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) LatestForecast(c echo.Context) error {
	req := &models.LatestForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.GetLatestForecast(c.Request().Context(), req.BuildingID, models.ForecastType(req.Type), req.Horizon, req.RequestedBy)
	if err != nil {
		return h.fail(c, "latest forecast", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Optimization(c echo.Context) error {
	req := &models.OptimizationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.GetOptimization(c.Request().Context(), req.BuildingID, req.RequestedBy, req.TimeRangeHours)
	if err != nil {
		return h.fail(c, "optimization", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) TrainModel(c echo.Context) error {
	req := &models.TrainModelRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	start := time.Now()
	res, err := h.svc.TrainModel(c.Request().Context(), usecase.TrainInput{
		BuildingID:  req.BuildingID,
		ModelType:   models.ModelType(req.ModelType),
		Start:       req.StartDate,
		End:         req.EndDate,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		return h.fail(c, "train model", err)
	}
	h.logger.Info("train model request done",
		xlogger.String("building_id", req.BuildingID),
		xlogger.String("model_type", req.ModelType),
		xlogger.Duration("duration_ms", time.Since(start)),
	)
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) ModelPerformance(c echo.Context) error {
	req := &models.ModelPerformanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.GetModelPerformance(c.Request().Context(), req.BuildingID, models.ModelType(req.ModelType), req.RequestedBy)
	if err != nil {
		return h.fail(c, "model performance", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) ConfigureParameters(c echo.Context) error {
	req := &models.ForecastParametersRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := models.ForecastParameters{
		DefaultHorizon:     req.DefaultHorizon,
		AccuracyThreshold:  req.AccuracyThreshold,
		ModelPreference:    models.ModelPreference(req.ModelPreference),
		RetrainingSchedule: req.RetrainingSchedule,
	}
	if err := h.svc.ConfigureForecastParameters(c.Request().Context(), req.BuildingID, p, req.RequestedBy); err != nil {
		return h.fail(c, "configure parameters", err)
	}
	return h.writeParameters(c, req.BuildingID)
}

func (h *ForecastEchoHandler) GetParameters(c echo.Context) error {
	return h.writeParameters(c, c.Param("building_id"))
}

func (h *ForecastEchoHandler) writeParameters(c echo.Context, buildingID string) error {
	p, err := h.svc.ForecastParameters(c.Request().Context(), buildingID)
	if err != nil {
		return h.fail(c, "get parameters", err)
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *ForecastEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.HealthCheck(c.Request().Context()))
}
