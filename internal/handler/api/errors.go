package api

import (
	"errors"

	domsvc "EnerCast/internal/domain/service"
	xhttp "EnerCast/pkg/http"
)

// toAppError maps domain errors onto HTTP errors. Unknown errors become 500s
// and keep their cause for logging only.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, domsvc.ErrTrainingInProgress):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, domsvc.ErrBuildingNotFound):
		return xhttp.NewAppError("ERR_BUILDING_NOT_FOUND", "building_id", err.Error(), 400).WithError(err)
	case errors.Is(err, domsvc.ErrInsufficientData):
		return xhttp.NewAppError("ERR_INSUFFICIENT_DATA", "", err.Error(), 400).WithError(err)
	case errors.Is(err, domsvc.ErrValidation):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domsvc.ErrForecastNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, domsvc.ErrModelNotTrained):
		return xhttp.NewAppError("ERR_MODEL_NOT_TRAINED", "model_type", err.Error(), 404).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
