package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/wms-platform/warehouse-task-service/internal/application"
	"github.com/wms-platform/warehouse-task-service/internal/domain"
	"github.com/wms-platform/warehouse-task-service/internal/spatial"
	apperrors "github.com/wms-platform/warehouse-task-service/pkg/errors"
	"github.com/wms-platform/warehouse-task-service/pkg/logging"
	"github.com/wms-platform/warehouse-task-service/pkg/middleware"
)

// toAppError maps domain and spatial sentinels onto the API error model
func toAppError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		return apperrors.ErrNotFound("work task").Wrap(err)
	case errors.Is(err, domain.ErrDuplicateTask):
		return apperrors.NewAppError(apperrors.CodeDuplicateTask, err.Error(), http.StatusConflict).Wrap(err)
	case errors.Is(err, domain.ErrClaimFailed):
		return apperrors.NewAppError(apperrors.CodeClaimConflict, err.Error(), http.StatusConflict).Wrap(err)
	case errors.Is(err, domain.ErrWorkerBusy):
		return apperrors.NewAppError(apperrors.CodeWorkerBusy, err.Error(), http.StatusConflict).Wrap(err)
	case errors.Is(err, domain.ErrNotTaskHolder):
		return apperrors.ErrForbidden(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrInvalidTransition):
		return apperrors.ErrInvalidTransition(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrInvalidTaskType),
		errors.Is(err, domain.ErrInvalidWorkerType),
		errors.Is(err, domain.ErrInvalidQuantity):
		return apperrors.ErrValidation(err.Error()).Wrap(err)
	case errors.Is(err, spatial.ErrNoActiveMap):
		return apperrors.ErrNotFound("warehouse map").Wrap(err)
	case errors.Is(err, spatial.ErrUnknownBin):
		return apperrors.NewAppError(apperrors.CodeUnknownBin, err.Error(), http.StatusNotFound).Wrap(err)
	case errors.Is(err, spatial.ErrCrossWarehouseReference):
		return apperrors.ErrCrossWarehouseReference(err.Error()).Wrap(err)
	case errors.Is(err, spatial.ErrInvalidTopology):
		return apperrors.ErrInvalidTopology(err.Error()).Wrap(err)
	case errors.Is(err, application.ErrEmptyRouteRequest):
		return apperrors.ErrEmptyRouteRequest().Wrap(err)
	default:
		return apperrors.FromError(err)
	}
}

func respondAppError(c *gin.Context, logger *logging.Logger, appErr *apperrors.AppError) {
	middleware.NewErrorResponder(c, logger.Logger).RespondWithAppError(appErr)
}

func respondError(c *gin.Context, logger *logging.Logger, err error) {
	respondAppError(c, logger, toAppError(err))
}

// respondBindError reports binding failures, listing the offending fields
// when the body parsed but failed validation
func respondBindError(c *gin.Context, logger *logging.Logger, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := middleware.ValidationErrorFormatter(validationErrors)
		respondAppError(c, logger, apperrors.ErrValidationWithFields("validation failed", fields))
		return
	}
	respondAppError(c, logger, apperrors.ErrBadRequest("invalid request body: "+err.Error()))
}

// requestContext carries the request's correlation ids into the service
// layer so logs and published events can propagate them
func requestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if s := ginString(c, middleware.ContextKeyRequestID); s != "" {
		ctx = logging.ContextWithRequestID(ctx, s)
	}
	if s := ginString(c, middleware.ContextKeyCorrelationID); s != "" {
		ctx = logging.ContextWithCorrelationID(ctx, s)
	}
	if s := ginString(c, middleware.ContextKeyTraceID); s != "" {
		ctx = logging.ContextWithTraceID(ctx, s)
	}
	return ctx
}

func ginString(c *gin.Context, key string) string {
	if v, ok := c.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func listTasksHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query application.ListTasksQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			respondBindError(c, logger, err)
			return
		}
		query.WarehouseID = c.Param("warehouseId")

		tasks, err := service.ListTasks(requestContext(c), query)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
	}
}

func getTaskHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := service.GetTask(requestContext(c), c.Param("taskId"))
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, task)
	}
}

func planHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req application.PlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, logger, err)
			return
		}
		req.WarehouseID = c.Param("warehouseId")

		result, err := service.Plan(requestContext(c), req)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusCreated, result)
	}
}

func nextTaskHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req application.NextTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, logger, err)
			return
		}
		req.WarehouseID = c.Param("warehouseId")

		next, err := service.NextTask(requestContext(c), req)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, next)
	}
}

func assignBatchHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req application.AssignBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, logger, err)
			return
		}
		req.WarehouseID = c.Param("warehouseId")

		result, err := service.AssignBatch(requestContext(c), req)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func transitionHandler(logger *logging.Logger, apply func(*gin.Context, application.TransitionRequest) (*application.TaskDTO, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req application.TransitionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, logger, err)
			return
		}

		task, err := apply(c, req)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, task)
	}
}

func startTaskHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return transitionHandler(logger, func(c *gin.Context, req application.TransitionRequest) (*application.TaskDTO, error) {
		return service.StartTask(requestContext(c), c.Param("taskId"), req)
	})
}

func completeTaskHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return transitionHandler(logger, func(c *gin.Context, req application.TransitionRequest) (*application.TaskDTO, error) {
		return service.CompleteTask(requestContext(c), c.Param("taskId"), req)
	})
}

func cancelTaskHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return transitionHandler(logger, func(c *gin.Context, req application.TransitionRequest) (*application.TaskDTO, error) {
		return service.CancelTask(requestContext(c), c.Param("taskId"), req)
	})
}

func unassignTaskHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return transitionHandler(logger, func(c *gin.Context, req application.TransitionRequest) (*application.TaskDTO, error) {
		return service.UnassignTask(requestContext(c), c.Param("taskId"), req)
	})
}

func optimizeRouteHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req application.OptimizeRouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, logger, err)
			return
		}
		req.WarehouseID = c.Param("warehouseId")

		route, err := service.OptimizeRoute(requestContext(c), req)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, route)
	}
}

func installMapHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var m spatial.WarehouseMap
		if err := c.ShouldBindJSON(&m); err != nil {
			respondBindError(c, logger, err)
			return
		}

		warehouseID := c.Param("warehouseId")
		if m.WarehouseID == "" {
			m.WarehouseID = warehouseID
		}
		if m.WarehouseID != warehouseID {
			respondAppError(c, logger, apperrors.ErrBadRequest("map warehouseId does not match path"))
			return
		}

		if err := service.InstallMap(requestContext(c), &m); err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"warehouseId": m.WarehouseID, "installed": true})
	}
}

func installStockHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req application.InstallStockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, logger, err)
			return
		}
		req.WarehouseID = c.Param("warehouseId")

		if err := service.InstallStock(requestContext(c), req); err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"warehouseId": req.WarehouseID, "entries": len(req.Entries)})
	}
}
