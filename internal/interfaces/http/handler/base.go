// Package handler exposes the reconciliation coordinator over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/logger"
	"github.com/musicschool/ledger/internal/interfaces/http/dto"
	"github.com/musicschool/ledger/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Page sends the items of a paginated result with pagination meta
func Page[T any](c *gin.Context, page shared.Paginated[T]) {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(items, page.Total, page.Page, page.PageSize, page.TotalPages))
}

// HandleError writes the error envelope for err. Domain errors keep their
// code; anything else is logged and reported as an internal error.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	requestID := middleware.GetRequestID(c)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		status := dto.GetHTTPStatus(domainErr.Code)
		if status >= http.StatusInternalServerError {
			logger.L(c.Request.Context()).Error("request failed", zap.String("code", domainErr.Code), zap.Error(err))
		}
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, dto.NewErrorResponse(domainErr.Code, domainErr.Message, requestID))
		return
	}

	logger.L(c.Request.Context()).Error("unexpected error", zap.Error(err))
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError,
		dto.NewErrorResponse(dto.ErrCodeInternal, "An unexpected error occurred", requestID))
}

// BindJSON binds the request body into req, writing a VALIDATION_ERROR
// response on failure
func (h *BaseHandler) BindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.bindingError(c, err)
		return false
	}
	return true
}

// BindQuery binds query parameters into req, writing a VALIDATION_ERROR
// response on failure
func (h *BaseHandler) BindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		h.bindingError(c, err)
		return false
	}
	return true
}

func (h *BaseHandler) bindingError(c *gin.Context, err error) {
	resp := dto.NewErrorResponse(shared.CodeValidation, "Request validation failed", middleware.GetRequestID(c))

	var validationErrs validator.ValidationErrors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &validationErrs):
		for _, fe := range validationErrs {
			resp.Error.Details = append(resp.Error.Details, dto.ValidationIssue{
				Field: strings.ToLower(fe.Field()),
				Rule:  fe.Tag(),
			})
		}
	case errors.As(err, &syntaxErr):
		resp.Error.Message = "Malformed JSON body"
	case errors.As(err, &typeErr):
		resp.Error.Details = []dto.ValidationIssue{{Field: typeErr.Field, Rule: "type"}}
	default:
		resp.Error.Message = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}

// PathUUID parses the named path parameter, writing a VALIDATION_ERROR
// response when it is not a UUID
func (h *BaseHandler) PathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.HandleError(c, shared.NewValidationError("%s must be a UUID", name))
		return uuid.Nil, false
	}
	return id, true
}

// Actor returns the authenticated user, if any
func (h *BaseHandler) Actor(c *gin.Context) *uuid.UUID {
	if id, ok := middleware.GetUserID(c); ok {
		return &id
	}
	return nil
}
