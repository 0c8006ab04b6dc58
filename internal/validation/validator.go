// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

// Package validation provides struct validation using go-playground/validator v10.
// It provides a thread-safe singleton validator instance with struct-level
// validations for the cross-field rules the tag syntax cannot express:
// time ordering, coordinate pairing, bounding-box geometry, and resample
// parameters.
//
// Example usage:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    req := models.TimeQueryRequest{...}
//	    if err := validation.ValidateStruct(&req); err != nil {
//	        apiErr := err.ToAPIError()
//	        respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	        return
//	    }
//	}
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/daruma/internal/models"
)

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError represents a single field validation error with structured information.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the struct field name that failed validation.
func (e *ValidationError) Field() string {
	return e.field
}

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string {
	return e.tag
}

// Param returns the parameter for the validation tag (e.g., "100" for "max=100").
func (e *ValidationError) Param() string {
	return e.param
}

// Value returns the actual value that failed validation.
func (e *ValidationError) Value() interface{} {
	return e.value
}

// Error returns a human-readable error message.
func (e *ValidationError) Error() string {
	return e.message
}

// RequestValidationError represents a collection of validation errors.
// It provides methods to convert errors to the application's APIError format.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the slice of validation errors.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

// Error implements the error interface, returning a combined error message.
func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}

	var messages []string
	for _, err := range ve.errors {
		messages = append(messages, err.Error())
	}

	return strings.Join(messages, "; ")
}

// APIError represents an error response compatible with the API error format.
// This mirrors the models.APIError structure to avoid import cycles in
// packages that use validation without models.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError converts validation errors to the application's APIError format.
func (ve *RequestValidationError) ToAPIError() *APIError {
	if len(ve.errors) == 0 {
		return &APIError{
			Code:    "VALIDATION_ERROR",
			Message: "Validation failed",
		}
	}

	// Single error - use simple message
	if len(ve.errors) == 1 {
		err := ve.errors[0]
		return &APIError{
			Code:    "VALIDATION_ERROR",
			Message: err.message,
			Details: map[string]interface{}{
				"field": err.field,
				"tag":   err.tag,
				"value": err.value,
			},
		}
	}

	// Multiple errors - list all fields
	fields := make([]map[string]interface{}, len(ve.errors))
	var messages []string

	for i, err := range ve.errors {
		fields[i] = map[string]interface{}{
			"field":   err.field,
			"tag":     err.tag,
			"message": err.message,
		}
		messages = append(messages, fmt.Sprintf("%s: %s", err.field, err.message))
	}

	return &APIError{
		Code:    "VALIDATION_ERROR",
		Message: strings.Join(messages, "; "),
		Details: map[string]interface{}{
			"fields": fields,
		},
	}
}

// GetValidator returns the singleton validator instance.
// The validator is initialized once with the struct-level validations for
// the request types. This function is thread-safe.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterStructValidation(entityStructLevel, models.Entity{})
		validate.RegisterStructValidation(timeQueryStructLevel, models.TimeQueryRequest{})
		validate.RegisterStructValidation(bboxQueryStructLevel, models.BBoxQueryRequest{})
		validate.RegisterStructValidation(timeWindowStructLevel, models.TimeWindow{})
	})

	return validate
}

// entityStructLevel enforces the cross-field entity rules:
// t_end must not precede t_start, and coordinates come in pairs.
func entityStructLevel(sl validator.StructLevel) {
	e := sl.Current().Interface().(models.Entity)

	if e.TEnd != nil && e.TEnd.Before(e.TStart) {
		sl.ReportError(e.TEnd, "t_end", "TEnd", "gtefield", "t_start")
	}

	if (e.Lat == nil) != (e.Lon == nil) {
		sl.ReportError(e.Lat, "lat", "Lat", "latlon_pair", "")
	}
}

// timeQueryStructLevel enforces window ordering and resample parameters.
func timeQueryStructLevel(sl validator.StructLevel) {
	r := sl.Current().Interface().(models.TimeQueryRequest)

	if !r.Start.IsZero() && !r.End.IsZero() && !r.End.After(r.Start) {
		sl.ReportError(r.End, "end", "End", "gtfield", "start")
	}

	if r.Resample != nil {
		switch r.Resample.Method {
		case models.ResampleUniformTime:
			if r.Resample.N < 1 || r.Resample.N > models.MaxResampleBins {
				sl.ReportError(r.Resample.N, "resample.n", "N", "resample_n", "")
			}
		case models.ResampleNone:
			if r.Resample.N != 0 {
				sl.ReportError(r.Resample.N, "resample.n", "N", "resample_n_unused", "")
			}
		}
	}
}

// bboxQueryStructLevel enforces coordinate ranges and corner ordering for
// the [minLon, minLat, maxLon, maxLat] bounding box.
func bboxQueryStructLevel(sl validator.StructLevel) {
	r := sl.Current().Interface().(models.BBoxQueryRequest)

	if len(r.BBox) != 4 {
		return // len=4 tag reports this
	}

	minLon, minLat, maxLon, maxLat := r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3]

	if minLon < -180 || minLon > 180 || maxLon < -180 || maxLon > 180 {
		sl.ReportError(r.BBox, "bbox", "BBox", "longitude", "")
	}
	if minLat < -90 || minLat > 90 || maxLat < -90 || maxLat > 90 {
		sl.ReportError(r.BBox, "bbox", "BBox", "latitude", "")
	}
	if minLon >= maxLon || minLat >= maxLat {
		sl.ReportError(r.BBox, "bbox", "BBox", "bbox_order", "")
	}
}

// timeWindowStructLevel enforces ordering on the optional bbox time filter.
func timeWindowStructLevel(sl validator.StructLevel) {
	w := sl.Current().Interface().(models.TimeWindow)

	if !w.Start.IsZero() && !w.End.IsZero() && !w.End.After(w.Start) {
		sl.ReportError(w.End, "end", "End", "gtfield", "start")
	}
}

// ValidateStruct validates a struct using the singleton validator.
// Returns nil if validation passes, or *RequestValidationError if validation fails.
func ValidateStruct(s interface{}) *RequestValidationError {
	v := GetValidator()

	err := v.Struct(s)
	if err == nil {
		return nil
	}

	// Convert validator errors to our RequestValidationError type using errors.As
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		// Unexpected error type - wrap it
		return &RequestValidationError{
			errors: []ValidationError{
				{
					field:   "unknown",
					tag:     "unknown",
					message: err.Error(),
				},
			},
		}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fieldErr := range validationErrs {
		fieldErrors[i] = ValidationError{
			field:   fieldErr.Field(),
			tag:     fieldErr.Tag(),
			param:   fieldErr.Param(),
			value:   fieldErr.Value(),
			message: translateError(fieldErr),
		}
	}

	return &RequestValidationError{errors: fieldErrors}
}

// errorMessageTemplates maps validation tags to message templates.
var errorMessageTemplates = map[string]string{
	"required":          "%s is required",
	"latitude":          "%s must contain valid latitudes (-90 to 90)",
	"longitude":         "%s must contain valid longitudes (-180 to 180)",
	"latlon_pair":       "%s must be set together with its counterpart (lat and lon come in pairs)",
	"bbox_order":        "%s corners must be ordered (minLon < maxLon, minLat < maxLat)",
	"resample_n":        "%s must be between 1 and 10000 for uniform_time resampling",
	"resample_n_unused": "%s must not be set when resample method is none",
}

// errorMessageWithParam maps validation tags to templates that include param.
var errorMessageWithParam = map[string]string{
	"oneof":    "%s must be one of: %s",
	"gte":      "%s must be greater than or equal to %s",
	"lte":      "%s must be less than or equal to %s",
	"gt":       "%s must be greater than %s",
	"lt":       "%s must be less than %s",
	"gtfield":  "%s must be after %s",
	"gtefield": "%s must not be before %s",
	"len":      "%s must have exactly %s elements",
}

// translateError converts a validator.FieldError to a human-readable message.
func translateError(fe validator.FieldError) string {
	field := fe.Field()
	tag := fe.Tag()
	param := fe.Param()

	// Check simple templates (no param)
	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}

	// Check templates with param
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	// Handle min/max with type-specific messages
	return translateMinMax(fe, field, tag, param)
}

// translateMinMax handles min/max validation with type-specific messages.
func translateMinMax(fe validator.FieldError, field, tag, param string) string {
	isString := fe.Kind().String() == "string"

	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
