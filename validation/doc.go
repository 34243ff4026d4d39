// Package validation checks API payloads and graph definitions.
//
// Struct tags are checked through go-playground/validator; ad-hoc rules use
// the chainable Validator. Both report failures as a single
// errors.AppError listing every offending field.
//
//	type addEdge struct {
//	    Source string `json:"source" validate:"required"`
//	}
//	if err := validation.Validate(req); err != nil { ... }
package validation
