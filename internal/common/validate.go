package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

// DecodeAndValidate decodes a JSON request body into dst and runs struct
// validation. It returns an AppError ready for JSONError on failure.
func DecodeAndValidate(r *http.Request, validate *validator.Validate, dst any) *AppError {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &AppError{Code: "BAD_REQUEST", Message: "invalid JSON body", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	if validate == nil {
		return nil
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]map[string]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, map[string]string{
					"field": strings.ToLower(fe.Field()),
					"rule":  fe.Tag(),
				})
			}
			return &AppError{
				Code:       "VALIDATION",
				Message:    "request validation failed",
				HTTPStatus: http.StatusUnprocessableEntity,
				Err:        err,
				Details:    map[string]any{"fields": fields},
			}
		}
		return &AppError{Code: "VALIDATION", Message: "request validation failed", HTTPStatus: http.StatusUnprocessableEntity, Err: err}
	}
	return nil
}
