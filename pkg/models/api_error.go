package models

import (
	"encoding/json"
	"errors"

	"github.com/sierrasoftworks/humane-errors-go"
)

// ErrorResponse is a serializable version of a humane.Error that can be
// marshaled to and unmarshaled from JSON.
type ErrorResponse struct {
	// Primary error message
	Message string `json:"message"`

	// List of suggestions to help resolve the error
	Advice []string `json:"advice,omitempty"`

	// Nested error that caused this error
	Cause *ErrorResponse `json:"cause,omitempty"`

	// HTTP status code (not included in JSON response)
	StatusCode int `json:"-"`
}

// FromHumaneError converts a humane.Error to an ErrorResponse for JSON
// serialization. This is the primary way business logic errors become
// HTTP API responses.
func FromHumaneError(err humane.Error) *ErrorResponse {
	if err == nil {
		return nil
	}

	resp := &ErrorResponse{
		Message: err.Error(),
		Advice:  err.Advice(),
	}

	cause := err.Cause()
	if cause != nil {
		var humaneErr humane.Error
		if errors.As(cause, &humaneErr) {
			resp.Cause = FromHumaneError(humaneErr)
		} else {
			resp.Cause = &ErrorResponse{Message: cause.Error()}
		}
	}

	return resp
}

// AsHumaneError converts the ErrorResponse back to a humane.Error.
func (e *ErrorResponse) AsHumaneError() humane.Error {
	if e == nil {
		return nil
	}

	if e.Cause != nil {
		return humane.Wrap(e.Cause.AsHumaneError(), e.Message, e.Advice...)
	}

	return humane.New(e.Message, e.Advice...)
}

// MarshalJSON implements the json.Marshaler interface.
// Alias is used to avoid infinite recursion during marshaling.
func (e *ErrorResponse) MarshalJSON() ([]byte, error) {
	type Alias ErrorResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	})
}

// UnmarshalJSON implements the json.Unmarshaler interface.
// Alias is used to avoid infinite recursion during unmarshaling.
func (e *ErrorResponse) UnmarshalJSON(data []byte) error {
	type Alias ErrorResponse
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	return json.Unmarshal(data, &aux)
}
