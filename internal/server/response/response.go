// Package response writes the JSON envelopes every HTTP handler answers with.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// InternalMessage is the only body a client sees for an unmapped error.
const InternalMessage = "Internal server error"

// Body is the response envelope. Empty fields are omitted.
type Body struct {
	Message     string       `json:"message,omitempty"`
	Data        any          `json:"data,omitempty"`
	AccessToken string       `json:"accessToken,omitempty"`
	Size        *int         `json:"size,omitempty"`
	Errors      []FieldError `json:"errors,omitempty"`
}

// FieldError is one failed binding rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func Data(c *gin.Context, status int, data any) {
	c.JSON(status, Body{Data: data})
}

func DataWithMessage(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Body{Message: message, Data: data})
}

// List answers 200 with the page and its size.
func List(c *gin.Context, data any, size int) {
	c.JSON(http.StatusOK, Body{Data: data, Size: &size})
}

func Message(c *gin.Context, status int, message string) {
	c.JSON(status, Body{Message: message})
}

// Internal logs err with the request logger and answers 500 with a generic message.
func Internal(c *gin.Context, err error) {
	zerolog.Ctx(c.Request.Context()).Error().Err(err).
		Str("route", c.FullPath()).
		Msg("request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, Body{Message: InternalMessage})
}

// BindingError answers 400 for a failed ShouldBind*. Validator failures are listed per field;
// malformed bodies get a single message.
func BindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, Body{Message: "Validation failed", Errors: out})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, Body{Message: "Invalid request body"})
}
