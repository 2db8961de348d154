package response

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
)

type APIError struct {
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError renders err with the status and code of its *apierr.Error.
// Other errors become 500s, except caller cancellation which maps to 499.
func RespondAPIError(c *gin.Context, err error) {
	ae, ok := apierr.As(err)
	if !ok {
		if ctxErr := c.Request.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			c.AbortWithStatus(499)
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if ae.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(ae.RetryAfter.Seconds()))))
	}
	status := ae.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: ae.Error(),
			Code:    ae.Code,
			Details: ae.Details,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
