package logging

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderXCorrelationID is the header carrying a request correlation id on
// the admin HTTP surface (health/metrics), as opposed to SessionIDKey which
// tags an IRC connection.
const HeaderXCorrelationID = "X-Correlation-ID"

// Correlation is gin middleware that stamps every admin HTTP request with a
// correlation id, reusing one supplied by the caller if present.
//
// Adapted from the teacher's internal/v1/middleware/correlation.go, which
// did the same thing for the video-conferencing HTTP API; this gateway only
// has the small admin surface (health, metrics) left to apply it to.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXCorrelationID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(HeaderXCorrelationID, id)
		c.Set(string(SessionIDKey), id)
		c.Next()
	}
}
