package middleware

import (
	"bytes"

	"github.com/gin-gonic/gin"
)

// responseCapture duplicates everything written to the response into a
// buffer so the request logger can record it. Streaming writes pass
// through untouched; Flush is forwarded to keep SSE working.
type responseCapture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func newResponseCapture(w gin.ResponseWriter) *responseCapture {
	return &responseCapture{ResponseWriter: w}
}

func (w *responseCapture) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseCapture) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Body returns everything written so far.
func (w *responseCapture) Body() []byte {
	return w.body.Bytes()
}
