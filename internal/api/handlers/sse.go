package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
)

// sseData marshals one SSE event payload. gin.H never fails to marshal here,
// but the error is surfaced so a future payload type cannot silently drop
// events.
func sseData(payload gin.H) ([]byte, error) {
	return json.Marshal(payload)
}
