package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabspace/backend/internal/apperr"
)

func TestErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{apperr.Validation("bad email"), http.StatusBadRequest, "bad email"},
		{apperr.NotFound("collab not found"), http.StatusNotFound, "collab not found"},
		{apperr.Forbidden("owner cannot leave collab"), http.StatusForbidden, "owner cannot leave collab"},
		{apperr.Conflict("already a member"), http.StatusConflict, "already a member"},
		{apperr.ExpiredState("invitation has expired"), http.StatusGone, "invitation has expired"},
		{apperr.Transient("db", errors.New("conn reset")), http.StatusServiceUnavailable, "db"},
		{errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body Body
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}
