package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabspace/backend/internal/auth"
)

func TestJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := auth.NewJWTService("secret", 1)
	id := uuid.New()
	token, err := svc.Generate(id, "a@example.com")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", JWT(svc), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c).String()+" "+Email(c))
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"ok", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, id.String()+" a@example.com", w.Body.String())
			}
		})
	}
}
