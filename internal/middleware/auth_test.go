package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"assessment_backend/internal/model"
	"assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-test-secret-test-secret"

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/student", AuthMiddleware(testSecret), func(c *gin.Context) {
		util.Success(c, util.GetUserFromContext(c).StudentKey)
	})
	r.GET("/teacher", AuthMiddleware(testSecret), RoleMiddleware(model.Teacher), func(c *gin.Context) {
		util.Success(c, nil)
	})
	return r
}

func token(t *testing.T, studentKey string, role model.UserRole, secret string, exp time.Duration) string {
	t.Helper()
	tok, err := util.GenerateJWT(studentKey, role, studentKey+"@example.edu", secret, exp)
	require.NoError(t, err)
	return tok
}

func TestAuthAndRoleMiddleware(t *testing.T) {
	r := newAuthRouter()

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing token", "/student", "", http.StatusUnauthorized},
		{"wrong secret", "/student", "Bearer " + token(t, "stu-1", model.Student, "other-secret", time.Hour), http.StatusUnauthorized},
		{"expired", "/student", "Bearer " + token(t, "stu-1", model.Student, testSecret, -time.Minute), http.StatusUnauthorized},
		{"no student key", "/student", "Bearer " + token(t, "", model.Student, testSecret, time.Hour), http.StatusUnauthorized},
		{"student ok", "/student", "Bearer " + token(t, "stu-1", model.Student, testSecret, time.Hour), http.StatusOK},
		{"student on teacher route", "/teacher", "Bearer " + token(t, "stu-1", model.Student, testSecret, time.Hour), http.StatusForbidden},
		{"teacher ok", "/teacher", "Bearer " + token(t, "t-1", model.Teacher, testSecret, time.Hour), http.StatusOK},
		{"admin passes teacher route", "/teacher", "Bearer " + token(t, "a-1", model.Admin, testSecret, time.Hour), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
