package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	iss := NewIssuer("admin", "s3cret", "eventqueue", "key", time.Hour)

	tok, err := iss.Login("admin", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, time.Minute)

	claims, err := iss.Parse(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = iss.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = NewIssuer("", "", "eventqueue", "key", time.Hour).Login("", "")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestParseRejectsForeignTokens(t *testing.T) {
	iss := NewIssuer("admin", "pw", "eventqueue", "key", time.Hour)
	tok, err := iss.Issue("admin", RoleAdmin)
	require.NoError(t, err)

	_, err = NewIssuer("admin", "pw", "eventqueue", "other-key", time.Hour).Parse(tok.AccessToken)
	assert.Error(t, err)
	_, err = NewIssuer("admin", "pw", "someone-else", "key", time.Hour).Parse(tok.AccessToken)
	assert.Error(t, err)

	expired := NewIssuer("admin", "pw", "eventqueue", "key", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("admin", RoleAdmin)
	require.NoError(t, err)
	_, err = iss.Parse(old.AccessToken)
	assert.Error(t, err)
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("admin", "pw", "eventqueue", "key", time.Hour)
	r := gin.New()
	r.GET("/private", AdminAuth(iss), func(c *gin.Context) {
		claims := c.MustGet(ClaimsKey).(Claims)
		c.String(http.StatusOK, claims.Subject)
	})

	admin, err := iss.Issue("admin", RoleAdmin)
	require.NoError(t, err)
	guest, err := iss.Issue("kiosk", "viewer")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + guest.AccessToken, http.StatusForbidden},
		{"admin", "bearer " + admin.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
