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

const (
	testKey    = "secret"
	testIssuer = "rollcall-test"
)

func TestIssueParse(t *testing.T) {
	pair, err := Issue("gate-1", "t1", RoleStation, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(pair.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "gate-1", claims.Subject)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Equal(t, RoleStation, claims.Role)
	assert.False(t, claims.Refresh)

	refresh, err := Parse(pair.RefreshToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.True(t, refresh.Refresh)

	_, err = Parse(pair.AccessToken, "other", testIssuer)
	assert.Error(t, err)
	_, err = Parse(pair.AccessToken, testKey, "someone-else")
	assert.Error(t, err)

	_, err = Issue("gate-1", "", RoleStation, testIssuer, testKey, time.Minute, time.Hour)
	assert.Error(t, err)
}

func TestBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	station, err := Issue("gate-1", "t1", RoleStation, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	operator, err := Issue("ops", "t1", RoleOperator, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/any", Bearer(testKey, testIssuer), func(c *gin.Context) {
		claims, _ := FromContext(c)
		c.String(http.StatusOK, claims.TenantID)
	})
	r.GET("/ops", Bearer(testKey, testIssuer, RoleOperator), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
	}{
		{name: "no header", path: "/any", wantCode: http.StatusUnauthorized},
		{name: "garbage", path: "/any", header: "Bearer lol", wantCode: http.StatusUnauthorized},
		{name: "refresh token", path: "/any", header: "Bearer " + station.RefreshToken, wantCode: http.StatusUnauthorized},
		{name: "station ok", path: "/any", header: "Bearer " + station.AccessToken, wantCode: http.StatusOK},
		{name: "station on operator route", path: "/ops", header: "Bearer " + station.AccessToken, wantCode: http.StatusForbidden},
		{name: "operator ok", path: "/ops", header: "bearer " + operator.AccessToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequire(t *testing.T) {
	gin.SetMode(gin.TestMode)
	station, err := Issue("gate-1", "t1", RoleStation, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/bare", Require(RoleOperator), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ops", Bearer(testKey, testIssuer), Require(RoleOperator), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bare", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/ops", nil)
	req.Header.Set("Authorization", "Bearer "+station.AccessToken)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
