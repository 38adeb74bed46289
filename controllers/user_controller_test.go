package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/lunchbox-orders-api/config"
	"github.com/kendall-kelly/lunchbox-orders-api/middleware"
	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/kendall-kelly/lunchbox-orders-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := config.OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Auto-migrate every model
	if err := models.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// auth0Accounts is what the stub /userinfo endpoint knows, keyed by access token
var auth0Accounts = map[string]services.Auth0UserInfo{
	"auth0|sora":    {Sub: "auth0|sora", Name: "Kim Sora", Email: "sora@example.com", PhoneNumber: "+82 10-3030-4040"},
	"auth0|daeho":   {Sub: "auth0|daeho", Name: "Park Daeho", Email: "daeho@example.com"},
	"auth0|twin":    {Sub: "auth0|twin", Name: "Sora Again", Email: "sora@example.com"},
	"auth0|noemail": {Sub: "auth0|noemail", Name: "No Email"},
	"auth0|noname":  {Sub: "auth0|noname", Email: "noname@example.com"},
}

// setupAccountRouter mounts the /users routes behind a fake auth layer.
// X-Test-User is the token subject and access token, X-Test-Role the role claim.
func setupAccountRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	db := setupTestDB(t)
	config.SetDB(db)

	auth0 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := auth0Accounts[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		if r.URL.Path != "/userinfo" || !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	}))
	t.Cleanup(auth0.Close)

	previous := config.GetConfig()
	config.SetConfig(&config.Config{Auth0Domain: auth0.URL})
	t.Cleanup(func() { config.SetConfig(previous) })

	fakeAuth := func(c *gin.Context) {
		sub := c.GetHeader("X-Test-User")
		c.Set("user_id", sub)
		c.Set("access_token", sub)
		c.Set("validated_claims", &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{Subject: sub},
			CustomClaims:     &middleware.CustomClaims{Role: c.GetHeader("X-Test-Role")},
		})
		c.Next()
	}

	router := setupTestRouter()
	users := router.Group("/api/v1/users", fakeAuth)
	users.POST("", CreateUser)
	users.GET("/me", GetMyProfile)
	users.PUT("/me", UpdateMyProfile)
	return router, db
}

func accountCall(t *testing.T, router *gin.Engine, method, user, role string, body interface{}) (int, map[string]interface{}) {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	path := "/api/v1/users/me"
	if method == http.MethodPost {
		path = "/api/v1/users"
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return w.Code, response
}

func TestCreateUser(t *testing.T) {
	tests := []struct {
		name      string
		user      string
		role      string
		wantPhone string
		wantRole  string
	}{
		{"Auth0 phone is stored in order form", "auth0|sora", "", "01030304040", middleware.RoleCustomer},
		{"no phone scope", "auth0|daeho", "", "", middleware.RoleCustomer},
		{"admin claim", "auth0|daeho", middleware.RoleAdmin, "", middleware.RoleAdmin},
		{"unknown role becomes customer", "auth0|daeho", "owner", "", middleware.RoleCustomer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, db := setupAccountRouter(t)

			status, response := accountCall(t, router, http.MethodPost, tt.user, tt.role, nil)
			require.Equal(t, http.StatusCreated, status, response)

			data := response["data"].(map[string]interface{})
			assert.Equal(t, tt.user, data["auth0_id"])
			assert.Equal(t, auth0Accounts[tt.user].Email, data["email"])
			assert.Equal(t, tt.wantPhone, data["phone"])
			assert.Equal(t, tt.wantRole, data["role"])

			var stored models.User
			require.NoError(t, db.Where("auth0_id = ?", tt.user).First(&stored).Error)
			assert.Equal(t, tt.wantRole, stored.Role)
		})
	}
}

func TestCreateUserErrors(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		user     string
		status   int
		code     string
	}{
		{"same subject twice", "auth0|sora", "auth0|sora", http.StatusConflict, "USER_EXISTS"},
		{"email already taken", "auth0|sora", "auth0|twin", http.StatusConflict, "USER_EXISTS"},
		{"Auth0 profile without email", "", "auth0|noemail", http.StatusBadRequest, "MISSING_EMAIL"},
		{"Auth0 profile without name", "", "auth0|noname", http.StatusBadRequest, "MISSING_NAME"},
		{"Auth0 rejects the token", "", "auth0|revoked", http.StatusInternalServerError, "AUTH0_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, db := setupAccountRouter(t)
			if tt.existing != "" {
				status, response := accountCall(t, router, http.MethodPost, tt.existing, "", nil)
				require.Equal(t, http.StatusCreated, status, response)
			}

			var before int64
			require.NoError(t, db.Model(&models.User{}).Count(&before).Error)

			status, response := accountCall(t, router, http.MethodPost, tt.user, "", nil)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, false, response["success"])
			assert.Equal(t, tt.code, response["error"].(map[string]interface{})["code"])

			var after int64
			require.NoError(t, db.Model(&models.User{}).Count(&after).Error)
			assert.Equal(t, before, after)
		})
	}
}

func TestGetMyProfile(t *testing.T) {
	router, _ := setupAccountRouter(t)

	status, response := accountCall(t, router, http.MethodGet, "auth0|sora", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "USER_NOT_FOUND", response["error"].(map[string]interface{})["code"])

	status, response = accountCall(t, router, http.MethodPost, "auth0|sora", "", nil)
	require.Equal(t, http.StatusCreated, status, response)

	status, response = accountCall(t, router, http.MethodGet, "auth0|sora", "", nil)
	require.Equal(t, http.StatusOK, status, response)
	assert.Equal(t, "Kim Sora", response["data"].(map[string]interface{})["name"])
}

func TestUpdateMyProfile(t *testing.T) {
	tests := []struct {
		name   string
		user   string
		body   map[string]interface{}
		status int
		code   string
		want   map[string]interface{}
	}{
		{
			name:   "phone is normalized like checkout phones",
			user:   "auth0|sora",
			body:   map[string]interface{}{"phone": "010-9999-0000"},
			status: http.StatusOK,
			want:   map[string]interface{}{"phone": "01099990000", "name": "Kim Sora"},
		},
		{
			name:   "name and email",
			user:   "auth0|sora",
			body:   map[string]interface{}{"name": "Sora K", "email": "sora.k@example.com"},
			status: http.StatusOK,
			want:   map[string]interface{}{"name": "Sora K", "email": "sora.k@example.com", "phone": "01030304040"},
		},
		{
			name:   "empty update returns the profile",
			user:   "auth0|sora",
			body:   map[string]interface{}{},
			status: http.StatusOK,
			want:   map[string]interface{}{"name": "Kim Sora"},
		},
		{
			name:   "malformed email",
			user:   "auth0|sora",
			body:   map[string]interface{}{"email": "not-an-email"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "email of another account",
			user:   "auth0|sora",
			body:   map[string]interface{}{"email": "daeho@example.com"},
			status: http.StatusConflict,
			code:   "EMAIL_EXISTS",
		},
		{
			name:   "no profile yet",
			user:   "auth0|noemail",
			body:   map[string]interface{}{"name": "Someone"},
			status: http.StatusNotFound,
			code:   "USER_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupAccountRouter(t)
			for _, user := range []string{"auth0|sora", "auth0|daeho"} {
				status, response := accountCall(t, router, http.MethodPost, user, "", nil)
				require.Equal(t, http.StatusCreated, status, response)
			}

			status, response := accountCall(t, router, http.MethodPut, tt.user, "", tt.body)
			require.Equal(t, tt.status, status, response)
			if tt.code != "" {
				assert.Equal(t, tt.code, response["error"].(map[string]interface{})["code"])
				return
			}
			data := response["data"].(map[string]interface{})
			for field, want := range tt.want {
				assert.Equal(t, want, data[field], field)
			}
		})
	}
}
