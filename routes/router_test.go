package routes

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/config"
	"github.com/leafwise/plantid-community/models"
	"github.com/leafwise/plantid-community/utils"
)

func setupRouterTest(t *testing.T) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	if utils.Logger == nil {
		utils.Logger = zap.NewNop()
		utils.Sugar = utils.Logger.Sugar()
	}

	config.SetForTesting(config.AppConfig{
		JWTSecret:          "unit-test-secret",
		GinMode:            gin.TestMode,
		GinPath:            filepath.Join(t.TempDir(), "gin.log"),
		UploadDir:          t.TempDir(),
		RateLimitPerMinute: 2, // burst of 1
	})

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Thread{},
		&models.Post{},
		&models.Reaction{},
		&models.BlogPost{},
		&models.PageView{},
	))

	return SetupRouter(db, nil)
}

func TestWriteEndpointsAreRateLimited(t *testing.T) {
	router := setupRouterTest(t)

	do := func(method, path, ip string) int {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	// Forum writes sit behind the limiter, before auth even runs.
	assert.Equal(t, http.StatusUnauthorized, do("POST", "/api/v1/forum/threads", "198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("POST", "/api/v1/forum/threads", "198.51.100.1"))

	// Same for blog admin writes.
	assert.Equal(t, http.StatusUnauthorized, do("POST", "/api/v1/blog/posts", "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, do("POST", "/api/v1/blog/posts", "198.51.100.2"))

	// Public reads stay unthrottled.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do("GET", "/api/v1/forum/threads", "198.51.100.3"))
	}
}
