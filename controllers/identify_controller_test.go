package controllers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/middleware"
	"github.com/leafwise/plantid-community/models"
	"github.com/leafwise/plantid-community/services"
	"github.com/leafwise/plantid-community/utils"
)

type stubIdentifier struct {
	result *services.MergedResult
	err    error
	calls  int
	lastIn services.IdentifyInput
}

func (s *stubIdentifier) Identify(ctx context.Context, in services.IdentifyInput) (*services.MergedResult, error) {
	s.calls++
	s.lastIn = in
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubIdentifier) ProviderCount() int { return 2 }

func identifyRouter(db *gorm.DB, engine PlantIdentifier) *gin.Engine {
	ctl := NewIdentifyController(db, engine)

	router := gin.New()
	group := router.Group("/api/v1/identify", middleware.AuthRequired())
	group.POST("", ctl.Identify)
	group.GET("/requests", ctl.History)
	group.GET("/requests/:publicID", ctl.GetRequest)
	return router
}

func mergedMonstera() *services.MergedResult {
	return &services.MergedResult{
		Suggestions: []services.Suggestion{
			{
				ScientificName: "Monstera deliciosa",
				CommonNames:    []string{"Swiss cheese plant"},
				Family:         "Araceae",
				Genus:          "Monstera",
				Probability:    0.91,
				Source:         services.SourceBoth,
			},
			{ScientificName: "Epipremnum aureum", Probability: 0.04, Source: services.ProviderPlantID},
		},
		Providers: []string{services.ProviderPlantID, services.ProviderPlantNet},
	}
}

func performUpload(router *gin.Engine, token string, filename string, image []byte, fields map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, _ := mw.CreateFormFile("image", filename)
	fw.Write(image)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/identify", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdentifyHappyPath(t *testing.T) {
	db := setupTest(t)
	stub := &stubIdentifier{result: mergedMonstera()}
	router := identifyRouter(db, stub)
	user := createUser(t, db, "snapper")

	w := performUpload(router, tokenFor(t, user), "leaf.jpg", []byte("jpeg-bytes"), map[string]string{
		"organs":         "leaf,flower",
		"include_health": "true",
	})
	requireStatus(t, w, http.StatusOK)

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, []string{"leaf", "flower"}, stub.lastIn.Organs)
	assert.True(t, stub.lastIn.IncludeHealth)

	var data struct {
		FromCache bool `json:"from_cache"`
		Request   struct {
			PublicID string `json:"public_id"`
			Status   string `json:"status"`
		} `json:"request"`
		Result services.MergedResult `json:"result"`
	}
	decodeData(t, w, &data)
	assert.False(t, data.FromCache)
	assert.Equal(t, models.IdentificationCompleted, data.Request.Status)
	assert.NotEmpty(t, data.Request.PublicID)
	require.Len(t, data.Result.Suggestions, 2)

	// The species catalog grew from the answer.
	var species models.PlantSpecies
	require.NoError(t, db.Where("scientific_name = ?", "Monstera deliciosa").First(&species).Error)
	assert.Equal(t, "Araceae", species.Family)

	// Results link back to the catalog row.
	var results []models.IdentificationResult
	require.NoError(t, db.Find(&results).Error)
	require.Len(t, results, 2)
	require.NotNil(t, results[0].SpeciesID)
	assert.Equal(t, species.ID, *results[0].SpeciesID)
}

func TestIdentifyPartialStatus(t *testing.T) {
	db := setupTest(t)
	partial := mergedMonstera()
	partial.Partial = true
	partial.Providers = []string{services.ProviderPlantNet}
	stub := &stubIdentifier{result: partial}
	router := identifyRouter(db, stub)
	user := createUser(t, db, "halfway")

	w := performUpload(router, tokenFor(t, user), "leaf.jpg", []byte("img"), nil)
	requireStatus(t, w, http.StatusOK)

	var request models.IdentificationRequest
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&request).Error)
	assert.Equal(t, models.IdentificationPartial, request.Status)
	assert.Equal(t, services.ProviderPlantNet, request.Providers)
}

func TestIdentifyAllProvidersDown(t *testing.T) {
	db := setupTest(t)
	stub := &stubIdentifier{err: services.ErrAllProvidersFailed}
	router := identifyRouter(db, stub)
	user := createUser(t, db, "unlucky")

	w := performUpload(router, tokenFor(t, user), "leaf.jpg", []byte("img"), nil)
	requireStatus(t, w, http.StatusBadGateway)

	// The failed attempt is still recorded.
	var request models.IdentificationRequest
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&request).Error)
	assert.Equal(t, models.IdentificationFailed, request.Status)
}

func TestIdentifyRejectsBadUploads(t *testing.T) {
	db := setupTest(t)
	stub := &stubIdentifier{result: mergedMonstera()}
	router := identifyRouter(db, stub)
	user := createUser(t, db, "uploader")
	token := tokenFor(t, user)

	// No auth.
	w := performUpload(router, "", "leaf.jpg", []byte("img"), nil)
	requireStatus(t, w, http.StatusUnauthorized)

	// Wrong extension.
	w = performUpload(router, token, "notes.txt", []byte("img"), nil)
	requireStatus(t, w, http.StatusBadRequest)

	// Empty file.
	w = performUpload(router, token, "leaf.jpg", nil, nil)
	requireStatus(t, w, http.StatusBadRequest)

	assert.Zero(t, stub.calls)
}

func TestIdentifyHistoryAndOwnership(t *testing.T) {
	db := setupTest(t)
	stub := &stubIdentifier{result: mergedMonstera()}
	router := identifyRouter(db, stub)
	owner := createUser(t, db, "historian")
	other := createUser(t, db, "nosy")

	w := performUpload(router, tokenFor(t, owner), "leaf.jpg", []byte("img-1"), nil)
	requireStatus(t, w, http.StatusOK)
	w = performUpload(router, tokenFor(t, owner), "leaf.jpg", []byte("img-2"), nil)
	requireStatus(t, w, http.StatusOK)

	// History lists only the owner's requests, newest first.
	w = performJSON(router, "GET", "/api/v1/identify/requests", nil, tokenFor(t, owner))
	requireStatus(t, w, http.StatusOK)
	var history struct {
		Requests   []models.IdentificationRequest `json:"requests"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decodeData(t, w, &history)
	assert.Equal(t, int64(2), history.Pagination.Total)
	require.Len(t, history.Requests, 2)

	w = performJSON(router, "GET", "/api/v1/identify/requests", nil, tokenFor(t, other))
	requireStatus(t, w, http.StatusOK)
	decodeData(t, w, &history)
	assert.Zero(t, history.Pagination.Total)

	// Detail access is owner-only.
	var request models.IdentificationRequest
	require.NoError(t, db.Where("user_id = ?", owner.ID).First(&request).Error)

	path := "/api/v1/identify/requests/" + request.PublicID
	w = performJSON(router, "GET", path, nil, tokenFor(t, owner))
	requireStatus(t, w, http.StatusOK)

	w = performJSON(router, "GET", path, nil, tokenFor(t, other))
	requireStatus(t, w, http.StatusForbidden)

	// Admins may read anything.
	admin := createUser(t, db, "admin")
	w = performJSON(router, "GET", path, nil, tokenFor(t, admin))
	requireStatus(t, w, http.StatusOK)
}

func TestIdentifyCacheSkipsProviders(t *testing.T) {
	db := setupTest(t)

	mr := miniredis.RunT(t)
	utils.SetRedisForTesting(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	stub := &stubIdentifier{result: mergedMonstera()}
	router := identifyRouter(db, stub)
	user := createUser(t, db, "repeat")
	token := tokenFor(t, user)

	image := []byte("same-jpeg-bytes")

	w := performUpload(router, token, "leaf.jpg", image, nil)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, 1, stub.calls)

	// Identical bytes within the TTL never reach the providers again.
	w = performUpload(router, token, "leaf.jpg", image, nil)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, 1, stub.calls)

	var data struct {
		FromCache bool `json:"from_cache"`
		Request   struct {
			Status    string `json:"status"`
			FromCache bool   `json:"from_cache"`
		} `json:"request"`
		Result services.MergedResult `json:"result"`
	}
	decodeData(t, w, &data)
	assert.True(t, data.FromCache)
	assert.True(t, data.Request.FromCache)
	assert.Equal(t, models.IdentificationCached, data.Request.Status)
	require.Len(t, data.Result.Suggestions, 2)
	assert.Equal(t, "Monstera deliciosa", data.Result.Suggestions[0].ScientificName)

	// The cached attempt is still part of the user's history.
	var cachedRows int64
	require.NoError(t, db.Model(&models.IdentificationRequest{}).
		Where("user_id = ? AND status = ?", user.ID, models.IdentificationCached).
		Count(&cachedRows).Error)
	assert.Equal(t, int64(1), cachedRows)

	// Different bytes hash differently and go back to the providers.
	w = performUpload(router, token, "leaf.jpg", []byte("other-jpeg-bytes"), nil)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, 2, stub.calls)
}

func TestIdentifySpeciesOnlyGainDetail(t *testing.T) {
	db := setupTest(t)
	existing := models.PlantSpecies{
		ScientificName: "Monstera deliciosa",
		Description:    "Curated description.",
	}
	require.NoError(t, db.Create(&existing).Error)

	stub := &stubIdentifier{result: mergedMonstera()}
	router := identifyRouter(db, stub)
	user := createUser(t, db, "curator")

	w := performUpload(router, tokenFor(t, user), "leaf.jpg", []byte("img"), nil)
	requireStatus(t, w, http.StatusOK)

	var stored models.PlantSpecies
	require.NoError(t, db.First(&stored, existing.ID).Error)
	// The curated text stays, missing taxonomy is filled in.
	assert.Equal(t, "Curated description.", stored.Description)
	assert.Equal(t, "Araceae", stored.Family)
	assert.Equal(t, "Monstera", stored.Genus)
}
