package controllers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/models"
)

func speciesRouter(db *gorm.DB) *gin.Engine {
	ctl := NewSpeciesController(db)

	router := gin.New()
	router.GET("/api/v1/species", ctl.Search)
	router.GET("/api/v1/species/:id", ctl.Get)
	router.GET("/api/v1/diseases", ctl.ListDiseases)
	return router
}

func seedSpecies(t *testing.T, db *gorm.DB) []models.PlantSpecies {
	t.Helper()
	rows := []models.PlantSpecies{
		{ScientificName: "Monstera deliciosa", CommonNames: "Swiss cheese plant,Ceriman", Family: "Araceae"},
		{ScientificName: "Epipremnum aureum", CommonNames: "Pothos", Family: "Araceae"},
		{ScientificName: "Ficus lyrata", CommonNames: "Fiddle-leaf fig", Family: "Moraceae"},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}
	return rows
}

func TestSpeciesSearch(t *testing.T) {
	db := setupTest(t)
	router := speciesRouter(db)
	seedSpecies(t, db)

	var data struct {
		Species    []models.PlantSpecies `json:"species"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}

	// By scientific name fragment, case-insensitive.
	w := performJSON(router, "GET", "/api/v1/species?q=monstera", nil, "")
	requireStatus(t, w, http.StatusOK)
	decodeData(t, w, &data)
	require.Len(t, data.Species, 1)
	assert.Equal(t, "Monstera deliciosa", data.Species[0].ScientificName)

	// By common name.
	w = performJSON(router, "GET", "/api/v1/species?q=pothos", nil, "")
	requireStatus(t, w, http.StatusOK)
	decodeData(t, w, &data)
	require.Len(t, data.Species, 1)
	assert.Equal(t, "Epipremnum aureum", data.Species[0].ScientificName)

	// By family filter.
	w = performJSON(router, "GET", "/api/v1/species?family=Araceae", nil, "")
	requireStatus(t, w, http.StatusOK)
	decodeData(t, w, &data)
	assert.Equal(t, int64(2), data.Pagination.Total)

	// Everything.
	w = performJSON(router, "GET", "/api/v1/species", nil, "")
	requireStatus(t, w, http.StatusOK)
	decodeData(t, w, &data)
	assert.Equal(t, int64(3), data.Pagination.Total)
}

func TestSpeciesDetailWithIdentificationCount(t *testing.T) {
	db := setupTest(t)
	router := speciesRouter(db)
	rows := seedSpecies(t, db)
	target := rows[0]

	user := createUser(t, db, "counter")
	for i := 0; i < 3; i++ {
		request := models.IdentificationRequest{
			PublicID:  fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", i),
			UserID:    user.ID,
			ImageHash: fmt.Sprintf("hash-%d", i),
			Status:    models.IdentificationCompleted,
		}
		require.NoError(t, db.Create(&request).Error)
		result := models.IdentificationResult{
			RequestID:      request.ID,
			SpeciesID:      &target.ID,
			ScientificName: target.ScientificName,
			Probability:    0.9,
			Source:         "both",
		}
		require.NoError(t, db.Create(&result).Error)
	}

	w := performJSON(router, "GET", fmt.Sprintf("/api/v1/species/%d", target.ID), nil, "")
	requireStatus(t, w, http.StatusOK)

	var data struct {
		Species             models.PlantSpecies `json:"species"`
		IdentificationCount int64               `json:"identification_count"`
	}
	decodeData(t, w, &data)
	assert.Equal(t, target.ScientificName, data.Species.ScientificName)
	assert.Equal(t, int64(3), data.IdentificationCount)

	w = performJSON(router, "GET", "/api/v1/species/99999", nil, "")
	requireStatus(t, w, http.StatusNotFound)
}

func TestDiseaseListAndSearch(t *testing.T) {
	db := setupTest(t)
	router := speciesRouter(db)

	for _, d := range []models.PlantDisease{
		{Name: "leaf spot", Description: "Fungal spots on foliage."},
		{Name: "root rot", Description: "Overwatering damage."},
	} {
		require.NoError(t, db.Create(&d).Error)
	}

	var data struct {
		Diseases   []models.PlantDisease `json:"diseases"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}

	w := performJSON(router, "GET", "/api/v1/diseases", nil, "")
	requireStatus(t, w, http.StatusOK)
	decodeData(t, w, &data)
	assert.Equal(t, int64(2), data.Pagination.Total)

	w = performJSON(router, "GET", "/api/v1/diseases?q=rot", nil, "")
	requireStatus(t, w, http.StatusOK)
	decodeData(t, w, &data)
	require.Len(t, data.Diseases, 1)
	assert.Equal(t, "root rot", data.Diseases[0].Name)
}
