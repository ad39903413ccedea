package main

import (
	"time"

	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/config"
	"github.com/leafwise/plantid-community/controllers"
	"github.com/leafwise/plantid-community/models"
	"github.com/leafwise/plantid-community/routes"
	"github.com/leafwise/plantid-community/services"
	"github.com/leafwise/plantid-community/utils"
)

func main() {
	cfg := config.Load()

	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync()

	db := config.InitDatabase(
		&models.User{},
		&models.Category{},
		&models.Thread{},
		&models.Post{},
		&models.Reaction{},
		&models.BlogPost{},
		&models.PlantSpecies{},
		&models.PlantDisease{},
		&models.IdentificationRequest{},
		&models.IdentificationResult{},
		&models.PageView{},
	)

	seedCategories(db)

	identifier := buildIdentifier(cfg)

	utils.StartImageSweeper(time.Hour)

	router := routes.SetupRouter(db, identifier)

	utils.Sugar.Infof("listening on %s", cfg.AppPort)
	if err := utils.GraceServer(cfg.AppPort, router); err != nil {
		utils.Sugar.Fatalf("server exited: %v", err)
	}
}

// buildIdentifier assembles the provider set from whatever API keys are
// configured. A missing key just drops that provider.
func buildIdentifier(cfg config.AppConfig) controllers.PlantIdentifier {
	var providers []services.Provider

	if cfg.PlantIDAPIKey != "" {
		providers = append(providers, services.NewPlantIDClient(
			cfg.PlantIDAPIKey,
			cfg.PlantIDEndpoint,
			time.Duration(cfg.PlantIDTimeoutSec)*time.Second,
		))
	}
	if cfg.PlantNetAPIKey != "" {
		providers = append(providers, services.NewPlantNetClient(
			cfg.PlantNetAPIKey,
			cfg.PlantNetEndpoint,
			time.Duration(cfg.PlantNetTimeoutSec)*time.Second,
		))
	}

	if len(providers) == 0 {
		utils.Sugar.Warn("no identification providers configured, /identify will be unavailable")
	}

	return services.NewIdentifier(
		cfg.BreakerFailures,
		time.Duration(cfg.BreakerOpenSec)*time.Second,
		providers...,
	)
}

// seedCategories inserts the default forum categories on first boot.
func seedCategories(db *gorm.DB) {
	for _, category := range models.DefaultCategories {
		var existing models.Category
		if err := db.Where("slug = ?", category.Slug).First(&existing).Error; err == gorm.ErrRecordNotFound {
			if err := db.Create(&category).Error; err != nil {
				utils.Sugar.Warnf("failed to seed category %s: %v", category.Slug, err)
			}
		}
	}
}
