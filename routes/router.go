package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/config"
	"github.com/leafwise/plantid-community/controllers"
	"github.com/leafwise/plantid-community/middleware"
	"github.com/leafwise/plantid-community/utils"
)

// SetupRouter wires middleware, controllers and routes into a gin engine.
func SetupRouter(db *gorm.DB, identifier controllers.PlantIdentifier) *gin.Engine {
	cfg := config.Get()

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	router := gin.New()

	accessLogger, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err != nil {
		accessLogger = utils.Logger
	}
	router.Use(utils.Ginzap(accessLogger, time.RFC3339, false))
	router.Use(utils.RecoveryWithZap(accessLogger, true))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.Use(middleware.PageViewRecorder(db))

	router.Static("/static/uploads", cfg.UploadDir)

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authCtl := controllers.NewAuthController(db)
	forumCtl := controllers.NewForumController(db)
	blogCtl := controllers.NewBlogController(db)
	identifyCtl := controllers.NewIdentifyController(db, identifier)
	speciesCtl := controllers.NewSpeciesController(db)
	statsCtl := controllers.NewStatsController(db)

	v1 := router.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.Use(middleware.RateLimitMiddleware())
	{
		auth.POST("/register", authCtl.Register)
		auth.POST("/login", authCtl.Login)
		auth.POST("/logout", middleware.AuthRequired(), authCtl.Logout)
		auth.GET("/me", middleware.AuthRequired(), authCtl.Me)
		auth.PATCH("/profile", middleware.AuthRequired(), authCtl.UpdateProfile)
		auth.GET("/captcha", authCtl.Captcha)
		auth.POST("/email-code", authCtl.SendEmailCode)
		auth.GET("/oauth/:provider/login", authCtl.OAuthRedirect)
		auth.GET("/oauth/:provider/callback", authCtl.OAuthCallback)
	}

	users := v1.Group("/users")
	{
		users.GET("/:id", authCtl.GetUserPublic)
		users.GET("/by-username/:username", authCtl.GetUserPublicByUsername)
	}

	identify := v1.Group("/identify")
	identify.Use(middleware.AuthRequired())
	{
		identify.POST("", middleware.IdentifyQuota(), identifyCtl.Identify)
		identify.GET("/requests", identifyCtl.History)
		identify.GET("/requests/:publicID", identifyCtl.GetRequest)
	}

	forum := v1.Group("/forum")
	{
		forum.GET("/categories", forumCtl.ListCategories)
		forum.GET("/threads", forumCtl.ListThreads)
		forum.GET("/threads/:id", forumCtl.GetThread)
		forum.GET("/threads/:id/stats", forumCtl.ThreadStats)

		protected := forum.Group("")
		protected.Use(middleware.RateLimitMiddleware(), middleware.AuthRequired())
		{
			protected.POST("/threads", forumCtl.CreateThread)
			protected.PATCH("/threads/:id", forumCtl.UpdateThread)
			protected.DELETE("/threads/:id", forumCtl.DeleteThread)
			protected.POST("/threads/:id/posts", forumCtl.CreatePost)
			protected.DELETE("/posts/:postID", forumCtl.DeletePost)
			protected.POST("/posts/:postID/reactions", forumCtl.ToggleReaction)
		}
	}

	blog := v1.Group("/blog")
	{
		blog.GET("/posts", blogCtl.ListPosts)
		blog.GET("/posts/:slug", blogCtl.GetPost)

		admin := blog.Group("")
		admin.Use(middleware.RateLimitMiddleware(), middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.POST("/posts", blogCtl.CreatePost)
			admin.PATCH("/posts/:slug", blogCtl.UpdatePost)
			admin.DELETE("/posts/:slug", blogCtl.DeletePost)
		}
	}

	species := v1.Group("/species")
	{
		species.GET("", speciesCtl.Search)
		species.GET("/:id", speciesCtl.Get)
	}
	v1.GET("/diseases", speciesCtl.ListDiseases)

	stats := v1.Group("/stats")
	{
		stats.GET("/overview", statsCtl.Overview)
		stats.GET("/daily-views", statsCtl.DailyViews)
	}

	router.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "endpoint not found")
			return
		}
		ctx.Status(http.StatusNotFound)
	})

	return router
}
