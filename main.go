package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"searchmatic/config"
	"searchmatic/database"
	"searchmatic/errs"
	"searchmatic/models"
	"searchmatic/providers"
	"searchmatic/providers/europepmc"
	"searchmatic/providers/pubmed"
	"searchmatic/providers/unpaywall"
	"searchmatic/registry"
	"searchmatic/services"
	"searchmatic/storage"
)

var (
	projectsCreatedCounter prometheus.Counter
	studiesCreatedCounter  prometheus.Counter
	studiesImportedCounter prometheus.Counter
	exportsCreatedCounter  prometheus.Counter
)

func init() {
	projectsCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "projects_created_total",
		Help: "Total number of review projects created.",
	})
	studiesCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studies_created_total",
		Help: "Total number of studies created manually.",
	})
	studiesImportedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studies_imported_total",
		Help: "Total number of studies imported from bibliographic providers.",
	})
	exportsCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exports_created_total",
		Help: "Total number of study exports uploaded to object storage.",
	})
	prometheus.MustRegister(projectsCreatedCounter, studiesCreatedCounter, studiesImportedCounter, exportsCreatedCounter)
}

// jwtAuthMiddleware verifiziert den Bearer-Token (HS256) und legt die
// Owner-Identität (sub-Claim) im Kontext ab. Die Services vertrauen dieser
// verifizierten Identität.
func jwtAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
			return
		}
		ownerID, err := uuid.Parse(sub)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token subject is not a valid id"})
			return
		}

		c.Set("owner_id", ownerID)
		c.Next()
	}
}

// ownerID liest die verifizierte Owner-Identität aus dem Kontext.
func ownerID(c *gin.Context) uuid.UUID {
	return c.MustGet("owner_id").(uuid.UUID)
}

// respondError mappt Service-Fehler auf HTTP-Antworten. Forbidden wird nach
// außen als 404 maskiert, damit die Existenz fremder Datensätze nicht leakt;
// das Audit-Log hat die Unterscheidung bereits festgehalten.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	if errs.IsForbidden(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var apiErr *errs.ApiErr
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.StatusCode, gin.H{"error": apiErr.Error()})
		return
	}
	logger.Error("Unerwarteter Fehler", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database
	db, err := database.Open(cfg)
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	if gin.Mode() == gin.DebugMode {
		logging.Info("Debug mode detected. Dropping tables for fresh start.")
		db.Migrator().DropTable(&models.Study{}, &models.Protocol{}, &models.Export{}, &models.Project{}, &models.EnumValue{})
	}
	logging.Info("Running database auto-migration...")
	if err := database.Migrate(db); err != nil {
		logging.Fatal("Migration failed", zap.Error(err))
	}

	// Seeding + Registry
	if err := registry.Seed(db); err != nil {
		logging.Fatal("Enum seeding failed", zap.Error(err))
	}
	reg, err := registry.New(db, logging)
	if err != nil {
		logging.Fatal("Registry load failed", zap.Error(err))
	}

	// Setup Providers
	enabledProviderNames := strings.Split(cfg.EnabledProviders, ",")
	var enabledProviders []providers.Provider
	for _, name := range enabledProviderNames {
		switch strings.TrimSpace(name) {
		case "pubmed":
			enabledProviders = append(enabledProviders, pubmed.NewFetcher(cfg, logging))
		case "europepmc":
			enabledProviders = append(enabledProviders, europepmc.NewFetcher(cfg, logging))
		case "":
		default:
			logging.Warn("Unknown provider in config", zap.String("provider_name", name))
		}
	}
	logging.Info("Active providers loaded", zap.Strings("providers", enabledProviderNames))

	var oaResolver *unpaywall.Resolver
	if cfg.UnpaywallEmail != "" {
		oaResolver = unpaywall.NewResolver(cfg, logging)
	}

	// Setup Services
	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	exportStore := storage.NewS3Store(s3Client, cfg)

	projectService := services.NewProjectService(db, reg, logging)
	studyService := services.NewStudyService(db, reg, logging, enabledProviders, oaResolver)
	studyService.MaxImportResults = cfg.ImportMaxResults
	protocolService := services.NewProtocolService(db, reg, logging)
	exportService := services.NewExportService(db, exportStore, logging, cfg.ExportRetentionDays)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "searchmatic"})
	})

	authorized := router.Group("/", jwtAuthMiddleware(cfg))
	setupProjectRoutes(authorized, projectService, logging)
	setupStudyRoutes(authorized, studyService, logging)
	setupProtocolRoutes(authorized, protocolService, logging)
	setupExportRoutes(authorized, exportService, logging)
	setupEnumRoutes(authorized, reg, logging)

	// Setup Cron: abgelaufene Exporte regelmäßig abräumen.
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled export cleanup...")
		removed, err := exportService.CleanupExpired(context.Background())
		if err != nil {
			logging.Error("Export cleanup failed", zap.Error(err))
		} else {
			logging.Info("Export cleanup completed", zap.Int("removed", removed))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupProjectRoutes(router *gin.RouterGroup, svc *services.ProjectService, log *zap.Logger) {
	rg := router.Group("/projects")

	rg.POST("/", func(c *gin.Context) {
		var in services.CreateProjectInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		project, err := svc.Create(c.Request.Context(), ownerID(c), in)
		if err != nil {
			respondError(c, log, err)
			return
		}
		projectsCreatedCounter.Inc()
		c.JSON(http.StatusCreated, project)
	})

	rg.GET("/", func(c *gin.Context) {
		projects, err := svc.List(c.Request.Context(), ownerID(c))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, projects)
	})

	rg.GET("/:id", func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		project, err := svc.Get(c.Request.Context(), ownerID(c), projectID)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, project)
	})

	rg.PUT("/:id", func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		var in services.UpdateProjectInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		project, err := svc.Update(c.Request.Context(), ownerID(c), projectID, in)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, project)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		if err := svc.Delete(c.Request.Context(), ownerID(c), projectID); err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "project deleted"})
	})

	rg.GET("/:id/stats", func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		stats, err := svc.Stats(c.Request.Context(), ownerID(c), projectID)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})
}

func setupStudyRoutes(router *gin.RouterGroup, svc *services.StudyService, log *zap.Logger) {
	rg := router.Group("/projects/:id/studies")

	rg.POST("/", func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		var in services.CreateStudyInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		study, err := svc.Create(c.Request.Context(), ownerID(c), projectID, in)
		if err != nil {
			respondError(c, log, err)
			return
		}
		studiesCreatedCounter.Inc()
		c.JSON(http.StatusCreated, study)
	})

	rg.GET("/", func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		studies, err := svc.List(c.Request.Context(), ownerID(c), projectID, c.Query("status"))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, studies)
	})

	rg.POST("/import", func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		var req struct {
			Term string `json:"term" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body, 'term' is required"})
			return
		}
		count, err := svc.ImportSearch(c.Request.Context(), ownerID(c), projectID, req.Term)
		if err != nil {
			respondError(c, log, err)
			return
		}
		studiesImportedCounter.Add(float64(count))
		c.JSON(http.StatusOK, gin.H{"imported": count})
	})

	// Einzel-Study-Operationen laufen über die Study-ID.
	studies := router.Group("/studies")

	studies.PUT("/:id", func(c *gin.Context) {
		studyID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid study id"})
			return
		}
		var in services.UpdateStudyInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		study, err := svc.Update(c.Request.Context(), ownerID(c), studyID, in)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, study)
	})

	studies.DELETE("/:id", func(c *gin.Context) {
		studyID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid study id"})
			return
		}
		if err := svc.Delete(c.Request.Context(), ownerID(c), studyID); err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "study deleted"})
	})
}

func setupProtocolRoutes(router *gin.RouterGroup, svc *services.ProtocolService, log *zap.Logger) {
	rg := router.Group("/projects/:id/protocol")

	rg.GET("/", func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		protocol, err := svc.Get(c.Request.Context(), ownerID(c), projectID)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, protocol)
	})

	rg.PUT("/", func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		var in services.ProtocolInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		protocol, err := svc.Upsert(c.Request.Context(), ownerID(c), projectID, in)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, protocol)
	})

	rg.POST("/lock", func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		protocol, err := svc.Lock(c.Request.Context(), ownerID(c), projectID)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, protocol)
	})
}

func setupExportRoutes(router *gin.RouterGroup, svc *services.ExportService, log *zap.Logger) {
	router.POST("/projects/:id/export", func(c *gin.Context) {
		projectID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
			return
		}
		export, err := svc.ExportStudies(c.Request.Context(), ownerID(c), projectID)
		if err != nil {
			respondError(c, log, err)
			return
		}
		exportsCreatedCounter.Inc()
		c.JSON(http.StatusCreated, export)
	})
}

func setupEnumRoutes(router *gin.RouterGroup, reg *registry.Registry, log *zap.Logger) {
	rg := router.Group("/enums")

	// GET - registrierte Werte eines Feldes abfragen
	rg.GET("/:field", func(c *gin.Context) {
		field := c.Param("field")
		if !registry.KnownField(field) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown enum field"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"field": field, "values": reg.Values(field)})
	})

	// POST - neuen Wert registrieren (append-only, idempotent)
	rg.POST("/:field", func(c *gin.Context) {
		field := c.Param("field")
		var req struct {
			Value string `json:"value" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body, 'value' is required"})
			return
		}
		if err := reg.Register(field, req.Value); err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"field": field, "values": reg.Values(field)})
	})
}
