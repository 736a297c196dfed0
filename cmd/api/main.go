package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go-fleet-console/internal/config"
	"go-fleet-console/internal/handler"
	"go-fleet-console/internal/middleware"
	"go-fleet-console/internal/model"
	"go-fleet-console/internal/obs"
	"go-fleet-console/internal/repository"
	"go-fleet-console/internal/service"
	"go-fleet-console/internal/ws"
	"go-fleet-console/pkg/database"
	"go-fleet-console/pkg/jwt"
	"go-fleet-console/pkg/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultAdminEmail    = "admin@example.com"
	defaultAdminPassword = "admin123"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	log := logger.New(os.Getenv("APP_ENV"))
	defer log.Sync()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	// 2. Setup Database
	db, err := database.ConnectDB(cfg.Database.DSN(), log, cfg.IsDevelopment())
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	// AutoMigrate is fine for this schema size; switch to versioned migrations before it grows
	if err := db.SetupJoinTable(&model.Department{}, "Employees", &model.DepartmentEmployee{}); err != nil {
		log.Fatal("join table", zap.Error(err))
	}
	if err := db.AutoMigrate(&model.Privilege{}, &model.Role{}, &model.User{}, &model.Employee{}, &model.Department{}); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// 3. Seed default privileges, roles, and admin user
	seedDefaults(db, log)

	// 4. Metrics and WebSocket hub
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsHub := ws.NewHub(log.Named("ws"), metrics)
	go wsHub.Run(ctx)

	tokens, err := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	if err != nil {
		log.Fatal("jwt", zap.Error(err))
	}

	// 5. Dependency Injection (Wiring Layers)
	userRepo := repository.NewUserRepo(db)
	privilegeRepo := repository.NewPrivilegeRepo(db)
	roleRepo := repository.NewRoleRepo(db)
	deptRepo := repository.NewDepartmentRepo(db)
	empRepo := repository.NewEmployeeRepo(db)

	authService := service.NewAuthService(userRepo, tokens, wsHub, log.Named("auth"))
	userService := service.NewUserService(userRepo, roleRepo, wsHub, log.Named("users"))
	roleService := service.NewRoleService(roleRepo, privilegeRepo, userRepo, wsHub, log.Named("roles"))
	directoryService := service.NewDirectoryService(deptRepo, empRepo, wsHub, log.Named("directory"))

	handlers := handler.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		Directory: handler.NewDirectoryHandler(directoryService),
		Role:      handler.NewRoleHandler(roleService),
		User:      handler.NewUserHandler(userService),
	}
	guard := middleware.NewPermissionGuard(log.Named("rbac"), metrics)

	// 6. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName:               "Fleet Console API",
		DisableStartupMessage: !cfg.IsDevelopment(),
	})

	app.Use(recover.New())
	app.Use(middleware.Logger(log.Named("http")))
	app.Use(metrics.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.Origins(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// 7. Routes
	handler.Register(app, handlers, authService, guard)
	app.Get("/metrics", obs.Handler(registry))
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	// WebSocket Route, authenticated with ?token= since browsers cannot set headers
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return c.SendStatus(fiber.StatusUpgradeRequired)
		}
		token := c.Query("token")
		if t, ok := middleware.BearerToken(c); ok {
			token = t
		}
		user, err := authService.Authenticate(token)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		}
		c.Locals(middleware.LocalUserID, user.ID.String())
		return c.Next()
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		select {
		case wsHub.Register <- c:
		case <-ctx.Done():
			return
		}
		defer func() {
			select {
			case wsHub.Unregister <- c:
			case <-ctx.Done():
			}
		}()

		for {
			// Keep alive loop
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))

	// 8. Graceful Shutdown
	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Panic("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}

// seedDefaults creates default privileges, roles, and the admin user if they don't exist
func seedDefaults(db *gorm.DB, log *zap.Logger) {
	privilegeRepo := repository.NewPrivilegeRepo(db)
	userRepo := repository.NewUserRepo(db)
	roleRepo := repository.NewRoleRepo(db)

	// 1. Seed privileges first
	if err := privilegeRepo.SeedDefaults(); err != nil {
		log.Warn("seed privileges", zap.Error(err))
	}

	// 2. Seed roles with their starting privileges
	if err := roleRepo.SeedDefaults(); err != nil {
		log.Warn("seed roles", zap.Error(err))
	}

	// 3. Create default admin user with MASTER_ADMIN role
	email := envOr("ADMIN_EMAIL", defaultAdminEmail)
	if _, err := userRepo.FindByEmail(email); err == nil {
		return
	}
	masterRole, err := roleRepo.FindByCode(model.RoleMasterAdmin)
	if err != nil {
		log.Warn("seed admin: master role missing", zap.Error(err))
		return
	}

	admin := &model.User{
		Email:    email,
		FullName: "Master Administrator",
		RoleID:   &masterRole.ID,
		IsActive: true,
	}
	admin.CreatedBy = "system"
	admin.UpdatedBy = "system"

	if err := admin.SetPassword(envOr("ADMIN_PASSWORD", defaultAdminPassword)); err != nil {
		log.Warn("seed admin: hash password", zap.Error(err))
		return
	}
	if err := userRepo.Create(admin); err != nil {
		log.Warn("seed admin", zap.Error(err))
		return
	}
	log.Info("admin user created", zap.String("email", email), zap.String("role", model.RoleMasterAdmin))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
