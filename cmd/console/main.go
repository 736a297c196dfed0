package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"go-fleet-console/internal/client"
	"go-fleet-console/internal/config"
	"go-fleet-console/internal/console"
	"go-fleet-console/internal/obs"
	"go-fleet-console/internal/permission"
	"go-fleet-console/internal/session"
	"go-fleet-console/pkg/logger"
)

const usage = `usage: console [flags] <command> [args]

commands:
  login                  sign in with --email and --password
  whoami                 show the signed-in operator and their grants
  can <module> <action>  exit 0 if the operator may perform action on module
  departments            list departments and their members
  watch                  follow change notifications until interrupted
  logout                 end the session

flags:
`

func main() {
	email := pflag.String("email", "", "operator email (login)")
	password := pflag.String("password", "", "operator password (login)")
	apiURL := pflag.String("api", "", "API base URL, overrides CONSOLE_API_URL")
	strict := pflag.Bool("strict", false, "fail on store integrity violations instead of ignoring them")
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	log := logger.New(os.Getenv("APP_ENV"))
	defer log.Sync()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if *apiURL != "" {
		cfg.Console.APIURL = *apiURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapshots := snapshotStore(cfg, log)
	api := client.New(cfg.Console.APIURL, cfg.Console.RequestTimeout)
	cache := session.NewCache(snapshots,
		session.WithMaxAge(cfg.Session.MaxAge),
		session.WithLogger(log.Named("session")),
	)
	app := console.New(api, api, cache,
		console.WithLogger(log.Named("console")),
		console.WithMetrics(obs.NewMetrics(prometheus.NewRegistry())),
		console.WithStrict(cfg.Console.Strict || *strict),
		console.WithDebounce(cfg.Console.SearchDebounce),
	)

	if err := run(ctx, app, cfg, pflag.Args(), *email, *password); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// snapshotStore persists the session in redis when REDIS_ADDR is set. Without it the
// session lasts for one invocation only.
func snapshotStore(cfg *config.Config, log *zap.Logger) session.SnapshotStore {
	if cfg.Redis.Addr == "" {
		log.Debug("REDIS_ADDR not set, session will not persist")
		return session.NewMemorySnapshotStore()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return session.NewRedisSnapshotStore(rdb, cfg.Session.SnapshotKey, 24*time.Hour)
}

func run(ctx context.Context, app *console.Console, cfg *config.Config, args []string, email, password string) error {
	cmd := args[0]
	if cmd == "login" {
		if email == "" || password == "" {
			return errors.New("login needs --email and --password")
		}
		if err := app.Login(ctx, email, password); err != nil {
			return err
		}
		return printSession(app)
	}

	if err := app.Restore(ctx); err != nil {
		if errors.Is(err, session.ErrNoSession) || errors.Is(err, session.ErrSessionInvalid) {
			if cmd == "logout" {
				return nil
			}
			return fmt.Errorf("not signed in, run login first: %w", err)
		}
		return err
	}

	switch cmd {
	case "whoami":
		return printSession(app)

	case "can":
		if len(args) != 3 {
			return errors.New("usage: can <module> <action>")
		}
		if !app.CanPerform(args[1], permission.Action(args[2])) {
			fmt.Println("denied")
			os.Exit(1)
		}
		fmt.Println("allowed")
		return nil

	case "departments":
		return printDepartments(ctx, app)

	case "watch":
		fmt.Println("watching", cfg.Console.WSURL(), "(ctrl-c to stop)")
		err := app.Listen(ctx, cfg.Console.WSURL())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err

	case "logout":
		return app.Logout(ctx)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func printSession(app *console.Console) error {
	user, ok := app.Cache().User()
	if !ok {
		return errors.New("no session")
	}
	fmt.Printf("%s <%s> role=%s\n", user.Name, user.Email, user.RoleCode)
	fmt.Printf("grants fetched %s (fresh=%t)\n", app.Cache().LastUpdated().Format(time.RFC3339), app.Cache().Fresh())
	for _, g := range app.Cache().Grants() {
		fmt.Printf("  %-12s %v\n", g.ModuleKey, g.Actions)
	}
	return nil
}

func printDepartments(ctx context.Context, app *console.Console) error {
	if app.CanPerform(permission.ModuleEmployee, permission.ActionRead) {
		if _, err := app.LoadEmployees(ctx); err != nil {
			return err
		}
	}
	state, err := app.LoadDepartments(ctx)
	if err != nil {
		return err
	}
	for _, id := range state.DepartmentIDs {
		dept := state.Departments[id]
		fmt.Printf("%s  %s (%d members)\n", dept.ID, dept.Name, len(dept.EmployeeIDs))
		for _, emp := range app.Store().EmployeesForDepartment(id) {
			fmt.Printf("    %s  %s %s\n", emp.ID, emp.Name, emp.Designation)
		}
	}
	return nil
}
