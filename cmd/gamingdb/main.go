package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maloquacious/gamingdb/internal/admin"
	"github.com/maloquacious/gamingdb/internal/bootstrap"
	"github.com/maloquacious/gamingdb/internal/config"
	"github.com/maloquacious/gamingdb/internal/health"
	"github.com/maloquacious/gamingdb/internal/logger"
	"github.com/maloquacious/gamingdb/internal/metrics"
	"github.com/maloquacious/gamingdb/internal/store/sqlite"
)

var (
	version   = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}
	buildDate = ""
)

// app carries what every command needs once flags and env are resolved.
type app struct {
	v       *viper.Viper
	cfg     config.Config
	log     *logger.ZapLogger
	metrics *metrics.Collector
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:           "gamingdb",
		Short:         "Gaming database seeder and health probe server",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("db", config.DefaultDBPath, "path to the SQLite database file (env DB_PATH)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error (env LOG_LEVEL)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Initialize the database if missing, then serve /health, /ready and /live",
		RunE:  a.runServe,
	}
	serveCmd.Flags().Int("port", config.DefaultPort, "probe HTTP port (env PORT)")
	serveCmd.Flags().Int("admin-port", config.DefaultAdminPort, "admin HTTP port, loopback only; 0 disables (env ADMIN_PORT)")
	serveCmd.Flags().Duration("probe-timeout", config.DefaultProbeTimeout, "upper bound on one database probe (env PROBE_TIMEOUT)")
	serveCmd.Flags().Duration("shutdown-timeout", config.DefaultShutdownTimeout, "graceful shutdown timeout (env SHUTDOWN_TIMEOUT)")
	serveCmd.Flags().Duration("exit-after", 0, "optional runtime; if set, server exits after this duration (testing)")

	// db command group
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	var connInfo bool
	dbCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create and seed the database if it is missing or empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDBCreate(cmd, connInfo)
		},
	}
	dbCreateCmd.Flags().BoolVar(&connInfo, "conn-info", false, "write "+bootstrap.ConnInfoFile+" beside the database")

	dbUpgradeCmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Re-apply schema and seed rows to an existing database",
		RunE:  a.runDBUpgrade,
	}
	dbVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Probe the database and print a JSON summary",
		RunE:  a.runDBVerify,
	}
	dbVerifyCmd.Flags().Duration("probe-timeout", config.DefaultProbeTimeout, "upper bound on the probe (env PROBE_TIMEOUT)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
				"version":       version.String(),
				"schemaVersion": sqlite.SchemaVersion,
				"buildDate":     buildDate,
			})
		},
	}

	dbCmd.AddCommand(dbCreateCmd, dbUpgradeCmd, dbVerifyCmd)
	rootCmd.AddCommand(serveCmd, dbCmd, versionCmd)
	return rootCmd
}

// setup loads .env, binds the running command's flags and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.log = log
	a.metrics = metrics.NewCollector(nil)
	return nil
}

// runServe performs the one-shot startup initialization, then runs the
// probe server and the loopback admin server until signalled.
func (a *app) runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := a.log.Named("serve").With("port", a.cfg.Port, "db", a.cfg.DBPath)
	initializer := bootstrap.New(a.cfg.DBPath, a.log.Named("bootstrap"), a.metrics)

	// Startup initialization failure is not fatal; the probe handlers retry
	// through the same Initializer and report the error.
	if err := initializer.Ensure(ctx); err != nil {
		log.Warn("startup initialization failed, continuing: %v", err)
	}

	probe := health.NewServer(health.Options{
		DBPath:       a.cfg.DBPath,
		Initializer:  initializer,
		ProbeTimeout: a.cfg.ProbeTimeout,
		Logger:       a.log.Named("health"),
		Metrics:      a.metrics,
	})

	publicSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           probe.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	servers := []*http.Server{publicSrv}

	if a.cfg.AdminPort > 0 {
		// Bind admin to 127.0.0.1 only (loopback enforcement).
		// The probe server runs without it if the port is taken.
		adminListener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", a.cfg.AdminPort))
		if err != nil {
			log.Warn("admin listener bind failed, continuing without admin server: %v", err)
		} else {
			adminSrv := &http.Server{
				Handler: admin.Handler(admin.Options{
					Version:       version.String(),
					SchemaVersion: sqlite.SchemaVersion,
					BuildDate:     buildDate,
					DBPath:        a.cfg.DBPath,
					Metrics:       a.metrics,
					Shutdown:      stop,
				}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			servers = append(servers, adminSrv)

			go func() {
				log.Info("admin server listening on 127.0.0.1:%d (JSON-only)", a.cfg.AdminPort)
				if err := adminSrv.Serve(adminListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("admin server error: %v", err)
				}
			}()
		}
	}

	go func() {
		log.Info("probe server listening on 0.0.0.0:%d, database %s", a.cfg.Port, a.cfg.DBPath)
		if err := publicSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("probe server error: %w", err)
		}
	}()

	if a.cfg.ExitAfter > 0 {
		log.Info("exit-after timer set: %s", a.cfg.ExitAfter)
		timer := time.AfterFunc(a.cfg.ExitAfter, stop)
		defer timer.Stop()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		// graceful shutdown
	case serveErr = <-errCh:
		log.Error("%v", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown: %v", err)
		}
	}
	log.Info("shutdown complete")
	return serveErr
}

func (a *app) runDBCreate(cmd *cobra.Command, connInfo bool) error {
	initializer := bootstrap.New(a.cfg.DBPath, a.log.Named("bootstrap"), a.metrics)
	if err := initializer.Ensure(cmd.Context()); err != nil {
		return err
	}
	if connInfo {
		out, err := bootstrap.WriteConnInfo(a.cfg.DBPath)
		if err != nil {
			return err
		}
		a.log.Info("connection information saved to %s", out)
	}
	return nil
}

func (a *app) runDBUpgrade(cmd *cobra.Command, args []string) error {
	initializer := bootstrap.New(a.cfg.DBPath, a.log.Named("bootstrap"), a.metrics)
	return initializer.Upgrade(cmd.Context())
}

// verifyReport is printed by db verify.
type verifyReport struct {
	health.Status
	SchemaVersion    string         `json:"schemaVersion,omitempty"`
	ConnectionString string         `json:"connectionString"`
	Tables           int            `json:"tables,omitempty"`
	AppInfoRecords   int            `json:"appInfoRecords,omitempty"`
	Rows             map[string]int `json:"rows,omitempty"`
}

// runDBVerify probes without initializing and exits non-zero when unhealthy.
func (a *app) runDBVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	probe := health.NewServer(health.Options{
		DBPath:       a.cfg.DBPath,
		ProbeTimeout: a.cfg.ProbeTimeout,
		Logger:       a.log.Named("verify"),
	})
	code, status := probe.Check(ctx)

	report := verifyReport{Status: status, ConnectionString: bootstrap.ConnectionString(a.cfg.DBPath)}
	if code == http.StatusOK {
		s := sqlite.New(a.cfg.DBPath, sqlite.SchemaVersion)
		if err := s.OpenReadOnly(a.cfg.ProbeTimeout); err != nil {
			return err
		}
		defer s.Close()
		schema, err := s.GetSchemaVersion(ctx)
		if err != nil {
			return err
		}
		st, err := s.Stats(ctx)
		if err != nil {
			return err
		}
		report.SchemaVersion = schema
		report.Tables, report.AppInfoRecords = st.Tables, st.AppInfoRecords

		tables, err := s.Tables(ctx)
		if err != nil {
			return err
		}
		report.Rows = make(map[string]int, len(tables))
		for _, table := range tables {
			if report.Rows[table], err = s.CountRows(ctx, table); err != nil {
				return err
			}
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("database at %s is not healthy", a.cfg.DBPath)
	}
	return nil
}
