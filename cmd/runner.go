package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmonymaker/internal/repositories"
	"github.com/desertthunder/harmonymaker/internal/services"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"github.com/desertthunder/harmonymaker/internal/tasks"
	"github.com/desertthunder/harmonymaker/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	palette    *ui.Palette
	now        func() time.Time

	// overridable in tests
	openDB     func(cfg shared.DatabaseConfig) (*sql.DB, error)
	newStorage func(cfg shared.StorageConfig, logger *log.Logger) (bucketStore, error)
}

// bucketStore is object storage that can also create its buckets. Implemented by [services.StorageService].
type bucketStore interface {
	services.ObjectStore
	Setup(ctx context.Context) ([]string, error)
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Palette    *ui.Palette
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Palette == nil {
		opts.Palette = ui.Default()
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		palette:    opts.Palette,
		now:        time.Now,
		openDB:     openDatabase,
		newStorage: newStorage,
	}
}

// Command returns the root harmony command.
func (r *Runner) Command() *cli.Command {
	return &cli.Command{
		Name:    "harmony",
		Usage:   "Harmonize audio clips through the ML service and manage saved pairs",
		Version: "0.1.0",
		Writer:  r.output,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.configure,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand, migrateCommand, usersCommand, audioCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// configure reloads the configuration when --config names another file and applies --verbose.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	path := cmd.String("config")
	if path == "" || path == r.configPath {
		return ctx, nil
	}
	if _, err := os.Stat(path); err != nil && !cmd.IsSet("config") {
		return ctx, nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return ctx, err
	}
	config.ApplyEnv(os.LookupEnv)

	r.config = config
	r.configPath = path
	r.logger.Debug("loaded config", "path", path)
	return ctx, nil
}

func openDatabase(cfg shared.DatabaseConfig) (*sql.DB, error) {
	db, err := shared.NewDatabase(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)
	}
	return db, nil
}

func newStorage(cfg shared.StorageConfig, logger *log.Logger) (bucketStore, error) {
	client, err := services.NewS3Client(cfg)
	if err != nil {
		return nil, err
	}
	return services.NewStorageService(client, cfg, logger), nil
}

// database opens the configured database and applies pending migrations.
func (r *Runner) database() (*sql.DB, error) {
	db, err := r.openDB(r.config.Database)
	if err != nil {
		return nil, err
	}

	applied, err := shared.RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if len(applied) > 0 {
		r.logger.Info("applied migrations", "versions", applied)
	}
	return db, nil
}

func (r *Runner) transformer() *services.TransformService {
	cfg := r.config.Transform
	opts := []services.TransformOption{services.WithTransformLogger(r.logger)}
	if cfg.Attempts > 0 {
		opts = append(opts, services.WithAttempts(cfg.Attempts))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, services.WithTimeout(cfg.Timeout()))
	}
	return services.NewTransformService(cfg.URL, r.httpClient, opts...)
}

// pipeline wires storage, the ML service and the audio repository on db.
func (r *Runner) pipeline(db *sql.DB, store services.ObjectStore, transformer services.Transformer) *tasks.Pipeline {
	return tasks.NewPipeline(tasks.PipelineOpts{
		Store:       store,
		Transformer: transformer,
		Pairs:       repositories.NewAudioRepository(db),
		Buckets: tasks.Buckets{
			Original:    r.config.Storage.OriginalBucket,
			Transformed: r.config.Storage.TransformedBucket,
		},
		MaxSize: r.config.Storage.MaxFileSize,
		Logger:  r.logger,
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", r.palette.Title(title))
	r.writePlain("═══════════════════════════════════════\n")
}
