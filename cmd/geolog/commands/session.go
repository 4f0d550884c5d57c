package commands

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/geolog/geolog/pkg/config"
	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/engine/prolog"
	"github.com/geolog/geolog/pkg/interpreter"
	"github.com/geolog/geolog/pkg/telemetry"
)

// newEngine builds the engine factory for a session. Tests swap it for a
// fake.
var newEngine = func(cfg *config.Config, logger zerolog.Logger) engine.Factory {
	return prolog.Factory(prolog.Options{Root: cfg.EngineRoot, Logger: logger})
}

// session owns the telemetry, metrics endpoint and interpreter of one
// command invocation.
type session struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	provider *interpreter.Provider
	metrics  *http.Server
}

// loadConfig resolves the config file and applies the global flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}

	for _, p := range pluginFlags {
		plugin, err := config.ParsePlugin(p)
		if err != nil {
			return nil, err
		}
		cfg.Plugins = append(cfg.Plugins, plugin)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Telemetry.Logging.Level = level
	}
	if trace {
		cfg.Trace = true
		cfg.Telemetry.Logging.Level = "debug"
	}
	if metricsAddr != "" {
		cfg.Telemetry.Metrics.Enabled = true
		cfg.Telemetry.Metrics.ListenAddress = metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Trace {
		// --trace also surfaces the debug logs around each call.
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	srv, err := tel.StartMetricsServer()
	if err != nil {
		return nil, err
	}
	if srv != nil {
		log.Info().Str("addr", cfg.Telemetry.Metrics.ListenAddress).Msg("Serving metrics")
	}

	logger := tel.Logger.NewComponentLogger("engine").Zerolog()
	return &session{
		cfg: cfg,
		tel: tel,
		provider: interpreter.NewProvider(interpreter.Options{
			Config:    cfg,
			Telemetry: tel,
			Engine:    newEngine(cfg, logger),
		}),
		metrics: srv,
	}, nil
}

// interpreter boots the interpreter on first use.
func (s *session) interpreter(ctx context.Context) (*interpreter.Interpreter, error) {
	return s.provider.Get(ctx)
}

func (s *session) Close(ctx context.Context) error {
	var errs []error
	errs = append(errs, s.provider.Close())
	if s.metrics != nil {
		errs = append(errs, s.metrics.Shutdown(ctx))
	}
	errs = append(errs, s.tel.Shutdown(ctx))
	return errors.Join(errs...)
}

// withInterpreter opens a session, hands its interpreter to fn and closes
// everything afterwards.
func withInterpreter(ctx context.Context, fn func(*interpreter.Interpreter) error) (err error) {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()

	i, err := s.interpreter(ctx)
	if err != nil {
		return err
	}
	return fn(i)
}
