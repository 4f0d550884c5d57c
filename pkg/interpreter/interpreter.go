// Package interpreter owns the logic engine of a geolog process: it boots
// the engine with every plugin's predicates and program files, and exposes
// consult, query, reset and add-plugin to the embedding application.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/geolog/geolog/pkg/config"
	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/predicate"
	"github.com/geolog/geolog/pkg/refs"
	"github.com/geolog/geolog/pkg/telemetry"
)

// ProgramExt is the extension of program files loaded from plugin paths.
const ProgramExt = ".pl"

// PluginsNamespace is the root namespace of the bundled plugins.
const PluginsNamespace = "geolog_plugins"

// BuiltinPlugins are always loaded before configured plugins. They carry no
// program files.
var BuiltinPlugins = []predicate.Plugin{
	{Namespace: PluginsNamespace},
	{Namespace: predicate.CoreNamespace},
}

// Options configures an Interpreter.
type Options struct {
	Config    *config.Config
	Telemetry *telemetry.Telemetry

	// Engine builds the logic engine. Required.
	Engine engine.Factory

	// Refs is the reference table. A new one is created when nil.
	Refs *refs.Manager
}

// Interpreter drives one engine instance.
type Interpreter struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	log      *telemetry.Logger
	logger   zerolog.Logger
	eng      engine.Engine
	refs     *refs.Manager
	env      *predicate.Env
	registry *predicate.Registry

	// mu serializes loading and queries so per-query debug tracing applies
	// to that query only.
	mu sync.Mutex

	watchMu sync.Mutex
	watcher *watcher
}

// New creates the engine and boots it: discover and register predicates for
// the built-in and configured plugins, consult their program files, then run
// the setup queries.
func New(ctx context.Context, opts Options) (*Interpreter, error) {
	if opts.Engine == nil {
		return nil, engine.NewConfigError("no engine factory", nil)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Nop()
	}
	r := opts.Refs
	if r == nil {
		r = refs.NewManager()
	}

	log := tel.Logger.NewComponentLogger("interpreter")
	logger := log.Zerolog()
	env := predicate.NewEnv(r, logger, tel.Metrics)
	env.SetTrace(cfg.Trace)

	eng, err := opts.Engine(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	i := &Interpreter{
		cfg:      cfg,
		tel:      tel,
		log:      log,
		logger:   logger,
		eng:      eng,
		refs:     r,
		env:      env,
		registry: predicate.NewRegistry(env, tel.Logger.NewComponentLogger("registry").Zerolog()),
	}
	if err := i.boot(ctx); err != nil {
		_ = eng.Close()
		return nil, err
	}
	if cfg.Watch {
		// The watcher outlives the call that boots the interpreter; Close
		// stops it.
		if err := i.Watch(context.WithoutCancel(ctx)); err != nil {
			i.logger.Warn().Err(err).Msg("file watching disabled")
		}
	}
	return i, nil
}

func (i *Interpreter) boot(ctx context.Context) error {
	plugins := slices.Clone(BuiltinPlugins)
	for _, p := range i.cfg.Plugins {
		plugins = append(plugins, predicate.Plugin{Path: p.Path, Namespace: p.Namespace})
	}

	ctx, span := i.tel.Tracer.StartBootSpan(ctx, len(plugins))
	defer span.End()

	i.mu.Lock()
	defer i.mu.Unlock()

	preds, err := i.registry.Discover(plugins)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if err := i.registry.Install(ctx, i.eng, preds); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if err := i.loadPrograms(ctx); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	for _, q := range i.cfg.SetupQueries {
		if _, err := i.eng.Query(ctx, q); err != nil {
			telemetry.AddEvent(span, "setup_query.failed", telemetry.AttrQueryText.String(q))
			i.log.WithQuery(q).WithError(err).Warn("setup query failed")
		}
	}

	i.logger.Info().
		Int("plugins", len(plugins)).
		Int("predicates", len(preds)).
		Msg("interpreter ready")
	telemetry.RecordSuccess(span)
	return nil
}

// loadPrograms consults every program file under every plugin path.
// Failures are logged so one broken file does not stop the rest.
func (i *Interpreter) loadPrograms(ctx context.Context) error {
	for _, p := range i.registry.Plugins() {
		if p.Path == "" {
			continue
		}
		files, err := programFiles(p.Path)
		if err != nil {
			return fmt.Errorf("scanning plugin %s: %w", p.Namespace, err)
		}
		log := i.log.WithPlugin(p.Path, p.Namespace)
		for _, f := range files {
			if err := i.consult(ctx, f); err != nil {
				log.WithField("file", f).WithError(err).Error("failed to consult program file")
			}
		}
	}
	return nil
}

// programFiles lists the program files under root in lexical order. root
// may itself be a program file.
func programFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if isProgram(root) {
			return []string{root}, nil
		}
		return nil, nil
	}
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isProgram(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func isProgram(path string) bool {
	return strings.HasSuffix(path, ProgramExt)
}

// Consult loads one program file. The path is passed to the engine
// literally. Errors are logged and dropped unless error catching is off.
func (i *Interpreter) Consult(ctx context.Context, path string, opts ...CallOption) error {
	o := i.callOptions(opts)

	i.mu.Lock()
	err := i.consult(ctx, path)
	i.mu.Unlock()

	if err != nil && o.catchErrors {
		i.log.WithField("path", path).WithError(err).Error("consult failed")
		return nil
	}
	return err
}

func (i *Interpreter) consult(ctx context.Context, path string) error {
	op := telemetry.StartOperation(i.instrument(ctx), "interpreter.consult",
		telemetry.AttrConsultPath.String(path))

	err := i.eng.Consult(op.Ctx, path)
	op.End(err)
	if err != nil {
		i.tel.Metrics.RecordConsult("error")
		i.recordError(err)
		return err
	}
	i.tel.Metrics.RecordConsult("ok")
	op.Logger.WithField("path", path).Debug("consulted")
	return nil
}

// Query runs text to exhaustion. With error catching on, an engine error is
// logged and reported as a False result.
func (i *Interpreter) Query(ctx context.Context, text string, opts ...CallOption) (QueryResult, error) {
	o := i.callOptions(opts)

	op := telemetry.StartOperation(i.instrument(ctx), "interpreter.query",
		telemetry.AttrQueryText.String(text))
	logger := op.Logger.WithQuery(text)

	i.mu.Lock()
	prev := i.env.Tracing()
	if o.debug {
		i.env.SetTrace(true)
	}
	solutions, err := i.eng.Query(op.Ctx, text)
	if o.debug {
		i.env.SetTrace(prev)
	}
	i.mu.Unlock()

	i.tel.Metrics.SetHandles(i.refs.Len())
	if err != nil {
		i.tel.Metrics.RecordQuery(telemetry.OutcomeError, op.Timer.Duration())
		i.recordError(err)
		op.End(err)
		if o.catchErrors {
			logger.WithError(err).Error("query failed")
			return QueryResult{Outcome: False}, nil
		}
		return QueryResult{}, err
	}

	res := newQueryResult(solutions)
	i.tel.Metrics.RecordQuery(res.Outcome.String(), op.Timer.Duration())
	if op.Span != nil {
		telemetry.SetAttributes(op.Span,
			telemetry.AttrQueryResult.String(res.Outcome.String()),
			telemetry.AttrSolutions.Int(len(res.Solutions)),
		)
	}
	op.End(nil)
	if o.debug {
		logger.WithFields(map[string]any{
			"outcome":     res.Outcome.String(),
			"solutions":   len(res.Solutions),
			"duration_ms": op.Timer.Duration().Milliseconds(),
		}).Info("query finished")
	}
	return res, nil
}

// instrument attaches the telemetry and the interpreter's component logger
// to ctx.
func (i *Interpreter) instrument(ctx context.Context) context.Context {
	return i.log.WithContext(i.tel.WithContext(ctx))
}

func (i *Interpreter) recordError(err error) {
	var ee *engine.Error
	if errors.As(err, &ee) {
		i.tel.Metrics.RecordError(string(ee.Class), ee.Code)
		return
	}
	i.tel.Metrics.RecordError(string(engine.ClassOf(err)), "")
}

// Reset clears the reference table. Registered predicates and loaded
// programs are kept.
func (i *Interpreter) Reset() {
	i.refs.Reset()
	i.tel.Metrics.SetHandles(0)
	i.logger.Debug().Msg("reference table reset")
}

// SetTrace switches predicate call tracing on or off.
func (i *Interpreter) SetTrace(on bool) {
	i.env.SetTrace(on)
}

// Tracing reports whether predicate call tracing is on.
func (i *Interpreter) Tracing() bool {
	return i.env.Tracing()
}

// AddPlugin extends the running interpreter with another plugin. Every
// plugin is rediscovered and every program file consulted again.
func (i *Interpreter) AddPlugin(ctx context.Context, path, namespace string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	preds, err := i.registry.AddPlugin(predicate.Plugin{Path: path, Namespace: namespace})
	if err != nil {
		return err
	}
	if err := i.registry.Install(ctx, i.eng, preds); err != nil {
		return err
	}
	if err := i.loadPrograms(ctx); err != nil {
		return err
	}
	i.log.WithPlugin(path, namespace).Info("plugin added")

	i.watchMu.Lock()
	w := i.watcher
	i.watchMu.Unlock()
	if w != nil && path != "" {
		w.add(path)
	}
	return nil
}

// Predicates returns the indicators of every registered predicate.
func (i *Interpreter) Predicates() []string {
	return predicate.Indicators(i.registry.Predicates())
}

// Plugins returns the plugins in load order.
func (i *Interpreter) Plugins() []predicate.Plugin {
	return i.registry.Plugins()
}

// References returns the reference table.
func (i *Interpreter) References() *refs.Manager {
	return i.refs
}

// Close stops watching and releases the engine.
func (i *Interpreter) Close() error {
	i.watchMu.Lock()
	w := i.watcher
	i.watcher = nil
	i.watchMu.Unlock()
	if w != nil {
		w.stop()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.eng.Close()
}
