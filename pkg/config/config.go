package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/telemetry"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "GEOLOG_CONFIG"

// Config is the interpreter configuration.
type Config struct {
	// Plugins are loaded after the built-in plugins, in order.
	Plugins []Plugin `yaml:"plugins" json:"plugins" validate:"dive"`

	// SetupQueries run once after boot. A failing query is logged and skipped.
	SetupQueries []string `yaml:"setup_queries" json:"setup_queries" validate:"dive,required"`

	// Trace logs every foreign predicate call at info level.
	Trace bool `yaml:"trace" json:"trace"`

	// CatchErrors is the default for Consult and Query: log failures
	// instead of returning them.
	CatchErrors bool `yaml:"catch_errors" json:"catch_errors"`

	// Watch re-consults program files under plugin paths when they change.
	Watch bool `yaml:"watch" json:"watch"`

	// EngineRoot is the host directory the logic engine can read from.
	EngineRoot string `yaml:"engine_root" json:"engine_root" validate:"required"`

	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
}

// Plugin is a search path plus the namespace whose predicates it contributes.
type Plugin struct {
	Path      string `yaml:"path" json:"path" validate:"required"`
	Namespace string `yaml:"namespace" json:"namespace" validate:"required,namespace"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		CatchErrors: true,
		EngineRoot:  "/",
		Telemetry:   *telemetry.DefaultConfig(),
	}
}

// ParsePlugin parses the "path=namespace" form used on the command line.
func ParsePlugin(s string) (Plugin, error) {
	path, ns, ok := strings.Cut(s, "=")
	if !ok || path == "" || ns == "" {
		return Plugin{}, engine.NewConfigError(fmt.Sprintf("plugin %q is not of the form path=namespace", s), nil)
	}
	return Plugin{Path: path, Namespace: ns}, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("namespace", func(fl validator.FieldLevel) bool {
		return validNamespace(fl.Field().String())
	})
	return v
}

// validNamespace accepts slash-separated segments of lower-case letters,
// digits and underscores.
func validNamespace(ns string) bool {
	if ns == "" {
		return false
	}
	for _, seg := range strings.Split(ns, "/") {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
				return false
			}
		}
	}
	return true
}

// Validate checks struct constraints and the telemetry section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return engine.NewConfigError("invalid configuration", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return engine.NewConfigError("invalid telemetry configuration", err)
	}
	return nil
}
