package interpreter

// Bundled plugins register their predicates under PluginsNamespace.
import (
	_ "github.com/geolog/geolog/pkg/plugins/sqlite"
	_ "github.com/geolog/geolog/pkg/plugins/starlark"
)
