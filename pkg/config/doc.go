// Package config loads interpreter configuration from YAML or CUE files.
//
// CUE files are unified with the built-in #Config schema before they are
// decoded, so constraint violations are reported with file positions. Both
// formats decode onto Default, then go through validator struct tags:
//
//	plugins:
//	  - path: ./rules/gis
//	    namespace: gis
//	setup_queries:
//	  - "set_prolog_flag(double_quotes, codes)"
//	trace: false
//	catch_errors: true
//	telemetry:
//	  logging:
//	    level: debug
//
// The path is taken from the --config flag or, failing that, the
// GEOLOG_CONFIG environment variable.
package config
