package config

// configSchema constrains CUE configuration files. YAML files are checked by
// the struct tags on Config only.
const configSchema = `
#Plugin: {
	path:      string & !=""
	namespace: string & =~"^[a-z0-9_]+(/[a-z0-9_]+)*$"
}

#Config: {
	plugins?: [...#Plugin]
	setup_queries?: [...string & !=""]
	trace?:        bool
	catch_errors?: bool
	watch?:        bool
	engine_root?:  string & !=""

	telemetry?: {
		service_name?:    string
		service_version?: string
		environment?:     string
		logging?: {
			level?:  "trace" | "debug" | "info" | "warn" | "error" | "fatal" | "disabled"
			format?: "console" | "json"
			...
		}
		tracing?: {
			enabled?:  bool
			exporter?: "otlp" | "stdout" | "none"
			...
		}
		metrics?: {
			enabled?: bool
			...
		}
		...
	}
}
`
