package config

const (
	defaultLogDir        = "~/.local/share/dropsync/logs"
	defaultCatalogPath   = "~/.local/share/dropsync/catalog.db"
	defaultCatalogSchema = "lists"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"

	// DefaultDateFormat is the layout for the <now> and <mtime> built-ins
	// when a sync spec does not configure one.
	DefaultDateFormat = "2006-01-02 15:04:05"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Catalog: Catalog{
			Path:   defaultCatalogPath,
			Schema: defaultCatalogSchema,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
