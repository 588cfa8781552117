package config

// Config holds app configuration
type Config struct {
	// InputFile is the container to read or modify
	InputFile string `mapstructure:"input"`

	// OutputFile is where pack writes the new container
	OutputFile string `mapstructure:"output"`

	// SourceDir is the directory tree pack stores
	SourceDir string `mapstructure:"source_dir"`

	// FormatVersion selects the layout of a new container.
	// Version 4 stores names as UTF-32, every other version as UTF-16.
	FormatVersion uint32 `mapstructure:"format_version"`

	// Offset and Length select a byte range for cat; a negative Length reads to the end
	Offset int64 `mapstructure:"offset"`
	Length int64 `mapstructure:"length"`

	DryRun       bool   `mapstructure:"dry_run"`
	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}
