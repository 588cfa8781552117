package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ossyrian/mintypack/internal/config"
	"github.com/ossyrian/mintypack/internal/ggpk"
	"github.com/ossyrian/mintypack/internal/logging"
	"github.com/ossyrian/mintypack/internal/parser"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:               "mintypack",
	Short:             "Build, inspect and patch GGPK pack files",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Pack a directory tree into a new container",
	Args:  cobra.NoArgs,
	RunE:  pack,
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every directory and file in a container",
	Args:  cobra.NoArgs,
	RunE:  list,
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Write a file's content, or a range of it, to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  cat,
}

var replaceCmd = &cobra.Command{
	Use:   "replace <path> <source>",
	Short: "Replace a file's content with the content of source",
	Args:  cobra.ExactArgs(2),
	RunE:  replace,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every file against its stored hash",
	Args:  cobra.NoArgs,
	RunE:  verify,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	// i/o
	rootCmd.PersistentFlags().StringP("input", "i", "", "path to the container file")
	packCmd.Flags().StringP("source", "s", "", "directory to pack (required)")
	packCmd.Flags().StringP("output", "o", "", "path of the container to create (required)")
	packCmd.MarkFlagRequired("source")
	packCmd.MarkFlagRequired("output")
	catCmd.Flags().Int64("offset", 0, "first content byte to write")
	catCmd.Flags().Int64("length", -1, "number of bytes to write (-1 for the rest of the file)")

	// format settings
	packCmd.Flags().Uint32("format-version", uint32(ggpk.VersionPC), "container format version (4 stores UTF-32 names)")

	// other opts
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-output-dir", "", "directory to write log files (if set, logs are written to both stderr and file)")
	rootCmd.PersistentFlags().Bool("dry-run", false, "report what would be written without writing it")

	viper.BindPFlag("input", rootCmd.PersistentFlags().Lookup("input"))
	viper.BindPFlag("source_dir", packCmd.Flags().Lookup("source"))
	viper.BindPFlag("output", packCmd.Flags().Lookup("output"))
	viper.BindPFlag("offset", catCmd.Flags().Lookup("offset"))
	viper.BindPFlag("length", catCmd.Flags().Lookup("length"))
	viper.BindPFlag("format_version", packCmd.Flags().Lookup("format-version"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.PersistentFlags().Lookup("log-output-dir"))
	viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))

	rootCmd.AddCommand(packCmd, lsCmd, catCmd, replaceCmd, verifyCmd)
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "mintypack"))
		}
		viper.AddConfigPath("/etc/mintypack")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("MINTYPACK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setup decodes the configuration and installs the logger before any command runs
func setup(cmd *cobra.Command, args []string) error {
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogOutputDir); err != nil {
		return fmt.Errorf("could not set up logging: %w", err)
	}
	return nil
}

// openContainer opens and parses the container named by --input.
// Dry runs always open it read-only.
func openContainer(writable bool) (*ggpk.Container, *os.File, error) {
	if cfg.InputFile == "" {
		return nil, nil, fmt.Errorf("--input is required")
	}

	flag := os.O_RDONLY
	if writable && !cfg.DryRun {
		flag = os.O_RDWR
	}
	file, err := os.OpenFile(cfg.InputFile, flag, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open container: %w", err)
	}

	c, err := parser.Open(file, slog.With("file", cfg.InputFile))
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to read %s: %w", cfg.InputFile, err)
	}
	return c, file, nil
}

// pack builds a new container from a directory
func pack(cmd *cobra.Command, args []string) error {
	logger := slog.With("source", cfg.SourceDir)
	version := ggpk.FormatVersion(cfg.FormatVersion)

	var (
		out *os.File
		err error
	)
	if cfg.DryRun {
		out, err = os.CreateTemp("", "mintypack-*.ggpk")
		if err == nil {
			defer os.Remove(out.Name())
		}
	} else {
		out, err = os.OpenFile(cfg.OutputFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	}
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	c, err := ggpk.Build(out, version, os.DirFS(cfg.SourceDir), ggpk.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", cfg.SourceDir, err)
	}

	var files int
	c.Walk(func(n ggpk.Node) error {
		if _, ok := n.(*ggpk.FileRecord); ok {
			files++
		}
		return nil
	})

	if cfg.DryRun {
		logger.Info("dry run, nothing written", "files", files, "encoding", version.NameEncoding())
		return nil
	}
	logger.Info("packed container", "output", cfg.OutputFile, "files", files, "encoding", version.NameEncoding())
	return out.Sync()
}

// list prints one line per node: path, content length, record offset and digest
func list(cmd *cobra.Command, args []string) error {
	c, file, err := openContainer(false)
	if err != nil {
		return err
	}
	defer file.Close()

	w := cmd.OutOrStdout()
	return c.Walk(func(n ggpk.Node) error {
		switch r := n.(type) {
		case *ggpk.DirectoryRecord:
			if r.Parent() == nil {
				return nil
			}
			_, err := fmt.Fprintf(w, "%s/\t-\t%d\t%s\n", r.Path(), r.Offset(), r.Hash())
			return err
		case *ggpk.FileRecord:
			_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.Path(), r.ContentLength(), r.Offset(), r.Digest())
			return err
		}
		return nil
	})
}

// cat writes a file's content to stdout
func cat(cmd *cobra.Command, args []string) error {
	c, file, err := openContainer(false)
	if err != nil {
		return err
	}
	defer file.Close()

	f, err := c.File(args[0])
	if err != nil {
		return err
	}

	length := cfg.Length
	if length < 0 {
		length = int64(f.ContentLength()) - cfg.Offset
	}
	content, err := f.ReadRange(cfg.Offset, length)
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(content)
	return err
}

// replace swaps a file's content for the content of a local file
func replace(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	c, file, err := openContainer(true)
	if err != nil {
		return err
	}
	defer file.Close()

	f, err := c.File(args[0])
	if err != nil {
		return err
	}
	logger := slog.With("path", f.Path())

	inPlace := int64(len(content)) == int64(f.ContentLength())
	if cfg.DryRun {
		logger.Info("dry run, nothing written",
			"old_size", f.ContentLength(),
			"new_size", len(content),
			"in_place", inPlace,
			"digest", ggpk.ContentHash(content),
		)
		return nil
	}

	oldOffset := f.Offset()
	if err := f.Write(content); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.Path(), err)
	}

	logger.Info("replaced content",
		"size", f.ContentLength(),
		"old_offset", oldOffset,
		"offset", f.Offset(),
		"in_place", inPlace,
		"digest", f.Digest(),
	)
	return file.Sync()
}

// verify checks every stored hash
func verify(cmd *cobra.Command, args []string) error {
	c, file, err := openContainer(false)
	if err != nil {
		return err
	}
	defer file.Close()

	return c.Verify(cmd.Context())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
