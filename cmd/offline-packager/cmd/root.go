package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/offline-packager/internal/config"
	"github.com/oshokin/offline-packager/internal/logger"
	"github.com/oshokin/offline-packager/internal/service/packager"
	"github.com/oshokin/offline-packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// overrides collects settings given as flags.
	overrides config.Config
	// metricsFile is the optional Prometheus textfile destination.
	metricsFile string
	// verify re-reads the archive after assembly.
	verify bool
	// sourceDateEpoch stamps archive entries with a fixed Unix time.
	sourceDateEpoch int64

	// rootCmd represents the base command for packaging build outputs.
	rootCmd = &cobra.Command{
		Use:   "offline-packager [build-dir]",
		Short: "Package build outputs into an offline zip with a URL manifest",
		Long: `Packs the outputs of a finished build into a zip archive for offline use.

Every output whose file type passes the include and exclude filters is copied
under a folder named after the package, together with a manifest that maps
each file to its remote URL (public path + relative path). The archive is
written as <zip-name>.zip into the output directory, the build directory by default.

Settings are read from the configuration file; flags override them.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &packager.Options{
				ConfigPath:  configPath,
				BuildDir:    args[0],
				Overrides:   &overrides,
				MetricsFile: metricsFile,
				Verify:      verify,
				Out:         cmd.OutOrStdout(),
			}

			if sourceDateEpoch > 0 {
				options.ModTime = time.Unix(sourceDateEpoch, 0).UTC()
			}

			return packager.Run(ctx, options)
		},
	}
)

// Execute runs the offline-packager CLI and exits with non-zero status on error.
func Execute() {
	rootCmd.AddCommand(version.Command())

	err := rootCmd.Execute()

	logger.Sync()

	if err != nil {
		logger.Logger().Error(err)
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&configPath, "config", "c", "",
		"path to configuration file (default "+config.DefaultConfigFilename+" if present)")
	flags.StringVar(&overrides.PackageName, "package-name", "", "package name, also the folder inside the archive")
	flags.StringVar(&overrides.PublicPath, "public-path", "", "prefix of every remote URL")
	flags.StringVar(&overrides.MapFileName, "map-file-name", "", "manifest file name (default map.json)")
	flags.StringVar(&overrides.ZipName, "zip-name", "", "archive name without .zip (default package)")
	flags.StringSliceVar(&overrides.IncludeFileTypes, "include", nil, "file types to package, all when empty")
	flags.StringSliceVar(&overrides.ExcludeFileTypes, "exclude", nil, "file types never packaged")
	flags.StringVar(&overrides.Format, "format", "", "manifest format: json or yaml")
	flags.StringVarP(&overrides.OutputDir, "out", "o", "", "output directory (default build directory)")
	flags.StringSliceVar(&overrides.Ignore, "ignore", nil, "glob patterns of build outputs to skip")
	flags.BoolVar(&overrides.Overwrite, "overwrite", false, "replace an existing output named like the archive")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	flags.BoolVar(&verify, "verify", false, "check the archive against its manifest before writing")
	flags.Int64Var(&sourceDateEpoch, "source-date-epoch", 0, "Unix time stamped on archive entries")
}
