package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/frida/frida-compile/internal/diag"
	"github.com/frida/frida-compile/internal/pathutil"
	"github.com/frida/frida-compile/internal/syskit"
	"github.com/frida/frida-compile/pkg/compiler"
)

var version = "dev"

var (
	outputPath   string
	watchMode    bool
	noSourceMaps bool
	compress     bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:     "frida-compile <entrypoint>",
	Short:   "Compile a script and its dependencies into a loadable bundle",
	Args:    cobra.ExactArgs(1),
	Version: version,
	RunE:    run,

	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the bundle to this file (required)")
	rootCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "watch for changes and rebundle")
	rootCmd.Flags().BoolVarP(&noSourceMaps, "no-source-maps", "S", false, "omit source maps")
	rootCmd.Flags().BoolVarP(&compress, "compress", "c", false, "minify the generated JavaScript")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.MarkFlagRequired("output")

	if err := rootCmd.Execute(); err != nil {
		if err != errAlreadyReported {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// errAlreadyReported marks failures whose details already went to
// stderr as diagnostics.
var errAlreadyReported = fmt.Errorf("compilation failed")

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{
		Out:     os.Stderr,
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func printDiagnostics(msgs []diag.Msg) {
	if len(msgs) > 0 {
		fmt.Fprintln(os.Stderr, diag.Render(msgs))
	}
}

func reportFailure(log zerolog.Logger, err error) {
	if names, ok := compiler.IsUnresolvable(err); ok {
		for _, name := range names {
			log.Error().Str("name", name).Msg("unable to resolve")
		}
		return
	}
	if paths, ok := compiler.IsCommonJS(err); ok {
		for _, path := range paths {
			log.Error().Str("path", path).Msg("CommonJS module is not supported")
		}
		return
	}
	log.Error().Err(err).Msg("bundling failed")
}

func run(cmd *cobra.Command, args []string) error {
	log := newLogger()

	opts := compiler.Options{
		EntryPoint: args[0],
		SourceMaps: !noSourceMaps,
		Minify:     compress,
	}

	if !watchMode {
		result, err := compiler.Build(opts)
		printDiagnostics(result.Diagnostics)
		if err != nil {
			reportFailure(log, err)
			return errAlreadyReported
		}
		return writeBundle(result.Bundle)
	}

	sys := syskit.NewReal()
	opts.System = sys
	session, err := compiler.Watch(opts, compiler.Hooks{
		CompilationStarting: func() {
			log.Info().Msg("compiling...")
		},
		Diagnostics: printDiagnostics,
		BundleUpdated: func(bundle []byte) {
			if err := sys.WriteFile(pathutil.ToPosix(outputPath), string(bundle)); err != nil {
				log.Error().Err(err).Msg("cannot write bundle")
				return
			}
			log.Info().Str("output", outputPath).Msg("bundle written")
		},
	}, log)
	if err != nil {
		return err
	}
	defer session.Close()

	log.Info().Msg("watching for changes...")
	select {}
}

func writeBundle(bundle []byte) error {
	return os.WriteFile(outputPath, bundle, 0o644)
}
