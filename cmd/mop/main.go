// mop CLI - loads classes from a project and dispatches against them
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/mop/manifest"
	"github.com/chazu/mop/vm"
)

var log = commonlog.GetLogger("mop.cli")

var (
	rootCmd = &cobra.Command{
		Use:   "mop",
		Short: "Load the classes of a mop project and dispatch against them",
		Long: `mop finds mop.toml upward from the project directory, compiles class
descriptors from its source roots on demand and runs dispatches against them.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	classesCmd = &cobra.Command{
		Use:   "classes",
		Short: "List the classes loaded at startup",
		Args:  cobra.NoArgs,
		RunE:  runClasses,
	}
	inspectCmd = &cobra.Command{
		Use:   "inspect [class]",
		Short: "Print the properties and methods of a class",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	invokeCmd = &cobra.Command{
		Use:   "invoke [Class.method] [args...]",
		Short: "Invoke a method; static first, otherwise on a new instance",
		Long: `Invoke calls a method of a class. Arguments are parsed as integers,
decimals, booleans or null when they look like one and passed as strings
otherwise.`,
		Example: `  mop invoke zoo.Dog.speak
  mop invoke util.Text.repeat ab 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: runInvoke,
	}

	projectDir  string
	verbosity   int
	logFile     string
	metricsAddr string
	profileTop  int
	warm        bool

	rt         *runtime
	metricsSrv *http.Server
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&projectDir, "dir", "C", ".", "Project directory (searched upward for mop.toml)")
	flags.IntVarP(&verbosity, "verbose", "v", -1, "Log verbosity (overrides the manifest)")
	flags.StringVar(&logFile, "log", "", "Write logs to this file instead of stderr")
	flags.StringVar(&metricsAddr, "metrics", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.IntVar(&profileTop, "profile", 0, "Print the N most dispatched selectors on exit")
	flags.BoolVar(&warm, "warm", true, "Recompile every stored source before running")

	rootCmd.AddCommand(classesCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(invokeCmd)
	// Everything after the target belongs to the method, "-1" included.
	invokeCmd.Flags().SetInterspersed(false)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	shutdown()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// setup loads the manifest and builds the runtime shared by every command.
func setup(cmd *cobra.Command, _ []string) error {
	m, err := loadManifest(projectDir)
	if err != nil {
		return err
	}

	v := m.Runtime.LogVerbosity
	if verbosity >= 0 {
		v = verbosity
	}
	var path *string
	if logFile != "" {
		path = &logFile
	}
	commonlog.Configure(v, path)

	if rt, err = newRuntime(cmd.Context(), m, warm); err != nil {
		return err
	}
	if metricsAddr != "" {
		metricsSrv = serveMetrics(metricsAddr)
	}
	return nil
}

func shutdown() {
	if rt != nil {
		if profileTop > 0 {
			printProfile(os.Stdout, rt.registry.Profiler(), profileTop)
		}
		if err := rt.Close(); err != nil {
			log.Warningf("close: %s", err)
		}
	}
	if metricsSrv != nil {
		metricsSrv.Close()
	}
}

// loadManifest finds mop.toml, falling back to the default layout, and
// applies MOP_* overrides from the environment and the project's .env.
func loadManifest(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if m, err = manifest.Default(dir); err != nil {
			return nil, err
		}
	}
	// godotenv never overrides variables already set.
	if err := godotenv.Load(filepath.Join(m.Dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	if err := m.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return m, nil
}

func runClasses(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d classes loaded, generation %s\n", rt.loader.Len(), rt.loader.Generation())
	for _, name := range rt.loader.Names() {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	return rt.Inspect(cmd.Context(), cmd.OutOrStdout(), args[0])
}

func runInvoke(cmd *cobra.Command, args []string) error {
	result, err := rt.Invoke(cmd.Context(), args[0], parseArgs(args[1:]))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatValue(result))
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %s", err)
		}
	}()
	log.Infof("serving metrics on %s", addr)
	return srv
}

// parseArgs turns command line words into runtime values: integers,
// decimals, booleans and null are recognized; anything else is a string.
func parseArgs(words []string) []any {
	args := make([]any, len(words))
	for i, w := range words {
		args[i] = parseValue(w)
	}
	return args
}

func parseValue(w string) any {
	switch w {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(w); err == nil {
		return n
	}
	if n, err := strconv.ParseInt(w, 10, 64); err == nil {
		return n
	}
	if strings.ContainsAny(w, ".eE") {
		if f, err := strconv.ParseFloat(w, 64); err == nil {
			return f
		}
	}
	return w
}

// splitTarget splits "pkg.Class.method" into class and method names.
func splitTarget(target string) (string, string, error) {
	i := strings.LastIndex(target, ".")
	if i <= 0 || i == len(target)-1 {
		return "", "", fmt.Errorf("invalid target %q (expected Class.method)", target)
	}
	return target[:i], target[i+1:], nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case *vm.Object:
		return fmt.Sprintf("<%s>", x.Class())
	}
	return fmt.Sprint(v)
}
