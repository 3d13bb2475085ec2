// Command pluto loads an ipsec.conf-style configuration file, builds the
// in-memory state registry the IKE event loop would run against, and
// serves a Prometheus metrics endpoint over the connection/state
// occupancy spec.md §4.4 describes — the daemon entry point the
// library packages in this module are assembled behind, in the
// teacher's cmd/<daemon> layout convention.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/libreswan/pluto/config"
	"github.com/libreswan/pluto/internal/confscan"
	"github.com/libreswan/pluto/internal/metrics"
	"github.com/libreswan/pluto/pkg/xfrm"
	"github.com/libreswan/pluto/state"
)

// forceQuitCount is how many SIGINT/SIGTERM signals the daemon tolerates
// before abandoning a graceful shutdown and exiting immediately.
const forceQuitCount = 3

type options struct {
	configFile     string
	strictSubnets  bool
	metricsListen  string
	enableKernelSA bool
}

func main() {
	opts := &options{}
	root := &cobra.Command{
		Use:           "pluto",
		Short:         "Load ipsec.conf and run the IKE state registry core",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := root.Flags()
	// ipsec.conf's own keyword table accepts both "virtual-private" and
	// "virtual_private" spellings (see config.Keywords); extend that
	// dash/underscore tolerance to this binary's own flag names too.
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	flags.StringVar(&opts.configFile, "config", "/etc/ipsec.conf", "path to the ipsec.conf-style configuration file")
	flags.BoolVar(&opts.strictSubnets, "strict-subnets", false, "reject subnets with host-part bits set instead of clearing them")
	flags.StringVar(&opts.metricsListen, "metrics-listen", ":9587", "address to serve Prometheus metrics on")
	flags.BoolVar(&opts.enableKernelSA, "enable-kernel-xfrm", false, "program negotiated SAs into the kernel XFRM stack via netlink")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pluto:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	logger := log.G(ctx)

	parsed, err := loadConfig(ctx, opts)
	if err != nil {
		metrics.ConfigLoaded(err)
		return fmt.Errorf("pluto: loading %s: %w", opts.configFile, err)
	}
	metrics.ConfigLoaded(nil)
	logger.Infof("pluto: loaded %d connection(s) from %s", len(parsed.Connections), opts.configFile)

	registry := state.NewRegistry()
	metrics.ObserveRegistry(registry.Stat())

	if opts.enableKernelSA {
		// Constructing the adapter only proves it wires up; no SA
		// negotiation happens in this core, so nothing calls AddSA
		// yet (spec.md §1 keeps packet I/O and the wire codec out of
		// scope).
		_ = xfrm.NewNetlinkKernelSA(nil)
		logger.Info("pluto: kernel XFRM adapter enabled")
	}

	srv := &http.Server{Addr: opts.metricsListen, Handler: metricsMux()}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("pluto: serving metrics on %s", opts.metricsListen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return trapSignals(gctx, logger, func() {
			logger.Info("pluto: shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
			cancel()
		})
	})

	return g.Wait()
}

// trapSignals blocks until ctx is done or a SIGINT/SIGTERM arrives, at
// which point it runs cleanup and returns so the errgroup can tear the
// rest of the daemon down. A SIGINT/SIGTERM received forceQuitCount
// times forcibly exits the process with 128+signal, skipping any
// in-progress state teardown.
func trapSignals(ctx context.Context, logger interface {
	Info(args ...interface{})
}, cleanup func()) error {
	c := make(chan os.Signal, forceQuitCount)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	var interruptCount int
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-c:
			logger.Info(fmt.Sprintf("pluto: received signal %v", sig))
			interruptCount++
			if interruptCount == 1 {
				go cleanup()
				continue
			}
			if interruptCount < forceQuitCount {
				continue
			}
			logger.Info("pluto: forcing shutdown without cleanup; 3 interrupts received")
			os.Exit(128 + int(sig.(syscall.Signal)))
		}
	}
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// loadConfig reads and assembles opts.configFile using the minimal
// internal/confscan tokenizer standing in for the out-of-scope
// lexer/grammar (spec.md §1).
func loadConfig(ctx context.Context, opts *options) (*config.ParsedConfig, error) {
	src, err := os.ReadFile(opts.configFile)
	if err != nil {
		return nil, err
	}
	policy := config.SubnetPolicyZero
	if opts.strictSubnets {
		policy = config.SubnetPolicyStrict
	}
	stmts := confscan.Scan(opts.configFile, string(src))
	p := config.NewParser(policy)
	return p.Assemble(ctx, stmts)
}
