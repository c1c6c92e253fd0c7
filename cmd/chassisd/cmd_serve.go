package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/newtron-network/chassis/pkg/chassis"
	"github.com/newtron-network/chassis/pkg/metrics"
	"github.com/newtron-network/chassis/pkg/sde/qemu"
	"github.com/newtron-network/chassis/pkg/sde/sim"
	"github.com/newtron-network/chassis/pkg/spec"
	"github.com/newtron-network/chassis/pkg/statedb"
	"github.com/newtron-network/chassis/pkg/util"
)

var serveOpts struct {
	configPath  string
	redisAddr   string
	sshHost     string
	sshUser     string
	sshPass     string
	knownHosts  string
	metricsAddr string
	trace       bool
	qemuHotplug bool
	maxMTU      int32
	noShell     bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chassis manager",
	Long: `Run the chassis manager against the simulated data plane.

The configuration document is pushed at startup. Port state is mirrored to
Redis STATE_DB when --redis is set (optionally through an SSH tunnel to the
switch), metrics are served on --metrics-addr, and an interactive shell
accepts runtime attribute updates unless --no-shell is given.

Examples:
  chassisd serve --config chassis.yaml
  chassisd serve --redis 127.0.0.1:6379 --metrics-addr :9464
  chassisd serve --ssh-host sw1 --ssh-user admin --known-hosts ~/.ssh/known_hosts`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveOpts.configPath, "config", "c", "", "Chassis document (default from settings)")
	f.StringVar(&serveOpts.redisAddr, "redis", "", "Redis address for the STATE_DB mirror (default from settings)")
	f.StringVar(&serveOpts.sshHost, "ssh-host", "", "Reach Redis through an SSH tunnel to this host")
	f.StringVar(&serveOpts.sshUser, "ssh-user", "", "SSH user")
	f.StringVar(&serveOpts.sshPass, "ssh-pass", "", "SSH password (prompted when omitted)")
	f.StringVar(&serveOpts.knownHosts, "known-hosts", "", "known_hosts file used to verify the SSH host key")
	f.StringVar(&serveOpts.metricsAddr, "metrics-addr", "", "Listen address for /metrics (default from settings, \"off\" disables)")
	f.BoolVar(&serveOpts.trace, "trace", false, "Export trace spans to stdout")
	f.BoolVar(&serveOpts.qemuHotplug, "qemu-hotplug", false, "Drive VM hotplug through the QEMU monitor")
	f.Int32Var(&serveOpts.maxMTU, "max-mtu", chassis.DefaultMaxMTU, "Largest MTU accepted for a port")
	f.BoolVar(&serveOpts.noShell, "no-shell", false, "Run without the interactive shell until interrupted")
}

func serve(ctx context.Context) error {
	configPath := serveOpts.configPath
	if configPath == "" {
		configPath = userSettings.GetConfigPath()
	}
	cfg, err := spec.LoadChassisConfig(configPath)
	if err != nil {
		return err
	}

	if serveOpts.trace {
		shutdown, err := initTracing(ctx, os.Stdout)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}

	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	metricsAddr := serveOpts.metricsAddr
	if metricsAddr == "" {
		metricsAddr = userSettings.GetMetricsAddr()
	}
	if metricsAddr != "off" {
		srv := serveMetrics(metricsAddr, collector)
		defer srv.Close()
	}

	var simOpts []sim.Option
	if serveOpts.qemuHotplug {
		simOpts = append(simOpts, sim.WithHotplugBackend(qemu.NewMonitor()))
	}
	dev := sim.New(simOpts...)
	m := chassis.New(dev,
		chassis.WithMode(chassis.ModeSim),
		chassis.WithMetrics(collector),
		chassis.WithMaxMTU(serveOpts.maxMTU),
	)

	mirror, closeMirror, err := openMirror(ctx, m)
	if err != nil {
		return err
	}
	defer closeMirror()
	if mirror != nil {
		m.RegisterEventWriter(mirror)
	} else {
		m.RegisterEventWriter(chassis.EventWriterFunc(func(ev chassis.Event) error {
			util.WithField("event", ev.Kind).Info(ev.String())
			return nil
		}))
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(runCtx, dev.Events()) }()

	if err := pushConfig(ctx, m, cfg, configPath); err != nil {
		// A partly applied document is still served; failed ports show up
		// as unknown and are retried by the next push.
		util.Errorf("Push of %s failed: %v", configPath, err)
	}
	if mirror != nil {
		if err := mirror.Sync(ctx); err != nil {
			util.Warnf("STATE_DB sync: %v", err)
		}
	}

	if serveOpts.noShell {
		fmt.Printf("chassisd serving %s (%d port(s)); interrupt to stop\n", configPath, len(m.Ports()))
		<-ctx.Done()
	} else {
		sh := NewShell(m, dev, cfg.Chassis.Name, os.Stdin, os.Stdout)
		if err := sh.Run(ctx); err != nil {
			util.Warnf("shell: %v", err)
		}
	}

	stopRun()
	if runErr := <-runDone; runErr != nil && !errors.Is(runErr, context.Canceled) {
		util.Warnf("status loop: %v", runErr)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Shutdown(shutdownCtx)
}

func serveMetrics(addr string, c *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Errorf("metrics server: %v", err)
		}
	}()
	util.WithField("addr", addr).Info("Serving /metrics")
	return srv
}

// openMirror connects the STATE_DB mirror. It returns a nil mirror when no
// Redis address is configured.
func openMirror(ctx context.Context, m *chassis.Manager) (*statedb.Mirror, func(), error) {
	addr := serveOpts.redisAddr
	if addr == "" {
		addr = userSettings.RedisAddr
	}
	if addr == "" && serveOpts.sshHost == "" {
		return nil, func() {}, nil
	}

	var tunnel *statedb.SSHTunnel
	if serveOpts.sshHost != "" {
		password := serveOpts.sshPass
		if password == "" {
			p, err := promptPassword(fmt.Sprintf("%s@%s's password: ", serveOpts.sshUser, serveOpts.sshHost))
			if err != nil {
				return nil, nil, err
			}
			password = p
		}
		var err error
		tunnel, err = statedb.NewSSHTunnel(statedb.TunnelConfig{
			Host:       serveOpts.sshHost,
			User:       serveOpts.sshUser,
			Password:   password,
			KnownHosts: serveOpts.knownHosts,
			RemoteAddr: addr,
		})
		if err != nil {
			return nil, nil, err
		}
		addr = tunnel.LocalAddr()
	}

	client := statedb.NewClient(addr)
	closeAll := func() {
		client.Close()
		if tunnel != nil {
			tunnel.Close()
		}
	}
	if err := client.Connect(ctx); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("connecting to STATE_DB at %s: %w", addr, err)
	}
	util.WithField("addr", addr).Info("Mirroring port state to STATE_DB")
	return statedb.NewMirror(client, m), closeAll, nil
}

func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--ssh-pass is required when stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
