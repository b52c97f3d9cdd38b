package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/hooks"
	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/soyeahso/rcmesh/internal/metrics"
	"github.com/soyeahso/rcmesh/internal/notify"
	"github.com/soyeahso/rcmesh/internal/postoffice"
	"github.com/soyeahso/rcmesh/internal/remote"
	"github.com/soyeahso/rcmesh/internal/routing"
	"github.com/soyeahso/rcmesh/internal/session"
	"github.com/soyeahso/rcmesh/internal/store"
	"github.com/soyeahso/rcmesh/internal/version"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run an rcmesh client process",
	}

	cmd.AddCommand(newClientRunCmd())
	return cmd
}

func newClientRunCmd() *cobra.Command {
	var (
		server      string
		character   string
		class       string
		zone        string
		inGame      bool
		transport   string
		url         string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the post office and read commands from stdin",
		Long: "Connects to the post office, opens the channels for the configured identity and reads " +
			"console lines from stdin: /rc, /rcjoin, /rcleave, /rclist, /state, /zone, /group, /raid, /echo.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			id := &cfg.Client.Identity
			if server != "" {
				id.Server = server
			}
			if character != "" {
				id.Character = character
			}
			if class != "" {
				id.Class = class
			}
			if zone != "" {
				id.Zone = zone
			}
			if cmd.Flags().Changed("ingame") {
				id.InGame = inGame
			}
			if transport != "" {
				cfg.Client.Transport = transport
			}
			if url != "" {
				cfg.Client.URL = url
			}
			if metricsAddr != "" {
				cfg.Client.MetricsAddr = metricsAddr
				cfg.Metrics.Enabled = true
			}

			if err := validate(config.ValidateClient(&cfg)); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tr, closeTransport, err := openTransport(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeTransport()

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}
			subs, err := store.Open(cfg.Subscriptions, paths.SubscriptionsPath(cfg.Subscriptions), log)
			if err != nil {
				return err
			}
			defer subs.Close()

			app := newClientApp(cfg, tr, subs, cmd.OutOrStdout(), log)
			if c, ok := tr.(*postoffice.Client); ok {
				app.lost = c.Done()
			}
			return app.Run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "game server of this client")
	cmd.Flags().StringVar(&character, "character", "", "character name of this client")
	cmd.Flags().StringVar(&class, "class", "", "three-letter class code")
	cmd.Flags().StringVar(&zone, "zone", "", "starting zone short name")
	cmd.Flags().BoolVar(&inGame, "ingame", false, "start in game instead of without a session")
	cmd.Flags().StringVar(&transport, "transport", "", "transport (websocket, local)")
	cmd.Flags().StringVar(&url, "url", "", "post office websocket URL")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve client metrics on host:port (enables metrics)")

	return cmd
}

// openTransport connects the configured transport. The local transport keeps
// every mailbox in this process.
func openTransport(ctx context.Context, cfg config.Config) (postoffice.Transport, func(), error) {
	id := session.NewState(cfg.Client.Identity).Identity()

	switch cfg.Client.Transport {
	case "local":
		office := postoffice.NewLocal(log)
		return office.Endpoint(id), office.Close, nil
	case "", "websocket":
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		c, err := postoffice.Dial(dialCtx, postoffice.ClientOptions{
			URL:      cfg.Client.URL,
			Token:    cfg.Client.Token,
			Identity: id,
			Version:  version.Version,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to post office: %w", err)
		}
		return c, func() { c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Client.Transport)
	}
}

// clientApp is one running client: the simulated session, its loop, and the
// channel manager driven by it.
type clientApp struct {
	cfg      config.Config
	log      *logging.Logger
	state    *session.State
	loop     *session.Loop
	mgr      *remote.Manager
	router   *routing.Router
	notifier remote.Notifier
	irc      *notify.IRC
	metrics  *metrics.Metrics

	// metricsAddr holds the bound metrics listener address once serving.
	metricsAddr atomic.Value

	// lost is closed when the transport connection ends.
	lost <-chan struct{}
}

func newClientApp(cfg config.Config, tr postoffice.Transport, subs remote.Subscriptions, out io.Writer, log *logging.Logger) *clientApp {
	sinks := notify.Multi{notify.NewConsole(out)}
	var irc *notify.IRC
	if cfg.Notify.IRC != nil {
		irc = notify.NewIRC(*cfg.Notify.IRC, log)
		sinks = append(sinks, irc)
	}

	pulse := time.Duration(cfg.Client.PulseIntervalMs) * time.Millisecond
	state := session.NewState(cfg.Client.Identity)
	loop := session.NewLoop(pulse, log)
	executor := routing.NewExecutor(loop, log)

	hookMgr := hooks.NewManager(log)
	for _, ev := range []string{hooks.EventChannelJoined, hooks.EventChannelLeft, hooks.EventDeliveryFailed, hooks.EventSessionState} {
		hookMgr.On(ev, "log", logHook(log))
	}

	env := &remote.Env{
		Transport: tr,
		Session:   state,
		Executor:  executor,
		Notifier:  sinks,
		Log:       log,
		Hooks:     hookMgr,
	}
	if cfg.Metrics.Enabled {
		env.Metrics = metrics.New()
	}

	mgr := remote.NewManager(env, subs, remote.WithPulseInterval(pulse))
	router := routing.NewRouter(mgr, state, sinks, log)
	executor.Bind(router)

	return &clientApp{
		cfg:      cfg,
		log:      log.Sub("client"),
		state:    state,
		loop:     loop,
		mgr:      mgr,
		router:   router,
		notifier: sinks,
		irc:      irc,
		metrics:  env.Metrics,
	}
}

// Run drives the client until ctx is done, in reaches EOF, or the transport
// connection is lost. Channels are shut down before it returns.
func (a *clientApp) Run(ctx context.Context, in io.Reader) error {
	if a.metrics != nil && a.cfg.Client.MetricsAddr != "" {
		stop, err := a.serveMetrics()
		if err != nil {
			return err
		}
		defer stop()
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go a.loop.Run(loopCtx, func(ctx context.Context) {
		if err := a.mgr.OnPulse(); err != nil {
			a.log.Error().Err(err).Msg("pulse failed")
		}
	})

	if a.irc != nil {
		go func() {
			if err := a.irc.Start(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn().Err(err).Msg("irc notifier stopped")
			}
		}()
		defer a.irc.Stop()
	}

	var initErr error
	if err := a.loop.Call(ctx, func(ctx context.Context) {
		initErr = a.mgr.Initialize(ctx)
	}); err != nil {
		return err
	}
	if initErr != nil {
		a.shutdown()
		return fmt.Errorf("initializing channels: %w", initErr)
	}

	id := a.state.Identity()
	a.log.Info().
		Str("server", id.Server).
		Str("character", id.Character).
		Str("state", a.state.State().String()).
		Msg("client ready")

	lines := make(chan string)
	readErr := make(chan error, 1)
	stopRead := make(chan struct{})
	defer close(stopRead)
	go readLines(in, lines, readErr, stopRead)

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-a.lost:
			err = errors.New("post office connection lost")
			break loop
		case err = <-readErr:
			break loop
		case line := <-lines:
			if perr := a.loop.Post(ctx, func(ctx context.Context) {
				if herr := a.router.HandleLine(ctx, line); herr != nil {
					a.notifier.Notify(herr.Error())
					a.log.Error().Err(herr).Str("line", line).Msg("command failed")
				}
			}); perr != nil && !errors.Is(perr, context.Canceled) {
				err = perr
				break loop
			}
		}
	}

	a.shutdown()
	return err
}

// serveMetrics exposes the client's registry on client.metricsAddr.
func (a *clientApp) serveMetrics() (func(), error) {
	ln, err := net.Listen("tcp", a.cfg.Client.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener on %s: %w", a.cfg.Client.MetricsAddr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("GET "+a.cfg.Metrics.Path, a.metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	a.metricsAddr.Store(ln.Addr().String())
	a.log.Info().Str("addr", ln.Addr().String()).Str("path", a.cfg.Metrics.Path).Msg("serving client metrics")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn().Err(err).Msg("metrics listener stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

// MetricsAddr returns the bound metrics address, or "" when not serving.
func (a *clientApp) MetricsAddr() string {
	s, _ := a.metricsAddr.Load().(string)
	return s
}

// shutdown closes every channel on the loop and stops it.
func (a *clientApp) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.loop.Call(ctx, func(context.Context) { a.mgr.Shutdown() }); err != nil {
		a.log.Warn().Err(err).Msg("shutdown did not complete")
	}
}

// readLines sends each line of in to lines until stop is closed. EOF is
// reported as a nil error.
func readLines(in io.Reader, lines chan<- string, errc chan<- error, stop <-chan struct{}) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-stop:
			return
		}
	}
	errc <- sc.Err()
}
