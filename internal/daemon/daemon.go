package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexdong/quinn/internal/config"
	"github.com/alexdong/quinn/internal/logger"
	"github.com/alexdong/quinn/internal/metrics"
	"github.com/alexdong/quinn/internal/tracing"
	"github.com/alexdong/quinn/pkg/agent"
	"github.com/alexdong/quinn/pkg/conversation"
	"github.com/alexdong/quinn/pkg/email"
	"github.com/alexdong/quinn/pkg/store"
	"github.com/alexdong/quinn/pkg/web"
	"github.com/alexdong/quinn/pkg/webhook"
)

const shutdownTimeout = 30 * time.Second

// Core holds the components shared by every channel. Storage is reached
// through Manager.Store, which is replaced by ResetAll.
type Core struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Prompts *agent.PromptStore
	Engine  *agent.Engine
	Manager *conversation.Manager
}

// NewCore opens the database and wires the engine and manager
func NewCore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Core, error) {
	if err := tracing.InitOpenTelemetry("quinn"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	}

	m := metrics.NewMetrics()

	s, err := store.Open(store.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		Logger: log.Module("store"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	prompts := agent.NewPromptStore(cfg.Prompts.Dir)

	var cache *agent.ResponseCache
	if cfg.Cache.Enabled {
		cache = agent.NewResponseCache()
	}

	engine := agent.NewEngine(agent.EngineConfig{
		Providers:     agent.NewProviderFactory(cfg.Providers.Keys()),
		Prompts:       prompts,
		PromptVersion: cfg.Prompts.Version,
		Cache:         cache,
		Metrics:       m,
		Logger:        log.Module("agent"),
	})

	base := cfg.Agent
	manager := conversation.NewManager(conversation.Options{
		Store:     s,
		Responder: engine,
		Renderer:  agent.NewRenderer(filepath.Join(cfg.Prompts.Dir, "templates")),
		Base:      &base,
		Metrics:   m,
		Logger:    log.Module("conversation"),
	})
	if err := manager.Setup(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create default users: %w", err)
	}

	return &Core{
		Config:  cfg,
		Logger:  log,
		Metrics: m,
		Prompts: prompts,
		Engine:  engine,
		Manager: manager,
	}, nil
}

// Close closes the store the manager currently uses
func (c *Core) Close() error {
	return c.Manager.Store().Close()
}

// Status represents the daemon status
type Status struct {
	Running   bool
	StartTime time.Time
	Uptime    time.Duration
	Addr      string
	PID       int
}

// Daemon runs the long-lived Quinn services: the webhook server with the
// JSON API and /metrics, the archiver and the prompt watcher
type Daemon struct {
	core   *Core
	config *config.Config
	logger *logger.Logger

	webhookServer *webhook.Server
	archiver      *conversation.Archiver
	watcher       *agent.PromptWatcher
	lifecycle     *LifecycleManager

	listener  net.Listener
	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New creates a daemon over core
func New(core *Core) (*Daemon, error) {
	d := &Daemon{
		core:   core,
		config: core.Config,
		logger: core.Logger,
	}
	if err := d.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

func (d *Daemon) initializeServices() error {
	cfg := d.config
	handlerTimeout := time.Duration(cfg.Server.HandlerTimeout) * time.Second

	d.webhookServer = webhook.NewServer(webhook.ServerOptions{
		Port:               cfg.Server.Port,
		Host:               cfg.Server.Host,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		TrustProxyHeaders:  cfg.Server.TrustProxyHeaders,
		DefaultTimeout:     handlerTimeout,
		Metrics:            d.core.Metrics,
	}, d.logger.Module("webhook"))

	var sender email.Sender
	if cfg.Email.ServerToken != "" {
		sender = email.NewPostmarkClient(email.PostmarkConfig{
			Endpoint:       cfg.Email.APIEndpoint,
			ServerToken:    cfg.Email.ServerToken,
			Retries:        cfg.Email.SendRetries,
			SendsPerSecond: cfg.Email.SendsPerSecond,
			Recorder:       email.ManagerRecorder(d.core.Manager),
			Metrics:        d.core.Metrics,
			Logger:         d.logger.Module("email"),
		})
	} else {
		d.logger.Warn().Msg("Postmark server token not configured, email replies will be stored but not sent")
	}

	var allowed []string
	if len(cfg.Email.AllowedSenders) > 0 {
		allowed = cfg.Email.AllowedSenders
	}
	processor := email.NewProcessor(email.ProcessorConfig{
		Manager:        d.core.Manager,
		Sender:         sender,
		AllowedSenders: allowed,
		FromAddress:    cfg.Email.FromAddress,
		Model:          cfg.Models.Default,
		Logger:         d.logger.Module("email"),
	})

	if err := d.webhookServer.RegisterWebhook(webhook.CreatePostmarkHandler(webhook.PostmarkHandlerOptions{
		InboundToken: cfg.Email.InboundToken,
		Processor:    processor,
		Timeout:      handlerTimeout,
		Logger:       d.logger.Module("webhook"),
	})); err != nil {
		return fmt.Errorf("failed to register postmark webhook: %w", err)
	}

	api := web.NewAPI(d.core.Manager, web.Config{
		DefaultModel: cfg.Models.Default,
		AllowReset:   cfg.Server.AllowAPIReset,
	}, d.logger.Module("web"))
	d.webhookServer.Mount("/api/", api.Routes())
	d.webhookServer.Mount("/metrics", d.core.Metrics.Handler())

	if cfg.Archive.Enabled {
		d.archiver = conversation.NewArchiver(d.core.Manager, conversation.ArchiverConfig{
			Schedule: cfg.Archive.Schedule,
			IdleDays: cfg.Archive.IdleDays,
			Metrics:  d.core.Metrics,
			Logger:   d.logger.Module("archiver"),
		})
	}

	return nil
}

// Start writes the PID file, binds the server address and starts the
// background services. Serving begins with Run.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon is already running")
	}

	ln, err := net.Listen("tcp", d.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.config.Server.Addr(), err)
	}

	if err := d.lifecycle.Start(); err != nil {
		ln.Close()
		return err
	}

	if d.archiver != nil {
		if err := d.archiver.Start(); err != nil {
			ln.Close()
			_ = d.lifecycle.Stop()
			return fmt.Errorf("failed to start archiver: %w", err)
		}
	}

	if d.config.Prompts.Watch {
		w, err := agent.NewPromptWatcher(d.core.Prompts, d.logger.Module("prompts"), 0)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to watch prompts directory, prompt edits need a restart")
		} else {
			d.watcher = w
		}
	}

	d.listener = ln
	d.startTime = time.Now()
	d.running = true

	d.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("model", d.config.Models.Default).
		Msg("Quinn daemon started")
	return nil
}

// Run starts the daemon and serves until ctx is cancelled or the server fails
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}

	d.mu.RLock()
	ln := d.listener
	d.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := d.webhookServer.Serve(ln)
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return d.Stop()
	})
	return g.Wait()
}

// Stop shuts every service down. It is a no-op when not running.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.logger.Info().Msg("Stopping Quinn daemon")

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.webhookServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := d.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}

	if d.archiver != nil {
		if err := d.archiver.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
		d.watcher = nil
	}
	if err := d.lifecycle.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to flush traces")
	}

	d.running = false
	d.logger.Info().Msg("Quinn daemon stopped")
	return errors.Join(errs...)
}

// Status returns the current daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:   d.running,
		StartTime: d.startTime,
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.Addr = d.listener.Addr().String()
		if pid, err := d.lifecycle.GetPID(); err == nil {
			status.PID = pid
		}
	}
	return status
}

// WebhookServer returns the HTTP server
func (d *Daemon) WebhookServer() *webhook.Server {
	return d.webhookServer
}
