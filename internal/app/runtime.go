// Package app wires the kiosk pairing host together: discovery responder,
// TCP pairing service, local UI bridge and background jobs.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sourccey/kiosk-relay/internal/config"
	"github.com/sourccey/kiosk-relay/internal/discovery"
	"github.com/sourccey/kiosk-relay/internal/downloader"
	"github.com/sourccey/kiosk-relay/internal/jobs"
	"github.com/sourccey/kiosk-relay/internal/metrics"
	"github.com/sourccey/kiosk-relay/internal/model"
	"github.com/sourccey/kiosk-relay/internal/processhost"
	"github.com/sourccey/kiosk-relay/internal/ratelimit"
	redisclient "github.com/sourccey/kiosk-relay/internal/redis"
	"github.com/sourccey/kiosk-relay/internal/repository"
	"github.com/sourccey/kiosk-relay/internal/server"
	"github.com/sourccey/kiosk-relay/internal/service"
	"github.com/sourccey/kiosk-relay/internal/sse"
)

type pairLimiter interface {
	ratelimit.Limiter
	PruneIdle(ctx context.Context) (int64, error)
}

type Option func(*options)

type options struct {
	host       processhost.Host
	downloader service.Downloader
}

// WithHost replaces the default exec-based process host.
func WithHost(h processhost.Host) Option {
	return func(o *options) { o.host = h }
}

// WithDownloader replaces the default python snapshot downloader.
func WithDownloader(d service.Downloader) Option {
	return func(o *options) { o.downloader = d }
}

// Runtime owns every long-lived component of one kiosk host process.
type Runtime struct {
	cfg *config.Config

	redis   *redisclient.Client
	state   *service.PairingState
	broker  *sse.Broker
	host    processhost.Host
	runner  *service.DownloadRunner
	service *service.PairingService
	limiter pairLimiter

	responder *discovery.Responder
	server    *server.Server
	ui        *http.Server
	uiLn      net.Listener
	cleanup   *jobs.CleanupJob

	jobsCtx    context.Context
	jobsCancel context.CancelFunc
	serveStop  context.CancelFunc
	wg         sync.WaitGroup
}

func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{cfg: cfg}

	if cfg.RedisURL != "" {
		client, err := redisclient.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.redis = client
		log.Info().Msg("redis connected")
	}

	tokenStore := repository.NewFileTokenStore(cfg.TokenFilePath())
	tokens, err := tokenStore.Load()
	if err != nil {
		log.Error().Err(err).Str("path", tokenStore.Path()).Msg("failed to load pairing tokens, starting with none")
		tokens = nil
	}
	metrics.ActiveTokens.Set(float64(len(tokens)))

	identity := model.RobotIdentity{
		RobotName:   cfg.RobotName,
		Nickname:    cfg.Nickname,
		RobotType:   cfg.RobotType,
		ServicePort: cfg.ServicePort,
	}
	rt.state = service.NewPairingState(identity, tokens, service.WithCodeTTL(cfg.PairingCodeTTL()))

	rt.broker = sse.NewBroker(rt.redis)

	rt.host = o.host
	if rt.host == nil {
		rt.host = processhost.NewExecHost(processhost.ExecHostConfig{
			Command:      cfg.PythonPath,
			Args:         cfg.HostCommand,
			WorkDir:      cfg.HostWorkDir,
			ProcessMatch: cfg.HostProcessMatch,
			StopGrace:    config.HostStopGracePeriod,
			Events:       rt.broker,
		})
	}

	dl := o.downloader
	if dl == nil {
		dl = downloader.NewSnapshotDownloader(cfg.PythonPath)
	}

	records := repository.NewDownloadRecordStore(cfg.ModelsDir())
	rt.jobsCtx, rt.jobsCancel = context.WithCancel(context.Background())
	rt.runner = service.NewDownloadRunner(rt.jobsCtx, rt.state, records, dl, rt.broker)

	if rt.redis != nil {
		rt.limiter = ratelimit.NewRedisLimiter(rt.redis.Client, cfg.PairAttemptsPerMin, time.Minute)
	} else {
		rt.limiter = ratelimit.NewMemoryLimiter(cfg.PairAttemptsPerMin, time.Minute)
	}

	rt.service = service.NewPairingService(service.Dependencies{
		State:       rt.state,
		Tokens:      tokenStore,
		Records:     records,
		Downloads:   rt.runner,
		Host:        rt.host,
		Notifier:    rt.broker,
		PairLimiter: rt.limiter,
	})

	rt.responder = discovery.NewResponder(cfg.DiscoveryAddr(), rt.state)
	rt.server = server.New(cfg.ServiceAddr(), rt.service, server.Options{
		ReadTimeout:  cfg.RequestReadTimeout,
		MaxLineBytes: config.MaxRequestLineBytes,
	})

	rt.cleanup = jobs.NewCleanupJob(config.CleanupJobInterval,
		jobs.Task{Name: "expired pairing code", Run: rt.rotateExpiredCode},
		jobs.Task{Name: "idle pair limiter keys", Run: rt.limiter.PruneIdle},
	)

	return rt, nil
}

func (rt *Runtime) rotateExpiredCode(context.Context) (int64, error) {
	rotated, err := rt.state.RotateExpiredCode()
	if err != nil || !rotated {
		return 0, err
	}
	return 1, nil
}

// Service exposes the pairing service, mainly for the UI bridge and tests.
func (rt *Runtime) Service() *service.PairingService {
	return rt.service
}

// Start binds discovery, the pairing service and the UI bridge. Only the
// first call does anything; later calls return nil.
func (rt *Runtime) Start() error {
	first, err := rt.state.MarkListenerStarted()
	if err != nil {
		return err
	}
	if !first {
		log.Debug().Msg("network listeners already started")
		return nil
	}

	if err := rt.responder.Start(); err != nil {
		return err
	}
	if err := rt.server.Listen(); err != nil {
		rt.responder.Stop()
		return err
	}
	uiLn, err := net.Listen("tcp", rt.cfg.UIAddr)
	if err != nil {
		rt.responder.Stop()
		rt.server.Close()
		return fmt.Errorf("failed to bind UI bridge %s: %w", rt.cfg.UIAddr, err)
	}
	rt.uiLn = uiLn

	healthRedis := newHealthChecker(rt.redis)
	rt.ui = &http.Server{
		Handler:     newUIRouter(rt.service, rt.broker, healthRedis),
		ReadTimeout: config.UIReadTimeout,
		IdleTimeout: config.UIIdleTimeout,
	}

	serveCtx, stop := context.WithCancel(context.Background())
	rt.serveStop = stop

	rt.wg.Add(2)
	go func() {
		defer rt.wg.Done()
		if err := rt.server.Serve(serveCtx); err != nil {
			log.Error().Err(err).Msg("pairing service stopped with error")
		}
	}()
	go func() {
		defer rt.wg.Done()
		log.Info().Str("addr", uiLn.Addr().String()).Msg("ui bridge listening")
		if err := rt.ui.Serve(uiLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ui bridge error")
		}
	}()

	rt.cleanup.Start()
	return nil
}

func (rt *Runtime) ServiceAddr() net.Addr {
	return rt.server.Addr()
}

func (rt *Runtime) DiscoveryAddr() *net.UDPAddr {
	return rt.responder.Addr()
}

func (rt *Runtime) UIAddr() net.Addr {
	if rt.uiLn == nil {
		return nil
	}
	return rt.uiLn.Addr()
}

// Shutdown stops listeners, cancels running downloads, stops managed host
// processes and releases state.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if rt.serveStop != nil {
		rt.responder.Stop()
		rt.serveStop()
		// SSE streams only return once the broker releases them.
		rt.broker.Close()
		if err := rt.ui.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ui bridge shutdown: %w", err))
		}
		rt.wg.Wait()
		rt.cleanup.Stop()
	} else {
		rt.broker.Close()
	}

	rt.jobsCancel()
	rt.runner.Wait()

	if stopper, ok := rt.host.(interface{ StopAll(context.Context) }); ok {
		stopper.StopAll(ctx)
	}

	rt.state.Close()

	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	log.Info().Msg("kiosk runtime stopped")
	return errors.Join(errs...)
}
