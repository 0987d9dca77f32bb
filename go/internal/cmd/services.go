package main

import (
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/mcdev12/focusroom/go/clients/focus_api_client"
	"github.com/mcdev12/focusroom/go/internal/auth"
	"github.com/mcdev12/focusroom/go/internal/config"
	"github.com/mcdev12/focusroom/go/internal/metrics"
	"github.com/mcdev12/focusroom/go/internal/notify"
	"github.com/mcdev12/focusroom/go/internal/realtime"
	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/session"
	"github.com/mcdev12/focusroom/go/internal/status"
	"github.com/mcdev12/focusroom/go/internal/timer"
)

const (
	soloEngine = "timer.solo"
	roomEngine = "timer.room"
)

// drainingNotifier drains its NATS connection on injector shutdown.
type drainingNotifier struct {
	*notify.NATSNotifier
	nc *nats.Conn
}

func (n *drainingNotifier) Shutdown() error {
	return n.nc.Drain()
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	// Config → clients → realtime → domain controllers → status
	do.ProvideValue(injector, cfg)
	do.ProvideValue[clockwork.Clock](injector, clockwork.NewRealClock())

	do.Provide(injector, func(i do.Injector) (*prometheus.Registry, error) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		return reg, nil
	})
	do.Provide(injector, func(i do.Injector) (*metrics.Prometheus, error) {
		return metrics.NewPrometheus(do.MustInvoke[*prometheus.Registry](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (auth.Provider, error) {
		cfg := do.MustInvoke[*config.Config](i)
		// Me and Refresh carry their token explicitly, so this client needs no token source.
		tokenAPI := focus_api_client.NewFocusApiClient(cfg.APIBaseURL, nil).WithTimeout(cfg.RequestTimeout)
		return auth.NewHTTPProvider(auth.NewMemoryStore(cfg.Token), tokenAPI, do.MustInvoke[clockwork.Clock](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*focus_api_client.FocusApiClient, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return focus_api_client.NewFocusApiClient(cfg.APIBaseURL, do.MustInvoke[auth.Provider](i)).WithTimeout(cfg.RequestTimeout), nil
	})

	do.Provide(injector, func(i do.Injector) (*realtime.ConnectionManager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		rtConfig := realtime.DefaultConfig()
		rtConfig.URL = cfg.WSURL
		rtConfig.TokenTransport = realtime.TokenTransport(cfg.TokenTransport)
		rtConfig.PingInterval = cfg.PingInterval
		rtConfig.ConnectTimeout = cfg.ConnectTimeout
		rtConfig.BackoffBase = cfg.BackoffBase
		rtConfig.MaxReconnectAttempts = cfg.MaxReconnectAttempts

		return realtime.NewConnectionManager(rtConfig, do.MustInvoke[auth.Provider](i),
			realtime.WithClock(do.MustInvoke[clockwork.Clock](i)),
			realtime.WithMetrics(do.MustInvoke[*metrics.Prometheus](i)),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*room.Controller, error) {
		api := do.MustInvoke[*focus_api_client.FocusApiClient](i)
		return room.NewController(api, do.MustInvoke[*realtime.ConnectionManager](i), do.MustInvoke[clockwork.Clock](i)), nil
	})

	for _, name := range []string{soloEngine, roomEngine} {
		do.ProvideNamed(injector, name, func(i do.Injector) (*timer.Engine, error) {
			cfg := do.MustInvoke[*config.Config](i)
			return timer.NewEngine(do.MustInvoke[clockwork.Clock](i), cfg.TickInterval), nil
		})
	}

	do.Provide(injector, func(i do.Injector) (notify.Notifier, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.NATSURL == "" {
			return notify.NewLogNotifier(), nil
		}
		natsConfig := notify.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Subject = cfg.NotificationSubject
		nc, err := notify.ConnectNATS(natsConfig)
		if err != nil {
			log.Warn().Err(err).Msg("nats unavailable, notifications will only be logged")
			return notify.NewLogNotifier(), nil
		}
		return &drainingNotifier{NATSNotifier: notify.NewNATSNotifier(nc, natsConfig.Subject, do.MustInvoke[clockwork.Clock](i)), nc: nc}, nil
	})

	do.Provide(injector, func(i do.Injector) (*session.Coordinator, error) {
		return session.NewCoordinator(
			do.MustInvoke[*focus_api_client.FocusApiClient](i),
			do.MustInvokeNamed[*timer.Engine](i, soloEngine),
			do.MustInvoke[notify.Notifier](i),
			do.MustInvoke[clockwork.Clock](i),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*status.Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return status.NewServer(cfg.StatusAddr, do.MustInvoke[*prometheus.Registry](i),
			status.WithConnection(do.MustInvoke[*realtime.ConnectionManager](i)),
			status.WithRoom(do.MustInvoke[*room.Controller](i)),
			status.WithSession(do.MustInvoke[*session.Coordinator](i)),
			status.WithTimer("solo", do.MustInvokeNamed[*timer.Engine](i, soloEngine)),
			status.WithTimer("room", do.MustInvokeNamed[*timer.Engine](i, roomEngine)),
		), nil
	})

	return injector
}
