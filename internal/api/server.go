// Package api provides the HTTP REST API and WebSocket live feed for Homey Core.
//
// It exposes the device registry, the room grouping and the identity
// provider to the embedded dashboard and to any other client.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// All methods are safe for concurrent use.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/homey-core/internal/audit"
	"github.com/nerrad567/homey-core/internal/device"
	"github.com/nerrad567/homey-core/internal/identity"
	"github.com/nerrad567/homey-core/internal/infrastructure/config"
	"github.com/nerrad567/homey-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies of the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Site        config.SiteConfig
	Logger      *logging.Logger
	Devices     *device.Store
	Identity    identity.Provider
	Activity    audit.Repository // optional: GET /activity answers 503 without it
	Recorder    *audit.Recorder  // optional: nothing is recorded without it
	RoomOptions []string
	PanelDir    string // optional: serve the dashboard from disk
	Version     string
}

// Server is the HTTP API server.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	site        config.SiteConfig
	logger      *logging.Logger
	devices     *device.Store
	identity    identity.Provider
	activity    audit.Repository
	recorder    *audit.Recorder
	roomOptions []string
	panelDir    string
	version     string

	hub     *Hub
	tickets *ticketStore
	server  *http.Server

	mu       sync.Mutex
	cancel   context.CancelFunc
	detach   []func()
	detached bool
}

// New creates a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Identity == nil {
		return nil, fmt.Errorf("identity provider is required")
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		site:        deps.Site,
		logger:      deps.Logger,
		devices:     deps.Devices,
		identity:    deps.Identity,
		activity:    deps.Activity,
		recorder:    deps.Recorder,
		roomOptions: append([]string(nil), deps.RoomOptions...),
		panelDir:    deps.PanelDir,
		version:     deps.Version,
		hub:         NewHub(deps.WS, deps.Logger),
		tickets:     newTicketStore(),
	}, nil
}

// Start wires the live feed and begins listening in the background.
func (s *Server) Start(ctx context.Context) error {
	s.attach(ctx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// attach starts the hub and ticket cleanup and subscribes to the device
// store and the identity provider.
func (s *Server) attach(ctx context.Context) {
	srvCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.detach = append(s.detach,
		s.devices.Subscribe(s.onDeviceChange),
		s.identity.Subscribe(s.onIdentityEvent).Unsubscribe,
	)
	s.mu.Unlock()

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)
}

// Close stops background work and shuts the listener down gracefully.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	if !s.detached {
		for _, fn := range s.detach {
			fn()
		}
		s.detached = true
	}
	s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// onDeviceChange pushes the change and the regrouped rooms to the live feed.
func (s *Server) onDeviceChange(c device.Change) {
	s.hub.Broadcast(ChannelDevices, devicesChangedPayload{
		Change: &c,
		Rooms:  s.devices.Snapshot().Rooms(),
	})
}

// onIdentityEvent records session changes in the activity log.
func (s *Server) onIdentityEvent(e identity.Event) {
	entry := audit.Entry{
		EntityType: audit.EntitySession,
		EntityID:   e.SessionID,
		UserID:     e.UserID,
		Source:     "identity",
		CreatedAt:  e.At,
	}
	switch e.Kind {
	case identity.EventSignedIn:
		entry.Action = audit.ActionSignIn
	case identity.EventSignedOut:
		entry.Action = audit.ActionSignOut
	case identity.EventTokenRefreshed:
		entry.Action = audit.ActionRefresh
	case identity.EventUserSignedUp:
		entry.Action = audit.ActionSignUp
		entry.EntityType = audit.EntityUser
		entry.EntityID = e.UserID
	default:
		return
	}
	s.recorder.Record(entry)
}
