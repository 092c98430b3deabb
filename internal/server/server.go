package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/station"
)

// shutdownTimeout bounds the drain of in-flight requests once the serve
// context is cancelled.
const shutdownTimeout = 5 * time.Second

// Component is a daemon part that reports into the health endpoint.
type Component interface {
	Name() string
	Status() (healthy bool, note string)
}

// stationSource is the slice of the registry the REST endpoints need.
type stationSource interface {
	Snapshot() []station.Station
}

// Server is the embedded HTTP/WebSocket provider.
type Server struct {
	cfg        *config.Config
	bus        *events.Bus
	stations   stationSource
	logger     *logrus.Entry
	version    string
	startedAt  time.Time
	conditions *conditionsCache
	hub        *Hub
	components []Component
}

// New builds the provider. components are polled on every health
// request; the WebSocket hub reports alongside them.
func New(cfg *config.Config, bus *events.Bus, stations stationSource, version string, components []Component, logger *logrus.Entry) *Server {
	hub := NewHub(bus, logger)
	return &Server{
		cfg:        cfg,
		bus:        bus,
		stations:   stations,
		logger:     logger,
		version:    version,
		startedAt:  time.Now(),
		conditions: newConditionsCache(),
		hub:        hub,
		components: append(append([]Component(nil), components...), hub),
	}
}

// Name identifies the provider in logs.
func (s *Server) Name() string { return "http_server" }

// Run serves until ctx is cancelled. The HTTP listener, the conditions
// cache feed, and the WebSocket hub run as one supervised group.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddress,
		Handler: s.engine(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.conditions.run(ctx, s.bus) })
	g.Go(func() error { return s.hub.Run(ctx) })
	g.Go(func() error {
		s.logger.WithField("address", s.cfg.Server.ListenAddress).Info("http server listening")
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())
	r.SetTrustedProxies(nil)

	r.GET("/health", s.handleHealth)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/stations", s.handleStations)
		v1.GET("/conditions", s.handleConditions)
		v1.GET("/conditions/:station_id", s.handleStationConditions)
	}

	r.GET("/ws", s.hub.handleUpgrade)

	return r
}

type componentHealth struct {
	Healthy bool   `json:"healthy"`
	Note    string `json:"note,omitempty"`
}

// handleHealth answers the container health check. It always returns
// 200: a degraded storage backend must not get the container restarted,
// it shows up as status "degraded" instead.
func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	components := make(map[string]componentHealth, len(s.components))
	for _, comp := range s.components {
		healthy, note := comp.Status()
		components[comp.Name()] = componentHealth{Healthy: healthy, Note: note}
		if !healthy {
			status = "degraded"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"version":    s.version,
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		"components": components,
	})
}

func (s *Server) handleStations(c *gin.Context) {
	stations := s.stations.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(stations),
		"stations": stations,
	})
}

func (s *Server) handleConditions(c *gin.Context) {
	conditions := s.conditions.all()
	c.JSON(http.StatusOK, gin.H{
		"count":      len(conditions),
		"conditions": conditions,
	})
}

func (s *Server) handleStationConditions(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("station_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "station_id must be numeric"})
		return
	}

	msg, ok := s.conditions.get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no conditions for station %d", id)})
		return
	}
	c.JSON(http.StatusOK, msg)
}
