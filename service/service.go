// Package service wires the bulk load, the change-stream subscription and
// the broadcast lifecycle together.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"

	"metrowatch-listener/config"
	"metrowatch-listener/database"
	"metrowatch-listener/geocode"
	"metrowatch-listener/handlers"
	"metrowatch-listener/rabbitmq"
	"metrowatch-listener/store"
	"metrowatch-listener/viewport"
	"metrowatch-listener/websocket"
)

// Connectivity states surfaced to clients and the health endpoint.
const (
	StatusConnecting = "connecting"
	StatusConnected  = "connected"
	StatusError      = "error"
)

// Service owns the report store and keeps it consistent with the backend.
type Service struct {
	config   *config.Config
	db       *database.Database
	store    *store.Store
	hub      *websocket.Hub
	geocoder *geocode.Client
	handlers *handlers.Handlers
	viewport *viewport.Controller

	subscriber   *rabbitmq.Subscriber
	subscription *rabbitmq.Subscription

	mu           sync.RWMutex
	connectivity string

	wg sync.WaitGroup
}

// NewService creates the service and its collaborators. Construction fails
// only on infrastructure errors (database, message broker); a failing bulk
// load is handled at Start and is not fatal.
func NewService(cfg *config.Config) (*Service, error) {
	db, err := database.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}

	subscriber, err := rabbitmq.NewSubscriber(cfg.AMQPURL, cfg.ReportExchange)
	if err != nil {
		db.Close()
		return nil, err
	}

	st := store.New()
	hub := websocket.NewHub()
	geocoder := geocode.NewClient(cfg.GeocodeBaseURL, cfg.GeocodeTimeout)

	s := &Service{
		config:       cfg,
		db:           db,
		store:        st,
		hub:          hub,
		geocoder:     geocoder,
		viewport:     viewport.NewController(hub.Commander()),
		subscriber:   subscriber,
		connectivity: StatusConnecting,
	}
	s.handlers = handlers.NewHandlers(hub, db, st, geocoder,
		cfg.RegionQualifier, cfg.SearchDebounce, s.Connectivity)

	return s, nil
}

// Start performs the one-time bulk load and begins reconciling the change
// stream. A bulk load failure leaves the collection empty with connectivity
// "error"; there is no automatic retry.
func (s *Service) Start() error {
	log.Info("starting metrowatch listener service")

	go s.hub.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reports, err := s.db.GetAllReports(ctx)
	if err != nil {
		log.Errorf("bulk load failed, serving an empty collection: %v", err)
		s.setConnectivity(StatusError)
	} else {
		s.store.ApplySnapshot(reports)
		s.setConnectivity(StatusConnected)
		s.viewport.FitToVisible(reports)
	}

	sub, err := s.subscriber.Subscribe(s.config.ReportTopic)
	if err != nil {
		return err
	}
	s.subscription = sub

	s.wg.Add(1)
	go s.reconcileLoop()

	log.Info("metrowatch listener service started")
	return nil
}

// Stop releases the subscription and waits for the reconciler to drain.
func (s *Service) Stop() error {
	log.Info("stopping metrowatch listener service")

	if s.subscription != nil {
		s.subscription.Unsubscribe()
	}
	s.wg.Wait()

	if err := s.subscriber.Close(); err != nil {
		log.Warnf("error closing RabbitMQ connection: %v", err)
	}
	if err := s.db.Close(); err != nil {
		log.Warnf("error closing database: %v", err)
	}

	log.Info("metrowatch listener service stopped")
	return nil
}

// GetHandlers returns the HTTP handlers
func (s *Service) GetHandlers() *handlers.Handlers {
	return s.handlers
}

// Connectivity returns the current backend connectivity state.
func (s *Service) Connectivity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectivity
}

func (s *Service) setConnectivity(state string) {
	s.mu.Lock()
	s.connectivity = state
	s.mu.Unlock()
}

// reconcileLoop projects change events onto the store in delivery order.
// Each applied event is broadcast, and the shared viewport is refitted when
// the set of valid positions changed. The loop ends when the subscription's
// event stream closes.
func (s *Service) reconcileLoop() {
	defer s.wg.Done()

	for ev := range s.subscription.Events() {
		applied, err := s.store.ApplyChange(ev)
		if err != nil {
			log.Warnf("dropped malformed %s event: %v", ev.Kind, err)
			continue
		}
		if !applied {
			continue
		}

		s.hub.BroadcastChange(ev, s.store.Len())
		s.viewport.FitToVisible(s.store.Snapshot())
	}
}
