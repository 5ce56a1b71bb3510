// Package server implements the aggregator's connection acceptor and
// per-connection dispatcher: an accept loop handing off to a bounded pool
// of handlers, each of which frames one HTTP request, enqueues a pipeline
// work item, and writes back whatever the pipeline decides.
package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wxagg/aggregator/internal/clock"
	"github.com/wxagg/aggregator/internal/httpwire"
	"github.com/wxagg/aggregator/internal/pipeline"
	"github.com/wxagg/aggregator/internal/sweeper"
	"github.com/wxagg/aggregator/internal/store"
)

const defaultDrainTimeout = 5 * time.Second

// Config bundles everything Server needs to start.
type Config struct {
	Addr          string // e.g. ":4567"
	PoolSize      int
	QueueDepth    int
	TTL           time.Duration
	SweepInterval time.Duration
	DrainTimeout  time.Duration
	DataFile      string
	Log           *slog.Logger
}

// Server owns the listening socket, the bounded handler pool, the
// pipeline worker, and the sweeper.
type Server struct {
	cfg Config
	log *slog.Logger

	store   *store.Store
	clocks  *clock.Registry
	worker  *pipeline.Worker
	sweeper *sweeper.Sweeper

	listener net.Listener
	ready    chan struct{}
	readyOne sync.Once

	stopping atomic.Bool
	sem      chan struct{}
	wg       sync.WaitGroup

	conns  sync.Map // connID int64 -> context.CancelFunc
	connID int64

	workerCtx    context.Context
	workerCancel context.CancelFunc
}

// New constructs a Server. It does not start listening until Start is
// called.
func New(cfg Config) *Server {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.DataFile == "" {
		cfg.DataFile = "resources/weather_data.json"
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	st := store.New(cfg.DataFile, cfg.Log)
	clocks := clock.New()
	worker := pipeline.New(st, clocks, cfg.QueueDepth, cfg.TTL, cfg.Log)
	sw := sweeper.New(worker, cfg.SweepInterval, cfg.Log)

	return &Server{
		cfg:     cfg,
		log:     cfg.Log,
		store:   st,
		clocks:  clocks,
		worker:  worker,
		sweeper: sw,
		ready:   make(chan struct{}),
		sem:     make(chan struct{}, cfg.PoolSize),
	}
}

// Ready returns a channel that is closed once the listener is bound, so
// tests can synchronize before issuing requests.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Start binds the listener, starts the pipeline worker and the sweeper,
// and begins accepting connections. It returns once the listener is bound;
// the accept loop runs in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.workerCtx, s.workerCancel = context.WithCancel(context.Background())
	go s.worker.Run(s.workerCtx)

	if err := s.sweeper.Start(); err != nil {
		return err
	}

	s.readyOne.Do(func() { close(s.ready) })

	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener's address. Only valid after Start.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopping.Load() {
				return
			}
			s.log.Error("accept error", "error", err)
			continue
		}

		s.sem <- struct{}{}
		s.wg.Add(1)
		go func() {
			defer func() { <-s.sem }()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	id := atomic.AddInt64(&s.connID, 1)
	ctx, cancel := context.WithCancel(context.Background())
	s.conns.Store(id, cancel)
	defer func() {
		cancel()
		s.conns.Delete(id)
	}()

	reader := bufio.NewReader(conn)
	req, err := httpwire.ParseRequest(reader)
	if err != nil {
		if errors.Is(err, httpwire.ErrBadRequestLine) {
			_ = httpwire.WriteResponse(conn, 400, nil)
			return
		}
		s.log.Error("connection read error", "error", err)
		return
	}

	status, body := s.dispatch(ctx, req, conn.RemoteAddr().String())
	if err := httpwire.WriteResponse(conn, status, body); err != nil {
		s.log.Error("connection write error", "error", err)
	}
}

func (s *Server) dispatch(ctx context.Context, req *httpwire.Request, remoteAddr string) (int, []byte) {
	switch req.Method {
	case "PUT":
		return s.dispatchPut(ctx, req)
	case "GET":
		return s.dispatchGet(ctx, req, remoteAddr)
	default:
		return 400, nil
	}
}

func (s *Server) dispatchPut(ctx context.Context, req *httpwire.Request) (int, []byte) {
	if req.ContentLength() == 0 {
		return 204, nil
	}

	item := &pipeline.Item{
		Kind:    pipeline.KindPut,
		Clock:   req.LamportClock(),
		Payload: req.Body,
		Result:  make(chan pipeline.Result, 1),
	}
	if !s.worker.Submit(item) {
		return 503, pipeline.OverloadedBody
	}

	select {
	case res := <-item.Result:
		return res.Status, res.Body
	case <-ctx.Done():
		return 503, pipeline.OverloadedBody
	}
}

func (s *Server) dispatchGet(ctx context.Context, req *httpwire.Request, remoteAddr string) (int, []byte) {
	item := &pipeline.Item{
		Kind:   pipeline.KindGet,
		Peer:   remoteAddr,
		Clock:  req.LamportClock(),
		Filter: stationFilter(req.Path),
		Result: make(chan pipeline.Result, 1),
	}
	if !s.worker.Submit(item) {
		return 503, pipeline.OverloadedBody
	}

	select {
	case res := <-item.Result:
		return res.Status, res.Body
	case <-ctx.Done():
		return 503, pipeline.OverloadedBody
	}
}

// stationFilter extracts the stationID query parameter, if any, from a
// request path such as "/weather.json?stationID=VIC01".
func stationFilter(path string) string {
	_, query, found := strings.Cut(path, "?")
	if !found {
		return ""
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return values.Get("stationID")
}

// Stop shuts the server down in order: stop accepting, close the
// listener, drain the handler pool with a bounded deadline (forcing
// cancellation of stragglers past it), stop the sweeper, clear both clock
// registries, and purge the persistent store.
func (s *Server) Stop() {
	s.stopping.Store(true)

	if s.listener != nil {
		_ = s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.DrainTimeout):
		s.log.Warn("drain timeout exceeded, force-cancelling in-flight connections")
		s.conns.Range(func(_, v interface{}) bool {
			if cancel, ok := v.(context.CancelFunc); ok {
				cancel()
			}
			return true
		})
		<-done
	}

	s.sweeper.Stop()
	if s.workerCancel != nil {
		s.workerCancel()
	}
	s.worker.Drain()
	s.clocks.Clear()

	if err := s.store.Purge(); err != nil {
		s.log.Error("purge failed on shutdown", "error", err)
	}
}
