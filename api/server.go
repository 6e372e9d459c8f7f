package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cachestore "github.com/eko/gocache/lib/v4/store"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/peteraglen/lock-manager/common"
	"github.com/peteraglen/lock-manager/config"
	"github.com/peteraglen/lock-manager/internal"
	"github.com/peteraglen/lock-manager/locking"
)

// Server exposes the lock documents over HTTP, so operators can inspect who
// holds a lock and request a best-effort release without shell access to the
// backend store.
type Server struct {
	coordinators  map[locking.Prefix]locking.Coordinator
	limitersByKey map[string]*rate.Limiter
	limitersLock  *sync.Mutex
	holdersCache  *internal.Cache[string]
	cfg           *config.APIConfig
	metrics       common.Metrics
	logger        common.Logger
}

// New creates the inspection server. The coordinators map holds one
// coordinator per namespace prefix; prefixes without an entry return 404.
func New(coordinators map[locking.Prefix]locking.Coordinator, cacheStore cachestore.StoreInterface, logger common.Logger, metrics common.Metrics, cfg *config.APIConfig) *Server {
	if metrics == nil {
		metrics = &common.NoopMetrics{}
	}

	if logger == nil {
		logger = &common.NoopLogger{}
	}

	if cacheStore == nil {
		gocacheClient := gocache.New(5*time.Minute, time.Minute)
		cacheStore = gocache_store.NewGoCache(gocacheClient)
	}

	return &Server{
		coordinators:  coordinators,
		limitersByKey: make(map[string]*rate.Limiter),
		limitersLock:  &sync.Mutex{},
		holdersCache:  internal.NewCache[string](cacheStore, "holders/", logger),
		cfg:           cfg,
		metrics:       metrics,
		logger:        logger,
	}
}

// Run starts the server and handles incoming requests. This method blocks until the context is cancelled, or a server error occurs.
func (s *Server) Run(ctx context.Context) error {
	s.cfg.SetDefaults()

	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("failed to validate configuration: %w", err)
	}

	router := s.router()

	readHeaderTimeout := 2 * time.Second
	requestTimeout := s.cfg.RequestTimeout
	timeoutWiggleRoom := time.Second

	var handler http.Handler

	if loggingHandler := s.logger.HttpLoggingHandler(); loggingHandler != nil {
		handler = handlers.LoggingHandler(loggingHandler, router)
	} else {
		handler = router
	}

	timeoutHandler := http.TimeoutHandler(handler, requestTimeout, "Handler timeout")
	listenAddr := fmt.Sprintf(":%s", s.cfg.Port)

	srv := &http.Server{
		Handler:           timeoutHandler,
		Addr:              listenAddr,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readHeaderTimeout + requestTimeout + timeoutWiggleRoom,
		WriteTimeout:      requestTimeout + timeoutWiggleRoom,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.
		WithField("write_timeout", fmt.Sprintf("%v", srv.WriteTimeout)).
		WithField("read_timeout", fmt.Sprintf("%v", srv.ReadTimeout)).
		WithField("read_header_timeout", fmt.Sprintf("%v", srv.ReadHeaderTimeout)).
		WithField("request_timeout", fmt.Sprintf("%v", requestTimeout)).
		Infof("API available on port %s", s.cfg.Port)

	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		return srv.ListenAndServe()
	})

	errg.Go(func() error {
		<-ctx.Done()
		if err := srv.Close(); err != nil {
			s.logger.Errorf("Failed to close http server: %s", err)
		}
		return nil
	})

	if err := errg.Wait(); err != nil {
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}

	return nil
}

func (s *Server) router() *mux.Router {
	router := mux.NewRouter()

	// Lock inspection and forced release
	router.HandleFunc("/locks/{prefix}/{name}", s.holders).Methods("GET")
	router.HandleFunc("/locks/{prefix}/{name}/release", s.release).Methods("POST")

	// Ping
	router.HandleFunc("/ping", s.ping).Methods("GET")

	// Prometheus scrape endpoint, only when a real registry is behind Metrics
	if pm, ok := s.metrics.(*common.PrometheusMetrics); ok {
		router.Handle("/metrics", promhttp.HandlerFor(pm.Registry(), promhttp.HandlerOpts{})).Methods("GET")
	}

	return router
}

// lockVars extracts and validates the prefix and name path variables, and
// resolves the coordinator for the prefix. Unknown prefixes are reported as
// 404, not 400: the set of valid collections is fixed.
//
//nolint:ireturn // resolves to the Coordinator interface by design
func (s *Server) lockVars(resp http.ResponseWriter, req *http.Request, started time.Time) (locking.Coordinator, locking.Prefix, string, bool) {
	vars := mux.Vars(req)
	prefix := locking.Prefix(vars["prefix"])
	name := vars["name"]

	coordinator, ok := s.coordinators[prefix]
	if !ok {
		err := fmt.Errorf("unknown lock prefix %q", prefix)
		s.writeErrorResponse(err, http.StatusNotFound, resp, req, started)

		return nil, "", "", false
	}

	return coordinator, prefix, name, true
}

func (s *Server) writeErrorResponse(clientErr error, statusCode int, resp http.ResponseWriter, req *http.Request, started time.Time) {
	errText := clientErr.Error()

	if len(errText) > 1 {
		errText = strings.ToUpper(string(errText[0])) + errText[1:]
	}

	if statusCode < 500 {
		s.logger.Infof("Request failed: %s", errText)
	} else {
		s.logger.Errorf("Request failed: %s", errText)
	}

	resp.Header().Add("Content-Type", "text/plain")
	resp.WriteHeader(statusCode)

	if _, err := resp.Write([]byte(errText)); err != nil {
		s.logger.Errorf("Failed to write error response: %s", err)
	}

	s.metrics.AddHTTPRequestMetric(req.URL.Path, req.Method, statusCode, time.Since(started))
}

func (s *Server) getRateLimiter(key string) *rate.Limiter {
	s.limitersLock.Lock()
	defer s.limitersLock.Unlock()

	limiter, ok := s.limitersByKey[key]

	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.ReleasesPerSecond), s.cfg.ReleaseBurst)
		s.limitersByKey[key] = limiter
	}

	return limiter
}
