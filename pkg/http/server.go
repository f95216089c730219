package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"ContagionRadar/pkg/http/middleware"
	applogger "ContagionRadar/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerOption func(*serverOptions)

type serverOptions struct {
	host          string
	port          int
	read, write   time.Duration
	shutdown      time.Duration
	corsOrigins   []string
	metricsPath   string
	slowThreshold time.Duration
	log           *applogger.Logger
	reg           prometheus.Registerer
	gatherer      prometheus.Gatherer
}

func WithHost(host string) ServerOption {
	return func(o *serverOptions) { o.host = host }
}

// WithPort sets the listen port; 0 picks a free one, see Server.Addr.
func WithPort(port int) ServerOption {
	return func(o *serverOptions) { o.port = port }
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.read, o.write, o.shutdown = read, write, shutdown
	}
}

// WithCORSOrigins sets the allowed origins; none disables CORS.
func WithCORSOrigins(origins ...string) ServerOption {
	return func(o *serverOptions) { o.corsOrigins = origins }
}

// WithMetricsPath sets where Prometheus metrics are exposed; empty disables it.
func WithMetricsPath(path string) ServerOption {
	return func(o *serverOptions) { o.metricsPath = path }
}

func WithSlowThreshold(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.slowThreshold = d }
}

func WithLogger(l *applogger.Logger) ServerOption {
	return func(o *serverOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithRegistry registers HTTP metrics on reg and serves /metrics from gatherer.
func WithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) ServerOption {
	return func(o *serverOptions) { o.reg, o.gatherer = reg, gatherer }
}

// Server is the Echo instance every Handler registers on.
type Server struct {
	echo *echo.Echo
	opts serverOptions
	log  *applogger.Logger
	ln   net.Listener
	done chan struct{}
}

func NewServer(handlers []Handler, opts ...ServerOption) *Server {
	o := serverOptions{
		host:          "0.0.0.0",
		port:          8080,
		read:          10 * time.Second,
		write:         10 * time.Second,
		shutdown:      10 * time.Second,
		corsOrigins:   []string{"*"},
		metricsPath:   "/metrics",
		slowThreshold: 500 * time.Millisecond,
		log:           applogger.Nop(),
		reg:           prometheus.DefaultRegisterer,
		gatherer:      prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner, e.HidePort = true, true
	e.Server.ReadTimeout = o.read
	e.Server.ReadHeaderTimeout = o.read
	e.Server.WriteTimeout = o.write
	e.Server.Handler = e

	e.Use(
		middleware.RequestID(),
		middleware.RequestLogging(o.log),
		middleware.NewHTTPMetrics(o.reg).Middleware(o.log, o.slowThreshold),
		middleware.Recover(o.log),
	)
	if len(o.corsOrigins) > 0 {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: o.corsOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			MaxAge:       600,
		}))
	}

	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
	if o.metricsPath != "" {
		e.GET(o.metricsPath, echo.WrapHandler(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{
		echo: e,
		opts: o,
		log:  o.log.With(applogger.String("component", "http_server")),
		done: make(chan struct{}),
	}
}

// Start binds the listen address and serves in the background. Bind errors
// are returned to the caller.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.opts.host, strconv.Itoa(s.opts.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.log.Info("listening", applogger.String("addr", ln.Addr().String()))

	go func() {
		defer close(s.done)
		if err := s.echo.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", applogger.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop drains in-flight requests, bounded by the shutdown timeout when ctx
// has no deadline.
func (s *Server) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.shutdown)
		defer cancel()
	}
	if err := s.echo.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if s.ln != nil {
		<-s.done
	}
	s.log.Info("stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}
