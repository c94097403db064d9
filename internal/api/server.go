package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/maciej-or/hikvision-next/internal/bridge"
	"github.com/maciej-or/hikvision-next/internal/device"
)

// Server owns the HTTP surface: the REST API, the alarm intake devices push
// to, health, metrics and the live event stream.
type Server struct {
	mgr      *device.Manager
	notifier *bridge.Notifier
	pub      *bridge.Publisher // nil when NATS is not configured
	dedup    *bridge.Dedup
	window   time.Duration
	log      zerolog.Logger
}

func NewServer(mgr *device.Manager, notifier *bridge.Notifier, pub *bridge.Publisher, dedup *bridge.Dedup, window time.Duration, log zerolog.Logger) *Server {
	return &Server{
		mgr:      mgr,
		notifier: notifier,
		pub:      pub,
		dedup:    dedup,
		window:   window,
		log:      log,
	}
}

// Router assembles the chi tree. The websocket stream is registered outside
// the timeout group; a stream held open longer than a request timeout is the
// point of it.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	streams := NewStreamHandler(s.notifier, s.log)
	r.Get("/api/events/stream", streams.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))

		intake := NewNotificationHandler(s.mgr, s.notifier, s.pub, s.dedup, s.window, s.log)
		// Factory-configured devices push to /, ours are pointed at the
		// explicit path. Both land in the same intake.
		r.Post("/", intake.Receive)
		r.Post(device.AlarmPath, intake.Receive)

		devices := NewDeviceHandler(s.mgr, s.log)
		r.Route("/api/devices", func(r chi.Router) {
			r.Get("/", devices.List)
			r.Route("/{serial}", func(r chi.Router) {
				r.Get("/", devices.Get)
				r.Get("/cameras", devices.Cameras)
				r.Get("/cameras/{id}/snapshot", devices.Snapshot)
				r.Get("/events", devices.Events)
				r.Put("/events/{uniqueID}", devices.SetEventEnabled)
				r.Get("/storage", devices.Storage)
				r.Post("/reboot", devices.Reboot)
				r.Post("/isapi", devices.RawISAPI)
			})
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
