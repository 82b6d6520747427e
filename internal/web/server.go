// Package web serves the admin HTTP API of the bot together with its health
// and metrics endpoints.
//
// Routes under /api require HTTP Basic credentials and are only mounted when
// credentials are configured. /healthz, /readyz and /metrics are open so that
// orchestrators and scrapers can reach them.
//
//	GET    /api/dictionary                       engine user dictionary
//	POST   /api/dictionary                       upsert {word, reading}
//	DELETE /api/dictionary/{id}                  delete one engine entry
//	GET    /api/guilds/{guildID}/settings        guild settings document
//	PUT    /api/guilds/{guildID}/settings        merge fields into the document
//	PUT    /api/guilds/{guildID}/autojoin/{bot}  set one bot instance's pairing
//	DELETE /api/guilds/{guildID}/autojoin/{bot}  clear one bot instance's pairing
//	GET    /api/reading?text=                    reading suggestion
package web

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/rs/cors"

	"github.com/MrWong99/sumirevox/internal/dictionary"
	"github.com/MrWong99/sumirevox/internal/health"
	"github.com/MrWong99/sumirevox/internal/keylock"
	"github.com/MrWong99/sumirevox/internal/observe"
	"github.com/MrWong99/sumirevox/internal/reading"
	"github.com/MrWong99/sumirevox/internal/settings"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Compile-time interface assertions.
var (
	_ Dictionary       = (*dictionary.Reconciler)(nil)
	_ Settings         = (*settings.Store)(nil)
	_ ReadingSuggester = (*reading.Suggester)(nil)
)

// Dictionary is the part of [dictionary.Reconciler] the API uses.
type Dictionary interface {
	List(ctx context.Context) ([]dictionary.Entry, error)
	UpsertWord(ctx context.Context, surface, reading string) (*dictionary.UpsertResult, error)
	DeleteWord(ctx context.Context, id string) error
}

// Settings is the part of [settings.Store] the API uses.
type Settings interface {
	Get(ctx context.Context, guildID int64) (settings.GuildSettings, error)
	Set(ctx context.Context, guildID int64, gs settings.GuildSettings) error
	SetAutoJoinPairing(ctx context.Context, guildID int64, botInstanceID string, voiceChannelID, textChannelID int64) error
	ClearAutoJoinPairing(ctx context.Context, guildID int64, botInstanceID string) error
}

// ReadingSuggester proposes readings for words.
type ReadingSuggester interface {
	Suggest(text string) reading.Suggestion
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithDictionary mounts the dictionary routes.
func WithDictionary(d Dictionary) Option {
	return func(s *Server) { s.dict = d }
}

// WithSettings mounts the guild routes.
func WithSettings(st Settings) Option {
	return func(s *Server) { s.settings = st }
}

// WithReading mounts the reading suggestion route.
func WithReading(rs ReadingSuggester) Option {
	return func(s *Server) { s.reading = rs }
}

// WithGuildLocks shares the per-guild locks with other writers in the
// process, such as the Discord commands. Without it the server uses its own.
func WithGuildLocks(l *keylock.Map[int64]) Option {
	return func(s *Server) { s.locks = l }
}

// WithBasicAuth sets the admin credentials. The /api routes are not mounted
// unless both are non-empty.
func WithBasicAuth(user, password string) Option {
	return func(s *Server) {
		s.user = sha256.Sum256([]byte(user))
		s.password = sha256.Sum256([]byte(password))
		s.authEnabled = user != "" && password != ""
	}
}

// WithCORS allows browser calls from origins.
func WithCORS(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics overrides the metrics instance used by the request middleware.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server holds the API dependencies. Build the handler with [Server.Handler].
type Server struct {
	dict     Dictionary
	settings Settings
	reading  ReadingSuggester
	locks    *keylock.Map[int64]

	authEnabled    bool
	user, password [sha256.Size]byte
	corsOrigins    []string

	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{}
	for _, o := range opts {
		o(s)
	}
	if s.locks == nil {
		s.locks = &keylock.Map[int64]{}
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed handler wrapped in tracing, metrics, logging and
// CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	if s.authEnabled {
		if s.dict != nil {
			mux.Handle("GET /api/dictionary", s.requireAuth(s.listDictionary))
			mux.Handle("POST /api/dictionary", s.requireAuth(s.upsertDictionary))
			mux.Handle("DELETE /api/dictionary/{id}", s.requireAuth(s.deleteDictionary))
		}
		if s.settings != nil {
			mux.Handle("GET /api/guilds/{guildID}/settings", s.requireAuth(s.getGuildSettings))
			mux.Handle("PUT /api/guilds/{guildID}/settings", s.requireAuth(s.putGuildSettings))
			mux.Handle("PUT /api/guilds/{guildID}/autojoin/{botID}", s.requireAuth(s.putAutoJoin))
			mux.Handle("DELETE /api/guilds/{guildID}/autojoin/{botID}", s.requireAuth(s.deleteAutoJoin))
		}
		if s.reading != nil {
			mux.Handle("GET /api/reading", s.requireAuth(s.suggestReading))
		}
	}

	var h http.Handler = observe.Middleware(s.metrics)(mux)
	if len(s.corsOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}).Handler(h)
	}
	return h
}

// requireAuth checks HTTP Basic credentials. Both sides are hashed before the
// constant-time comparison so their lengths do not leak.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		u := sha256.Sum256([]byte(user))
		p := sha256.Sum256([]byte(pass))
		userOK := subtle.ConstantTimeCompare(u[:], s.user[:]) == 1
		passOK := subtle.ConstantTimeCompare(p[:], s.password[:]) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="sumirevox", charset="UTF-8"`)
			writeProblem(w, Problem{
				Title:  "unauthorized",
				Status: http.StatusUnauthorized,
				Detail: "valid admin credentials are required",
			})
			return
		}
		next(w, r)
	})
}
