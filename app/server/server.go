// Package server provides the web API for training and categorization. It guards the
// model with rate limiting and optional basic auth, and caches categorization results
// until the next model mutation.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/didip/tollbooth/v8"
	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/docclass/lib/classifier"
)

var categoryPattern = regexp.MustCompile(`^[-_A-Za-z0-9]+$`)

const defaultCacheTTL = 5 * time.Minute

// Model is the classifier holder interface used by the server.
type Model interface {
	Learn(ctx context.Context, text, category string) error
	Categorize(text string) (string, bool)
	CategorizeMultiple(text string, limit int) []classifier.Match
	Stats() classifier.Stats
	Snapshot(ctx context.Context) (int64, error)
	Restore(ctx context.Context, id int64) error
	Reset() error
}

// Server is a web API server.
type Server struct {
	Config
	cache cache.Cache[string, []classifier.Match]
}

// Config defines server parameters
type Config struct {
	Version    string        // version to show in app info
	ListenAddr string        // listen address
	Model      Model         // the live classifier holder
	AuthPasswd string        // basic auth password for user "docclass", disabled if empty
	CacheTTL   time.Duration // ttl for categorization result cache
	Dbg        bool          // debug mode
}

// New creates a web API server.
func New(config Config) *Server {
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Server{
		Config: config,
		cache:  cache.NewCache[string, []classifier.Match]().WithMaxKeys(10000).WithTTL(ttl),
	}
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	router := routegroup.New(http.NewServeMux())
	router.Use(rest.Recoverer(lgr.Default()))
	router.Use(rest.AppInfo("docclass", "umputun", s.Version), rest.Ping)
	router.Use(tollbooth.HTTPMiddleware(tollbooth.NewLimiter(50, nil)))
	router.Use(rest.SizeLimit(1024 * 1024)) // 1M max request size

	if s.AuthPasswd != "" {
		log.Printf("[INFO] basic auth enabled for web api")
		router.Use(rest.BasicAuthWithPrompt("docclass", s.AuthPasswd))
	} else {
		log.Printf("[WARN] basic auth disabled, access to web api is not protected")
	}

	s.routes(router)

	srv := &http.Server{Addr: s.ListenAddr, Handler: router, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown web api server: %v", err)
			return
		}
		log.Printf("[INFO] web api server stopped")
	}()

	log.Printf("[INFO] start web api server on %s", s.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to run server: %w", err)
	}
	return nil
}

func (s *Server) routes(router *routegroup.Bundle) {
	router.HandleFunc("POST /learn/{category}", s.learnHandler)
	router.HandleFunc("POST /categorize", s.categorizeHandler)
	router.HandleFunc("POST /categorize/multi", s.categorizeMultiHandler)
	router.HandleFunc("GET /info", s.infoHandler)
	router.HandleFunc("POST /model/snapshot", s.snapshotHandler)
	router.HandleFunc("POST /model/restore", s.restoreHandler)
	router.HandleFunc("POST /reset", s.resetHandler)
}

// textRequest is the body of learn and categorize calls.
type textRequest struct {
	Text  string `json:"text"`
	Limit int    `json:"limit,omitempty"` // categorize/multi only
}

// learnHandler handles POST /learn/{category} - trains the model with one document.
func (s *Server) learnHandler(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	if !categoryPattern.MatchString(category) {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "invalid category name"})
		return
	}

	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	if err := s.Model.Learn(r.Context(), req.Text, category); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "failed to learn", "details": err.Error()})
		log.Printf("[WARN] failed to learn %q document: %v", category, err)
		return
	}
	s.cache.Purge()

	rest.RenderJSON(w, rest.JSON{"success": true, "categories": s.Model.Stats().Categories})
}

// categorizeHandler handles POST /categorize - returns the top match for the text.
func (s *Server) categorizeHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	matches := s.matches(req.Text, 1)
	if len(matches) == 0 {
		rest.RenderJSON(w, rest.JSON{"found": false})
		return
	}
	rest.RenderJSON(w, rest.JSON{"found": true, "category": matches[0].Category, "score": matches[0].Score})
}

// categorizeMultiHandler handles POST /categorize/multi - returns ranked matches,
// up to the limit from the query parameter or the request body.
func (s *Server) categorizeMultiHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	limit := req.Limit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			rest.RenderJSON(w, rest.JSON{"error": "invalid limit", "details": err.Error()})
			return
		}
		limit = parsed
	}
	rest.RenderJSON(w, rest.JSON{"matches": s.matches(req.Text, limit)})
}

// infoHandler handles GET /info - returns the model summary.
func (s *Server) infoHandler(w http.ResponseWriter, _ *http.Request) {
	rest.RenderJSON(w, s.Model.Stats())
}

// snapshotHandler handles POST /model/snapshot - persists the current model state.
func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	id, err := s.Model.Snapshot(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "failed to save snapshot", "details": err.Error()})
		log.Printf("[WARN] failed to save snapshot: %v", err)
		return
	}
	rest.RenderJSON(w, rest.JSON{"success": true, "id": id})
}

// restoreHandler handles POST /model/restore - replaces the live model with a
// persisted snapshot, the latest one unless an id query parameter is given.
func (s *Server) restoreHandler(w http.ResponseWriter, r *http.Request) {
	var id int64
	if v := r.URL.Query().Get("id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			rest.RenderJSON(w, rest.JSON{"error": "invalid snapshot id", "details": err.Error()})
			return
		}
		id = parsed
	}

	if err := s.Model.Restore(r.Context(), id); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "failed to restore snapshot", "details": err.Error()})
		log.Printf("[WARN] failed to restore snapshot: %v", err)
		return
	}
	s.cache.Purge()

	rest.RenderJSON(w, rest.JSON{"success": true, "categories": s.Model.Stats().Categories})
}

// resetHandler handles POST /reset - swaps in a fresh empty classifier.
func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Model.Reset(); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "failed to reset model", "details": err.Error()})
		return
	}
	s.cache.Purge()
	rest.RenderJSON(w, rest.JSON{"success": true})
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (textRequest, bool) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "can't decode request", "details": err.Error()})
		log.Printf("[WARN] can't decode request: %v", err)
		return textRequest{}, false
	}
	return req, true
}

// matches returns ranked matches for the text, served from the cache when the model
// hasn't changed since the same query.
func (s *Server) matches(text string, limit int) []classifier.Match {
	key := fmt.Sprintf("%x:%d", sha256.Sum256([]byte(text)), limit)
	if cached, ok := s.cache.Get(key); ok {
		return cached
	}
	res := s.Model.CategorizeMultiple(text, limit)
	s.cache.Set(key, res, 0) // 0 ttl means the cache default
	return res
}
