package report

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/banshee-data/roadtrip/internal/cache"
	"github.com/banshee-data/roadtrip/internal/httputil"
	"github.com/banshee-data/roadtrip/internal/monitoring"
	"github.com/banshee-data/roadtrip/internal/stats"
	"github.com/banshee-data/roadtrip/internal/subject"
)

// Server serves the published views straight from the stage cache.
type Server struct {
	store    *cache.Store
	subjects []subject.Subject
}

// NewServer returns a server over store for the catalog subjects.
func NewServer(store *cache.Store, subjects []subject.Subject) *Server {
	return &Server{store: store, subjects: subjects}
}

// Routes mounts the report handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleLeaderboardPage)
	mux.HandleFunc("/api/leaderboards", s.handleLeaderboards)
	mux.HandleFunc("/api/summaries", s.handleSummaries)
	mux.HandleFunc("/api/subjects", s.handleSubjects)
	mux.HandleFunc("/api/subjects/", s.handleSubject)
	mux.HandleFunc("/artifacts/", s.handleArtifact)
}

func (s *Server) leaderboards() ([]stats.Leaderboard, error) {
	var boards []stats.Leaderboard
	err := s.store.GetShared(cache.LeaderboardsDoc, &boards)
	return boards, err
}

func (s *Server) handleLeaderboardPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	boards, err := s.leaderboards()
	if cache.IsMiss(err) || (err == nil && len(boards) == 0) {
		httputil.NotFound(w, "leaderboards have not been published")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := RenderLeaderboards(&buf, boards); err != nil {
		monitoring.Logf("leaderboard page: %v", err)
		httputil.InternalServerError(w, "failed to render leaderboards")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleLeaderboards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	boards, err := s.leaderboards()
	if cache.IsMiss(err) {
		httputil.NotFound(w, "leaderboards have not been published")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, boards)
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	var summaries []stats.Summary
	err := s.store.GetShared(cache.SummariesDoc, &summaries)
	if cache.IsMiss(err) {
		httputil.NotFound(w, "summaries have not been published")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, summaries)
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	payloads, err := Payloads(s.store, s.subjects)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, payloads)
}

func (s *Server) handleSubject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/api/subjects/")
	sub, ok := s.lookup(key)
	if !ok {
		httputil.NotFound(w, "unknown subject")
		return
	}
	p, err := PayloadFor(s.store, sub)
	if cache.IsMiss(err) {
		httputil.NotFound(w, "no summary for "+key)
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, p)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	key := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/artifacts/"), ".png")
	if _, ok := s.lookup(key); !ok {
		httputil.NotFound(w, "unknown subject")
		return
	}
	data, err := s.store.Get(key, cache.StageArtifact)
	if cache.IsMiss(err) {
		httputil.NotFound(w, "no artifact for "+key)
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (s *Server) lookup(key string) (subject.Subject, bool) {
	for _, sub := range s.subjects {
		if sub.Key() == key {
			return sub, true
		}
	}
	return subject.Subject{}, false
}
