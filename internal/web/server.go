// Package web exposes the review service over a JSON HTTP API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/conorfennell/examprep/internal/domain"
	"github.com/conorfennell/examprep/internal/sm2"
	"github.com/conorfennell/examprep/internal/storage"
	"github.com/conorfennell/examprep/internal/sync"
	"github.com/go-playground/validator/v10"
)

const defaultDueLimit = 20

// Reviews is the review service used by the handlers.
type Reviews interface {
	Review(ctx context.Context, cardID string, q sm2.Quality) (domain.ReviewLog, error)
	Due(ctx context.Context, limit int) ([]domain.ScheduledCard, error)
	Card(ctx context.Context, cardID string) (domain.ScheduledCard, error)
	Preview(ctx context.Context, cardID string) (map[sm2.Quality]sm2.State, error)
	History(ctx context.Context, cardID string) ([]domain.ReviewLog, error)
	Stats(ctx context.Context) (domain.DeckStats, error)
}

// Sources lists and removes deck sources.
type Sources interface {
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	DeleteSource(ctx context.Context, sourceID int64) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	reviews  Reviews
	sources  Sources
	syncer   *sync.Syncer
	router   *http.ServeMux
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(reviews Reviews, sources Sources, syncer *sync.Syncer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		reviews:  reviews,
		sources:  sources,
		syncer:   syncer,
		router:   http.NewServeMux(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth())

	s.router.HandleFunc("GET /api/deck", s.handleGetDeck())
	s.router.HandleFunc("GET /api/cards/due", s.handleGetDue())
	s.router.HandleFunc("GET /api/cards/{id}", s.handleGetCard())
	s.router.HandleFunc("GET /api/cards/{id}/preview", s.handleGetPreview())
	s.router.HandleFunc("GET /api/cards/{id}/reviews", s.handleGetReviews())
	s.router.HandleFunc("POST /api/cards/{id}/reviews", s.handlePostReview())

	s.router.HandleFunc("GET /api/sources", s.handleGetSources())
	s.router.HandleFunc("POST /api/sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /api/sync", s.handlePostSync())
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleGetDeck reports how many cards are new, in progress and due.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.reviews.Stats(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// handleGetDue lists due cards, earliest first.
func (s *Server) handleGetDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultDueLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
				return
			}
			limit = n
		}
		cards, err := s.reviews.Due(r.Context(), limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if cards == nil {
			cards = []domain.ScheduledCard{}
		}
		writeJSON(w, http.StatusOK, cards)
	}
}

func (s *Server) handleGetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.reviews.Card(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}

// handleGetPreview shows the schedule each answer would produce.
func (s *Server) handleGetPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		preview, err := s.reviews.Preview(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out := make(map[string]sm2.State, len(preview))
		for q, state := range preview {
			out[strconv.Itoa(int(q))] = state
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleGetReviews() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := s.reviews.History(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if logs == nil {
			logs = []domain.ReviewLog{}
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

type reviewRequest struct {
	Quality *float64 `json:"quality" validate:"required"`
}

// handlePostReview records a review. The quality is read from a JSON body,
// or from the "quality" form value for form posts.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			q   sm2.Quality
			err error
		)
		if isForm(r) {
			q, err = sm2.ParseQualityString(r.PostFormValue("quality"))
		} else {
			var req reviewRequest
			if !s.decode(w, r, &req) {
				return
			}
			q, err = sm2.ParseQuality(*req.Quality)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		log, err := s.reviews.Review(r.Context(), r.PathValue("id"), q)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, log)
	}
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.sources.GetAllSources(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if sources == nil {
			sources = []storage.Source{}
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

type addSourceRequest struct {
	Path string `json:"path" validate:"required"`
}

func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addSourceRequest
		if !s.decode(w, r, &req) {
			return
		}
		src, err := s.syncer.AddSource(r.Context(), req.Path)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, src)
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid source ID"})
			return
		}
		if err := s.sources.DeleteSource(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type syncResponse struct {
	Sources []sourceReport `json:"sources"`
	Errors  []string       `json:"errors"`
}

type sourceReport struct {
	SourceID   int64  `json:"source_id"`
	Path       string `json:"path"`
	Parsed     int    `json:"parsed"`
	Inserted   int    `json:"inserted"`
	Deleted    int    `json:"deleted"`
	Incomplete bool   `json:"incomplete"`
}

// handlePostSync runs a sync in the foreground and reports what changed.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := s.syncer.Run(r.Context())
		resp := syncResponse{Sources: []sourceReport{}, Errors: []string{}}
		for _, rep := range reports {
			resp.Sources = append(resp.Sources, sourceReport{
				SourceID:   rep.SourceID,
				Path:       rep.Path,
				Parsed:     rep.Parsed,
				Inserted:   rep.Inserted,
				Deleted:    rep.Deleted,
				Incomplete: rep.Incomplete,
			})
		}
		if err != nil {
			s.logger.Warn("Sync finished with errors", "error", err)
			resp.Errors = append(resp.Errors, err.Error())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
