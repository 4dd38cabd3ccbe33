package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/laptop-assistant/internal/adapter/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/tabular"
	"github.com/fairyhunter13/laptop-assistant/internal/config"
	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	obsctx "github.com/fairyhunter13/laptop-assistant/internal/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/usecase"
)

// Conversation drives one chat turn.
type Conversation interface {
	InitializeConversation() domain.ConversationState
	AdvanceConversation(ctx context.Context, state domain.ConversationState, userMessage string) (domain.Reply, domain.ConversationState, error)
}

// Ingestor runs the catalog ingestion pipeline.
type Ingestor interface {
	RunIngestion(ctx context.Context, filePath string, progress usecase.ProgressFunc) (usecase.IngestionReport, error)
	RunIngestionFromObject(ctx context.Context, remoteName string, progress usecase.ProgressFunc) (usecase.IngestionReport, error)
}

// Ranker maps and scores a catalog against a profile.
type Ranker interface {
	MapAndScore(ctx context.Context, catalog []domain.Product, user domain.Profile) ([]domain.ScoredProduct, error)
}

// ReadinessCheck is one named dependency check for /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server aggregates handlers dependencies.
type Server struct {
	Cfg          config.Config
	Sessions     domain.SessionStore
	Conversation Conversation
	Ingestion    Ingestor
	Ranker       Ranker
	Catalog      domain.CatalogStore
	Checks       []ReadinessCheck
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, sessions domain.SessionStore, conv Conversation, ingest Ingestor, ranker Ranker, catalog domain.CatalogStore, checks ...ReadinessCheck) *Server {
	return &Server{Cfg: cfg, Sessions: sessions, Conversation: conv, Ingestion: ingest, Ranker: ranker, Catalog: catalog, Checks: checks}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New()
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		registerValidations(vld)
	})
	return vld
}

func containsFold(s, sub string) bool { return strings.Contains(strings.ToLower(s), sub) }

// decodeJSON caps the body, decodes it into dst and validates struct tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
		return false
	}
	if err := getValidator().Struct(dst); err != nil {
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
		return false
	}
	return true
}

type chatRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,sessionid"`
	Message   string `json:"message" validate:"required"`
}

type chatResponse struct {
	SessionID       string                 `json:"session_id"`
	Message         string                 `json:"message"`
	Phase           domain.Phase           `json:"phase"`
	Reason          string                 `json:"reason,omitempty"`
	Flagged         bool                   `json:"flagged,omitempty"`
	Degraded        bool                   `json:"degraded,omitempty"`
	Recommendations []domain.ScoredProduct `json:"recommendations,omitempty"`
}

// loadSession returns the stored state for id, or a fresh one when id is empty.
func (s *Server) loadSession(ctx context.Context, id string) (domain.ConversationState, error) {
	if id == "" {
		return s.Conversation.InitializeConversation(), nil
	}
	st, err := s.Sessions.Load(ctx, id)
	if err != nil {
		return domain.ConversationState{}, err
	}
	return st, nil
}

// ChatHandler applies one user message to a conversation session.
// A missing session_id starts a new conversation; an unknown one is 404.
func (s *Server) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		var req chatRequest
		if !decodeJSON(w, r, 64<<10, &req) {
			return
		}
		msg := SanitizeMessage(req.Message)
		if msg == "" {
			writeError(w, r, fmt.Errorf("%w: message is empty", domain.ErrInvalidArgument), map[string]string{"message": "required"})
			return
		}
		ctx := r.Context()
		state, err := s.loadSession(ctx, req.SessionID)
		if err != nil {
			writeError(w, r, fmt.Errorf("load session: %w", err), map[string]string{"session_id": req.SessionID})
			return
		}
		lg := obsctx.LoggerFromContext(ctx).With(slog.String("session_id", state.ID))
		ctx = obsctx.ContextWithLogger(ctx, lg)

		reply, next, err := s.Conversation.AdvanceConversation(ctx, state, msg)
		if err != nil {
			writeError(w, r, fmt.Errorf("advance conversation: %w", err), nil)
			return
		}
		if err := s.Sessions.Save(ctx, next); err != nil {
			writeError(w, r, fmt.Errorf("save session: %w", err), nil)
			return
		}
		observability.ObserveTurn(string(reply.Phase), reply.Flagged, reply.Degraded, len(reply.Recommendations) > 0)
		writeJSON(w, http.StatusOK, chatResponse{
			SessionID:       next.ID,
			Message:         reply.Message,
			Phase:           reply.Phase,
			Reason:          reply.Reason,
			Flagged:         reply.Flagged,
			Degraded:        reply.Degraded,
			Recommendations: reply.Recommendations,
		})
	}
}

type resetRequest struct {
	SessionID string `json:"session_id" validate:"required,sessionid"`
}

// ResetHandler replaces a session with a fresh conversation under the same id.
func (s *Server) ResetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		var req resetRequest
		if !decodeJSON(w, r, 4<<10, &req) {
			return
		}
		fresh := s.Conversation.InitializeConversation()
		fresh.ID = req.SessionID
		if err := s.Sessions.Save(r.Context(), fresh); err != nil {
			writeError(w, r, fmt.Errorf("reset session: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"session_id": fresh.ID, "phase": string(fresh.Phase)})
	}
}

type transcriptResponse struct {
	SessionID string           `json:"session_id"`
	Phase     domain.Phase     `json:"phase"`
	Profile   *domain.Profile  `json:"profile,omitempty"`
	Messages  []domain.Message `json:"messages"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// TranscriptHandler returns a session's history without the system instruction.
func (s *Server) TranscriptHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if !ValidSessionID(id) {
			writeError(w, r, fmt.Errorf("%w: invalid session id", domain.ErrInvalidArgument), map[string]string{"id": id})
			return
		}
		st, err := s.Sessions.Load(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		msgs := make([]domain.Message, 0, len(st.Messages))
		for _, m := range st.Messages {
			if m.Role != domain.RoleSystem {
				msgs = append(msgs, m)
			}
		}
		writeJSON(w, http.StatusOK, transcriptResponse{SessionID: st.ID, Phase: st.Phase, Profile: st.Profile, Messages: msgs, UpdatedAt: st.UpdatedAt})
	}
}

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// allowedMIMEFor checks the sniffed content type against the file extension.
func allowedMIMEFor(m, filename string) bool {
	m = strings.ToLower(m)
	switch strings.ToLower(filepath.Ext(filename)) {
	case tabular.ExtCSV:
		return strings.HasPrefix(m, "text/")
	case tabular.ExtXLSX:
		return m == xlsxMIME || m == "application/zip"
	case tabular.ExtParquet:
		return m == "application/vnd.apache.parquet" || m == "application/x-parquet" || m == "application/octet-stream"
	}
	return false
}

type ingestObjectRequest struct {
	Object string `json:"object" validate:"required,max=512"`
}

// IngestHandler ingests a catalog file. A multipart body uploads the file
// under the "file" field; a JSON body {"object": name} ingests a file that
// is already in object storage.
func (s *Server) IngestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		ct := r.Header.Get("Content-Type")
		switch {
		case strings.Contains(ct, "multipart/form-data"):
			s.ingestUpload(w, r)
		case strings.Contains(ct, "application/json"):
			var req ingestObjectRequest
			if !decodeJSON(w, r, 4<<10, &req) {
				return
			}
			if !tabular.Supported(req.Object) {
				writeError(w, r, fmt.Errorf("%w: unsupported catalog format", domain.ErrInvalidArgument), map[string]string{"object": req.Object})
				return
			}
			rep, err := s.Ingestion.RunIngestionFromObject(r.Context(), req.Object, logProgress(r.Context()))
			s.finishIngest(w, r, rep, err)
		default:
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data or application/json", domain.ErrInvalidArgument), nil)
		}
	}
}

func (s *Server) ingestUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(strings.ToLower(err.Error()), "too large") {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
				Code: "INVALID_ARGUMENT", Message: "payload too large", Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
			}})
			return
		}
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: file required", domain.ErrInvalidArgument), map[string]string{"field": "file"})
		return
	}
	defer func() { _ = file.Close() }()

	name := filepath.Base(header.Filename)
	if !tabular.Supported(name) {
		writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{
			Code: "INVALID_ARGUMENT", Message: "unsupported media type (extension)", Details: map[string]any{"filename": name},
		}})
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: read upload: %v", domain.ErrInvalidArgument, err), nil)
		return
	}
	mt := mimetype.Detect(data)
	if !allowedMIMEFor(mt.String(), name) {
		writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{
			Code: "INVALID_ARGUMENT", Message: "unsupported media type (content)", Details: map[string]any{"mime": mt.String(), "filename": name},
		}})
		return
	}

	dir, err := os.MkdirTemp("", "upload-*")
	if err != nil {
		writeError(w, r, fmt.Errorf("ingest temp dir: %w", err), nil)
		return
	}
	defer func() { _ = os.RemoveAll(dir) }()
	local := filepath.Join(dir, name)
	if err := os.WriteFile(local, data, 0o600); err != nil {
		writeError(w, r, fmt.Errorf("ingest temp file: %w", err), nil)
		return
	}
	rep, err := s.Ingestion.RunIngestion(r.Context(), local, logProgress(r.Context()))
	s.finishIngest(w, r, rep, err)
}

func (s *Server) finishIngest(w http.ResponseWriter, r *http.Request, rep usecase.IngestionReport, err error) {
	observability.ObserveIngestion(rep.Rows, err)
	if err != nil {
		writeError(w, r, fmt.Errorf("ingest: %w", err), map[string]string{"run_id": rep.RunID, "file": rep.File})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func logProgress(ctx context.Context) usecase.ProgressFunc {
	lg := obsctx.LoggerFromContext(ctx)
	return func(p usecase.Progress) {
		lg.Debug("ingestion progress",
			slog.String("run_id", p.RunID),
			slog.String("stage", p.Stage),
			slog.Int("done", p.Done),
			slog.Int("total", p.Total))
	}
}

type recommendRequest struct {
	Profile map[string]any `json:"profile" validate:"required"`
	Limit   int            `json:"limit" validate:"omitempty,min=1,max=100"`
}

// RecommendHandler ranks the stored catalog against a complete profile.
func (s *Server) RecommendHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		var req recommendRequest
		if !decodeJSON(w, r, 16<<10, &req) {
			return
		}
		minBudget := s.Cfg.MinBudget
		if minBudget <= 0 {
			minBudget = domain.DefaultMinBudget
		}
		user, err := domain.ProfileFromMap(req.Profile, minBudget)
		if err != nil {
			if !errors.Is(err, domain.ErrBudgetTooLow) {
				err = fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
			}
			writeError(w, r, err, nil)
			return
		}
		ctx := r.Context()
		catalog, err := s.Catalog.Load(ctx)
		if err != nil {
			writeError(w, r, fmt.Errorf("load catalog: %w", err), nil)
			return
		}
		ranked, err := s.Ranker.MapAndScore(ctx, catalog, user)
		if err != nil {
			writeError(w, r, fmt.Errorf("rank catalog: %w", err), nil)
			return
		}
		if req.Limit > 0 && len(ranked) > req.Limit {
			ranked = ranked[:req.Limit]
		}
		if ranked == nil {
			ranked = []domain.ScoredProduct{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"profile": user, "items": ranked})
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
}

// ReadyzHandler runs every configured readiness check.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, len(s.Checks))
		ok := true
		for _, c := range s.Checks {
			if c.Check == nil {
				continue
			}
			if err := c.Check(ctx); err != nil {
				ok = false
				checks = append(checks, check{Name: c.Name, OK: false, Details: err.Error()})
				continue
			}
			checks = append(checks, check{Name: c.Name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
