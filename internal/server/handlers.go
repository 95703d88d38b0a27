package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/halyard-dev/halyard/internal/catalog"
	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/halyard-dev/halyard/internal/remote"
	"github.com/halyard-dev/halyard/internal/store"
	"github.com/halyard-dev/halyard/internal/stream"
)

type errorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var herr *errors.Error
	if stderrors.As(err, &herr) {
		resp.Error = herr.Message
		resp.Code = string(herr.Code)
		resp.Suggestion = herr.Suggestion
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.coord.Sessions().ActiveSessions(),
	})
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.store.ListConnections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if conns == nil {
		conns = []store.Connection{}
	}
	writeJSON(w, http.StatusOK, conns)
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var conn store.Connection
	if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if conn.Name == "" || conn.Host == "" || conn.Username == "" {
		writeError(w, http.StatusBadRequest, errors.New(errors.ErrConfig,
			"name, host, and username are required", ""))
		return
	}
	if err := s.store.CreateConnection(r.Context(), &conn); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.coord.Sessions().Disconnect(id)
	if err := s.store.DeleteConnection(r.Context(), id); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.SetActive(r.Context(), id); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type executeRequest struct {
	ConnectionID   string            `json:"connectionId"` // empty means active connection
	Command        string            `json:"command"`
	Template       string            `json:"template"` // mutually exclusive with Command
	Params         map[string]string `json:"params"`
	CheckConflicts bool              `json:"checkConflicts"`
	Source         string            `json:"source"` // "manual", "template", "ai"
}

type executeResponse struct {
	CommandID string `json:"commandId"`
}

// handleExecute accepts a command and runs it asynchronously. The response
// carries the command id; output and completion arrive over the command's
// websocket.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	command, tmpl, err := s.resolveCommand(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	conn, err := s.resolveConnection(r.Context(), req.ConnectionID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	checkConflicts := req.CheckConflicts
	if tmpl != nil && tmpl.SkipConflictCheck {
		checkConflicts = false
	}

	commandID := uuid.New().String()
	source := req.Source
	if source == "" {
		source = "manual"
	}

	go s.runCommand(commandID, conn, command, checkConflicts, source)

	writeJSON(w, http.StatusAccepted, executeResponse{CommandID: commandID})
}

func (s *Server) resolveCommand(req *executeRequest) (string, *catalog.Template, error) {
	switch {
	case req.Command != "" && req.Template != "":
		return "", nil, errors.New(errors.ErrConfig,
			"command and template are mutually exclusive", "")
	case req.Command != "":
		return req.Command, nil, nil
	case req.Template != "":
		if s.catalog == nil {
			return "", nil, errors.New(errors.ErrConfig,
				"no command catalog configured",
				"Set catalog in the config file to enable templates")
		}
		tmpl, ok := s.catalog.Get(req.Template)
		if !ok {
			return "", nil, errors.New(errors.ErrConfig,
				"unknown template: "+req.Template, "")
		}
		rendered, err := s.catalog.Render(req.Template, req.Params)
		if err != nil {
			return "", nil, err
		}
		return rendered, &tmpl, nil
	default:
		return "", nil, errors.New(errors.ErrConfig, "command is required", "")
	}
}

func (s *Server) resolveConnection(ctx context.Context, id string) (*store.Connection, error) {
	if id != "" {
		return s.store.GetConnection(ctx, id)
	}
	conns, err := s.store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range conns {
		if conns[i].Active {
			return &conns[i], nil
		}
	}
	return nil, errors.New(errors.ErrConfig,
		"no active connection",
		"Pass connectionId or activate a connection first")
}

// runCommand drives one async execution: stream chunks to subscribers,
// record the history row, then publish the terminal frame.
func (s *Server) runCommand(commandID string, conn *store.Connection, command string, checkConflicts bool, source string) {
	log := s.log.With().Str("command_id", commandID).Str("connection", conn.ID).Logger()

	sink := func(ch remote.Chunk) {
		s.bcast.Publish(stream.Chunk{
			CommandID: commandID,
			ChunkType: string(ch.Kind),
			Data:      string(ch.Data),
		})
	}

	result, verdict, err := s.coord.Execute(context.Background(), remote.ExecutionRequest{
		Target: remote.Target{
			ID:   conn.ID,
			Host: conn.Host,
			Port: conn.Port,
			User: conn.Username,
		},
		Command:        command,
		CheckConflicts: checkConflicts,
		Sink:           sink,
	})

	term := stream.Terminal{CommandID: commandID}

	switch {
	case verdict != nil && verdict.IsDuplicate:
		msg := verdict.Message
		if len(verdict.Suggestions) > 0 {
			msg += " Alternatives: " + strings.Join(verdict.Suggestions, "; ")
		}
		term.Message = msg
		log.Info().Msg("duplicate detected, execution skipped")

	case err != nil && result == nil:
		// Never got as far as running the command.
		term.Aborted = true
		term.Message = err.Error()
		log.Warn().Err(err).Msg("execution failed before dispatch")

	default:
		if result.ExitKnown {
			code := result.ExitCode
			term.ExitCode = &code
		}
		term.DurationMs = result.Duration.Milliseconds()
		term.Aborted = result.Aborted
		if err != nil {
			term.Message = err.Error()
		}

		s.recordExecution(commandID, conn.ID, command, source, result, log)
	}

	s.bcast.PublishTerminal(term)
}

func (s *Server) recordExecution(commandID, connectionID, command, source string, result *remote.ExecutionResult, log zerolog.Logger) {
	exec := &store.Execution{
		ID:           commandID,
		ConnectionID: connectionID,
		Command:      command,
		Output:       result.Output,
		ExitCode:     result.ExitCode,
		ExitKnown:    result.ExitKnown,
		Aborted:      result.Aborted,
		DurationMs:   result.Duration.Milliseconds(),
		Source:       source,
	}
	if err := s.store.InsertExecution(context.Background(), exec); err != nil {
		log.Warn().Err(err).Msg("couldn't record execution history")
	}
}

type translateRequest struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if s.oracle == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New(errors.ErrOracle,
			"no translation service configured",
			"Set oracle.endpoint in the config file"))
		return
	}
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New(errors.ErrOracle,
			"text is required", ""))
		return
	}
	translation, err := s.oracle.Translate(r.Context(), req.Text, req.Context)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, translation)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	connectionID := r.URL.Query().Get("connectionId")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New(errors.ErrConfig,
				"limit must be a non-negative integer", ""))
			return
		}
		limit = n
	}

	execs, err := s.store.ListExecutions(r.Context(), connectionID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if execs == nil {
		execs = []store.Execution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeJSON(w, http.StatusOK, []catalog.Template{})
		return
	}
	writeJSON(w, http.StatusOK, s.catalog.List())
}
