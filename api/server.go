// Package api exposes the question-answering HTTP endpoint.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/lisakoeritz/aien-api/rag"
)

// Answerer is the answer-synthesis port the endpoint delegates to.
// Implemented by *rag.Service.
type Answerer interface {
	Answer(ctx context.Context, question string) (rag.Response, error)
}

// Server routes HTTP requests to the answer synthesizer.
type Server struct {
	answerer      Answerer
	bearerToken   string
	allowedOrigin string
	logger        *log.Logger
	handler       http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type questionRequest struct {
	Question string `json:"question"`
}

type qaResponse struct {
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Documents []documentView `json:"documents"`
}

type documentView struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

func New(answerer Answerer, bearerToken, allowedOrigin string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		answerer:      answerer,
		bearerToken:   bearerToken,
		allowedOrigin: allowedOrigin,
		logger:        logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/api/qa", s.cors(http.HandlerFunc(s.handleQA)))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleQA(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	if !s.authorized(r) {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Incorrect bearer token"})
		return
	}

	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	resp, err := s.answerer.Answer(r.Context(), req.Question)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("answer question: %w", err))
		return
	}

	documents := make([]documentView, len(resp.Context))
	for i, chunk := range resp.Context {
		documents[i] = documentView{
			PageContent: chunk.Content,
			Metadata:    chunk.Metadata,
		}
	}

	s.writeJSON(w, http.StatusOK, qaResponse{
		Question:  req.Question,
		Answer:    resp.Answer,
		Documents: documents,
	})
}

// authorized checks the bearer credential before any retrieval or completion
// work happens.
func (s *Server) authorized(r *http.Request) bool {
	if s.bearerToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.bearerToken)) == 1
}

// cors admits the single configured front-end origin and only the POST
// method.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && origin == s.allowedOrigin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", http.MethodPost)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
