package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/reghealth/navigator/internal/models"
	"github.com/reghealth/navigator/pkg/metadata"
	"github.com/reghealth/navigator/pkg/retriever"
	"github.com/reghealth/navigator/pkg/service"
	"github.com/reghealth/navigator/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the websocket envelope shared by both directions.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// FilterSpec is the wire form of retrieval filters. Values are normalized
// through the same keyword classifier used at ingestion, so "snf" and "SNF"
// both land on the stored program value.
type FilterSpec struct {
	Program  string `json:"program,omitempty"`
	RuleType string `json:"rule_type,omitempty"`
	Year     *int   `json:"year,omitempty"`
}

func (f *FilterSpec) toFilters() retriever.Filters {
	var out retriever.Filters
	if f == nil {
		return out
	}
	if f.Program != "" {
		if p := metadata.ClassifyProgram(f.Program); p != models.ProgramUnknown {
			out.Program = &p
		}
	}
	if f.RuleType != "" {
		if rt := metadata.ClassifyRuleType(f.RuleType); rt != models.RuleUnknown {
			out.RuleType = &rt
		}
	}
	out.Year = f.Year
	return out
}

type AskRequest struct {
	Query   string      `json:"query"`
	Filters *FilterSpec `json:"filters,omitempty"`
	TopK    int         `json:"top_k,omitempty"`
}

type Config struct {
	Port string
}

type Server struct {
	config  Config
	service *service.Service
}

func New(config Config, svc *service.Service) *Server {
	if config.Port == "" {
		config.Port = "8080"
	}
	return &Server{config: config, service: svc}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/chunks/", s.handleChunk)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *Server) ListenAndServe() error {
	log.Printf("Starting server on port %s", s.config.Port)
	return http.ListenAndServe(":"+s.config.Port, s.Routes())
}

// resolveFilters uses caller-supplied filters when present, otherwise infers
// them from the query text.
func resolveFilters(req AskRequest) retriever.Filters {
	if req.Filters != nil {
		return req.Filters.toFilters()
	}
	return retriever.InferFilters(req.Query)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	answer := s.service.Ask(r.Context(), req.Query, resolveFilters(req), req.TopK)
	writeJSON(w, answer)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	result, err := s.service.Search(r.Context(), req.Query, resolveFilters(req), req.TopK)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/chunks/"))
	if err != nil {
		http.Error(w, "invalid chunk index", http.StatusBadRequest)
		return
	}

	chunk, err := s.service.GetChunk(position)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, chunk)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(conn, "error", "invalid message")
			continue
		}
		if msg.Type != "ask" || strings.TrimSpace(msg.Content) == "" {
			s.sendMessage(conn, "error", "expected an ask message with a query")
			continue
		}

		s.sendMessage(conn, "status", "searching")
		answer := s.service.Ask(r.Context(), msg.Content, retriever.InferFilters(msg.Content), 0)
		if err := conn.WriteJSON(Message{Type: "answer", Data: answer}); err != nil {
			log.Printf("Error sending message: %v", err)
			break
		}
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType, content string) {
	if err := conn.WriteJSON(Message{Type: msgType, Content: content}); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
