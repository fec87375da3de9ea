// Package api exposes the ingestion webhook, order queries and the
// realtime order feed over HTTP and WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/signals/ingest"
	"github.com/rustyeddy/signals/pubsub"
	"github.com/rustyeddy/signals/signal"
	"github.com/rustyeddy/signals/store"
)

// Server handles REST and WebSocket connections.
type Server struct {
	store   store.Store
	ingest  *ingest.Handler
	broker  *pubsub.Broker
	router  *mux.Router
	limiter *rate.Limiter
	log     *logrus.Logger
}

// Options tunes the server; zero values fall back to defaults.
type Options struct {
	WebhookRate  float64 // webhook requests per second
	WebhookBurst int
}

func NewServer(st store.Store, h *ingest.Handler, broker *pubsub.Broker, log *logrus.Logger, opts Options) *Server {
	if opts.WebhookRate <= 0 {
		opts.WebhookRate = 10
	}
	if opts.WebhookBurst <= 0 {
		opts.WebhookBurst = 20
	}

	s := &Server{
		store:   st,
		ingest:  h,
		broker:  broker,
		router:  mux.NewRouter(),
		limiter: rate.NewLimiter(rate.Limit(opts.WebhookRate), opts.WebhookBurst),
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/webhook/receive-signal", s.handleReceiveSignal).Methods("POST")
	s.router.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	s.router.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	s.router.HandleFunc("/accounts", s.handleCreateAccount).Methods("POST")
	s.router.HandleFunc("/analytics", s.handleAnalytics).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/ws/orders", s.handleWebSocket)
}

// Handler wraps the router with CORS for browser dashboards.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})
	return c.Handler(s.router)
}

// handleReceiveSignal ingests a trading signal. The signal text comes
// from the request body, or from the signal_text query parameter for
// webhook providers that cannot set a body.
func (s *Server) handleReceiveSignal(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	text := r.URL.Query().Get("signal_text")
	if text == "" {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		text = string(body)
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "1"
	}

	orderID, err := s.ingest.Ingest(r.Context(), text, userID)
	if err != nil {
		var perr *signal.ParseError
		if errors.As(err, &perr) {
			s.writeError(w, http.StatusBadRequest, perr.Reason)
			return
		}
		s.log.WithError(err).Error("ingest failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "received",
		"order_id": orderID,
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListOrders(r.Context())
	if err != nil {
		s.log.WithError(err).Error("list orders failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if orders == nil {
		orders = []store.Order{}
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	order, err := s.store.GetOrder(r.Context(), orderID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("get order failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

type createAccountRequest struct {
	UserID     string `json:"user_id"`
	BrokerName string `json:"broker_name"`
	APIKey     string `json:"broker_api_key"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.BrokerName) == "" {
		s.writeError(w, http.StatusBadRequest, "user_id and broker_name are required")
		return
	}

	acct, err := s.store.CreateAccount(r.Context(), store.Account{
		UserID:     req.UserID,
		BrokerName: req.BrokerName,
		APIKey:     req.APIKey,
	})
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("create account failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Analytics(r.Context())
	if err != nil {
		s.log.WithError(err).Error("analytics failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("encode response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
