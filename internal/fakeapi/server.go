// Package fakeapi is an in-memory implementation of the inventory REST API
// used to exercise the client end to end.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-inventory-client/inventory"
	"github.com/rs/zerolog/log"
)

// Failure is injected in place of the next response of a route.
// Drop closes the connection without answering.
type Failure struct {
	Status  int
	Message string
	Drop    bool
}

var DropConnection = Failure{Drop: true}

type Server struct {
	mu          sync.Mutex
	router      chi.Router
	now         func() time.Time
	tokens      map[string]string
	equipments  []inventory.Equipment
	consumption []inventory.Consumption
	notices     []inventory.Notification
	predictions []inventory.Prediction
	orders      []inventory.Order
	movements   []inventory.StockMovement
	attachments []inventory.OrderAttachment
	failures    map[string][]Failure
	delays      map[string]time.Duration
	requests    map[string]int
}

type Option func(*Server)

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func New(options ...Option) *Server {
	s := &Server{
		now:      time.Now,
		tokens:   make(map[string]string),
		failures: make(map[string][]Failure),
		delays:   make(map[string]time.Duration),
		requests: make(map[string]int),
	}
	for _, opt := range options {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// AddToken accepts token as the bearer credential of userID.
func (s *Server) AddToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// FailNext queues failures for the route, e.g. FailNext("GET /equipments", DropConnection).
func (s *Server) FailNext(route string, failures ...Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failures...)
}

// Delay holds every response of route for d.
func (s *Server) Delay(route string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[route] = d
}

// Requests counts requests received by route, including failed ones.
func (s *Server) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/equipments", func(rr chi.Router) {
		s.handle(rr, http.MethodGet, "/equipments", "/", s.listEquipments)
		s.handle(rr, http.MethodPost, "/equipments", "/", s.createEquipment)
		s.handle(rr, http.MethodGet, "/equipments/low-stock", "/low-stock", s.lowStock)
		s.handle(rr, http.MethodGet, "/equipments/{id}", "/{id}", s.getEquipment)
		s.handle(rr, http.MethodPut, "/equipments/{id}", "/{id}", s.updateEquipment)
		s.handle(rr, http.MethodDelete, "/equipments/{id}", "/{id}", s.deleteEquipment)
	})

	r.Route("/consumption", func(rr chi.Router) {
		s.handle(rr, http.MethodPost, "/consumption", "/", s.logConsumption)
		s.handle(rr, http.MethodGet, "/consumption", "/", s.listConsumption)
		s.handle(rr, http.MethodGet, "/consumption/{id}", "/{id}", s.getConsumption)
	})

	r.Route("/notifications", func(rr chi.Router) {
		s.handle(rr, http.MethodGet, "/notifications", "/", s.listNotifications)
		s.handle(rr, http.MethodPut, "/notifications/{id}/sent", "/{id}/sent", s.markSent)
	})

	r.Route("/predictions", func(rr chi.Router) {
		s.handle(rr, http.MethodGet, "/predictions", "/", s.listPredictions)
		s.handle(rr, http.MethodGet, "/predictions/{id}", "/{id}", s.getPrediction)
	})

	r.Route("/orders", func(rr chi.Router) {
		s.handle(rr, http.MethodPost, "/orders", "/", s.createOrder)
		s.handle(rr, http.MethodGet, "/orders", "/", s.listOrders)
		s.handle(rr, http.MethodGet, "/orders/history/movements", "/history/movements", s.listMovements)
		s.handle(rr, http.MethodDelete, "/orders/attachments/{id}", "/attachments/{id}", s.deleteAttachment)
		s.handle(rr, http.MethodGet, "/orders/{id}", "/{id}", s.getOrder)
		s.handle(rr, http.MethodPut, "/orders/{id}", "/{id}", s.updateOrder)
		s.handle(rr, http.MethodDelete, "/orders/{id}", "/{id}", s.deleteOrder)
		s.handle(rr, http.MethodPost, "/orders/{id}/attachments", "/{id}/attachments", s.uploadAttachment)
		s.handle(rr, http.MethodGet, "/orders/{id}/attachments", "/{id}/attachments", s.listAttachments)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
	return r
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, userID string)

// handle registers h under pattern and wraps it with counting, failure
// injection and bearer authentication. route is the "METHOD /full/pattern" key.
func (s *Server) handle(r chi.Router, method, fullPattern, pattern string, h handlerFunc) {
	route := method + " " + fullPattern
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Every connection is single use so a dropped one is never retried by the client transport.
		w.Header().Set("Connection", "close")

		s.mu.Lock()
		s.requests[route]++
		var failure *Failure
		if queued := s.failures[route]; len(queued) > 0 {
			failure = &queued[0]
			s.failures[route] = queued[1:]
		}
		delay := s.delays[route]
		userID, authorised := s.tokens[bearer(req)]
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-req.Context().Done():
				return
			}
		}

		if failure != nil {
			if failure.Drop {
				drop(w)
				return
			}
			writeError(w, failure.Status, failure.Message)
			return
		}

		if !authorised {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		h(w, req, userID)
	}))
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func drop(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("fakeapi: response writer cannot be hijacked")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		log.Err(err).Msg("Hijack failed")
		return
	}
	_ = conn.Close()
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	write(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	write(w, status, envelope{Success: true, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	write(w, status, envelope{Success: false, Error: message})
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

func decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return v, false
	}
	return v, true
}

func newID() string {
	return uuid.NewString()
}

func page[T any](items []T, q map[string][]string) []T {
	offset, _ := strconv.Atoi(first(q, "offset"))
	limit, _ := strconv.Atoi(first(q, "limit"))
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func first(q map[string][]string, key string) string {
	if v := q[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// inRange reports whether t falls in [start, end]. Date-only bounds cover the whole day.
func inRange(t time.Time, start, end string) bool {
	if start != "" {
		if from, ok := parseDate(start, false); ok && t.Before(from) {
			return false
		}
	}
	if end != "" {
		if to, ok := parseDate(end, true); ok && t.After(to) {
			return false
		}
	}
	return true
}

func parseDate(value string, endOfDay bool) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, true
}
