// Package server exposes the query surface over HTTP: the proposal
// book, trade execution, balances, history and a websocket event feed.
// Authentication is out of scope; the already-authenticated caller
// identity arrives in the X-Trader-Address header.
package server

import (
	"context"
	"encoding/json"
	"expvar"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gridwatt/energytrade/internal/engine"
	"github.com/gridwatt/energytrade/internal/events"
)

type Server struct {
	engine *engine.Engine
	bus    *events.Bus
}

func New(eng *engine.Engine, bus *events.Bus) *Server {
	return &Server{engine: eng, bus: bus}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	api := r.Group("/api")

	proposals := api.Group("/proposals")
	proposals.GET("/", s.wrap(s.handleProposalsList))
	proposals.POST("/", s.wrap(s.handleProposalCreate))
	proposalID := proposals.Group("/:proposalID")
	proposalID.POST("/execute", s.wrap(s.handleProposalExecute))
	proposalID.POST("/cancel", s.wrap(s.handleProposalCancel))

	accounts := api.Group("/accounts")
	accountAddr := accounts.Group("/:address")
	accountAddr.GET("/balance", s.wrap(s.handleBalanceGet))
	accountAddr.GET("/history", s.wrap(s.handleHistoryGet))
	accountAddr.POST("/credit", s.wrap(s.handleAccountCredit))

	api.GET("/events", s.wrap(s.handleEventsWS))

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "energytrade_path_params"

// wrap adapts net/http handlers to gin, injecting path params into the
// request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func urlParam(r *http.Request, key string) string {
	if m, ok := r.Context().Value(paramsKey).(map[string]string); ok {
		return m[key]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
