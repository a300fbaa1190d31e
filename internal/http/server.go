package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paghetta/internal/cache"
	"paghetta/internal/log"
	"paghetta/internal/services"
)

// Server exposes the ledger and the engines over a JSON API.
type Server struct {
	ledger     *services.Ledger
	allowances *services.AllowanceEngine
	interest   *services.InterestEngine
	loans      *services.LoanEngine
	store      services.Store

	logger        *log.Logger
	overviewCache *cache.LRUCache[childOverview]
	cacheManager  *cache.Manager
	limiter       *rateLimiter

	httpServer *http.Server
}

func NewServer(port string, store services.Store, ledger *services.Ledger, allowances *services.AllowanceEngine, interest *services.InterestEngine, loans *services.LoanEngine, logger *log.Logger) *Server {
	s := &Server{
		ledger:        ledger,
		allowances:    allowances,
		interest:      interest,
		loans:         loans,
		store:         store,
		logger:        logger.WithComponent(log.ComponentHTTP),
		overviewCache: cache.NewLRUCache[childOverview](256, 30*time.Second),
		cacheManager:  cache.NewManager(),
		limiter:       newRateLimiter(),
	}
	s.cacheManager.Register(s.overviewCache)
	s.cacheManager.StartCleanup(time.Minute)

	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(func(req *http.Request) string {
		return chimw.GetReqID(req.Context())
	}))
	r.Use(securityHeaders)
	r.Use(s.rateLimitMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/children", func(r chi.Router) {
			r.Post("/", s.handleCreateChild)
			r.Get("/", s.handleListChildren)

			r.Route("/{childID}", func(r chi.Router) {
				r.Get("/", s.handleGetChild)
				r.Get("/transactions", s.handleListTransactions)
				r.Post("/transactions", s.handlePostTransaction)

				r.Get("/allowance", s.handleGetAllowance)
				r.Put("/allowance", s.handleUpsertAllowance)
				r.Post("/allowance/activate", s.handleSetAllowanceActive)

				r.Get("/interest", s.handleGetInterest)
				r.Put("/interest", s.handleUpsertInterest)
				r.Post("/interest/activate", s.handleSetInterestActive)

				r.Get("/loans", s.handleListLoans)
			})
		})

		r.Post("/transactions/{transactionID}/approve", s.handleApprove)
		r.Post("/transactions/{transactionID}/reject", s.handleReject)
		r.Post("/transfers", s.handleTransfer)

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", s.handleCreateLoan)
			r.Get("/{loanID}", s.handleGetLoan)
			r.Post("/{loanID}/cancel", s.handleCancelLoan)
		})
		r.Post("/installments/{installmentID}/pay", s.handlePayInstallment)
	})

	return r
}

func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.stop()
	s.cacheManager.Stop()
	return s.httpServer.Shutdown(ctx)
}
