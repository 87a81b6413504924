package rpc

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CollarNetworks/protocol-core-sub005/core/node"
	"github.com/CollarNetworks/protocol-core-sub005/native/pricing"
	"github.com/CollarNetworks/protocol-core-sub005/observability/metrics"
)

// Deps carries everything the RPC surface needs. The node already bundles
// the engines over their shared state.
type Deps struct {
	Log     *slog.Logger
	Metrics *metrics.CollarMetrics
	Node    *node.Node
	Oracle  *pricing.Aggregator
	Proofs  *pricing.ProofVerifier

	MaxDeviationBips uint64
	RateLimitRPS     int
	RateLimitBurst   int
	ServeMetrics     bool
}

// Server exposes the ledger over JSON HTTP. Every operation goes through the
// node, which serializes it and makes it atomic. Caller identity travels in
// the request body; the server is meant to sit behind an authenticating
// gateway.
type Server struct {
	log     *slog.Logger
	metrics *metrics.CollarMetrics
	node    *node.Node
	oracle  *pricing.Aggregator
	proofs  *pricing.ProofVerifier

	maxDeviationBips uint64
	limiter          *clientLimiter
	serveMetrics     bool
}

func NewServer(deps Deps) *Server {
	logger := deps.Log
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		log:     logger,
		metrics: deps.Metrics,
		node:    deps.Node,
		oracle:  deps.Oracle,
		proofs:  deps.Proofs,

		maxDeviationBips: deps.MaxDeviationBips,
		limiter:          newClientLimiter(deps.RateLimitRPS, deps.RateLimitBurst),
		serveMetrics:     deps.ServeMetrics,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.metrics != nil {
		r.Use(timingMiddleware(s.metrics))
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.serveMetrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limiter.middleware)
		if s.oracle != nil {
			r.Route("/oracle", func(r chi.Router) {
				r.Get("/price", s.getOraclePrice)
				r.Get("/twap", s.getOracleTWAP)
				if s.proofs != nil {
					r.Post("/price", s.submitPrice)
				}
			})
		}
		r.Route("/provider/offers", func(r chi.Router) {
			r.Post("/", s.createProviderOffer)
			r.Get("/", s.listProviderOffers)
			r.Get("/{id}", s.getProviderOffer)
			r.Patch("/{id}", s.updateProviderOffer)
		})
		r.Route("/positions", func(r chi.Router) {
			r.Post("/open", s.openPosition)
			r.Get("/{id}", s.getPosition)
			r.Post("/{id}/settle", s.settlePosition)
			r.Post("/{id}/withdraw", s.withdrawPosition)
			r.Post("/{id}/cancel", s.cancelPosition)
		})
		r.Route("/rolls/offers", func(r chi.Router) {
			r.Post("/", s.createRollOffer)
			r.Get("/{id}", s.getRollOffer)
			r.Delete("/{id}", s.cancelRollOffer)
			r.Get("/{id}/preview", s.previewRoll)
			r.Post("/{id}/execute", s.executeRoll)
		})
		r.Route("/escrow", func(r chi.Router) {
			r.Post("/offers", s.createEscrowOffer)
			r.Get("/offers", s.listEscrowOffers)
			r.Patch("/offers/{id}", s.updateEscrowOffer)
			r.Get("/{id}", s.getEscrow)
			r.Post("/{id}/seize", s.seizeEscrow)
			r.Post("/{id}/withdraw", s.withdrawEscrow)
		})
		r.Route("/loans", func(r chi.Router) {
			r.Post("/open", s.openLoan)
			r.Get("/{id}", s.getLoan)
			r.Post("/{id}/close", s.closeLoan)
			r.Post("/{id}/roll", s.rollLoan)
			r.Post("/{id}/cancel", s.cancelLoan)
			r.Post("/{id}/foreclose", s.forecloseLoan)
			r.Post("/{id}/keeper", s.approveKeeper)
		})
	})
	return r
}
