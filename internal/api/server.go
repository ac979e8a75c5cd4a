package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitewallet/ledger/internal/batch"
	"github.com/vitewallet/ledger/internal/bill"
	"github.com/vitewallet/ledger/internal/cache"
	"github.com/vitewallet/ledger/internal/health"
	"github.com/vitewallet/ledger/internal/mandate"
	"github.com/vitewallet/ledger/internal/transaction"
)

// APIHandler is a custom handler type that returns the response status and
// payload, or an error that the middleware turns into an error envelope.
type APIHandler func(w http.ResponseWriter, r *http.Request) (int, interface{}, error)

type Server struct {
	config     *Config
	txs        *transaction.Service
	batches    *batch.Service
	bills      *bill.Service
	mandates   *mandate.Charger
	cache      *cache.Cache
	checker    *health.Checker
	httpServer *http.Server
	ctx        context.Context
	log        *slog.Logger
}

type Config struct {
	ListenAddr   string
	ListenPort   int
	MetricsPort  int
	ProbesPort   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	ID           string
}

func NewServer(config *Config, txs *transaction.Service, batches *batch.Service,
	bills *bill.Service, mandates *mandate.Charger, balanceCache *cache.Cache,
	checker *health.Checker) *Server {
	return &Server{
		config:   config,
		txs:      txs,
		batches:  batches,
		bills:    bills,
		mandates: mandates,
		cache:    balanceCache,
		checker:  checker,
		log:      slog.With("pod", config.ID, "component", "web-server"),
		httpServer: &http.Server{
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

func (s *Server) StartProbesAndMetrics() {
	// Metrics live on their own port so the public listener stays clean.
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		slog.Info("Serving metrics", "port", s.config.MetricsPort)

		addr := fmt.Sprintf(":%d", s.config.MetricsPort)
		slog.Error("Prometheus HTTP listener failed", "error",
			http.ListenAndServe(addr, nil))
	}()

	// Liveness and readiness probes, also off the public port.
	go func() {
		http.Handle("GET /health", WithJSONResponse(s.HealthHandler))
		http.Handle("GET /ready", WithJSONResponse(s.ReadinessHandler))

		slog.Info("Serving health probes", "port", s.config.ProbesPort)

		addr := fmt.Sprintf(":%d", s.config.ProbesPort)
		slog.Error("Health checks HTTP listener failed", "error",
			http.ListenAndServe(addr, nil))
	}()
}

// Routes builds the API routing table. It is separate from Start so tests can
// mount the handlers on a test server.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /transactions", WithJSONResponse(s.CreateTransactionHandler))
	mux.HandleFunc("GET /transactions/{trid}", WithJSONResponse(s.GetTransactionHandler))
	mux.HandleFunc("POST /transactions/{trid}/confirmations", WithJSONResponse(s.ConfirmTransactionHandler))
	mux.HandleFunc("POST /transactions/{trid}/reversals", WithJSONResponse(s.ReverseTransactionHandler))
	mux.HandleFunc("GET /requeststates/{serverCorrelationId}", WithJSONResponse(s.RequestStateHandler))
	mux.HandleFunc("GET /statemententries/{trid}", WithJSONResponse(s.StatementEntryHandler))

	mux.HandleFunc("GET /accounts/{msisdn}/status", WithJSONResponse(s.AccountStatusHandler))
	mux.HandleFunc("GET /accounts/{msisdn}/accountname", WithJSONResponse(s.AccountNameHandler))
	mux.HandleFunc("GET /accounts/{msisdn}/balance", WithJSONResponse(s.AccountBalanceHandler))
	mux.HandleFunc("POST /accounts/{msisdn}/deposits", WithJSONResponse(s.DepositHandler))
	mux.HandleFunc("GET /accounts/{msisdn}/bills", WithJSONResponse(s.AccountBillsHandler))

	mux.HandleFunc("POST /batchtransactions", WithJSONResponse(s.CreateBatchHandler))
	mux.HandleFunc("GET /batchtransactions/{batchTrid}", WithJSONResponse(s.BatchStatusHandler))

	mux.HandleFunc("POST /bills", WithJSONResponse(s.CreateBillHandler))
	mux.HandleFunc("GET /bills/{billRef}", WithJSONResponse(s.GetBillHandler))
	mux.HandleFunc("POST /bills/{billRef}/payments", WithJSONResponse(s.PayBillHandler))

	mux.HandleFunc("POST /debitmandates", WithJSONResponse(s.CreateMandateHandler))
	mux.HandleFunc("GET /debitmandates/{mandateReference}", WithJSONResponse(s.GetMandateHandler))
	mux.HandleFunc("DELETE /debitmandates/{mandateReference}", WithJSONResponse(s.CancelMandateHandler))

	return mux
}

func (s *Server) Start(ctx context.Context, stop <-chan os.Signal) {
	s.StartProbesAndMetrics()

	s.httpServer.Handler = http.TimeoutHandler(s.Routes(), s.config.WriteTimeout, "Timeout")

	go s.run(ctx)

	<-stop

	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}

func (s *Server) run(ctx context.Context) {
	s.ctx = ctx

	slog.Info("Starting server", "port", s.config.ListenPort)

	// ListenConfig binds the listener to the surrounding context.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.config.ListenAddr, s.config.ListenPort))
	if err != nil {
		slog.Error("Error creating listener", "error", err)
	}
	defer listener.Close()

	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		slog.Error("Could not start server", "error", err.Error())
	}
}
