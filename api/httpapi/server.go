package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	pb "matchbook/api/pb"
	"matchbook/domain/orderbook"
	"matchbook/domain/price"
	"matchbook/infra/metrics"
	"matchbook/infra/storage"
	"matchbook/service"
)

// Options configures the gateway.
type Options struct {
	CORSOrigins  []string
	DefaultDepth int
}

// Server is the HTTP/JSON gateway over service.Engine.
type Server struct {
	engine  *service.Engine
	hub     *Hub
	metrics *metrics.Metrics
	opts    Options
	router  *mux.Router
	log     *zap.Logger
}

// NewServer builds the router. hub and m may be nil, in which case /ws and
// /metrics are not routed.
func NewServer(engine *service.Engine, hub *Hub, m *metrics.Metrics, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		hub:     hub,
		metrics: m,
		opts:    opts,
		router:  mux.NewRouter(),
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/orders/{symbol}/{id}", s.handleCancel).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)

	api.HandleFunc("/markets", s.handleMarkets).Methods(http.MethodGet)
	api.HandleFunc("/markets/{symbol}/orderbook", s.handleOrderBook).Methods(http.MethodGet)
	api.HandleFunc("/markets/{symbol}/bbo", s.handleBBO).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.ServeWS)
	}
}

// Handler returns the router wrapped with CORS and request logging.
func (s *Server) Handler() http.Handler {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.logRequests(s.router))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the upgrader needs the raw writer to hijack the connection
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// -------------------- Orders --------------------

// submitRequest carries the price either as a decimal string ("100.50") or
// as an integer with an explicit scale.
type submitRequest struct {
	ClientID  string      `json:"client_id"`
	Symbol    string      `json:"symbol"`
	Side      string      `json:"side"`
	OrderType string      `json:"order_type"`
	Price     json.Number `json:"price"`
	Scale     *int        `json:"scale"`
	Quantity  int64       `json:"quantity"`
}

type fillResponse struct {
	MakerOrderID string `json:"maker_order_id"`
	Price        string `json:"price"`
	Quantity     int64  `json:"quantity"`
}

type submitResponse struct {
	OrderID           string         `json:"order_id"`
	Symbol            string         `json:"symbol"`
	Status            string         `json:"status"`
	FilledQuantity    int64          `json:"filled_quantity"`
	RemainingQuantity int64          `json:"remaining_quantity"`
	Fills             []fillResponse `json:"fills"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	in, err := req.intent()
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "rejected", err.Error())
		return
	}

	res, err := s.engine.Submit(r.Context(), in)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	if !res.Accepted {
		respondError(w, http.StatusUnprocessableEntity, "rejected", res.Reason)
		return
	}

	out := submitResponse{
		OrderID:           pb.FormatOrderID(res.OrderID),
		Symbol:            res.Symbol,
		Status:            res.Status.String(),
		FilledQuantity:    res.Filled,
		RemainingQuantity: res.Remaining,
		Fills:             make([]fillResponse, 0, len(res.Fills)),
	}
	for _, f := range res.Fills {
		out.Fills = append(out.Fills, fillResponse{
			MakerOrderID: pb.FormatOrderID(f.MakerID),
			Price:        price.Format(f.Price),
			Quantity:     f.Quantity,
		})
	}
	respondStatus(w, http.StatusCreated, out)
}

func (req submitRequest) intent() (orderbook.Intent, error) {
	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		return orderbook.Intent{}, err
	}
	typ, err := orderbook.ParseOrderType(req.OrderType)
	if err != nil {
		return orderbook.Intent{}, err
	}

	in := orderbook.Intent{
		ClientID: req.ClientID,
		Symbol:   req.Symbol,
		Side:     side,
		Type:     typ,
		Quantity: req.Quantity,
	}
	if typ == orderbook.Market || req.Price == "" {
		return in, nil
	}

	if req.Scale != nil {
		raw, err := strconv.ParseInt(req.Price.String(), 10, 64)
		if err != nil {
			return orderbook.Intent{}, errors.New("price must be an integer when scale is given")
		}
		in.RawPrice, in.Scale = raw, *req.Scale
		return in, nil
	}

	raw, scale, err := price.Parse(req.Price.String())
	if err != nil {
		return orderbook.Intent{}, err
	}
	in.RawPrice, in.Scale = raw, scale
	return in, nil
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := pb.ParseOrderID(vars["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", err.Error())
		return
	}

	ok, err := s.engine.Cancel(r.Context(), vars["symbol"], id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "not_resting", "order is not resting")
		return
	}
	respondJSON(w, map[string]any{"order_id": pb.FormatOrderID(id), "canceled": true})
}

type orderResponse struct {
	OrderID           string         `json:"order_id"`
	ClientID          string         `json:"client_id"`
	Symbol            string         `json:"symbol"`
	Side              string         `json:"side"`
	OrderType         string         `json:"order_type"`
	Price             *string        `json:"price"`
	Quantity          int64          `json:"quantity"`
	RemainingQuantity int64          `json:"remaining_quantity"`
	Status            string         `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	Fills             []fillResponse `json:"fills"`
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pb.ParseOrderID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", err.Error())
		return
	}

	view, err := s.engine.Order(r.Context(), id)
	if errors.Is(err, storage.ErrOrderNotFound) {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	o := view.Order
	out := orderResponse{
		OrderID:           pb.FormatOrderID(o.ID),
		ClientID:          o.ClientID,
		Symbol:            o.Symbol,
		Side:              o.SideValue().String(),
		OrderType:         o.TypeValue().String(),
		Quantity:          o.Quantity,
		RemainingQuantity: o.RemainingQuantity,
		Status:            o.StatusValue().String(),
		CreatedAt:         o.CreatedAt(),
		Fills:             make([]fillResponse, 0, len(view.Fills)),
	}
	if o.Price != nil {
		px := price.Format(*o.Price)
		out.Price = &px
	}
	for _, f := range view.Fills {
		out.Fills = append(out.Fills, fillResponse{
			MakerOrderID: pb.FormatOrderID(f.OrderID),
			Price:        price.Format(f.FillPrice),
			Quantity:     f.FillQuantity,
		})
	}
	respondJSON(w, out)
}

// -------------------- Markets --------------------

type levelResponse struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Orders   int    `json:"orders"`
}

type bookResponse struct {
	Symbol    string          `json:"symbol"`
	Bids      []levelResponse `json:"bids"`
	Asks      []levelResponse `json:"asks"`
	Timestamp int64           `json:"timestamp"`
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"symbols": s.engine.Symbols()})
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := orderbook.NormalizeSymbol(mux.Vars(r)["symbol"])
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "invalid_symbol", orderbook.ErrInvalidSymbol.Error())
		return
	}

	depth := service.DepthOrAll(s.opts.DefaultDepth)
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_depth", err.Error())
			return
		}
		depth = n
	}

	bids, asks := s.engine.Snapshot(symbol, depth)
	respondJSON(w, bookResponse{
		Symbol:    symbol,
		Bids:      toLevels(bids),
		Asks:      toLevels(asks),
		Timestamp: time.Now().UnixMilli(),
	})
}

type bboResponse struct {
	Symbol string  `json:"symbol"`
	Bid    *string `json:"bid"`
	Ask    *string `json:"ask"`
}

func (s *Server) handleBBO(w http.ResponseWriter, r *http.Request) {
	symbol := orderbook.NormalizeSymbol(mux.Vars(r)["symbol"])
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "invalid_symbol", orderbook.ErrInvalidSymbol.Error())
		return
	}

	top, err := s.engine.TopOfBook(r.Context(), symbol)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	out := bboResponse{Symbol: top.Symbol}
	if top.HasBid {
		bid := price.Format(top.Bid)
		out.Bid = &bid
	}
	if top.HasAsk {
		ask := price.Format(top.Ask)
		out.Ask = &ask
	}
	respondJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status":  "ok",
		"symbols": len(s.engine.Symbols()),
	})
}

// -------------------- Helpers --------------------

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	if service.IsRetriable(err) {
		s.log.Warn("persistence failure", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	s.log.Error("engine failure", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal", err.Error())
}

func toLevels(in []orderbook.Level) []levelResponse {
	out := make([]levelResponse, 0, len(in))
	for _, l := range in {
		out = append(out, levelResponse{Price: price.Format(l.Price), Quantity: l.Quantity, Orders: l.Orders})
	}
	return out
}

func respondJSON(w http.ResponseWriter, data any) {
	respondStatus(w, http.StatusOK, data)
}

func respondStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondStatus(w, status, errorResponse{Error: code, Message: strings.TrimSpace(message)})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
