// Package adminapi is the admin HTTP surface named in spec.md §6: a small
// gin-gonic/gin server exposing position, order, and portfolio-state
// queries plus order placement/cancellation, adapted from the teacher's
// internal/api package and trimmed to exactly the five routes §6 lists.
// Every route is a thin adapter issuing a bus request/response against
// the gateway's API responder or the portfolio manager's stats endpoint.
package adminapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"trading-core/internal/bus"
	"trading-core/internal/gateway"
	"trading-core/internal/model"
	"trading-core/internal/portfolio"
	"trading-core/pkg/db"
)

const requestTimeout = 5 * time.Second

// Server wires the five admin routes around the bus and order store.
type Server struct {
	Router *gin.Engine

	b         bus.Bus
	orders    *db.OrderStore
	symbols   []string
	jwtSecret string
}

// NewServer builds the admin HTTP server. jwtSecret guards the
// order-placing routes with a bearer-token check; an empty secret
// disables auth (local/dev runs only).
func NewServer(b bus.Bus, orders *db.OrderStore, symbols []string, jwtSecret string) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{Router: r, b: b, orders: orders, symbols: symbols, jwtSecret: jwtSecret}
	s.routes()
	return s
}

func (s *Server) routes() {
	protected := s.Router.Group("")
	if s.jwtSecret != "" {
		protected.Use(bearerAuth(s.jwtSecret))
	}

	s.Router.GET("/position", s.getPosition)
	protected.POST("/create-order", s.createOrder)
	protected.POST("/create-market-order", s.createMarketOrder)
	protected.POST("/cancel-order", s.cancelOrder)
	s.Router.GET("/portfolio_state", s.getPortfolioState)
}

// Start blocks serving on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}

func bearerAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			fail(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}
		token, err := jwt.Parse(header[len(prefix):], func(*jwt.Token) (any, error) { return []byte(secret), nil })
		if err != nil || !token.Valid {
			fail(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Next()
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// GET /position: the order store's view of every order for each
// configured symbol, doubling as the position surface since the
// portfolio manager's positions are symbol-scoped (use /portfolio_state
// for PnL-bearing position detail).
func (s *Server) getPosition(c *gin.Context) {
	ctx := c.Request.Context()
	out := make(map[string][]db.StoredOrder, len(s.symbols))
	for _, symbol := range s.symbols {
		orders, err := s.orders.GetBySymbol(ctx, symbol)
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		out[symbol] = orders
	}
	c.JSON(http.StatusOK, out)
}

type createOrderRequest struct {
	Side        model.Side        `json:"side"`
	Quantity    decimal.Decimal   `json:"quantity"`
	Price       decimal.Decimal   `json:"price"`
	TimeInForce model.TimeInForce `json:"timeInForce"`
	Symbol      string            `json:"symbol"`
}

// POST /create-order: places a limit order.
func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	s.placeOrder(c, gateway.PlaceOrderRequest{
		Symbol:      s.resolveSymbol(req.Symbol),
		Side:        req.Side,
		Type:        model.OrderTypeLimit,
		TimeInForce: req.TimeInForce,
		Quantity:    req.Quantity,
		Price:       req.Price,
	})
}

type createMarketOrderRequest struct {
	Side     model.Side      `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Symbol   string          `json:"symbol"`
}

// POST /create-market-order: places a market order.
func (s *Server) createMarketOrder(c *gin.Context) {
	var req createMarketOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	s.placeOrder(c, gateway.PlaceOrderRequest{
		Symbol:   s.resolveSymbol(req.Symbol),
		Side:     req.Side,
		Type:     model.OrderTypeMarket,
		Quantity: req.Quantity,
	})
}

func (s *Server) resolveSymbol(symbol string) string {
	if symbol != "" {
		return symbol
	}
	if len(s.symbols) > 0 {
		return s.symbols[0]
	}
	return ""
}

func (s *Server) placeOrder(c *gin.Context, req gateway.PlaceOrderRequest) {
	ctx, cancel := requestCtx(c)
	defer cancel()

	var resp gateway.PlaceOrderResponse
	if err := requestJSON(ctx, s.b, gateway.TopicPlaceOrder, req, &resp); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if resp.Error != "" {
		fail(c, http.StatusBadGateway, resp.Error)
		return
	}
	c.JSON(http.StatusOK, resp.Result)
}

type cancelOrderRequest struct {
	OrderID int64  `json:"orderId"`
	Symbol  string `json:"symbol"`
}

// POST /cancel-order
func (s *Server) cancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	var resp gateway.CancelOrderResponse
	err := requestJSON(ctx, s.b, gateway.TopicCancelOrder, gateway.CancelOrderRequest{
		Symbol:          s.resolveSymbol(req.Symbol),
		ExchangeOrderID: req.OrderID,
	}, &resp)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if resp.Error != "" {
		fail(c, http.StatusBadGateway, resp.Error)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "canceled"})
}

// GET /portfolio_state: every configured symbol's portfolio snapshot.
func (s *Server) getPortfolioState(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()

	out := make(map[string]portfolio.Stats, len(s.symbols))
	for _, symbol := range s.symbols {
		stats, err := portfolio.RequestStats(ctx, s.b, symbol, requestTimeout)
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		out[symbol] = stats
	}
	c.JSON(http.StatusOK, out)
}

