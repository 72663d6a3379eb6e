package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"log/slog"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/audit"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/session"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/storage"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CatalogStore interface {
	ListProducts(ctx context.Context, limit int) ([]storage.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*storage.Product, error)
	CreateOrder(ctx context.Context, userID uuid.UUID, items []storage.OrderItem, total decimal.Decimal) (*storage.Order, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID) error
}

type cartItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Options   []string  `json:"options,omitempty"`
}

// ShopHandler covers the storefront collaborators the security pipeline
// wraps: catalog, customization quotes, cart and checkout. Carts are bound to
// the browser session and kept in process memory.
type ShopHandler struct {
	Store  CatalogStore
	Logger *slog.Logger

	mu    sync.Mutex
	carts map[string][]cartItem
}

func NewShopHandler(store CatalogStore, logger *slog.Logger) *ShopHandler {
	return &ShopHandler{
		Store:  store,
		Logger: logger,
		carts:  map[string][]cartItem{},
	}
}

func (h *ShopHandler) ListProducts(c *gin.Context) {
	products, err := h.Store.ListProducts(c.Request.Context(), 50)
	if err != nil {
		h.Logger.Error("product list failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *ShopHandler) GetProduct(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid product id"})
		return
	}
	product, err := h.Store.GetProduct(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "product not found"})
			return
		}
		h.Logger.Error("product lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, product)
}

type quoteRequest struct {
	Options  []string `json:"options"`
	Quantity int      `json:"quantity"`
}

// Quote prices a customized product: base price plus the delta of every
// selected option, times quantity.
func (h *ShopHandler) Quote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid product id"})
		return
	}

	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid payload"})
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	product, err := h.Store.GetProduct(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "product not found"})
			return
		}
		h.Logger.Error("product lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	unit, err := priceWithOptions(product, req.Options)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: err.Error()})
		return
	}
	total := unit.Mul(decimal.NewFromInt(int64(req.Quantity)))

	c.JSON(http.StatusOK, gin.H{
		"product_id": product.ID,
		"unit_price": unit.StringFixed(2),
		"quantity":   req.Quantity,
		"total":      total.StringFixed(2),
	})
}

func priceWithOptions(product *storage.Product, options []string) (decimal.Decimal, error) {
	price := product.BasePrice
	for _, opt := range options {
		delta, ok := product.OptionDeltas[opt]
		if !ok {
			return decimal.Zero, errors.New("unknown customization option: " + opt)
		}
		price = price.Add(delta)
	}
	return price, nil
}

func (h *ShopHandler) AddToCart(c *gin.Context) {
	sid := session.FromContext(c)
	if sid == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "no session"})
		return
	}

	var item cartItem
	if err := c.ShouldBindJSON(&item); err != nil || item.ProductID == uuid.Nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid payload"})
		return
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	product, err := h.Store.GetProduct(c.Request.Context(), item.ProductID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "product not found"})
			return
		}
		h.Logger.Error("product lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	if _, err := priceWithOptions(product, item.Options); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: err.Error()})
		return
	}

	h.mu.Lock()
	h.carts[sid] = append(h.carts[sid], item)
	count := len(h.carts[sid])
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"items": count})
}

func (h *ShopHandler) GetCart(c *gin.Context) {
	sid := session.FromContext(c)

	h.mu.Lock()
	items := append([]cartItem(nil), h.carts[sid]...)
	h.mu.Unlock()

	if items == nil {
		items = []cartItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *ShopHandler) Checkout(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString(auth.ContextUserIDKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "login required"})
		return
	}

	sid := session.FromContext(c)
	h.mu.Lock()
	items := append([]cartItem(nil), h.carts[sid]...)
	h.mu.Unlock()

	if len(items) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "cart is empty"})
		return
	}

	total := decimal.Zero
	orderItems := make([]storage.OrderItem, 0, len(items))
	for _, item := range items {
		product, err := h.Store.GetProduct(c.Request.Context(), item.ProductID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "cart references a missing product"})
				return
			}
			h.Logger.Error("product lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
			return
		}
		unit, err := priceWithOptions(product, item.Options)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: err.Error()})
			return
		}
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
		orderItems = append(orderItems, storage.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Options:   item.Options,
			UnitPrice: unit.StringFixed(2),
		})
	}

	order, err := h.Store.CreateOrder(c.Request.Context(), userID, orderItems, total)
	if err != nil {
		h.Logger.Error("order creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	h.mu.Lock()
	delete(h.carts, sid)
	h.mu.Unlock()

	audit.AddDetail(c, "order_id", order.ID.String())
	audit.AddDetail(c, "total", total.StringFixed(2))

	c.JSON(http.StatusCreated, gin.H{
		"order_id": order.ID,
		"total":    total.StringFixed(2),
		"status":   order.Status,
	})
}

func (h *ShopHandler) ConfirmPayment(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid order id"})
		return
	}

	if err := h.Store.MarkOrderPaid(c.Request.Context(), orderID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "order not found"})
			return
		}
		h.Logger.Error("payment confirmation failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	audit.AddDetail(c, "order_id", orderID.String())
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": "paid"})
}
