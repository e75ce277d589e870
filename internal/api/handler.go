package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/service"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const sessionCookie = "cart_session"

// Handler contains HTTP handlers
type Handler struct {
	store           *store.Store
	carts           *service.CartService
	checkout        *service.CheckoutService
	checkoutTimeout time.Duration
}

// NewHandler creates a new HTTP handler
func NewHandler(store *store.Store, carts *service.CartService, checkout *service.CheckoutService, checkoutTimeout time.Duration) *Handler {
	return &Handler{
		store:           store,
		carts:           carts,
		checkout:        checkout,
		checkoutTimeout: checkoutTimeout,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/products/:id/reviews", h.listReviews)
		v1.POST("/products/:id/reviews", h.createReview)

		v1.GET("/cart", h.getCart)
		v1.DELETE("/cart", h.clearCart)
		v1.POST("/cart/items/:productID", h.addCartItem)
		v1.PUT("/cart/items/:productID", h.updateCartItem)
		v1.DELETE("/cart/items/:productID", h.removeCartItem)

		v1.POST("/checkout", h.doCheckout)

		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// sessionID resolves the opaque cart session: X-Session-ID header
// first, then the session cookie; a fresh id is minted and set as
// cookie when neither is present.
func (h *Handler) sessionID(c *gin.Context) string {
	if sid := c.GetHeader("X-Session-ID"); sid != "" {
		return sid
	}
	if sid, err := c.Cookie(sessionCookie); err == nil && sid != "" {
		return sid
	}
	sid := uuid.New().String()
	c.SetCookie(sessionCookie, sid, 86400, "/", "", false, true)
	return sid
}

// listProducts handles the catalog listing with search, category and
// price filters, sorting and pagination
func (h *Handler) listProducts(c *gin.Context) {
	filter := store.ProductFilter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
	}

	if raw := c.Query("min_price"); raw != "" {
		min, err := decimal.NewFromString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid min_price"})
			return
		}
		filter.MinPrice = &min
	}
	if raw := c.Query("max_price"); raw != "" {
		max, err := decimal.NewFromString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid max_price"})
			return
		}
		filter.MaxPrice = &max
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	products, err := h.store.ListProducts(c.Request.Context(), filter, c.Query("sort"), page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list products", "details": err.Error()})
		return
	}

	categories, err := h.store.ListCategories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list categories", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products":   products,
		"categories": categories,
		"page":       page,
	})
}

// getProduct handles product detail with the review average
func (h *Handler) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	product, err := h.store.GetProductByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	avg, err := h.store.GetAverageRating(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rating", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product":        product,
		"average_rating": avg,
		"in_stock":       product.InStock(),
	})
}

// addCartItem adds one unit of the product to the session's cart
func (h *Handler) addCartItem(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	count, err := h.carts.Add(c.Request.Context(), h.sessionID(c), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart_count": count})
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// updateCartItem sets the product's quantity; zero or less removes it
func (h *Handler) updateCartItem(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	totals, err := h.carts.SetQuantity(c.Request.Context(), h.sessionID(c), productID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"totals": totals})
}

// removeCartItem deletes the product from the cart
func (h *Handler) removeCartItem(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	totals, err := h.carts.Remove(c.Request.Context(), h.sessionID(c), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"totals": totals})
}

// clearCart empties the session's cart
func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), h.sessionID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart_count": 0})
}

// getCart returns the cart contents with product details and totals
func (h *Handler) getCart(c *gin.Context) {
	ctx := c.Request.Context()

	lines, totals, err := h.carts.Contents(ctx, h.sessionID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	products, err := h.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cart products", "details": err.Error()})
		return
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	type cartItem struct {
		ProductID int64           `json:"product_id"`
		Name      string          `json:"name"`
		UnitPrice decimal.Decimal `json:"unit_price"`
		Quantity  int             `json:"quantity"`
		Subtotal  decimal.Decimal `json:"subtotal"`
	}

	items := make([]cartItem, 0, len(lines))
	for _, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			continue
		}
		items = append(items, cartItem{
			ProductID: line.ProductID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  line.Quantity,
			Subtotal:  p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))),
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "totals": totals})
}

type checkoutRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// doCheckout converts the session's cart into an order
func (h *Handler) doCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.checkoutTimeout)
	defer cancel()

	order, lines, err := h.checkout.Checkout(ctx, req.UserID, h.sessionID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order, "lines": lines})
}

// listOrders returns a user's order history, newest first
func (h *Handler) listOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
		return
	}

	orders, err := h.store.GetOrdersByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orders", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder returns one order with its lines, scoped to its owner
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
		return
	}

	order, err := h.store.GetOrderByID(c.Request.Context(), orderID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	lines, err := h.store.GetOrderLines(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order lines", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "lines": lines})
}

type createReviewRequest struct {
	UserID  int64  `json:"user_id" binding:"required"`
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

// createReview adds a review for a product
func (h *Handler) createReview(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	// the product must exist
	if _, err := h.store.GetProductByID(c.Request.Context(), productID); err != nil {
		h.writeError(c, err)
		return
	}

	review := &models.Review{
		ProductID: productID,
		UserID:    req.UserID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	}
	if err := h.store.CreateReview(c.Request.Context(), review); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create review", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"review": review})
}

// listReviews returns a product's reviews with the average rating
func (h *Handler) listReviews(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	reviews, err := h.store.GetReviewsByProduct(c.Request.Context(), productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reviews", "details": err.Error()})
		return
	}

	avg, err := h.store.GetAverageRating(c.Request.Context(), productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rating", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviews": reviews, "average_rating": avg})
}

// writeError maps the service error taxonomy to HTTP responses
func (h *Handler) writeError(c *gin.Context, err error) {
	var insufficient *service.InsufficientStockError

	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "Insufficient stock",
			"product_id": insufficient.ProductID,
			"available":  insufficient.Available,
			"requested":  insufficient.Requested,
		})
	case errors.Is(err, service.ErrOutOfStock):
		c.JSON(http.StatusConflict, gin.H{"error": "Product is out of stock"})
	case errors.Is(err, service.ErrStockLimitReached):
		c.JSON(http.StatusConflict, gin.H{"error": "Maximum stock quantity already in cart"})
	case errors.Is(err, service.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
	case errors.Is(err, service.ErrProductNotFound), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "details": err.Error()})
	case errors.Is(err, service.ErrCommitFailed):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Checkout failed, please retry",
			"details": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
