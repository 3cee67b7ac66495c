package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"food-delivery/internal/logger"
	"food-delivery/internal/metrics"
	"food-delivery/internal/services/order/internal/domain"
	"food-delivery/internal/services/order/internal/lifecycle"
	"food-delivery/internal/services/order/internal/pricing"
)

const requestIDKey = "request_id"

func init() {
	// Report validation failures under the JSON field names clients send.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// Handler serves the order HTTP API
type Handler struct {
	service        *Service
	logger         *logger.Logger
	requestTimeout time.Duration
}

func NewHandler(service *Service, log *logger.Logger, requestTimeout time.Duration) *Handler {
	return &Handler{
		service:        service,
		logger:         log,
		requestTimeout: requestTimeout,
	}
}

type groupSelectionBody struct {
	OptionGroupID int64   `json:"option_group_id" binding:"required,gt=0"`
	OptionIDs     []int64 `json:"option_ids"`
}

type cartLineBody struct {
	ProductID         int64                `json:"product_id" binding:"required,gt=0"`
	Quantity          int                  `json:"quantity"`
	SelectedOptionIDs []int64              `json:"selected_option_ids"`
	OptionGroups      []groupSelectionBody `json:"option_groups" binding:"omitempty,dive"`
}

type placeOrderBody struct {
	RestaurantID int64          `json:"restaurant_id" binding:"required,gt=0"`
	UserID       int64          `json:"user_id" binding:"required,gt=0"`
	Lines        []cartLineBody `json:"lines" binding:"omitempty,dive"`
}

type reviseOrderBody struct {
	Lines []cartLineBody `json:"lines" binding:"omitempty,dive"`
}

type transitionBody struct {
	Status    string `json:"status" binding:"required"`
	ChangedBy string `json:"changed_by" binding:"omitempty,max=100"`
}

type orderItemOptionResponse struct {
	OptionID      int64  `json:"option_id"`
	OptionGroupID int64  `json:"option_group_id"`
	Name          string `json:"name"`
	ExtraPrice    string `json:"extra_price"`
}

type orderItemResponse struct {
	ID          int64                     `json:"id,omitempty"`
	ProductID   int64                     `json:"product_id"`
	ProductName string                    `json:"product_name"`
	Quantity    int                       `json:"quantity"`
	BasePrice   string                    `json:"base_price"`
	LineTotal   string                    `json:"line_total"`
	Options     []orderItemOptionResponse `json:"options"`
}

type orderResponse struct {
	ID           int64               `json:"id"`
	UserID       int64               `json:"user_id"`
	RestaurantID int64               `json:"restaurant_id"`
	Status       string              `json:"status"`
	TotalPrice   string              `json:"total_price"`
	Version      int64               `json:"version"`
	Items        []orderItemResponse `json:"items"`
	NextStatuses []string            `json:"next_statuses"`
	Terminal     bool                `json:"terminal"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type optionResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ExtraPrice string `json:"extra_price"`
}

type optionGroupResponse struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	IsRequired   bool             `json:"is_required"`
	MinSelection int              `json:"min_selection"`
	MaxSelection int              `json:"max_selection"`
	Options      []optionResponse `json:"options"`
}

type productResponse struct {
	ID           int64                 `json:"id"`
	Name         string                `json:"name"`
	Description  string                `json:"description,omitempty"`
	BasePrice    string                `json:"base_price"`
	Version      int64                 `json:"version"`
	OptionGroups []optionGroupResponse `json:"option_groups"`
}

type menuResponse struct {
	Restaurant domain.Restaurant `json:"restaurant"`
	Products   []productResponse `json:"products"`
}

type statusChangeResponse struct {
	Status    string    `json:"status"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	Notes     *string   `json:"notes,omitempty"`
}

func toCartLines(body []cartLineBody) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(body))
	for _, l := range body {
		line := domain.CartLine{
			ProductID:         l.ProductID,
			Quantity:          l.Quantity,
			SelectedOptionIDs: l.SelectedOptionIDs,
		}
		for _, g := range l.OptionGroups {
			line.OptionGroups = append(line.OptionGroups, domain.GroupSelection{
				OptionGroupID: g.OptionGroupID,
				OptionIDs:     g.OptionIDs,
			})
		}
		lines = append(lines, line)
	}
	return lines
}

func toOrderResponse(o *domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		options := make([]orderItemOptionResponse, 0, len(item.Options))
		for _, opt := range item.Options {
			options = append(options, orderItemOptionResponse{
				OptionID:      opt.OptionID,
				OptionGroupID: opt.OptionGroupID,
				Name:          opt.Name,
				ExtraPrice:    pricing.Format(opt.ExtraPrice),
			})
		}
		items = append(items, orderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			BasePrice:   pricing.Format(item.BasePrice),
			LineTotal:   pricing.Format(item.LineTotal),
			Options:     options,
		})
	}
	next := lifecycle.Next(o.Status)
	nextStatuses := make([]string, 0, len(next))
	for _, st := range next {
		nextStatuses = append(nextStatuses, string(st))
	}

	return orderResponse{
		ID:           o.ID,
		UserID:       o.UserID,
		RestaurantID: o.RestaurantID,
		Status:       string(o.Status),
		TotalPrice:   pricing.Format(o.TotalPrice),
		Version:      o.Version,
		Items:        items,
		NextStatuses: nextStatuses,
		Terminal:     lifecycle.IsTerminal(o.Status),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func toMenuResponse(m *domain.Menu) menuResponse {
	products := make([]productResponse, 0, len(m.Products))
	for _, p := range m.Products {
		groups := make([]optionGroupResponse, 0, len(p.OptionGroups))
		for _, g := range p.OptionGroups {
			options := make([]optionResponse, 0, len(g.Options))
			for _, opt := range g.Options {
				options = append(options, optionResponse{
					ID:         opt.ID,
					Name:       opt.Name,
					ExtraPrice: pricing.Format(opt.ExtraPrice),
				})
			}
			groups = append(groups, optionGroupResponse{
				ID:           g.ID,
				Name:         g.Name,
				IsRequired:   g.IsRequired,
				MinSelection: g.MinSelection,
				MaxSelection: g.MaxSelection,
				Options:      options,
			})
		}
		products = append(products, productResponse{
			ID:           p.ID,
			Name:         p.Name,
			Description:  p.Description,
			BasePrice:    pricing.Format(p.BasePrice),
			Version:      p.Version,
			OptionGroups: groups,
		})
	}
	return menuResponse{Restaurant: m.Restaurant, Products: products}
}

func (h *Handler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.requestTimeout)
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// CreateOrder handles POST /orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var body placeOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, "place_order", bindError(err))
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	order, err := h.service.PlaceOrder(ctx, &PlaceOrderRequest{
		UserID:       body.UserID,
		RestaurantID: body.RestaurantID,
		Lines:        toCartLines(body.Lines),
	}, requestID(c))
	if err != nil {
		h.writeError(c, "place_order", err)
		return
	}

	metrics.RecordOrderOperation("place_order", true)
	c.JSON(http.StatusCreated, toOrderResponse(order))
}

// GetOrder handles GET /orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	id, err := orderID(c)
	if err != nil {
		h.writeError(c, "get_order", err)
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	order, err := h.service.GetOrder(ctx, id)
	if err != nil {
		h.writeError(c, "get_order", err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

// GetHistory handles GET /orders/:id/history
func (h *Handler) GetHistory(c *gin.Context) {
	id, err := orderID(c)
	if err != nil {
		h.writeError(c, "order_history", err)
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	history, err := h.service.History(ctx, id)
	if err != nil {
		h.writeError(c, "order_history", err)
		return
	}

	resp := make([]statusChangeResponse, 0, len(history))
	for _, change := range history {
		resp = append(resp, statusChangeResponse{
			Status:    string(change.Status),
			ChangedBy: change.ChangedBy,
			ChangedAt: change.ChangedAt,
			Notes:     change.Notes,
		})
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "history": resp})
}

// UpdateStatus handles PATCH /orders/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := orderID(c)
	if err != nil {
		h.writeError(c, "transition_status", err)
		return
	}

	var body transitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, "transition_status", bindError(err))
		return
	}
	if body.ChangedBy == "" {
		body.ChangedBy = "api"
	}

	ctx, cancel := h.context(c)
	defer cancel()

	order, err := h.service.TransitionStatus(ctx, id, body.Status, body.ChangedBy, requestID(c))
	if err != nil {
		h.writeError(c, "transition_status", err)
		return
	}

	metrics.RecordOrderOperation("transition_status", true)
	c.JSON(http.StatusOK, toOrderResponse(order))
}

// ReviseLines handles PUT /orders/:id/lines
func (h *Handler) ReviseLines(c *gin.Context) {
	id, err := orderID(c)
	if err != nil {
		h.writeError(c, "revise_order", err)
		return
	}

	var body reviseOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, "revise_order", bindError(err))
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	order, err := h.service.ReviseOrder(ctx, id, toCartLines(body.Lines), requestID(c))
	if err != nil {
		h.writeError(c, "revise_order", err)
		return
	}

	metrics.RecordOrderOperation("revise_order", true)
	c.JSON(http.StatusOK, toOrderResponse(order))
}

// GetMenu handles GET /restaurants/:id/menu
func (h *Handler) GetMenu(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(c, "get_menu", domain.Validation(domain.CodeInvalidRequest, "restaurant id must be a positive integer",
			map[string]interface{}{"field": "id"}))
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	menu, err := h.service.Menu(ctx, id)
	if err != nil {
		h.writeError(c, "get_menu", err)
		return
	}
	c.JSON(http.StatusOK, toMenuResponse(menu))
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy := h.service.HealthCheck(ctx)

	response := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "order-service",
		"healthy":   healthy,
	}
	if !healthy {
		response["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func orderID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation(domain.CodeInvalidRequest, "order id must be a positive integer",
			map[string]interface{}{"field": "id"})
	}
	return id, nil
}

// bindError turns a gin binding failure into an InvalidRequest rejection
func bindError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]interface{}, len(validationErrors))
		for _, fe := range validationErrors {
			// Namespace starts with the body struct name.
			_, field, _ := strings.Cut(fe.Namespace(), ".")
			fields[field] = fe.Tag()
		}
		return domain.Validation(domain.CodeInvalidRequest, "request body failed validation",
			map[string]interface{}{"fields": fields})
	}
	return domain.Validation(domain.CodeInvalidRequest, "request body is not valid JSON", nil)
}

// statusFor maps an error kind to its HTTP status
func statusFor(e *domain.Error) int {
	switch e.Kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidationFailure:
		return http.StatusBadRequest
	case domain.KindConsistencyViolation:
		if e.Code == domain.CodeCatalogChanged {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case domain.KindStateTransitionRejected, domain.KindStorageConflict:
		return http.StatusConflict
	case domain.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError writes the rejection body. Errors outside the domain taxonomy
// are logged and reported as a generic internal error.
func (h *Handler) writeError(c *gin.Context, operation string, err error) {
	reqID := requestID(c)
	metrics.RecordOrderOperation(operation, false)

	body := gin.H{
		"kind":    "internal",
		"code":    "InternalError",
		"message": "internal server error",
		"details": map[string]interface{}{},
	}
	status := http.StatusInternalServerError

	if de, ok := domain.AsError(err); ok {
		status = statusFor(de)
		details := de.Details
		if details == nil {
			details = map[string]interface{}{}
		}
		body = gin.H{
			"kind":    string(de.Kind),
			"code":    string(de.Code),
			"message": de.Message,
			"details": details,
		}
		metrics.RecordRejection(string(de.Kind), string(de.Code))
		if de.Retryable() {
			c.Header("Retry-After", "1")
		}
	}

	fields := map[string]interface{}{
		"operation":   operation,
		"status_code": status,
		"code":        body["code"],
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(operation+"_failed", "Request failed", reqID, err, fields)
	} else {
		h.logger.Warn(operation+"_rejected", err.Error(), reqID, fields)
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":      body,
		"request_id": reqID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// SetupRoutes builds the gin engine for the order service
func (h *Handler) SetupRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.withLogging(), metrics.PrometheusMiddleware())

	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	orders := r.Group("/orders")
	orders.POST("", h.CreateOrder)
	orders.GET("/:id", h.GetOrder)
	orders.GET("/:id/history", h.GetHistory)
	orders.PATCH("/:id/status", h.UpdateStatus)
	orders.PUT("/:id/lines", h.ReviseLines)

	r.GET("/restaurants/:id/menu", h.GetMenu)

	return r
}

// withLogging assigns a request id and logs every request
func (h *Handler) withLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = logger.GenerateRequestID()
		}
		c.Set(requestIDKey, reqID)
		c.Header("X-Request-ID", reqID)

		h.logger.Debug("request_started", fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path), reqID, map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"remote_addr": c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		})

		c.Next()

		h.logger.Debug("request_completed", fmt.Sprintf("%s %s - %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status()), reqID, map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}
