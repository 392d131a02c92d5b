// Package handler содержит HTTP-обработчики локального API агента курьера.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/shipper-client/internal/backend"
	"github.com/mmeshcher/shipper-client/internal/middleware"
	"github.com/mmeshcher/shipper-client/internal/model"
	"github.com/mmeshcher/shipper-client/internal/orderfilter"
	"github.com/mmeshcher/shipper-client/internal/screen"
	"github.com/mmeshcher/shipper-client/internal/service"
	"github.com/mmeshcher/shipper-client/internal/validation"
)

// Service определяет операции сессии, используемые HTTP-обработчиками.
type Service interface {
	Login(ctx context.Context, email, password string) (model.Session, error)
	Logout(ctx context.Context) error
	CurrentSession(ctx context.Context) (model.Session, error)
}

// Handler реализует HTTP-обработчики API агента.
type Handler struct {
	service        Service
	myOrders       *screen.MyOrders
	available      *screen.Available
	dates          *orderfilter.Reconciler
	now            func() time.Time
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// dates задаёт часовой пояс быстрых диапазонов (?range=).
func NewHandler(s Service, myOrders *screen.MyOrders, available *screen.Available, dates *orderfilter.Reconciler, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	if dates == nil {
		dates = orderfilter.NewReconciler(nil, logger)
	}
	return &Handler{
		service:        s,
		myOrders:       myOrders,
		available:      available,
		dates:          dates,
		now:            time.Now,
		logger:         logger,
		authMiddleware: auth,
	}
}

type ordersResponse struct {
	Orders  []model.Order       `json:"orders"`
	Loading bool                `json:"loading"`
	Error   *backend.ErrorState `json:"error,omitempty"`
}

type completeResponse struct {
	Order         model.Order `json:"order"`
	CashCollected string      `json:"cash_collected,omitempty"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	UserPhone string `json:"user_phone"`
}

type errorResponse struct {
	Error backend.ErrorState `json:"error"`
}

// GetAvailable возвращает текущий снимок доступных заказов.
func (h *Handler) GetAvailable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, availableResponse(h.available.State()))
}

// RefreshAvailable перезагружает доступные заказы и возвращает результат.
func (h *Handler) RefreshAvailable(w http.ResponseWriter, r *http.Request) {
	if !waitDone(r.Context(), h.available.Load()) {
		return
	}
	writeJSON(w, http.StatusOK, availableResponse(h.available.State()))
}

// GetMyOrders загружает заказы курьера с фильтрами status, range или from/to.
// Запрос, чью загрузку вытеснил более новый, получает 409, а не чужой список.
func (h *Handler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	st, err := h.myOrders.Fetch(r.Context(), filter)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ordersResponse{
		Orders:  st.Orders,
		Loading: st.Loading,
		Error:   describe(st.Err),
	})
}

func (h *Handler) parseFilter(w http.ResponseWriter, r *http.Request) (service.Filter, bool) {
	q := r.URL.Query()

	var filter service.Filter
	if raw := strings.TrimSpace(q.Get("status")); raw != "" && raw != "all" {
		status, ok := model.ParseOrderStatus(raw)
		if !ok {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return service.Filter{}, false
		}
		filter.Status = &status
	}

	dr, err := h.dates.Range(q.Get("range"), q.Get("from"), q.Get("to"), h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return service.Filter{}, false
	}
	filter.Range = dr

	return filter, true
}

// AcceptOrder принимает заказ из списка доступных.
func (h *Handler) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, found := findOrder(h.available.State().Orders, id)
	if !found {
		http.Error(w, "order is not in the available list", http.StatusNotFound)
		return
	}

	if err := waitResult(r.Context(), h.available.Accept(order)); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, availableResponse(h.available.State()))
}

// CompleteOrder завершает доставку заказа из списка «мои заказы».
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, found := findOrder(h.myOrders.State().Orders, id)
	if !found {
		http.Error(w, "order is not in the current list", http.StatusNotFound)
		return
	}

	if err := waitResult(r.Context(), h.myOrders.Complete(order)); err != nil {
		h.writeError(w, err)
		return
	}

	done, found := findOrder(h.myOrders.State().Orders, id)
	if !found {
		done = order
		done.Status = model.StatusCompleted
	}

	resp := completeResponse{Order: done}
	if order.IsCashOnDelivery() {
		if amount, ok := order.Amount(); ok {
			resp.CashCollected = amount.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSession возвращает данные вошедшего курьера.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.CurrentSession(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// Login выполняет вход курьера.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	sess, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.available.Load()
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// Logout завершает сессию. Локальная сессия очищается даже при ошибке сервера.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("agent request failed", zap.Error(err), zap.Int("status", status))
	}
	writeJSON(w, status, errorResponse{Error: backend.Describe(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrActionNotAllowed),
		errors.Is(err, screen.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, screen.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrEmptyCredentials),
		errors.Is(err, validation.ErrEmptyEmail),
		errors.Is(err, validation.ErrInvalidEmail):
		return http.StatusBadRequest
	}

	e, ok := backend.AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case backend.KindOffline:
		return http.StatusServiceUnavailable
	case backend.KindTransport:
		if e.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case backend.KindHTTP:
		if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
			return e.Code
		}
		return http.StatusBadGateway
	case backend.KindApplication:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func availableResponse(st screen.AvailableState) ordersResponse {
	return ordersResponse{Orders: st.Orders, Loading: st.Loading, Error: describe(st.Err)}
}

func describe(err error) *backend.ErrorState {
	if err == nil {
		return nil
	}
	state := backend.Describe(err)
	return &state
}

func toSessionResponse(s model.Session) sessionResponse {
	return sessionResponse{
		UserID:    s.UserID,
		UserName:  s.UserName,
		UserEmail: s.UserEmail,
		UserPhone: s.UserPhone,
	}
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func findOrder(orders []model.Order, id int64) (model.Order, bool) {
	for _, o := range orders {
		if o.ID == id {
			return o, true
		}
	}
	return model.Order{}, false
}

func waitDone(ctx context.Context, done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func waitResult(ctx context.Context, res <-chan error) error {
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
