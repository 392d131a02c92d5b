// Package service реализует сценарии курьера поверх клиента API:
// вход и выход, списки заказов с фильтрами, принятие и завершение доставки.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/shipper-client/internal/backend"
	"github.com/mmeshcher/shipper-client/internal/metrics"
	"github.com/mmeshcher/shipper-client/internal/model"
	"github.com/mmeshcher/shipper-client/internal/orderfilter"
	"github.com/mmeshcher/shipper-client/internal/session"
	"github.com/mmeshcher/shipper-client/internal/validation"
)

var (
	// ErrActionNotAllowed возвращается, если действие не разрешено для текущего статуса заказа.
	ErrActionNotAllowed = errors.New("action is not allowed for order status")
	// ErrNoSession возвращается, если курьер не вошёл в систему.
	ErrNoSession = errors.New("Bạn chưa đăng nhập")
	// ErrEmptyCredentials возвращается при пустом email или пароле.
	ErrEmptyCredentials = errors.New("Email và mật khẩu không được để trống")
)

// Backend описывает удалённые операции, которые использует сервис.
type Backend interface {
	Login(ctx context.Context, email, password string) (model.LoginData, error)
	AvailableOrders(ctx context.Context) ([]model.Order, error)
	MyOrders(ctx context.Context, q backend.MyOrdersQuery) ([]model.Order, error)
	AcceptOrder(ctx context.Context, orderID int64) (model.Order, error)
	CompleteOrder(ctx context.Context, orderID int64) (model.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, paymentStatus string) (model.Order, error)
	Logout(ctx context.Context) error
	Reachable(ctx context.Context) error
}

// Filter - выбранные на экране «мои заказы» статус и диапазон дат. nil означает «все».
type Filter struct {
	Status *model.OrderStatus
	Range  *orderfilter.DateRange
}

// Service содержит бизнес-логику клиента курьера.
type Service struct {
	backend    Backend
	store      session.Store
	reconciler *orderfilter.Reconciler
	logger     *zap.Logger
}

// NewService создаёт сервис.
func NewService(b Backend, store session.Store, reconciler *orderfilter.Reconciler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reconciler == nil {
		reconciler = orderfilter.NewReconciler(nil, logger)
	}
	return &Service{
		backend:    b,
		store:      store,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Reconciler возвращает фильтр дат сервиса.
func (s *Service) Reconciler() *orderfilter.Reconciler {
	return s.reconciler
}

// Login проверяет учётные данные, выполняет вход и сохраняет сессию.
func (s *Service) Login(ctx context.Context, email, password string) (model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.Session{}, ErrEmptyCredentials
	}
	if err := validation.Email(email); err != nil {
		return model.Session{}, err
	}

	data, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return model.Session{}, loginFailure(err)
	}

	sess := model.SessionFromLogin(data)
	if err := s.store.Save(ctx, sess); err != nil {
		return model.Session{}, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("shipper logged in", zap.Int64("userID", sess.UserID), zap.String("email", sess.UserEmail))
	return sess, nil
}

// loginFailure подменяет текст HTTP-ошибки входа на понятный курьеру.
func loginFailure(err error) error {
	e, ok := backend.AsError(err)
	if !ok || e.Kind != backend.KindHTTP {
		return err
	}

	mapped := *e
	switch {
	case e.Code == http.StatusUnauthorized:
		mapped.Message = "Email hoặc mật khẩu không đúng"
	case e.Code == http.StatusForbidden:
		mapped.Message = "Tài khoản của bạn đã bị khóa"
	case e.Code == http.StatusNotFound:
		mapped.Message = "Không tìm thấy máy chủ đăng nhập"
	case e.Code >= http.StatusInternalServerError:
		mapped.Message = "Máy chủ đang gặp sự cố. Vui lòng thử lại sau ít phút"
	}
	return &mapped
}

// Logout завершает сессию на сервере и всегда очищает локальное хранилище.
func (s *Service) Logout(ctx context.Context) error {
	remoteErr := s.backend.Logout(ctx)
	if remoteErr != nil {
		s.logger.Warn("backend logout failed, clearing local session anyway", zap.Error(remoteErr))
	}

	clearErr := s.store.Clear(ctx)
	if clearErr != nil {
		s.logger.Error("clear session", zap.Error(clearErr))
		clearErr = fmt.Errorf("clear session: %w", clearErr)
	}

	return multierr.Combine(remoteErr, clearErr)
}

// CurrentSession возвращает сохранённую сессию или ErrNoSession.
func (s *Service) CurrentSession(ctx context.Context) (model.Session, error) {
	sess, err := s.store.Load(ctx)
	if errors.Is(err, session.ErrNotFound) {
		return model.Session{}, ErrNoSession
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// Reachable проверяет доступность сервера API.
func (s *Service) Reachable(ctx context.Context) error {
	return s.backend.Reachable(ctx)
}

// AvailableOrders возвращает заказы, которые можно принять.
func (s *Service) AvailableOrders(ctx context.Context) ([]model.Order, error) {
	return s.backend.AvailableOrders(ctx)
}

// MyOrders выполняет один запрос с фильтрами как есть и перепроверяет даты на клиенте.
func (s *Service) MyOrders(ctx context.Context, f Filter) ([]model.Order, error) {
	q := backend.MyOrdersQuery{Status: f.Status}
	if f.Range != nil {
		q.StartDate = f.Range.Start.String()
		q.EndDate = f.Range.End.String()
	}

	orders, err := s.backend.MyOrders(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Reconcile(orders, f.Range), nil
}

// FetchEachStatus собирает «все заказы» отдельными запросами по каждому статусу.
// Запросы идут параллельно, результаты склеиваются в порядке model.FallbackStatuses.
// Неудачные запросы пропускаются; ошибка возвращается, только если не удался ни один.
func (s *Service) FetchEachStatus(ctx context.Context, dr *orderfilter.DateRange) ([]model.Order, error) {
	statuses := model.FallbackStatuses
	results := make([][]model.Order, len(statuses))
	errs := make([]error, len(statuses))

	var g errgroup.Group
	for i, st := range statuses {
		i, st := i, st
		g.Go(func() error {
			status := st
			orders, err := s.MyOrders(ctx, Filter{Status: &status, Range: dr})
			if err != nil {
				s.logger.Warn("per-status load failed", zap.String("status", string(status)), zap.Error(err))
				errs[i] = fmt.Errorf("status %s: %w", status, err)
				return nil
			}
			results[i] = orders
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]model.Order, 0)
	failed := 0
	for i := range statuses {
		if errs[i] != nil {
			failed++
			continue
		}
		merged = append(merged, results[i]...)
	}

	switch failed {
	case 0:
		metrics.FallbackAggregationsTotal.WithLabelValues("success").Inc()
	case len(statuses):
		metrics.FallbackAggregationsTotal.WithLabelValues("failed").Inc()
		return nil, multierr.Combine(errs...)
	default:
		metrics.FallbackAggregationsTotal.WithLabelValues("partial").Inc()
	}

	return merged, nil
}

// AcceptOrder принимает готовящийся заказ.
func (s *Service) AcceptOrder(ctx context.Context, order model.Order) (model.Order, error) {
	if !order.CanAccept() {
		return model.Order{}, fmt.Errorf("accept order %d in status %q: %w", order.ID, order.Status, ErrActionNotAllowed)
	}

	accepted, err := s.backend.AcceptOrder(ctx, order.ID)
	if err != nil {
		return model.Order{}, err
	}

	s.logger.Info("order accepted", zap.Int64("orderID", order.ID), zap.String("code", order.Code))
	return accepted, nil
}
