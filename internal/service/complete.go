package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/shipper-client/internal/metrics"
	"github.com/mmeshcher/shipper-client/internal/model"
)

// Step - шаг сценария завершения доставки, на котором произошёл отказ.
type Step string

const (
	StepPayment  Step = "payment"
	StepComplete Step = "complete"
)

// WorkflowError - отказ сценария завершения доставки.
type WorkflowError struct {
	Step    Step
	OrderID int64
	Message string
	Err     error
}

func (e *WorkflowError) Error() string {
	return e.Message
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// CompleteOrder завершает доставку. Неоплаченный заказ сначала помечается оплаченным;
// если это не удалось, завершение не запрашивается. Результат шага оплаты не запоминается:
// повторный вызов снова смотрит на статус оплаты переданного заказа.
func (s *Service) CompleteOrder(ctx context.Context, order model.Order) (model.Order, error) {
	if !order.CanComplete() {
		return model.Order{}, fmt.Errorf("complete order %d in status %q: %w", order.ID, order.Status, ErrActionNotAllowed)
	}

	log := s.logger.With(zap.Int64("orderID", order.ID), zap.String("code", order.Code))

	if !order.IsPaid() {
		if _, err := s.backend.UpdatePaymentStatus(ctx, order.ID, model.PaymentPaid); err != nil {
			metrics.CompletionWorkflowTotal.WithLabelValues("payment_failed").Inc()
			log.Warn("payment update failed", zap.Error(err))
			return model.Order{}, &WorkflowError{
				Step:    StepPayment,
				OrderID: order.ID,
				Message: "Cập nhật thanh toán thất bại: " + err.Error(),
				Err:     err,
			}
		}
		log.Info("payment marked as paid", zap.String("previous", order.PaymentStatus))
	}

	completed, err := s.backend.CompleteOrder(ctx, order.ID)
	if err != nil {
		metrics.CompletionWorkflowTotal.WithLabelValues("complete_failed").Inc()
		log.Warn("complete order failed", zap.Error(err))
		return model.Order{}, &WorkflowError{
			Step:    StepComplete,
			OrderID: order.ID,
			Message: err.Error(),
			Err:     err,
		}
	}

	metrics.CompletionWorkflowTotal.WithLabelValues("success").Inc()
	log.Info("order completed")
	return completed, nil
}
