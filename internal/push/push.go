// Package push принимает входящие push-уведомления о новых заказах.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultTitle = "Đơn hàng mới"
	DefaultBody  = "Bạn có đơn hàng mới có thể nhận."
)

// Message - нормализованное уведомление.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notification - блок notification входящего сообщения.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type payload struct {
	Notification *Notification     `json:"notification"`
	Data         map[string]string `json:"data"`
}

// Parse разбирает JSON уведомления и заполняет пустые поля.
func Parse(raw []byte) (Message, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Message{}, fmt.Errorf("decode push payload: %w", err)
	}
	return Normalize(p.Notification, p.Data), nil
}

// Normalize берёт заголовок и текст из блока notification, затем из data, затем значения по умолчанию.
func Normalize(n *Notification, data map[string]string) Message {
	msg := Message{Data: data}
	if n != nil {
		msg.Title = strings.TrimSpace(n.Title)
		msg.Body = strings.TrimSpace(n.Body)
	}
	if msg.Title == "" {
		msg.Title = strings.TrimSpace(data["title"])
	}
	if msg.Body == "" {
		msg.Body = strings.TrimSpace(data["body"])
	}
	if msg.Title == "" {
		msg.Title = DefaultTitle
	}
	if msg.Body == "" {
		msg.Body = DefaultBody
	}
	return msg
}

// Notifier показывает уведомление курьеру.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc позволяет использовать функцию как Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Multi рассылает уведомление всем получателям и собирает их ошибки.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, msg Message) error {
		var err error
		for _, n := range notifiers {
			err = multierr.Append(err, n.Notify(ctx, msg))
		}
		return err
	})
}

// LogNotifier выводит уведомление в лог.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info(msg.Title, zap.String("body", msg.Body), zap.Any("data", msg.Data))
	return nil
}

// DeviceRegistrar принимает токен устройства для push-уведомлений.
// Сервер пока не принимает токены, поэтому токен только логируется.
type DeviceRegistrar struct {
	logger *zap.Logger
}

func NewDeviceRegistrar(logger *zap.Logger) *DeviceRegistrar {
	return &DeviceRegistrar{logger: logger}
}

func (r *DeviceRegistrar) Register(_ context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("empty device token")
	}
	r.logger.Info("device token received", zap.String("token", token))
	return nil
}
