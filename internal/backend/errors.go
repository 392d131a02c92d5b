package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Operation - имя удалённой операции; используется в сообщениях, логах и метриках.
type Operation string

const (
	OpLogin           Operation = "login"
	OpAvailableOrders Operation = "available_orders"
	OpMyOrders        Operation = "my_orders"
	OpAcceptOrder     Operation = "accept_order"
	OpCompleteOrder   Operation = "complete_order"
	OpUpdatePayment   Operation = "update_payment"
	OpLogout          Operation = "logout"
)

// Сообщения по умолчанию, когда бэкенд ответил success:false без текста.
var defaultMessages = map[Operation]string{
	OpLogin:           "Đăng nhập thất bại",
	OpAvailableOrders: "Không thể lấy danh sách đơn hàng",
	OpMyOrders:        "Không thể lấy danh sách đơn hàng",
	OpAcceptOrder:     "Không thể nhận đơn hàng",
	OpCompleteOrder:   "Không thể hoàn tất đơn hàng",
	OpUpdatePayment:   "Không thể cập nhật trạng thái thanh toán",
	OpLogout:          "Đăng xuất thất bại",
}

const (
	msgParse   = "Không thể đọc dữ liệu từ máy chủ"
	msgOffline = "Không có kết nối mạng"
)

// Kind классифицирует отказ удалённой операции.
type Kind int

const (
	// KindTransport - сетевая ошибка: таймаут, DNS, отказ в соединении.
	KindTransport Kind = iota + 1
	// KindOffline - проверка связи не прошла, запрос не отправлялся.
	KindOffline
	// KindHTTP - ответ с кодом не из диапазона 2xx.
	KindHTTP
	// KindApplication - success:false или отсутствующая обязательная нагрузка.
	KindApplication
	// KindParse - тело ответа не удалось разобрать.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindOffline:
		return "offline"
	case KindHTTP:
		return "http"
	case KindApplication:
		return "application"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error - типизированный отказ удалённой операции.
// Клиент не возвращает вызывающему коду других ошибок.
type Error struct {
	Op      Operation
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout сообщает, что операция прервана по таймауту.
func (e *Error) Timeout() bool {
	if e.Kind != KindTransport {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// AsError извлекает *Error из цепочки ошибок.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf возвращает HTTP-код отказа или 0.
func CodeOf(err error) int {
	if e, ok := AsError(err); ok && e.Kind == KindHTTP {
		return e.Code
	}
	return 0
}

// OfflineError создаётся, когда запрос не отправлялся из-за отсутствия сети.
func OfflineError(op Operation, cause error) *Error {
	return &Error{Op: op, Kind: KindOffline, Message: msgOffline, Err: cause}
}

func transportError(op Operation, err error) *Error {
	return &Error{Op: op, Kind: KindTransport, Message: err.Error(), Err: err}
}

func httpError(op Operation, code int) *Error {
	return &Error{Op: op, Kind: KindHTTP, Code: code, Message: fmt.Sprintf("Lỗi kết nối: %d", code)}
}

func applicationError(op Operation, message string) *Error {
	if message == "" {
		message = defaultMessages[op]
	}
	return &Error{Op: op, Kind: KindApplication, Message: message}
}

func parseError(op Operation, err error) *Error {
	return &Error{Op: op, Kind: KindParse, Message: msgParse, Err: err}
}
