package backend

import (
	"errors"
	"net"
)

// ErrorType - категория ошибки для экрана ошибки.
type ErrorType string

const (
	ErrorNoInternet ErrorType = "no_internet"
	ErrorTimeout    ErrorType = "timeout"
	ErrorServer     ErrorType = "server_error"
	ErrorUnknown    ErrorType = "unknown"
)

// ErrorState - то, что показывается пользователю вместо списка при ошибке.
type ErrorState struct {
	Type    ErrorType `json:"type"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	Retry   string    `json:"retry"`
}

// Describe переводит ошибку в состояние экрана ошибки.
func Describe(err error) ErrorState {
	if err == nil {
		return ErrorState{}
	}

	state := stateFor(classify(err))
	state.Detail = err.Error()
	return state
}

func classify(err error) ErrorType {
	e, ok := AsError(err)
	if !ok {
		return ErrorUnknown
	}

	switch e.Kind {
	case KindOffline:
		return ErrorNoInternet
	case KindTransport:
		if e.Timeout() {
			return ErrorTimeout
		}
		var dnsErr *net.DNSError
		if errors.As(e.Err, &dnsErr) {
			return ErrorNoInternet
		}
		return ErrorServer
	case KindHTTP:
		return ErrorServer
	default:
		return ErrorUnknown
	}
}

func stateFor(t ErrorType) ErrorState {
	switch t {
	case ErrorNoInternet:
		return ErrorState{
			Type:    t,
			Title:   "Không có kết nối mạng",
			Message: "Vui lòng kiểm tra kết nối Wi-Fi hoặc dữ liệu di động và thử lại",
			Retry:   "Kết nối lại",
		}
	case ErrorServer:
		return ErrorState{
			Type:    t,
			Title:   "Lỗi máy chủ",
			Message: "Máy chủ đang gặp sự cố. Vui lòng thử lại sau ít phút",
			Retry:   "Thử lại",
		}
	case ErrorTimeout:
		return ErrorState{
			Type:    t,
			Title:   "Kết nối quá chậm",
			Message: "Kết nối mạng không ổn định. Vui lòng thử lại",
			Retry:   "Thử lại",
		}
	default:
		return ErrorState{
			Type:    ErrorUnknown,
			Title:   "Có lỗi xảy ra",
			Message: "Đã xảy ra lỗi không mong muốn. Vui lòng thử lại",
			Retry:   "Thử lại",
		}
	}
}
