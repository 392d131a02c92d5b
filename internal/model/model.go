// Package model содержит доменные сущности клиента курьера.
package model

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// OrderStatus описывает этап жизненного цикла заказа (поле trang_thai).
// Значения совпадают с метками, которые возвращает бэкенд.
type OrderStatus string

const (
	StatusPreparing      OrderStatus = "Đang chuẩn bị"
	StatusOutForDelivery OrderStatus = "Đang giao"
	StatusCompleted      OrderStatus = "Hoàn tất"
	StatusExpired        OrderStatus = "Quá hạn"
	StatusCancelled      OrderStatus = "Bị hủy"
)

// FallbackStatuses перечисляет статусы, по которым собирается список «все заказы»,
// когда запрос без статуса ничего не вернул. Порядок определяет порядок склейки.
var FallbackStatuses = []OrderStatus{
	StatusOutForDelivery,
	StatusCompleted,
	StatusExpired,
	StatusCancelled,
}

// ParseOrderStatus принимает как метку бэкенда, так и короткое имя (preparing, delivering, ...).
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "preparing", strings.ToLower(string(StatusPreparing)):
		return StatusPreparing, true
	case "outfordelivery", "out-for-delivery", "delivering", strings.ToLower(string(StatusOutForDelivery)):
		return StatusOutForDelivery, true
	case "completed", strings.ToLower(string(StatusCompleted)):
		return StatusCompleted, true
	case "expired", strings.ToLower(string(StatusExpired)):
		return StatusExpired, true
	case "cancelled", "canceled", strings.ToLower(string(StatusCancelled)):
		return StatusCancelled, true
	}
	return "", false
}

// Статусы оплаты.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"

	// PaymentPaidLabel - локализованная метка «оплачено», которую бэкенд иногда отдаёт вместо кода.
	PaymentPaidLabel = "Đã thanh toán"
)

// IsPaid сообщает, считается ли статус оплаты оплаченным.
// Бэкенд присылает либо код paid (в любом регистре), либо готовую метку.
func IsPaid(paymentStatus string) bool {
	if strings.EqualFold(strings.TrimSpace(paymentStatus), PaymentPaid) {
		return true
	}
	return norm.NFC.String(paymentStatus) == norm.NFC.String(PaymentPaidLabel)
}

// PaymentStatusLabel возвращает отображаемую метку для статуса оплаты.
func PaymentStatusLabel(paymentStatus string) string {
	switch paymentStatus {
	case PaymentPaid:
		return PaymentPaidLabel
	case PaymentPending:
		return "Chưa thanh toán"
	case PaymentFailed:
		return "Thanh toán thất bại"
	default:
		return paymentStatus
	}
}

// Customer - получатель заказа.
type Customer struct {
	Name  string `json:"ho_ten"`
	Phone string `json:"so_dien_thoai"`
}

// OrderItem - строка заказа. Цены приходят уже отформатированными строками.
type OrderItem struct {
	Name      string `json:"ten_mon"`
	Quantity  int    `json:"so_luong"`
	UnitPrice string `json:"don_gia"`
	LineTotal string `json:"thanh_tien"`
}

// Order описывает одну доставку.
type Order struct {
	ID              int64       `json:"id"`
	Code            string      `json:"ma_don_hang"`
	Customer        Customer    `json:"khach_hang"`
	DeliveryAddress string      `json:"dia_chi_giao"`
	TotalAmount     string      `json:"tong_thanh_toan"`
	TotalAmountRaw  *string     `json:"tong_thanh_toan_raw,omitempty"`
	PaymentMethod   string      `json:"payment_method"`
	PaymentStatus   string      `json:"payment_status"`
	Note            *string     `json:"ghi_chu,omitempty"`
	Status          OrderStatus `json:"trang_thai"`
	CreatedAt       *string     `json:"ngay_tao,omitempty"`
	AcceptedAt      *string     `json:"ngay_nhan,omitempty"`
	Items           []OrderItem `json:"chi_tiet"`
	ShipperID       *int64      `json:"shipper_id,omitempty"`
}

// CanAccept: принять можно только готовящийся заказ.
func (o Order) CanAccept() bool {
	return o.Status == StatusPreparing
}

// CanComplete: завершить можно только заказ в доставке.
func (o Order) CanComplete() bool {
	return o.Status == StatusOutForDelivery
}

// IsPaid сообщает, оплачен ли заказ.
func (o Order) IsPaid() bool {
	return IsPaid(o.PaymentStatus)
}

// IsCashOnDelivery сообщает, что курьер должен получить наличные при доставке.
func (o Order) IsCashOnDelivery() bool {
	return strings.EqualFold(o.PaymentMethod, "COD")
}

// Amount разбирает числовую сумму заказа из tong_thanh_toan_raw.
func (o Order) Amount() (decimal.Decimal, bool) {
	if o.TotalAmountRaw == nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*o.TotalAmountRaw))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Разные версии бэкенда называют поля дат по-разному.
type orderWire struct {
	orderAlias
	CreatedAtAlt1  *string `json:"created_at"`
	CreatedAtAlt2  *string `json:"createdAt"`
	CreatedAtAlt3  *string `json:"ngayTao"`
	AcceptedAtAlt1 *string `json:"accepted_at"`
	AcceptedAtAlt2 *string `json:"acceptedAt"`
	AcceptedAtAlt3 *string `json:"ngayNhan"`
}

type orderAlias Order

// UnmarshalJSON принимает альтернативные имена полей ngay_tao/ngay_nhan.
func (o *Order) UnmarshalJSON(data []byte) error {
	var w orderWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = Order(w.orderAlias)
	o.CreatedAt = firstNonEmpty(o.CreatedAt, w.CreatedAtAlt1, w.CreatedAtAlt2, w.CreatedAtAlt3)
	o.AcceptedAt = firstNonEmpty(o.AcceptedAt, w.AcceptedAtAlt1, w.AcceptedAtAlt2, w.AcceptedAtAlt3)
	return nil
}

func firstNonEmpty(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

// User - курьер, вошедший в систему.
type User struct {
	ID        int64  `json:"id"`
	LastName  string `json:"ho"`
	FirstName string `json:"ten"`
	Email     string `json:"email"`
	Phone     string `json:"so_dien_thoai"`
	RoleID    int64  `json:"vai_tro_id"`
}

// FullName возвращает имя в порядке «фамилия имя».
func (u User) FullName() string {
	return strings.TrimSpace(u.LastName + " " + u.FirstName)
}

// LoginData - полезная нагрузка ответа на вход.
type LoginData struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Session - сохранённое состояние входа на устройстве.
type Session struct {
	Token     string `json:"token"`
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	UserPhone string `json:"user_phone"`
}

// SessionFromLogin собирает сессию из ответа на вход.
func SessionFromLogin(data LoginData) Session {
	return Session{
		Token:     data.Token,
		UserID:    data.User.ID,
		UserName:  data.User.FullName(),
		UserEmail: data.User.Email,
		UserPhone: data.User.Phone,
	}
}
