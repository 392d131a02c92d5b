package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderActions(t *testing.T) {
	tests := []struct {
		status      OrderStatus
		canAccept   bool
		canComplete bool
	}{
		{status: StatusPreparing, canAccept: true},
		{status: StatusOutForDelivery, canComplete: true},
		{status: StatusCompleted},
		{status: StatusExpired},
		{status: StatusCancelled},
		{status: OrderStatus("unknown")},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			o := Order{Status: tt.status}
			assert.Equal(t, tt.canAccept, o.CanAccept())
			assert.Equal(t, tt.canComplete, o.CanComplete())
		})
	}
}

func TestIsPaid(t *testing.T) {
	tests := []struct {
		name   string
		status string
		paid   bool
	}{
		{name: "code", status: "paid", paid: true},
		{name: "code upper", status: "PAID", paid: true},
		{name: "code mixed", status: "Paid", paid: true},
		{name: "label", status: "Đã thanh toán", paid: true},
		{name: "label decomposed", status: "Đa\u0303 thanh toa\u0301n", paid: true},
		{name: "pending", status: "pending", paid: false},
		{name: "failed", status: "failed", paid: false},
		{name: "unpaid label", status: "Chưa thanh toán", paid: false},
		{name: "empty", status: "", paid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.paid, IsPaid(tt.status))
		})
	}
}

func TestOrderUnmarshal_AlternateDateFields(t *testing.T) {
	body := `{
		"id": 7,
		"ma_don_hang": "DH007",
		"khach_hang": {"ho_ten": "Nguyễn Văn A", "so_dien_thoai": "0900000000"},
		"dia_chi_giao": "1 Lê Lợi",
		"tong_thanh_toan": "150.000 đ",
		"tong_thanh_toan_raw": "150000.00",
		"payment_method": "COD",
		"payment_status": "pending",
		"trang_thai": "Đang giao",
		"createdAt": "2025-10-17 08:00:00",
		"accepted_at": "2025-10-17 09:30:00",
		"chi_tiet": [{"ten_mon": "Phở", "so_luong": 2, "don_gia": "50.000 đ", "thanh_tien": "100.000 đ"}]
	}`

	var o Order
	require.NoError(t, json.Unmarshal([]byte(body), &o))

	assert.Equal(t, int64(7), o.ID)
	assert.Equal(t, StatusOutForDelivery, o.Status)
	require.NotNil(t, o.CreatedAt)
	assert.Equal(t, "2025-10-17 08:00:00", *o.CreatedAt)
	require.NotNil(t, o.AcceptedAt)
	assert.Equal(t, "2025-10-17 09:30:00", *o.AcceptedAt)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)

	amount, ok := o.Amount()
	require.True(t, ok)
	assert.Equal(t, "150000", amount.String())
	assert.True(t, o.IsCashOnDelivery())
}

func TestOrderUnmarshal_PrimaryNameWins(t *testing.T) {
	body := `{"id": 1, "ngay_tao": "2025-01-01 00:00:00", "created_at": "2024-01-01 00:00:00", "chi_tiet": []}`

	var o Order
	require.NoError(t, json.Unmarshal([]byte(body), &o))
	require.NotNil(t, o.CreatedAt)
	assert.Equal(t, "2025-01-01 00:00:00", *o.CreatedAt)
	assert.Nil(t, o.AcceptedAt)
}

func TestParseOrderStatus(t *testing.T) {
	s, ok := ParseOrderStatus("delivering")
	require.True(t, ok)
	assert.Equal(t, StatusOutForDelivery, s)

	s, ok = ParseOrderStatus("Hoàn tất")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, s)

	_, ok = ParseOrderStatus("lost")
	assert.False(t, ok)
}

func TestSessionFromLogin(t *testing.T) {
	s := SessionFromLogin(LoginData{
		Token: "tok",
		User:  User{ID: 3, LastName: "Trần", FirstName: "Bình", Email: "b@example.com", Phone: "0911"},
	})
	assert.Equal(t, Session{Token: "tok", UserID: 3, UserName: "Trần Bình", UserEmail: "b@example.com", UserPhone: "0911"}, s)
}
