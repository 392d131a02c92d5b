package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mmeshcher/shipper-client/internal/backend"
	"github.com/mmeshcher/shipper-client/internal/model"
)

func renderOrders(w io.Writer, orders []model.Order) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(w, "Không có đơn hàng")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMÃ ĐƠN\tTRẠNG THÁI\tTHANH TOÁN\tTỔNG\tKHÁCH HÀNG\tĐỊA CHỈ")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\t%s\t%s\t%s\n",
			o.ID, o.Code, o.Status,
			o.PaymentMethod, model.PaymentStatusLabel(o.PaymentStatus),
			o.TotalAmount, o.Customer.Name, o.DeliveryAddress)
	}
	return tw.Flush()
}

// printError показывает сбои связи как экран ошибки, остальные ошибки текстом.
func printError(w io.Writer, err error) {
	e, ok := backend.AsError(err)
	if !ok || (e.Kind != backend.KindOffline && e.Kind != backend.KindTransport) {
		fmt.Fprintf(w, "Lỗi: %v\n", err)
		return
	}

	state := backend.Describe(err)
	fmt.Fprintf(w, "%s\n%s\n", state.Title, state.Message)
	if state.Detail != "" {
		fmt.Fprintf(w, "(%s)\n", state.Detail)
	}
}
