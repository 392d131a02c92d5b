package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/shipper-client/internal/model"
	"github.com/mmeshcher/shipper-client/internal/orderfilter"
	"github.com/mmeshcher/shipper-client/internal/push"
	"github.com/mmeshcher/shipper-client/internal/screen"
	"github.com/mmeshcher/shipper-client/internal/service"
	"github.com/mmeshcher/shipper-client/internal/validation"
)

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "shipper",
		Short:         "Courier client for the shipper order API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "optional dotenv file")
	a.cfg.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newAvailableCommand(a),
		newMineCommand(a),
		newAcceptCommand(a),
		newCompleteCommand(a),
		newDeviceCommand(a),
		newAgentCommand(a),
	)
	return root
}

func newLoginCommand(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				var err error
				password, err = prompt(cmd.InOrStdin(), cmd.ErrOrStderr(), "Mật khẩu: ")
				if err != nil {
					return err
				}
			}
			if err := validation.Password(password); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Cảnh báo: %v\n", err)
			}

			sess, err := a.svc.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Đăng nhập thành công: %s <%s>\n", sess.UserName, sess.UserEmail)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	return cmd
}

func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.svc.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Đã đăng xuất")
			return nil
		},
	}
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in courier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.svc.CurrentSession(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "ID:     %d\nTên:    %s\nEmail:  %s\nSĐT:    %s\n",
				sess.UserID, sess.UserName, sess.UserEmail, sess.UserPhone)
			return nil
		},
	}
}

func newAvailableCommand(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "available",
		Short: "List orders waiting for a courier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if watch {
				return watchAvailable(cmd.Context(), a)
			}

			orders, err := a.svc.AvailableOrders(cmd.Context())
			if err != nil {
				return err
			}
			return renderOrders(a.out, orders)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep refreshing the list until interrupted")
	return cmd
}

func watchAvailable(ctx context.Context, a *app) error {
	available := screen.NewAvailable(a.svc, a.logger, a.cfg.RefreshInterval)
	defer available.Close()

	snapshots, unsubscribe := available.Subscribe()
	defer unsubscribe()

	available.Load()
	available.Start()

	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-snapshots:
			if !ok {
				return nil
			}
			if st.Loading {
				continue
			}
			if st.Err != nil {
				printError(a.out, st.Err)
				continue
			}
			if err := renderOrders(a.out, st.Orders); err != nil {
				return err
			}
		}
	}
}

func newMineCommand(a *app) *cobra.Command {
	var status, preset, from, to string

	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List orders assigned to the courier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := parseFilter(a.svc.Reconciler(), status, preset, from, to, time.Now())
			if err != nil {
				return err
			}

			myOrders := screen.NewMyOrders(a.svc, a.logger, a.cfg.FallbackDelay)
			defer myOrders.Close()

			st, err := myOrders.Fetch(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if st.Err != nil {
				return st.Err
			}
			return renderOrders(a.out, st.Orders)
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "all", "status: all, preparing, delivering, completed, expired, cancelled")
	cmd.Flags().StringVarP(&preset, "range", "r", "", "quick date range: today, 7d, month")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	return cmd
}

func parseFilter(dates *orderfilter.Reconciler, status, preset, from, to string, now time.Time) (service.Filter, error) {
	var filter service.Filter

	if raw := strings.TrimSpace(status); raw != "" && raw != "all" {
		st, ok := model.ParseOrderStatus(raw)
		if !ok {
			return service.Filter{}, fmt.Errorf("unknown status %q", raw)
		}
		filter.Status = &st
	}

	dr, err := dates.Range(preset, from, to, now)
	if err != nil {
		return service.Filter{}, err
	}
	filter.Range = dr
	return filter, nil
}

func newAcceptCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accept ID",
		Short: "Accept an available order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}

			orders, err := a.svc.AvailableOrders(cmd.Context())
			if err != nil {
				return err
			}
			order, ok := findOrder(orders, id)
			if !ok {
				return fmt.Errorf("order %d is not in the available list", id)
			}

			accepted, err := a.svc.AcceptOrder(cmd.Context(), order)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Đã nhận đơn %s (%s)\n", accepted.Code, accepted.Status)
			return nil
		},
	}
}

func newCompleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "complete ID",
		Short: "Mark an order in delivery as delivered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}

			delivering := model.StatusOutForDelivery
			orders, err := a.svc.MyOrders(cmd.Context(), service.Filter{Status: &delivering})
			if err != nil {
				return err
			}
			order, ok := findOrder(orders, id)
			if !ok {
				return fmt.Errorf("order %d is not out for delivery", id)
			}

			done, err := a.svc.CompleteOrder(cmd.Context(), order)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Đã giao đơn %s (%s)\n", done.Code, done.Status)
			if order.IsCashOnDelivery() {
				if amount, ok := order.Amount(); ok {
					fmt.Fprintf(a.out, "Thu hộ: %s\n", amount.String())
				} else {
					fmt.Fprintf(a.out, "Thu hộ: %s\n", order.TotalAmount)
				}
			}
			return nil
		},
	}
}

func newDeviceCommand(a *app) *cobra.Command {
	device := &cobra.Command{
		Use:   "device",
		Short: "Manage push notification devices",
	}

	device.AddCommand(&cobra.Command{
		Use:   "register TOKEN",
		Short: "Register a device token for push notifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return push.NewDeviceRegistrar(a.logger).Register(cmd.Context(), args[0])
		},
	})
	return device
}

func parseOrderID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return id, nil
}

func findOrder(orders []model.Order, id int64) (model.Order, bool) {
	for _, o := range orders {
		if o.ID == id {
			return o, true
		}
	}
	return model.Order{}, false
}
