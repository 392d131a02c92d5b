// Package backend предоставляет клиент REST API курьера и сводит любые отказы
// к типизированной ошибке *Error.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/shipper-client/internal/metrics"
	"github.com/mmeshcher/shipper-client/internal/model"
)

// DefaultBaseURL - адрес API курьера по умолчанию.
const DefaultBaseURL = "http://10.0.2.2:8000/api/shipper/"

const (
	defaultTimeout      = 30 * time.Second
	defaultProbeTimeout = 3 * time.Second
)

// TokenSource отдаёт токен текущей сессии. Пустая строка означает, что входа не было.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// MyOrdersQuery - фильтры списка заказов курьера. Пустые поля не передаются.
type MyOrdersQuery struct {
	Status    *model.OrderStatus
	StartDate string
	EndDate   string
}

// Client инкапсулирует HTTP-взаимодействие с бэкендом.
type Client struct {
	baseURL      string
	rest         *resty.Client
	tokens       TokenSource
	logger       *zap.Logger
	probeTimeout time.Duration
	proxy        func(*http.Request) (*url.URL, error)
}

// Option настраивает Client.
type Option func(*Client)

// WithTimeout задаёт таймаут одного запроса.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.rest.SetTimeout(d)
		}
	}
}

// WithProbeTimeout задаёт таймаут проверки доступности сервера.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// NewClient создаёт клиент API по указанному адресу.
func NewClient(baseURL string, tokens TokenSource, logger *zap.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := cleanhttp.DefaultPooledTransport()
	rest := resty.NewWithClient(&http.Client{Transport: transport}).
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		rest:         rest,
		tokens:       tokens,
		logger:       logger,
		probeTimeout: defaultProbeTimeout,
		proxy:        transport.Proxy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updatePaymentRequest struct {
	PaymentStatus string `json:"payment_status"`
}

// Login выполняет вход курьера.
func (c *Client) Login(ctx context.Context, email, password string) (model.LoginData, error) {
	return callRequired[model.LoginData](ctx, c, OpLogin, http.MethodPost, "login", loginRequest{Email: email, Password: password}, nil)
}

// AvailableOrders возвращает заказы, которые можно принять. data:null считается пустым списком.
func (c *Client) AvailableOrders(ctx context.Context) ([]model.Order, error) {
	return callList(ctx, c, OpAvailableOrders, "orders/available", nil)
}

// MyOrders возвращает заказы курьера с фильтрами по статусу и датам.
func (c *Client) MyOrders(ctx context.Context, q MyOrdersQuery) ([]model.Order, error) {
	params := url.Values{}
	if q.Status != nil {
		params.Set("status", string(*q.Status))
	}
	if q.StartDate != "" {
		params.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		params.Set("end_date", q.EndDate)
	}
	return callList(ctx, c, OpMyOrders, "orders/my-orders", params)
}

// AcceptOrder принимает заказ.
func (c *Client) AcceptOrder(ctx context.Context, orderID int64) (model.Order, error) {
	return callRequired[model.Order](ctx, c, OpAcceptOrder, http.MethodPost, orderPath(orderID, "accept"), nil, nil)
}

// CompleteOrder завершает доставку.
func (c *Client) CompleteOrder(ctx context.Context, orderID int64) (model.Order, error) {
	return callRequired[model.Order](ctx, c, OpCompleteOrder, http.MethodPost, orderPath(orderID, "complete"), nil, nil)
}

// UpdatePaymentStatus меняет статус оплаты заказа.
func (c *Client) UpdatePaymentStatus(ctx context.Context, orderID int64, paymentStatus string) (model.Order, error) {
	body := updatePaymentRequest{PaymentStatus: paymentStatus}
	return callRequired[model.Order](ctx, c, OpUpdatePayment, http.MethodPost, orderPath(orderID, "update-payment"), body, nil)
}

// Logout завершает сессию на сервере. Тело ответа не проверяется.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, OpLogout, http.MethodPost, "logout", nil, nil)
	return err
}

// Reachable проверяет, что до сервера API можно установить TCP-соединение.
// Если запросы идут через прокси из окружения, проверяется связь с прокси.
func (c *Client) Reachable(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}

	target := u
	if c.proxy != nil {
		proxyURL, err := c.proxy(&http.Request{Method: http.MethodGet, URL: u})
		if err != nil {
			return fmt.Errorf("resolve proxy: %w", err)
		}
		if proxyURL != nil {
			target = proxyURL
		}
	}

	dialer := net.Dialer{Timeout: c.probeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", hostPort(target))
	if err != nil {
		return fmt.Errorf("dial %s: %w", target.Host, err)
	}
	return conn.Close()
}

func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "socks5", "socks5h":
			port = "1080"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func orderPath(orderID int64, action string) string {
	return "orders/" + strconv.FormatInt(orderID, 10) + "/" + action
}

func callList(ctx context.Context, c *Client, op Operation, path string, query url.Values) ([]model.Order, error) {
	data, err := c.do(ctx, op, http.MethodGet, path, nil, query)
	if err != nil {
		return nil, err
	}
	if isAbsent(data) {
		return []model.Order{}, nil
	}

	var orders []model.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, c.fail(op, parseError(op, fmt.Errorf("decode data: %w", err)))
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

func callRequired[T any](ctx context.Context, c *Client, op Operation, method, path string, body any, query url.Values) (T, error) {
	var zero T

	data, err := c.do(ctx, op, method, path, body, query)
	if err != nil {
		return zero, err
	}
	if isAbsent(data) {
		return zero, c.fail(op, applicationError(op, ""))
	}

	var res T
	if err := json.Unmarshal(data, &res); err != nil {
		return zero, c.fail(op, parseError(op, fmt.Errorf("decode data: %w", err)))
	}
	return res, nil
}

func isAbsent(data json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(data))
	return trimmed == "" || trimmed == "null"
}

// do выполняет запрос и возвращает поле data конверта. Для logout конверт не разбирается.
func (c *Client) do(ctx context.Context, op Operation, method, path string, body any, query url.Values) (json.RawMessage, error) {
	requestID := uuid.NewString()

	req := c.rest.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID)

	if token := c.token(ctx); token != "" {
		req.SetAuthToken(token)
	}
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	metrics.BackendRequestDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, c.fail(op, transportError(op, err), zap.String("requestID", requestID))
	}

	if !resp.IsSuccess() {
		return nil, c.fail(op, httpError(op, resp.StatusCode()), zap.String("requestID", requestID))
	}

	if op == OpLogout {
		c.succeed(op, requestID)
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, c.fail(op, parseError(op, fmt.Errorf("decode envelope: %w", err)), zap.String("requestID", requestID))
	}
	if !env.Success {
		return nil, c.fail(op, applicationError(op, env.Message), zap.String("requestID", requestID))
	}

	c.succeed(op, requestID)
	return env.Data, nil
}

func (c *Client) token(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn("read session token", zap.Error(err))
		return ""
	}
	return token
}

func (c *Client) succeed(op Operation, requestID string) {
	metrics.BackendRequestsTotal.WithLabelValues(string(op), "success").Inc()
	c.logger.Debug("backend call succeeded", zap.String("operation", string(op)), zap.String("requestID", requestID))
}

func (c *Client) fail(op Operation, e *Error, fields ...zap.Field) *Error {
	metrics.BackendRequestsTotal.WithLabelValues(string(op), e.Kind.String()).Inc()

	fields = append(fields,
		zap.String("operation", string(op)),
		zap.String("kind", e.Kind.String()),
		zap.String("message", e.Message),
	)
	if e.Code != 0 {
		fields = append(fields, zap.Int("status", e.Code))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	c.logger.Warn("backend call failed", fields...)

	return e
}
