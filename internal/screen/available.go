package screen

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/shipper-client/internal/model"
	"github.com/mmeshcher/shipper-client/internal/service"
)

// DefaultRefreshInterval - период тихого обновления списка доступных заказов.
const DefaultRefreshInterval = 10 * time.Second

// AvailableService - операции сервиса, нужные экрану доступных заказов.
type AvailableService interface {
	AvailableOrders(ctx context.Context) ([]model.Order, error)
	AcceptOrder(ctx context.Context, order model.Order) (model.Order, error)
}

// AvailableState - снимок экрана доступных заказов.
type AvailableState struct {
	Orders  []model.Order
	Loading bool
	Err     error
}

// Available держит состояние экрана доступных заказов и автообновление.
type Available struct {
	svc      AvailableService
	logger   *zap.Logger
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      AvailableState
	gen        uint64
	loadCancel context.CancelFunc
	inFlight   bool
	loud       bool
	actions    int
	stopTicker chan struct{}
	closed     bool

	snapshots *broadcaster[AvailableState]
}

// NewAvailable создаёт держатель. interval <= 0 означает значение по умолчанию.
func NewAvailable(svc AvailableService, logger *zap.Logger, interval time.Duration) *Available {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Available{
		svc:       svc,
		logger:    logger,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
		state:     AvailableState{Orders: []model.Order{}},
		snapshots: newBroadcaster[AvailableState](snapshotBuffer),
	}
}

// State возвращает текущий снимок.
func (h *Available) State() AvailableState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Subscribe возвращает канал снимков; первым приходит текущий снимок.
func (h *Available) Subscribe() (<-chan AvailableState, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.snapshotLocked()
	return h.snapshots.subscribe(&current)
}

// Load загружает список с индикатором загрузки и отменяет предыдущий запрос.
func (h *Available) Load() <-chan struct{} {
	return h.fetch(true)
}

// Refresh тихо обновляет список. Если запрос уже идёт, ничего не делает.
func (h *Available) Refresh() <-chan struct{} {
	return h.fetch(false)
}

func (h *Available) fetch(loud bool) <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || (!loud && h.inFlight) {
		return closedDone()
	}

	if h.loadCancel != nil {
		h.loadCancel()
	}
	h.gen++
	gen := h.gen
	ctx, cancel := context.WithCancel(h.ctx)
	h.loadCancel = cancel
	h.inFlight = true
	h.loud = loud

	if loud {
		h.state.Err = nil
		h.publishLocked()
	}

	done := make(chan struct{})
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(done)
		defer cancel()

		orders, err := h.svc.AvailableOrders(ctx)
		h.finishFetch(gen, loud, orders, err)
	}()

	return done
}

func (h *Available) finishFetch(gen uint64, loud bool, orders []model.Order, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || gen != h.gen {
		return
	}
	h.inFlight = false
	h.loud = false

	switch {
	case err != nil && !loud:
		h.logger.Debug("silent refresh failed", zap.Error(err))
	case err != nil:
		if !errors.Is(err, context.Canceled) {
			h.logger.Warn("available orders load failed", zap.Error(err))
		}
		h.state.Err = err
	default:
		if orders == nil {
			orders = []model.Order{}
		}
		h.state.Orders = orders
		h.state.Err = nil
	}
	h.publishLocked()
}

// Start включает тихое обновление по таймеру. Повторный вызов ничего не меняет.
func (h *Available) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.stopTicker != nil {
		return
	}
	stop := make(chan struct{})
	h.stopTicker = stop

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-h.ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				h.Refresh()
			}
		}
	}()
}

// Stop выключает автообновление. Вызов без Start ничего не делает.
func (h *Available) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopTickerLocked()
}

func (h *Available) stopTickerLocked() {
	if h.stopTicker != nil {
		close(h.stopTicker)
		h.stopTicker = nil
	}
}

// Accept принимает заказ и убирает его из списка доступных.
// Канал получает итог (nil при успехе) и закрывается.
func (h *Available) Accept(order model.Order) <-chan error {
	if !order.CanAccept() {
		return failed(service.ErrActionNotAllowed)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return failed(ErrClosed)
	}
	h.actions++
	h.state.Err = nil
	h.publishLocked()

	res := make(chan error, 1)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(res)

		_, err := h.svc.AcceptOrder(h.ctx, order)
		h.finishAccept(order.ID, err)
		res <- err
	}()

	return res
}

func (h *Available) finishAccept(orderID int64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.actions--

	if err != nil {
		h.state.Err = err
		h.publishLocked()
		return
	}

	orders := make([]model.Order, 0, len(h.state.Orders))
	for _, o := range h.state.Orders {
		if o.ID != orderID {
			orders = append(orders, o)
		}
	}
	h.state.Orders = orders
	h.publishLocked()
}

// Close останавливает автообновление, отменяет запросы и закрывает подписки.
func (h *Available) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.stopTickerLocked()
	h.cancel()
	h.mu.Unlock()

	h.wg.Wait()
	h.snapshots.close()
}

func (h *Available) snapshotLocked() AvailableState {
	s := h.state
	s.Loading = (h.inFlight && h.loud) || h.actions > 0
	return s
}

func (h *Available) publishLocked() {
	h.snapshots.publish(h.snapshotLocked())
}
