package screen

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/shipper-client/internal/backend"
	"github.com/mmeshcher/shipper-client/internal/model"
	"github.com/mmeshcher/shipper-client/internal/orderfilter"
	"github.com/mmeshcher/shipper-client/internal/service"
)

// DefaultFallbackDelay - через сколько после начала загрузки «всех заказов»
// пустой список добирается запросами по отдельным статусам.
const DefaultFallbackDelay = 3 * time.Second

// MyOrdersService - операции сервиса, нужные экрану «мои заказы».
type MyOrdersService interface {
	Reachable(ctx context.Context) error
	MyOrders(ctx context.Context, f service.Filter) ([]model.Order, error)
	FetchEachStatus(ctx context.Context, dr *orderfilter.DateRange) ([]model.Order, error)
	CompleteOrder(ctx context.Context, order model.Order) (model.Order, error)
}

// MyOrdersState - снимок экрана «мои заказы».
type MyOrdersState struct {
	Orders  []model.Order
	Loading bool
	Err     error
	Filter  service.Filter
}

// CompletionEvent публикуется один раз на каждую успешно завершённую доставку.
type CompletionEvent struct {
	Order model.Order
}

// MyOrders держит состояние экрана «мои заказы».
type MyOrders struct {
	svc           MyOrdersService
	logger        *zap.Logger
	fallbackDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       MyOrdersState
	gen         uint64
	loadCancel  context.CancelFunc
	loadPending bool
	actions     int
	closed      bool

	snapshots   *broadcaster[MyOrdersState]
	completions *broadcaster[CompletionEvent]
}

// NewMyOrders создаёт держатель. fallbackDelay <= 0 означает значение по умолчанию.
func NewMyOrders(svc MyOrdersService, logger *zap.Logger, fallbackDelay time.Duration) *MyOrders {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallbackDelay <= 0 {
		fallbackDelay = DefaultFallbackDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MyOrders{
		svc:           svc,
		logger:        logger,
		fallbackDelay: fallbackDelay,
		ctx:           ctx,
		cancel:        cancel,
		state:         MyOrdersState{Orders: []model.Order{}},
		snapshots:     newBroadcaster[MyOrdersState](snapshotBuffer),
		completions:   newBroadcaster[CompletionEvent](eventBuffer),
	}
}

// State возвращает текущий снимок.
func (h *MyOrders) State() MyOrdersState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Subscribe возвращает канал снимков; первым приходит текущий снимок.
// Медленный подписчик получает только последний снимок.
func (h *MyOrders) Subscribe() (<-chan MyOrdersState, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.snapshotLocked()
	return h.snapshots.subscribe(&current)
}

// Completions возвращает канал событий о завершённых доставках.
func (h *MyOrders) Completions() (<-chan CompletionEvent, func()) {
	return h.completions.subscribe(nil)
}

// Load загружает заказы по фильтру и отменяет предыдущую загрузку.
// Возвращаемый канал закрывается, когда эта загрузка завершена, вытеснена или экран закрыт.
func (h *MyOrders) Load(filter service.Filter) <-chan struct{} {
	_, done := h.start(filter)
	return done
}

// Fetch загружает заказы по фильтру и ждёт результата этой загрузки.
// Если её вытеснила более новая загрузка, возвращается ErrSuperseded:
// снимок к этому моменту относится к чужому фильтру.
func (h *MyOrders) Fetch(ctx context.Context, filter service.Filter) (MyOrdersState, error) {
	gen, done := h.start(filter)

	select {
	case <-done:
	case <-ctx.Done():
		return MyOrdersState{}, ctx.Err()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return MyOrdersState{}, ErrClosed
	}
	if gen != h.gen {
		return MyOrdersState{}, ErrSuperseded
	}
	return h.snapshotLocked(), nil
}

func (h *MyOrders) start(filter service.Filter) (uint64, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, closedDone()
	}

	if h.loadCancel != nil {
		h.loadCancel()
	}
	h.gen++
	gen := h.gen
	ctx, cancel := context.WithCancel(h.ctx)
	h.loadCancel = cancel
	h.loadPending = true

	h.state.Filter = filter
	h.state.Err = nil
	h.publishLocked()

	done := make(chan struct{})
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(done)
		defer cancel()
		h.load(ctx, gen, filter)
	}()

	return gen, done
}

func (h *MyOrders) load(ctx context.Context, gen uint64, filter service.Filter) {
	start := time.Now()

	if err := h.svc.Reachable(ctx); err != nil {
		h.finishLoad(gen, nil, backend.OfflineError(backend.OpMyOrders, err))
		return
	}

	orders, err := h.svc.MyOrders(ctx, filter)
	if filter.Status != nil || (err == nil && len(orders) > 0) {
		h.finishLoad(gen, orders, err)
		return
	}

	// Список прошлого фильтра не должен блокировать догрузку по статусам.
	if orders == nil {
		orders = []model.Order{}
	}
	if !h.applyIfCurrent(gen, func(s *MyOrdersState) { s.Orders = orders }) {
		return
	}
	primaryErr := err

	if wait := h.fallbackDelay - time.Since(start); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	if !h.needsFallback(gen) {
		h.finishLoad(gen, nil, primaryErr)
		return
	}

	h.logger.Debug("all-orders list is empty, loading per status")
	merged, fbErr := h.svc.FetchEachStatus(ctx, filter.Range)
	switch {
	case fbErr == nil:
		h.finishLoad(gen, merged, nil)
	case primaryErr != nil:
		h.logger.Warn("all-orders fallback failed", zap.Error(fbErr))
		h.finishLoad(gen, nil, primaryErr)
	default:
		h.logger.Warn("all-orders fallback failed, keeping empty list", zap.Error(fbErr))
		h.finishLoad(gen, orders, nil)
	}
}

// needsFallback проверяет последнее состояние в момент срабатывания отложенной догрузки.
func (h *MyOrders) needsFallback(gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed && gen == h.gen && len(h.state.Orders) == 0
}

func (h *MyOrders) applyIfCurrent(gen uint64, fn func(s *MyOrdersState)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || gen != h.gen {
		return false
	}
	fn(&h.state)
	h.publishLocked()
	return true
}

func (h *MyOrders) finishLoad(gen uint64, orders []model.Order, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || gen != h.gen {
		return
	}
	h.loadPending = false

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			h.logger.Warn("my orders load failed", zap.Error(err))
		}
		h.state.Err = err
	} else {
		if orders == nil {
			orders = []model.Order{}
		}
		h.state.Orders = orders
		h.state.Err = nil
	}
	h.publishLocked()
}

// Complete запускает завершение доставки. Канал получает итог (nil при успехе) и закрывается.
// Для заказа не в статусе «в доставке» сеть не трогается.
func (h *MyOrders) Complete(order model.Order) <-chan error {
	if !order.CanComplete() {
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

		done, err := h.svc.CompleteOrder(h.ctx, order)
		h.finishComplete(order, done, err)
		res <- err
	}()

	return res
}

func (h *MyOrders) finishComplete(order, done model.Order, err error) {
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

	if done.ID == 0 {
		done = order
		done.Status = model.StatusCompleted
	}
	orders := make([]model.Order, len(h.state.Orders))
	copy(orders, h.state.Orders)
	for i := range orders {
		if orders[i].ID == done.ID {
			orders[i] = done
		}
	}
	h.state.Orders = orders
	h.publishLocked()
	h.completions.publish(CompletionEvent{Order: done})
}

// Close отменяет текущие операции и закрывает подписки. Поздние результаты отбрасываются.
func (h *MyOrders) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.cancel()
	h.mu.Unlock()

	h.wg.Wait()
	h.snapshots.close()
	h.completions.close()
}

func (h *MyOrders) snapshotLocked() MyOrdersState {
	s := h.state
	s.Loading = h.loadPending || h.actions > 0
	return s
}

func (h *MyOrders) publishLocked() {
	h.snapshots.publish(h.snapshotLocked())
}
