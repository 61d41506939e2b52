package resources_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-inventory-client/fetch"
	"github.com/jrsteele09/go-inventory-client/internal/fakeapi"
	"github.com/jrsteele09/go-inventory-client/internal/utils"
	"github.com/jrsteele09/go-inventory-client/inventory"
	"github.com/jrsteele09/go-inventory-client/resources"
	"github.com/jrsteele09/go-inventory-client/session/providerfake"
	"github.com/jrsteele09/go-inventory-client/tokenstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testToken = "token-1"

type testFixture struct {
	server *fakeapi.Server
	api    *inventory.API
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	server := fakeapi.New()
	server.AddToken(testToken, "user-1")
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	provider := providerfake.NewFakeProvider()
	provider.SetToken(testToken)
	client, err := fetch.NewClient(srv.URL, provider, tokenstore.New(nil), nil)
	require.NoError(t, err)

	return &testFixture{server: server, api: inventory.NewAPI(client)}
}

// recordedWaits replaces the retry sleep and records each requested delay.
type recordedWaits struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedWaits) wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func (r *recordedWaits) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration{}, r.delays...)
}

func ids(equipments []inventory.Equipment) []string {
	out := make([]string, 0, len(equipments))
	for _, eq := range equipments {
		out = append(out, eq.ID)
	}
	return out
}

func networkError() error {
	return &fetch.Error{Kind: fetch.KindNetwork, Message: fetch.NetworkMessage}
}

const listRoute = "GET /equipments"

func TestEquipments_RetriesNetworkFailures(t *testing.T) {
	f := newFixture(t)
	drill := f.server.SeedEquipment(inventory.Equipment{Name: "Drill", QuantityTotal: 4, QuantityAvailable: 4})
	f.server.FailNext(listRoute, fakeapi.DropConnection, fakeapi.DropConnection)

	waits := &recordedWaits{}
	h := resources.NewEquipments(f.api, resources.WithWait(waits.wait))
	defer h.Close()

	require.NoError(t, h.Refetch(context.Background()))

	state := h.Snapshot()
	require.NoError(t, state.Err)
	require.False(t, state.Loading)
	require.Equal(t, []string{drill.ID}, ids(state.Data))
	require.Equal(t, 3, f.server.Requests(listRoute))
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, waits.recorded())
}

func TestEquipments_RetrySpacing(t *testing.T) {
	f := newFixture(t)
	f.server.SeedEquipment(inventory.Equipment{Name: "Drill"})
	f.server.FailNext(listRoute, fakeapi.DropConnection, fakeapi.DropConnection)

	h := resources.NewEquipments(f.api, resources.WithRetry(2, 30*time.Millisecond))
	defer h.Close()

	start := time.Now()
	require.NoError(t, h.Refetch(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	require.Equal(t, 3, f.server.Requests(listRoute))
}

func TestEquipments_RetriesExhausted(t *testing.T) {
	f := newFixture(t)
	drill := f.server.SeedEquipment(inventory.Equipment{Name: "Drill"})

	waits := &recordedWaits{}
	h := resources.NewEquipments(f.api, resources.WithWait(waits.wait))
	defer h.Close()
	require.NoError(t, h.Refetch(context.Background()))

	f.server.FailNext(listRoute, fakeapi.DropConnection, fakeapi.DropConnection, fakeapi.DropConnection)
	err := h.Refetch(context.Background())
	require.True(t, errors.Is(err, fetch.ErrNetwork))

	state := h.Snapshot()
	require.Equal(t, fetch.NetworkMessage, fetch.UserMessage(state.Err))
	require.Equal(t, []string{drill.ID}, ids(state.Data))
	require.Equal(t, 4, f.server.Requests(listRoute))
	require.Len(t, waits.recorded(), 2)
}

func TestEquipments_ServerErrorIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.server.FailNext(listRoute, fakeapi.Failure{Status: http.StatusInternalServerError, Message: "Database unavailable"})

	waits := &recordedWaits{}
	h := resources.NewEquipments(f.api, resources.WithWait(waits.wait))
	defer h.Close()

	err := h.Refetch(context.Background())
	require.Equal(t, fetch.KindServer, fetch.KindOf(err))
	require.Equal(t, "Database unavailable", resources.Message(h.Snapshot().Err))
	require.Equal(t, 1, f.server.Requests(listRoute))
	require.Empty(t, waits.recorded())
}

func TestList_StaleResultIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	l := resources.NewList[string]("test", func(ctx context.Context) ([]string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return []string{"old"}, nil
		}
		return []string{"new"}, nil
	})
	defer l.Close()

	first := make(chan error, 1)
	go func() { first <- l.Refetch(context.Background()) }()
	<-started

	require.NoError(t, l.Refetch(context.Background()))
	close(release)

	require.ErrorIs(t, <-first, resources.ErrStale)
	require.Equal(t, []string{"new"}, l.Snapshot().Data)
}

func TestList_ManualRefetchAbandonsPendingRetry(t *testing.T) {
	waitEntered := make(chan struct{})
	waitRelease := make(chan struct{})
	var once sync.Once
	var calls atomic.Int32

	l := resources.NewList[string]("test",
		func(ctx context.Context) ([]string, error) {
			switch calls.Add(1) {
			case 1:
				return nil, networkError()
			case 2:
				return []string{"manual"}, nil
			default:
				return []string{"retry"}, nil
			}
		},
		resources.WithWait(func(ctx context.Context, d time.Duration) error {
			once.Do(func() { close(waitEntered) })
			<-waitRelease
			return nil
		}),
	)
	defer l.Close()

	first := make(chan error, 1)
	go func() { first <- l.Refetch(context.Background()) }()
	<-waitEntered

	require.NoError(t, l.Refetch(context.Background()))
	close(waitRelease)

	require.ErrorIs(t, <-first, resources.ErrStale)
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, []string{"manual"}, l.Snapshot().Data)
}

func TestList_CancelledDuringRetryKeepsNetworkError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	l := resources.NewList[string]("test", func(context.Context) ([]string, error) {
		calls.Add(1)
		cancel()
		return nil, networkError()
	}, resources.WithRetry(2, time.Hour))
	defer l.Close()

	err := l.Refetch(ctx)
	require.True(t, fetch.IsKind(err, fetch.KindNetwork))

	state := l.Snapshot()
	require.False(t, state.Loading)
	require.Equal(t, fetch.KindNetwork, fetch.KindOf(state.Err))
	require.Equal(t, fetch.NetworkMessage, resources.Message(state.Err))
	require.EqualValues(t, 1, calls.Load())
}

func TestList_CloseDropsInFlightResult(t *testing.T) {
	started := make(chan struct{})
	l := resources.NewList[string]("test", func(ctx context.Context) ([]string, error) {
		close(started)
		<-ctx.Done()
		return []string{"late"}, nil
	})

	var notified atomic.Int32
	l.Subscribe(func(resources.State[string]) { notified.Add(1) })

	result := make(chan error, 1)
	go func() { result <- l.Refetch(context.Background()) }()
	<-started
	before := notified.Load()

	l.Close()
	require.ErrorIs(t, <-result, resources.ErrClosed)
	require.Equal(t, before, notified.Load())

	state := l.Snapshot()
	require.Empty(t, state.Data)
	require.False(t, state.Loading)
	require.ErrorIs(t, l.Refetch(context.Background()), resources.ErrClosed)
}

func TestList_SubscribeAndMutations(t *testing.T) {
	l := resources.NewList[string]("test", func(ctx context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	})
	defer l.Close()

	var mu sync.Mutex
	var loading []bool
	unsubscribe := l.Subscribe(func(s resources.State[string]) {
		mu.Lock()
		loading = append(loading, s.Loading)
		mu.Unlock()
	})

	require.NoError(t, l.Refetch(context.Background()))
	l.Prepend("z")
	l.Patch(func(s string) bool { return s == "a" }, strings.ToUpper)
	l.Remove(func(s string) bool { return s == "b" })
	require.Equal(t, []string{"z", "A"}, l.Snapshot().Data)

	unsubscribe()
	l.Prepend("ignored")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{true, false, false, false, false}, loading)
}

func TestList_MountLoadsInBackground(t *testing.T) {
	l := resources.NewList[int]("test", func(ctx context.Context) ([]int, error) {
		return []int{1, 2, 3}, nil
	})
	defer l.Close()

	l.Mount()
	require.Eventually(t, func() bool {
		s := l.Snapshot()
		return !s.Loading && len(s.Data) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestEquipments_DeleteIsOptimisticAfterConfirmation(t *testing.T) {
	f := newFixture(t)
	drill := f.server.SeedEquipment(inventory.Equipment{Name: "Drill"})
	saw := f.server.SeedEquipment(inventory.Equipment{Name: "Saw"})

	h := resources.NewEquipments(f.api)
	defer h.Close()
	require.NoError(t, h.Refetch(context.Background()))

	f.server.Delay(listRoute, 200*time.Millisecond)
	require.NoError(t, h.Delete(context.Background(), drill.ID))
	require.Equal(t, []string{saw.ID}, ids(h.Snapshot().Data))

	require.Eventually(t, func() bool {
		return f.server.Requests(listRoute) == 2 && !h.Snapshot().Loading
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{saw.ID}, ids(h.Snapshot().Data))
	f.server.Delay(listRoute, 0)

	f.server.FailNext("DELETE /equipments/{id}", fakeapi.Failure{Status: http.StatusConflict, Message: "Equipment is referenced by an order"})
	err := h.Delete(context.Background(), saw.ID)
	require.Equal(t, "Equipment is referenced by an order", fetch.UserMessage(err))
	require.Equal(t, []string{saw.ID}, ids(h.Snapshot().Data))
	require.Equal(t, 2, f.server.Requests(listRoute))
}

func TestEquipments_CreateAndUpdate(t *testing.T) {
	f := newFixture(t)
	existing := f.server.SeedEquipment(inventory.Equipment{Name: "Drill", QuantityTotal: 10, QuantityAvailable: 4})

	h := resources.NewEquipments(f.api)
	defer h.Close()
	require.NoError(t, h.Refetch(context.Background()))

	_, err := h.Create(context.Background(), inventory.EquipmentForm{Name: "drill"})
	require.True(t, errors.Is(err, fetch.ErrValidation))
	require.Equal(t, 0, f.server.Requests("POST /equipments"))

	created, err := h.Create(context.Background(), inventory.EquipmentForm{
		Name:              "Cable",
		Quantity:          3,
		QuantityAvailable: utils.Ptr(5),
	})
	require.NoError(t, err)
	require.Equal(t, 8, created.QuantityTotal)
	require.Equal(t, 5, created.QuantityAvailable)
	require.Equal(t, created.ID, h.Snapshot().Data[0].ID)

	form := inventory.FormFrom(existing)
	form.Quantity = 15
	form.QuantityAvailable = nil
	updated, err := h.Update(context.Background(), existing.ID, form)
	require.NoError(t, err)
	require.Equal(t, 15, updated.QuantityTotal)
	require.Equal(t, 9, updated.QuantityAvailable)

	low, err := h.LowStock(context.Background())
	require.NoError(t, err)
	require.Empty(t, low)
}

func TestConsumption_LogRefetches(t *testing.T) {
	f := newFixture(t)
	eq := f.server.SeedEquipment(inventory.Equipment{Name: "Fuse", QuantityTotal: 5, QuantityAvailable: 5})

	h := resources.NewConsumption(f.api, inventory.ConsumptionFilter{EquipmentID: eq.ID})
	defer h.Close()

	_, err := h.Log(context.Background(), inventory.ConsumptionInput{EquipmentID: eq.ID, QuantityUsed: 9}, &eq)
	require.Equal(t, "quantity_used: Only 5 units available", err.Error())

	record, err := h.Log(context.Background(), inventory.ConsumptionInput{EquipmentID: eq.ID, QuantityUsed: 2}, &eq)
	require.NoError(t, err)

	state := h.Snapshot()
	require.Len(t, state.Data, 1)
	require.Equal(t, record.ID, state.Data[0].ID)
}

func TestNotifications_MarkAsSentPatchesLocalRecord(t *testing.T) {
	f := newFixture(t)
	n := f.server.SeedNotification(inventory.Notification{Message: "Low stock: Fuse"})

	h := resources.NewNotifications(f.api, inventory.NotificationFilter{})
	defer h.Close()
	require.NoError(t, h.Refetch(context.Background()))
	require.False(t, h.Snapshot().Data[0].Sent)

	_, err := h.MarkAsSent(context.Background(), n.ID)
	require.NoError(t, err)
	require.True(t, h.Snapshot().Data[0].Sent)

	_, err = h.MarkAsSent(context.Background(), "missing")
	require.Equal(t, "Notification not found", resources.Message(err))
}

func TestOrders_CreateUploadsReceipts(t *testing.T) {
	f := newFixture(t)
	eq := f.server.SeedEquipment(inventory.Equipment{Name: "Alternator", QuantityTotal: 5, QuantityAvailable: 5})
	stock := []inventory.Equipment{eq}

	h := resources.NewOrders(f.api)
	defer h.Close()

	in := inventory.OrderInput{
		GeneratorModel: "GX-200",
		OrderReference: "ORD-1",
		ReceiverName:   "Sam",
		Materials:      []inventory.MaterialInput{{EquipmentID: eq.ID, Quantity: 2}},
	}

	_, err := h.Create(context.Background(), in, stock, inventory.Receipt{FileName: "a.txt", ContentType: "text/plain"})
	require.True(t, errors.Is(err, fetch.ErrValidation))
	require.Equal(t, 0, f.server.Requests("POST /orders"))

	created, err := h.Create(context.Background(), in, stock,
		inventory.Receipt{FileName: "front.jpg", ContentType: "image/jpeg", Size: 3, Content: strings.NewReader("jpg")},
		inventory.Receipt{FileName: "back.pdf", ContentType: "application/pdf", Size: 3, Content: strings.NewReader("pdf")},
	)
	require.NoError(t, err)
	require.Len(t, created.Attachments, 2)
	require.Equal(t, created.Order.ID, created.Attachments[0].OrderID)
	require.Equal(t, created.Order.ID, h.Snapshot().Data[0].ID)

	attachments, err := h.Attachments(context.Background(), created.Order.ID)
	require.NoError(t, err)
	require.Len(t, attachments, 2)

	movements, err := h.Movements(context.Background(), inventory.MovementFilter{EquipmentID: eq.ID})
	require.NoError(t, err)
	require.Len(t, movements, 1)

	require.NoError(t, h.Delete(context.Background(), created.Order.ID))
	require.Empty(t, h.Snapshot().Data)
}

func TestPredictions(t *testing.T) {
	f := newFixture(t)
	f.server.SeedPrediction(inventory.Prediction{EquipmentID: "eq-1", PredictedConsumption: 4})
	f.server.SeedPrediction(inventory.Prediction{EquipmentID: "eq-2", PredictedConsumption: 1})

	h := resources.NewPredictions(f.api, "eq-2")
	defer h.Close()
	require.NoError(t, h.Refetch(context.Background()))
	require.Len(t, h.Snapshot().Data, 1)
}

func TestMessage(t *testing.T) {
	require.Equal(t, "", resources.Message(nil))
	require.Equal(t, "", resources.Message(&fetch.Error{Kind: fetch.KindAuthorizationFailure, Message: "Unauthorized"}))
	require.Equal(t, fetch.NetworkMessage, resources.Message(networkError()))
}
