package resources

import (
	"context"

	"github.com/jrsteele09/go-inventory-client/fetch"
	"github.com/jrsteele09/go-inventory-client/inventory"
	"github.com/pkg/errors"
)

func byID[T any](id string, idOf func(T) string) func(T) bool {
	return func(item T) bool {
		return idOf(item) == id
	}
}

func idOfEquipment(e inventory.Equipment) string { return e.ID }
func idOfNotification(n inventory.Notification) string { return n.ID }
func idOfOrder(o inventory.Order) string { return o.ID }

// Equipments is the equipment list with its mutations.
type Equipments struct {
	*List[inventory.Equipment]
	api *inventory.API
}

func NewEquipments(api *inventory.API, options ...Option) *Equipments {
	return &Equipments{
		List: NewList[inventory.Equipment]("equipments", api.Equipments, options...),
		api:  api,
	}
}

// Create validates the form against the cached list, then creates the record
// using the stock rule for new equipment.
func (h *Equipments) Create(ctx context.Context, form inventory.EquipmentForm) (inventory.Equipment, error) {
	if err := form.Validate(h.Snapshot().Data, ""); err != nil {
		return inventory.Equipment{}, err
	}

	created, err := h.api.CreateEquipment(ctx, form.CreatePayload())
	if err != nil {
		return inventory.Equipment{}, errors.Wrap(err, "[Equipments.Create]")
	}
	h.Prepend(created)
	h.refetchInBackground()
	return created, nil
}

// Update applies the edit stock rule against the current record.
func (h *Equipments) Update(ctx context.Context, id string, form inventory.EquipmentForm) (inventory.Equipment, error) {
	snapshot := h.Snapshot().Data
	if err := form.Validate(snapshot, id); err != nil {
		return inventory.Equipment{}, err
	}

	current, err := h.current(ctx, snapshot, id)
	if err != nil {
		return inventory.Equipment{}, err
	}

	updated, err := h.api.UpdateEquipment(ctx, id, form.UpdatePayload(current))
	if err != nil {
		return inventory.Equipment{}, errors.Wrap(err, "[Equipments.Update]")
	}
	h.Patch(byID(id, idOfEquipment), func(inventory.Equipment) inventory.Equipment { return updated })
	h.refetchInBackground()
	return updated, nil
}

func (h *Equipments) current(ctx context.Context, snapshot []inventory.Equipment, id string) (inventory.Equipment, error) {
	for _, eq := range snapshot {
		if eq.ID == id {
			return eq, nil
		}
	}
	eq, err := h.api.Equipment(ctx, id)
	return eq, errors.Wrap(err, "[Equipments.current]")
}

// Delete removes the record locally once the server confirms, then reconciles
// in the background. A failed delete leaves the list untouched.
func (h *Equipments) Delete(ctx context.Context, id string) error {
	if err := h.api.DeleteEquipment(ctx, id); err != nil {
		return errors.Wrap(err, "[Equipments.Delete]")
	}
	h.Remove(byID(id, idOfEquipment))
	h.refetchInBackground()
	return nil
}

func (h *Equipments) LowStock(ctx context.Context) ([]inventory.Equipment, error) {
	return h.api.LowStock(ctx)
}

// Consumption is the consumption history for one filter.
type Consumption struct {
	*List[inventory.Consumption]
	api *inventory.API
}

func NewConsumption(api *inventory.API, filter inventory.ConsumptionFilter, options ...Option) *Consumption {
	fetcher := func(ctx context.Context) ([]inventory.Consumption, error) {
		return api.ConsumptionHistory(ctx, filter)
	}
	return &Consumption{
		List: NewList[inventory.Consumption]("consumption", fetcher, options...),
		api:  api,
	}
}

// Log records usage of selected and refetches the history.
func (h *Consumption) Log(ctx context.Context, in inventory.ConsumptionInput, selected *inventory.Equipment) (inventory.Consumption, error) {
	if err := in.Validate(selected); err != nil {
		return inventory.Consumption{}, err
	}

	record, err := h.api.LogConsumption(ctx, in)
	if err != nil {
		return inventory.Consumption{}, errors.Wrap(err, "[Consumption.Log]")
	}
	if err := h.Refetch(ctx); err != nil && !errors.Is(err, ErrStale) {
		h.logger.Err(err).Msg("Failed to refresh consumption history")
	}
	return record, nil
}

type Notifications struct {
	*List[inventory.Notification]
	api *inventory.API
}

func NewNotifications(api *inventory.API, filter inventory.NotificationFilter, options ...Option) *Notifications {
	fetcher := func(ctx context.Context) ([]inventory.Notification, error) {
		return api.Notifications(ctx, filter)
	}
	return &Notifications{
		List: NewList[inventory.Notification]("notifications", fetcher, options...),
		api:  api,
	}
}

// MarkAsSent patches the local record with the server's copy.
func (h *Notifications) MarkAsSent(ctx context.Context, id string) (inventory.Notification, error) {
	updated, err := h.api.MarkNotificationSent(ctx, id)
	if err != nil {
		return inventory.Notification{}, errors.Wrap(err, "[Notifications.MarkAsSent]")
	}
	h.Patch(byID(id, idOfNotification), func(inventory.Notification) inventory.Notification { return updated })
	return updated, nil
}

type Predictions struct {
	*List[inventory.Prediction]
}

func NewPredictions(api *inventory.API, equipmentID string, options ...Option) *Predictions {
	fetcher := func(ctx context.Context) ([]inventory.Prediction, error) {
		return api.Predictions(ctx, equipmentID)
	}
	return &Predictions{List: NewList[inventory.Prediction]("predictions", fetcher, options...)}
}

type Orders struct {
	*List[inventory.Order]
	api *inventory.API
}

func NewOrders(api *inventory.API, options ...Option) *Orders {
	return &Orders{
		List: NewList[inventory.Order]("orders", api.Orders, options...),
		api:  api,
	}
}

// Created is an order together with the receipts uploaded for it.
type Created struct {
	Order       inventory.Order
	Attachments []inventory.OrderAttachment
}

// Create validates the order against stock and every receipt, creates the
// order and then uploads the receipts to it. When an upload fails the order
// already exists; Created holds it and the uploads that succeeded.
func (h *Orders) Create(ctx context.Context, in inventory.OrderInput, stock []inventory.Equipment, receipts ...inventory.Receipt) (Created, error) {
	if err := in.Validate(stock); err != nil {
		return Created{}, err
	}
	for _, r := range receipts {
		if err := r.Validate(); err != nil {
			return Created{}, err
		}
	}

	order, err := h.api.CreateOrder(ctx, in)
	if err != nil {
		return Created{}, errors.Wrap(err, "[Orders.Create]")
	}
	result := Created{Order: order}
	h.Prepend(order)
	defer h.refetchInBackground()

	for _, r := range receipts {
		attachment, err := h.api.UploadReceipt(ctx, order.ID, r)
		if err != nil {
			return result, errors.Wrapf(err, "[Orders.Create] upload %s", r.FileName)
		}
		result.Attachments = append(result.Attachments, attachment)
	}
	return result, nil
}

func (h *Orders) Get(ctx context.Context, id string) (inventory.Order, error) {
	return h.api.Order(ctx, id)
}

func (h *Orders) Update(ctx context.Context, id string, in inventory.OrderInput, stock []inventory.Equipment) (inventory.Order, error) {
	if err := in.Validate(stock); err != nil {
		return inventory.Order{}, err
	}
	updated, err := h.api.UpdateOrder(ctx, id, in)
	if err != nil {
		return inventory.Order{}, errors.Wrap(err, "[Orders.Update]")
	}
	h.Patch(byID(id, idOfOrder), func(inventory.Order) inventory.Order { return updated })
	h.refetchInBackground()
	return updated, nil
}

func (h *Orders) Delete(ctx context.Context, id string) error {
	if err := h.api.DeleteOrder(ctx, id); err != nil {
		return errors.Wrap(err, "[Orders.Delete]")
	}
	h.Remove(byID(id, idOfOrder))
	h.refetchInBackground()
	return nil
}

func (h *Orders) Attachments(ctx context.Context, orderID string) ([]inventory.OrderAttachment, error) {
	return h.api.Attachments(ctx, orderID)
}

func (h *Orders) UploadReceipt(ctx context.Context, orderID string, receipt inventory.Receipt) (inventory.OrderAttachment, error) {
	return h.api.UploadReceipt(ctx, orderID, receipt)
}

func (h *Orders) DeleteAttachment(ctx context.Context, attachmentID string) error {
	return h.api.DeleteAttachment(ctx, attachmentID)
}

func (h *Orders) Movements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.StockMovement, error) {
	return h.api.StockMovements(ctx, filter)
}

// Message is the text a view shows for a failed action, or "" when the failure
// is handled by sending the user to sign in.
func Message(err error) string {
	if err == nil || fetch.RequiresSignIn(err) {
		return ""
	}
	return fetch.UserMessage(err)
}
