package inventory

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-inventory-client/fetch"
)

// API is the typed inventory REST contract over an authenticated fetch.Client.
// List endpoints answer an empty list when the envelope carries no data.
type API struct {
	client *fetch.Client
}

func NewAPI(client *fetch.Client) *API {
	return &API{client: client}
}

func list[T any](ctx context.Context, c *fetch.Client, endpoint string, query url.Values) ([]T, error) {
	items, err := fetch.Request[[]T](ctx, c, endpoint, fetch.Options{Query: query})
	if fetch.IsKind(err, fetch.KindMissingData) {
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func one[T any](ctx context.Context, c *fetch.Client, method, endpoint string, body any) (T, error) {
	return fetch.Request[T](ctx, c, endpoint, fetch.Options{Method: method, Body: body})
}

func (a *API) Equipments(ctx context.Context) ([]Equipment, error) {
	return list[Equipment](ctx, a.client, "/equipments", nil)
}

func (a *API) Equipment(ctx context.Context, id string) (Equipment, error) {
	return one[Equipment](ctx, a.client, http.MethodGet, "/equipments/"+url.PathEscape(id), nil)
}

func (a *API) CreateEquipment(ctx context.Context, payload EquipmentPayload) (Equipment, error) {
	return one[Equipment](ctx, a.client, http.MethodPost, "/equipments", payload)
}

func (a *API) UpdateEquipment(ctx context.Context, id string, payload EquipmentPayload) (Equipment, error) {
	return one[Equipment](ctx, a.client, http.MethodPut, "/equipments/"+url.PathEscape(id), payload)
}

func (a *API) DeleteEquipment(ctx context.Context, id string) error {
	return fetch.Exec(ctx, a.client, "/equipments/"+url.PathEscape(id), fetch.Options{Method: http.MethodDelete})
}

func (a *API) LowStock(ctx context.Context) ([]Equipment, error) {
	return list[Equipment](ctx, a.client, "/equipments/low-stock", nil)
}

func (a *API) LogConsumption(ctx context.Context, in ConsumptionInput) (Consumption, error) {
	return one[Consumption](ctx, a.client, http.MethodPost, "/consumption", in)
}

func (a *API) ConsumptionHistory(ctx context.Context, filter ConsumptionFilter) ([]Consumption, error) {
	return list[Consumption](ctx, a.client, "/consumption", filter.query())
}

func (a *API) Consumption(ctx context.Context, id string) (Consumption, error) {
	return one[Consumption](ctx, a.client, http.MethodGet, "/consumption/"+url.PathEscape(id), nil)
}

func (a *API) Notifications(ctx context.Context, filter NotificationFilter) ([]Notification, error) {
	return list[Notification](ctx, a.client, "/notifications", filter.query())
}

func (a *API) MarkNotificationSent(ctx context.Context, id string) (Notification, error) {
	return one[Notification](ctx, a.client, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/sent", nil)
}

func (a *API) Predictions(ctx context.Context, equipmentID string) ([]Prediction, error) {
	query := url.Values{}
	if equipmentID != "" {
		query.Set("equipment_id", equipmentID)
	}
	return list[Prediction](ctx, a.client, "/predictions", query)
}

func (a *API) Prediction(ctx context.Context, id string) (Prediction, error) {
	return one[Prediction](ctx, a.client, http.MethodGet, "/predictions/"+url.PathEscape(id), nil)
}

func (a *API) CreateOrder(ctx context.Context, in OrderInput) (Order, error) {
	return one[Order](ctx, a.client, http.MethodPost, "/orders", in)
}

func (a *API) Orders(ctx context.Context) ([]Order, error) {
	return list[Order](ctx, a.client, "/orders", nil)
}

// Order returns the order with its materials.
func (a *API) Order(ctx context.Context, id string) (Order, error) {
	return one[Order](ctx, a.client, http.MethodGet, "/orders/"+url.PathEscape(id), nil)
}

func (a *API) UpdateOrder(ctx context.Context, id string, in OrderInput) (Order, error) {
	return one[Order](ctx, a.client, http.MethodPut, "/orders/"+url.PathEscape(id), in)
}

func (a *API) DeleteOrder(ctx context.Context, id string) error {
	return fetch.Exec(ctx, a.client, "/orders/"+url.PathEscape(id), fetch.Options{Method: http.MethodDelete})
}

func (a *API) StockMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	return list[StockMovement](ctx, a.client, "/orders/history/movements", filter.query())
}

// UploadReceipt validates and uploads a receipt as a multipart attachment of orderID.
func (a *API) UploadReceipt(ctx context.Context, orderID string, receipt Receipt) (OrderAttachment, error) {
	if err := receipt.Validate(); err != nil {
		return OrderAttachment{}, err
	}
	return fetch.Request[OrderAttachment](ctx, a.client, "/orders/"+url.PathEscape(orderID)+"/attachments", fetch.Options{
		Method: http.MethodPost,
		Upload: &fetch.Upload{
			Field:       "file",
			FileName:    receipt.FileName,
			ContentType: receipt.ContentType,
			Content:     receipt.Content,
		},
	})
}

func (a *API) Attachments(ctx context.Context, orderID string) ([]OrderAttachment, error) {
	return list[OrderAttachment](ctx, a.client, "/orders/"+url.PathEscape(orderID)+"/attachments", nil)
}

func (a *API) DeleteAttachment(ctx context.Context, id string) error {
	return fetch.Exec(ctx, a.client, "/orders/attachments/"+url.PathEscape(id), fetch.Options{Method: http.MethodDelete})
}

func (f ConsumptionFilter) query() url.Values {
	q := url.Values{}
	setNonEmpty(q, "equipment_id", f.EquipmentID)
	setNonEmpty(q, "user_id", f.UserID)
	setNonEmpty(q, "start_date", f.StartDate)
	setNonEmpty(q, "end_date", f.EndDate)
	setPositive(q, "limit", f.Limit)
	setPositive(q, "offset", f.Offset)
	return q
}

func (f NotificationFilter) query() url.Values {
	q := url.Values{}
	setNonEmpty(q, "user_id", f.UserID)
	if f.Sent != nil {
		q.Set("sent", strconv.FormatBool(*f.Sent))
	}
	return q
}

func (f MovementFilter) query() url.Values {
	q := url.Values{}
	setNonEmpty(q, "equipment_id", f.EquipmentID)
	setNonEmpty(q, "type", string(f.Type))
	setNonEmpty(q, "receiver_name", f.ReceiverName)
	setNonEmpty(q, "start_date", f.StartDate)
	setNonEmpty(q, "end_date", f.EndDate)
	setPositive(q, "limit", f.Limit)
	setPositive(q, "offset", f.Offset)
	return q
}

func setNonEmpty(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func setPositive(q url.Values, key string, value int) {
	if value > 0 {
		q.Set(key, strconv.Itoa(value))
	}
}
