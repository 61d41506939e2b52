package inventory

import "time"

type EquipmentType string

const (
	EquipmentElectrical EquipmentType = "electrical"
	EquipmentManual     EquipmentType = "manual"
)

type NotificationType string

const (
	NotificationEmail     NotificationType = "email"
	NotificationDashboard NotificationType = "dashboard"
	NotificationWhatsApp  NotificationType = "whatsapp"
)

type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

type Equipment struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Type              EquipmentType `json:"type"`
	QuantityTotal     int           `json:"quantity_total"`
	QuantityAvailable int           `json:"quantity_available"`
	MinimumThreshold  int           `json:"minimum_threshold"`
	UnitPrice         *float64      `json:"unit_price"`
	Location          *string       `json:"location"`
	SupplierID        *string       `json:"supplier_id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsLowStock reports whether available stock has reached the minimum threshold.
func (e Equipment) IsLowStock() bool {
	return e.QuantityAvailable <= e.MinimumThreshold
}

type Consumption struct {
	ID           string    `json:"id"`
	EquipmentID  string    `json:"equipment_id"`
	QuantityUsed int       `json:"quantity_used"`
	Purpose      *string   `json:"purpose"`
	UserID       string    `json:"user_id"`
	Date         time.Time `json:"date"`
	CreatedAt    time.Time `json:"created_at"`
}

type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	Sent        bool             `json:"sent"`
	EquipmentID *string          `json:"equipment_id"`
	UserID      *string          `json:"user_id"`
	Timestamp   time.Time        `json:"timestamp"`
	CreatedAt   time.Time        `json:"created_at"`
}

type Prediction struct {
	ID                   string    `json:"id"`
	EquipmentID          string    `json:"equipment_id"`
	PredictedConsumption float64   `json:"predicted_consumption"`
	PredictionDate       time.Time `json:"prediction_date"`
	ConfidenceScore      *float64  `json:"confidence_score"`
	CreatedAt            time.Time `json:"created_at"`
}

type Order struct {
	ID             string          `json:"id"`
	GeneratorModel string          `json:"generator_model"`
	OrderReference string          `json:"order_reference"`
	ReceiverName   string          `json:"receiver_name"`
	Notes          *string         `json:"notes"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Materials      []OrderMaterial `json:"materials,omitempty"`
}

// TotalQuantity sums the quantities of every material on the order.
func (o Order) TotalQuantity() int {
	total := 0
	for _, m := range o.Materials {
		total += m.Quantity
	}
	return total
}

type OrderMaterial struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	EquipmentID string    `json:"equipment_id"`
	Quantity    int       `json:"quantity"`
	Unit        *string   `json:"unit"`
	CreatedAt   time.Time `json:"created_at"`
}

type StockMovement struct {
	ID             string       `json:"id"`
	EquipmentID    string       `json:"equipment_id"`
	Type           MovementType `json:"type"`
	Quantity       int          `json:"quantity"`
	RelatedOrderID *string      `json:"related_order_id"`
	ReceiverName   *string      `json:"receiver_name"`
	CreatedBy      string       `json:"created_by"`
	CreatedAt      time.Time    `json:"created_at"`
}

type OrderAttachment struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	FileName   string    `json:"file_name"`
	FilePath   string    `json:"file_path"`
	FileSize   *int64    `json:"file_size"`
	FileType   *string   `json:"file_type"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
	FileURL    string    `json:"file_url,omitempty"`
}

type ConsumptionFilter struct {
	EquipmentID string
	UserID      string
	StartDate   string
	EndDate     string
	Limit       int
	Offset      int
}

type NotificationFilter struct {
	UserID string
	Sent   *bool
}

type MovementFilter struct {
	EquipmentID  string
	Type         MovementType
	ReceiverName string
	StartDate    string
	EndDate      string
	Limit        int
	Offset       int
}
