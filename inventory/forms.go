package inventory

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrsteele09/go-inventory-client/internal/utils"
	"github.com/pkg/errors"
)

// EquipmentForm is what a user enters to create or edit equipment.
// On create Quantity is the amount being added to current stock; on edit it is
// the new total.
type EquipmentForm struct {
	Name              string        `json:"name"`
	Type              EquipmentType `json:"type"`
	Quantity          int           `json:"quantity_total"`
	QuantityAvailable *int          `json:"quantity_available"`
	MinimumThreshold  int           `json:"minimum_threshold"`
	UnitPrice         *float64      `json:"unit_price"`
	Location          *string       `json:"location"`
	SupplierID        *string       `json:"supplier_id"`
}

// EquipmentPayload is the body of POST and PUT /equipments.
type EquipmentPayload struct {
	Name              string        `json:"name"`
	Type              EquipmentType `json:"type"`
	QuantityTotal     int           `json:"quantity_total"`
	QuantityAvailable int           `json:"quantity_available"`
	MinimumThreshold  int           `json:"minimum_threshold"`
	UnitPrice         *float64      `json:"unit_price"`
	Location          *string       `json:"location"`
	SupplierID        *string       `json:"supplier_id"`
}

func (f EquipmentForm) payload() EquipmentPayload {
	kind := f.Type
	if kind == "" {
		kind = EquipmentElectrical
	}
	return EquipmentPayload{
		Name:             strings.TrimSpace(f.Name),
		Type:             kind,
		MinimumThreshold: f.MinimumThreshold,
		UnitPrice:        f.UnitPrice,
		Location:         f.Location,
		SupplierID:       f.SupplierID,
	}
}

// CreatePayload applies the stock rule for new equipment: the total is the
// current stock plus the quantity being added; available stays at current stock.
func (f EquipmentForm) CreatePayload() EquipmentPayload {
	p := f.payload()
	available := utils.Value(f.QuantityAvailable)
	p.QuantityAvailable = available
	p.QuantityTotal = available + f.Quantity
	return p
}

// UpdatePayload applies the stock rule for edits: available moves by the same
// amount as the total. An unset or zero available keeps the current value.
func (f EquipmentForm) UpdatePayload(current Equipment) EquipmentPayload {
	p := f.payload()
	available := utils.Value(f.QuantityAvailable)
	if available == 0 {
		available = current.QuantityAvailable
	}
	p.QuantityTotal = f.Quantity
	p.QuantityAvailable = available + (f.Quantity - current.QuantityTotal)
	return p
}

// FormFrom pre-fills an edit form from an existing record.
func FormFrom(e Equipment) EquipmentForm {
	return EquipmentForm{
		Name:              e.Name,
		Type:              e.Type,
		Quantity:          e.QuantityTotal,
		QuantityAvailable: utils.Ptr(e.QuantityAvailable),
		MinimumThreshold:  e.MinimumThreshold,
		UnitPrice:         e.UnitPrice,
		Location:          e.Location,
		SupplierID:        e.SupplierID,
	}
}

type ConsumptionInput struct {
	EquipmentID  string  `json:"equipment_id"`
	QuantityUsed int     `json:"quantity_used"`
	Purpose      *string `json:"purpose,omitempty"`
}

type MaterialInput struct {
	EquipmentID string  `json:"equipment_id"`
	Quantity    int     `json:"quantity"`
	Unit        *string `json:"unit,omitempty"`
}

// OrderInput is the body of POST and PUT /orders.
type OrderInput struct {
	GeneratorModel string          `json:"generator_model"`
	OrderReference string          `json:"order_reference"`
	ReceiverName   string          `json:"receiver_name"`
	Notes          *string         `json:"notes,omitempty"`
	Materials      []MaterialInput `json:"materials"`
}

// OrderInputFrom pre-fills an edit form from an existing order.
func OrderInputFrom(o Order) OrderInput {
	in := OrderInput{
		GeneratorModel: o.GeneratorModel,
		OrderReference: o.OrderReference,
		ReceiverName:   o.ReceiverName,
		Notes:          o.Notes,
	}
	for _, m := range o.Materials {
		in.Materials = append(in.Materials, MaterialInput{EquipmentID: m.EquipmentID, Quantity: m.Quantity, Unit: m.Unit})
	}
	return in
}

const MaxReceiptSize = 10 * 1024 * 1024

var receiptTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"application/pdf": true,
}

// Receipt is a signed delivery receipt to attach to an order.
type Receipt struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Validate enforces the accepted receipt formats and size.
func (r Receipt) Validate() error {
	ve := &ValidationError{}
	if !receiptTypes[r.ContentType] {
		ve.add("file", fmt.Sprintf("%s is not a valid file type. Only JPEG, PNG, and PDF are allowed.", r.FileName))
	} else if r.Size > MaxReceiptSize {
		ve.add("file", fmt.Sprintf("%s is too large. Maximum file size is 10MB.", r.FileName))
	}
	return ve.orNil()
}

// Close releases the underlying file when Content is one.
func (r Receipt) Close() error {
	if c, ok := r.Content.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenReceipt opens path as a Receipt. The caller must Close it.
func OpenReceipt(path string) (Receipt, error) {
	file, err := os.Open(path)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "[OpenReceipt] Open")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return Receipt{}, errors.Wrap(err, "[OpenReceipt] Stat")
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		head := make([]byte, 512)
		n, _ := io.ReadFull(file, head)
		contentType = http.DetectContentType(head[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			_ = file.Close()
			return Receipt{}, errors.Wrap(err, "[OpenReceipt] Seek")
		}
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	return Receipt{
		FileName:    filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Content:     file,
	}, nil
}

// Option is an autocomplete entry.
type Option struct {
	Value string
	Label string
}

// Suggest filters options by case-insensitive substring match on the label.
// An empty term returns every option.
func Suggest(options []Option, term string) []Option {
	if term == "" {
		return options
	}
	needle := strings.ToLower(term)
	var matches []Option
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Label), needle) {
			matches = append(matches, opt)
		}
	}
	return matches
}

// EquipmentOptions builds autocomplete entries labelled with current stock.
func EquipmentOptions(equipments []Equipment) []Option {
	options := make([]Option, 0, len(equipments))
	for _, eq := range equipments {
		options = append(options, Option{
			Value: eq.ID,
			Label: fmt.Sprintf("%s (Stock: %d)", eq.Name, eq.QuantityAvailable),
		})
	}
	return options
}

// StockValue is the total value of stock held: Σ unit price × total quantity.
func StockValue(equipments []Equipment) float64 {
	var total float64
	for _, eq := range equipments {
		total += utils.Value(eq.UnitPrice) * float64(eq.QuantityTotal)
	}
	return total
}

// LowStock returns the equipment at or below its minimum threshold.
func LowStock(equipments []Equipment) []Equipment {
	var low []Equipment
	for _, eq := range equipments {
		if eq.IsLowStock() {
			low = append(low, eq)
		}
	}
	return low
}
