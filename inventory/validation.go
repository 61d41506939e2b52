package inventory

import (
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jrsteele09/go-inventory-client/fetch"
)

// ValidationError maps form fields to messages. It is raised before any
// request is sent.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) ErrorKind() fetch.Kind {
	return fetch.KindValidation
}

func (e *ValidationError) Is(target error) bool {
	return target == fetch.ErrValidation
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// collect folds ozzo validation errors into ve, flattening nested keys with dots.
func (e *ValidationError) collect(err error) error {
	if err == nil {
		return nil
	}
	errs, ok := err.(validation.Errors)
	if !ok {
		return err
	}
	e.flatten("", errs)
	return nil
}

func (e *ValidationError) flatten(prefix string, errs validation.Errors) {
	for field, err := range errs {
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		if nested, ok := err.(validation.Errors); ok {
			e.flatten(key, nested)
			continue
		}
		e.add(key, err.Error())
	}
}

var nonNegative = validation.Min(0).Error("must be greater than or equal to zero")

// Validate checks an equipment form. existing is the current equipment list,
// used to reject duplicate names; selfID excludes the record being edited.
func (f EquipmentForm) Validate(existing []Equipment, selfID string) error {
	ve := &ValidationError{}

	err := validation.ValidateStruct(&f,
		validation.Field(&f.Name,
			validation.By(func(any) error {
				if strings.TrimSpace(f.Name) == "" {
					return validation.NewError("validation_required", "Equipment name is required")
				}
				return nil
			}),
			validation.By(uniqueName(existing, selfID)),
		),
		validation.Field(&f.Type, validation.In(EquipmentElectrical, EquipmentManual).Error("must be electrical or manual")),
		validation.Field(&f.Quantity, nonNegative),
		validation.Field(&f.QuantityAvailable, nonNegative),
		validation.Field(&f.MinimumThreshold, nonNegative),
		validation.Field(&f.UnitPrice, validation.Min(0.0).Error("must be greater than or equal to zero")),
	)
	if err := ve.collect(err); err != nil {
		return err
	}
	return ve.orNil()
}

func uniqueName(existing []Equipment, selfID string) validation.RuleFunc {
	return func(value any) error {
		name, _ := value.(string)
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			return nil
		}
		for _, eq := range existing {
			if eq.ID != selfID && strings.ToLower(strings.TrimSpace(eq.Name)) == normalized {
				return validation.NewError("validation_duplicate_name",
					fmt.Sprintf("Equipment %q already exists. Please select it from the list or use a different name.", eq.Name))
			}
		}
		return nil
	}
}

// Validate checks a consumption entry against the selected equipment, which may be nil.
func (in ConsumptionInput) Validate(selected *Equipment) error {
	ve := &ValidationError{}

	err := validation.ValidateStruct(&in,
		validation.Field(&in.EquipmentID, validation.Required.Error("Please select an equipment")),
		validation.Field(&in.QuantityUsed,
			validation.Required.Error("Quantity must be greater than 0"),
			validation.Min(1).Error("Quantity must be greater than 0"),
		),
	)
	if err := ve.collect(err); err != nil {
		return err
	}

	if selected != nil && in.QuantityUsed > selected.QuantityAvailable {
		ve.add("quantity_used", fmt.Sprintf("Only %d units available", selected.QuantityAvailable))
	}
	return ve.orNil()
}

// Validate checks an order against the current equipment stock.
func (in OrderInput) Validate(equipments []Equipment) error {
	ve := &ValidationError{}

	err := validation.ValidateStruct(&in,
		validation.Field(&in.OrderReference, validation.Required.Error("Order reference is required")),
		validation.Field(&in.ReceiverName, validation.Required.Error("Receiver name is required")),
		validation.Field(&in.Materials, validation.Required.Error("At least one material is required")),
	)
	if err := ve.collect(err); err != nil {
		return err
	}

	byID := make(map[string]Equipment, len(equipments))
	for _, eq := range equipments {
		byID[eq.ID] = eq
	}
	for i, m := range in.Materials {
		if m.EquipmentID == "" {
			ve.add(fmt.Sprintf("materials.%d.equipment_id", i), "Please select a material")
		}
		quantityKey := fmt.Sprintf("materials.%d.quantity", i)
		if m.Quantity <= 0 {
			ve.add(quantityKey, "Quantity must be greater than zero")
			continue
		}
		if eq, ok := byID[m.EquipmentID]; ok && m.Quantity > eq.QuantityAvailable {
			ve.add(quantityKey, fmt.Sprintf("Available stock: %d", eq.QuantityAvailable))
		}
	}
	return ve.orNil()
}
