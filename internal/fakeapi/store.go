package fakeapi

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-inventory-client/internal/utils"
	"github.com/jrsteele09/go-inventory-client/inventory"
)

// SeedEquipment stores eq, assigning an id and timestamps when missing.
func (s *Server) SeedEquipment(eq inventory.Equipment) inventory.Equipment {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if eq.ID == "" {
		eq.ID = newID()
	}
	if eq.Type == "" {
		eq.Type = inventory.EquipmentElectrical
	}
	if eq.CreatedAt.IsZero() {
		eq.CreatedAt, eq.UpdatedAt = now, now
	}
	s.equipments = append(s.equipments, eq)
	return eq
}

func (s *Server) SeedNotification(n inventory.Notification) inventory.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if n.ID == "" {
		n.ID = newID()
	}
	if n.Type == "" {
		n.Type = inventory.NotificationDashboard
	}
	if n.CreatedAt.IsZero() {
		n.Timestamp, n.CreatedAt = now, now
	}
	s.notices = append(s.notices, n)
	return n
}

func (s *Server) SeedPrediction(p inventory.Prediction) inventory.Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.predictions = append(s.predictions, p)
	return p
}

// Equipment returns the stored record with id.
func (s *Server) Equipment(id string) (inventory.Equipment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.equipmentIndex(id); i >= 0 {
		return s.equipments[i], true
	}
	return inventory.Equipment{}, false
}

func (s *Server) Notifications() []inventory.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.Notification{}, s.notices...)
}

func (s *Server) equipmentIndex(id string) int {
	for i := range s.equipments {
		if s.equipments[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Server) orderIndex(id string) int {
	for i := range s.orders {
		if s.orders[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Server) nameTaken(name, exceptID string) bool {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, eq := range s.equipments {
		if eq.ID != exceptID && strings.ToLower(strings.TrimSpace(eq.Name)) == normalized {
			return true
		}
	}
	return false
}

func checkEquipment(p inventory.EquipmentPayload) string {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return "name is required"
	case p.Type != inventory.EquipmentElectrical && p.Type != inventory.EquipmentManual:
		return "type must be electrical or manual"
	case p.QuantityTotal < 0 || p.QuantityAvailable < 0 || p.MinimumThreshold < 0:
		return "quantities must be greater than or equal to zero"
	case p.UnitPrice != nil && *p.UnitPrice < 0:
		return "unit_price must be greater than or equal to zero"
	}
	return ""
}

func applyPayload(eq *inventory.Equipment, p inventory.EquipmentPayload) {
	eq.Name = strings.TrimSpace(p.Name)
	eq.Type = p.Type
	eq.QuantityTotal = p.QuantityTotal
	eq.QuantityAvailable = p.QuantityAvailable
	eq.MinimumThreshold = p.MinimumThreshold
	eq.UnitPrice = p.UnitPrice
	eq.Location = p.Location
	eq.SupplierID = p.SupplierID
}

func checkOrder(in inventory.OrderInput) string {
	switch {
	case strings.TrimSpace(in.OrderReference) == "":
		return "order_reference is required"
	case strings.TrimSpace(in.ReceiverName) == "":
		return "receiver_name is required"
	case len(in.Materials) == 0:
		return "At least one material is required"
	}
	for _, m := range in.Materials {
		if m.EquipmentID == "" || m.Quantity <= 0 {
			return "Each material needs an equipment and a positive quantity"
		}
	}
	return ""
}

// checkStock verifies that every equipment can cover the summed quantity requested.
func (s *Server) checkStock(materials []inventory.MaterialInput) string {
	requested := make(map[string]int)
	for _, m := range materials {
		requested[m.EquipmentID] += m.Quantity
	}
	for id, qty := range requested {
		i := s.equipmentIndex(id)
		if i < 0 {
			return fmt.Sprintf("Equipment %s not found", id)
		}
		if qty > s.equipments[i].QuantityAvailable {
			return fmt.Sprintf("Insufficient stock for %s: available %d", s.equipments[i].Name, s.equipments[i].QuantityAvailable)
		}
	}
	return ""
}

func (s *Server) issueMaterials(order inventory.Order, materials []inventory.MaterialInput, userID string) []inventory.OrderMaterial {
	now := s.now()
	issued := make([]inventory.OrderMaterial, 0, len(materials))
	for _, m := range materials {
		eq := &s.equipments[s.equipmentIndex(m.EquipmentID)]
		wasLow := eq.IsLowStock()
		eq.QuantityAvailable -= m.Quantity
		eq.UpdatedAt = now
		if !wasLow && eq.IsLowStock() {
			s.notifyLowStock(*eq, userID)
		}

		issued = append(issued, inventory.OrderMaterial{
			ID:          newID(),
			OrderID:     order.ID,
			EquipmentID: m.EquipmentID,
			Quantity:    m.Quantity,
			Unit:        m.Unit,
			CreatedAt:   now,
		})
		s.recordMovement(m.EquipmentID, inventory.MovementOut, m.Quantity, utils.Ptr(order.ID), utils.NonEmpty(order.ReceiverName), userID)
	}
	return issued
}

func (s *Server) returnMaterials(order inventory.Order, userID string) {
	for _, m := range order.Materials {
		i := s.equipmentIndex(m.EquipmentID)
		if i < 0 {
			continue
		}
		s.equipments[i].QuantityAvailable += m.Quantity
		s.equipments[i].UpdatedAt = s.now()
		s.recordMovement(m.EquipmentID, inventory.MovementIn, m.Quantity, utils.Ptr(order.ID), nil, userID)
	}
}

func materialInputs(materials []inventory.OrderMaterial) []inventory.MaterialInput {
	inputs := make([]inventory.MaterialInput, 0, len(materials))
	for _, m := range materials {
		inputs = append(inputs, inventory.MaterialInput{EquipmentID: m.EquipmentID, Quantity: m.Quantity, Unit: m.Unit})
	}
	return inputs
}

func (s *Server) recordMovement(equipmentID string, kind inventory.MovementType, quantity int, orderID, receiver *string, userID string) {
	s.movements = append([]inventory.StockMovement{{
		ID:             newID(),
		EquipmentID:    equipmentID,
		Type:           kind,
		Quantity:       quantity,
		RelatedOrderID: orderID,
		ReceiverName:   receiver,
		CreatedBy:      userID,
		CreatedAt:      s.now(),
	}}, s.movements...)
}

func (s *Server) notifyLowStock(eq inventory.Equipment, userID string) {
	now := s.now()
	s.notices = append([]inventory.Notification{{
		ID:          newID(),
		Type:        inventory.NotificationDashboard,
		Message:     fmt.Sprintf("Low stock: %s has %d units left (threshold %d)", eq.Name, eq.QuantityAvailable, eq.MinimumThreshold),
		EquipmentID: utils.Ptr(eq.ID),
		UserID:      utils.NonEmpty(userID),
		Timestamp:   now,
		CreatedAt:   now,
	}}, s.notices...)
}
