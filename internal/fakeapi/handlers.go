package fakeapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/go-inventory-client/internal/utils"
	"github.com/jrsteele09/go-inventory-client/inventory"
)

func (s *Server) listEquipments(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]inventory.Equipment{}, s.equipments...))
}

func (s *Server) lowStock(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	low := inventory.LowStock(s.equipments)
	if low == nil {
		low = []inventory.Equipment{}
	}
	writeJSON(w, http.StatusOK, low)
}

func (s *Server) getEquipment(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.equipmentIndex(chi.URLParam(r, "id"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Equipment not found")
		return
	}
	writeJSON(w, http.StatusOK, s.equipments[i])
}

func (s *Server) createEquipment(w http.ResponseWriter, r *http.Request, userID string) {
	payload, ok := decode[inventory.EquipmentPayload](w, r)
	if !ok {
		return
	}
	if msg := checkEquipment(payload); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(payload.Name, "") {
		writeError(w, http.StatusConflict, "Equipment name already exists")
		return
	}

	now := s.now()
	eq := inventory.Equipment{ID: newID(), CreatedAt: now, UpdatedAt: now}
	applyPayload(&eq, payload)
	s.equipments = append([]inventory.Equipment{eq}, s.equipments...)
	if eq.QuantityTotal > 0 {
		s.recordMovement(eq.ID, inventory.MovementIn, eq.QuantityTotal, nil, nil, userID)
	}
	writeJSON(w, http.StatusCreated, eq)
}

func (s *Server) updateEquipment(w http.ResponseWriter, r *http.Request, userID string) {
	payload, ok := decode[inventory.EquipmentPayload](w, r)
	if !ok {
		return
	}
	if msg := checkEquipment(payload); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	i := s.equipmentIndex(id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Equipment not found")
		return
	}
	if s.nameTaken(payload.Name, id) {
		writeError(w, http.StatusConflict, "Equipment name already exists")
		return
	}

	eq := &s.equipments[i]
	if added := payload.QuantityTotal - eq.QuantityTotal; added > 0 {
		s.recordMovement(eq.ID, inventory.MovementIn, added, nil, nil, userID)
	}
	applyPayload(eq, payload)
	eq.UpdatedAt = s.now()
	writeJSON(w, http.StatusOK, *eq)
}

func (s *Server) deleteEquipment(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.equipmentIndex(chi.URLParam(r, "id"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Equipment not found")
		return
	}
	s.equipments = append(s.equipments[:i], s.equipments[i+1:]...)
	writeMessage(w, http.StatusOK, "Equipment deleted successfully")
}

func (s *Server) logConsumption(w http.ResponseWriter, r *http.Request, userID string) {
	in, ok := decode[inventory.ConsumptionInput](w, r)
	if !ok {
		return
	}
	if in.QuantityUsed <= 0 {
		writeError(w, http.StatusBadRequest, "quantity_used must be greater than 0")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.equipmentIndex(in.EquipmentID)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Equipment not found")
		return
	}
	eq := &s.equipments[i]
	if in.QuantityUsed > eq.QuantityAvailable {
		writeError(w, http.StatusBadRequest, "Insufficient stock")
		return
	}

	now := s.now()
	wasLow := eq.IsLowStock()
	eq.QuantityAvailable -= in.QuantityUsed
	eq.UpdatedAt = now
	if !wasLow && eq.IsLowStock() {
		s.notifyLowStock(*eq, userID)
	}

	record := inventory.Consumption{
		ID:           newID(),
		EquipmentID:  in.EquipmentID,
		QuantityUsed: in.QuantityUsed,
		Purpose:      in.Purpose,
		UserID:       userID,
		Date:         now,
		CreatedAt:    now,
	}
	s.consumption = append([]inventory.Consumption{record}, s.consumption...)
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) listConsumption(w http.ResponseWriter, r *http.Request, _ string) {
	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := []inventory.Consumption{}
	for _, c := range s.consumption {
		if v := q.Get("equipment_id"); v != "" && c.EquipmentID != v {
			continue
		}
		if v := q.Get("user_id"); v != "" && c.UserID != v {
			continue
		}
		if !inRange(c.Date, q.Get("start_date"), q.Get("end_date")) {
			continue
		}
		matches = append(matches, c)
	}
	writeJSON(w, http.StatusOK, page(matches, q))
}

func (s *Server) getConsumption(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	for _, c := range s.consumption {
		if c.ID == id {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Consumption record not found")
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request, _ string) {
	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := []inventory.Notification{}
	for _, n := range s.notices {
		if v := q.Get("user_id"); v != "" && utils.Value(n.UserID) != v {
			continue
		}
		if v := q.Get("sent"); v != "" {
			if sent, err := strconv.ParseBool(v); err == nil && n.Sent != sent {
				continue
			}
		}
		matches = append(matches, n)
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) markSent(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	for i := range s.notices {
		if s.notices[i].ID == id {
			s.notices[i].Sent = true
			writeJSON(w, http.StatusOK, s.notices[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "Notification not found")
}

func (s *Server) listPredictions(w http.ResponseWriter, r *http.Request, _ string) {
	equipmentID := r.URL.Query().Get("equipment_id")
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := []inventory.Prediction{}
	for _, p := range s.predictions {
		if equipmentID == "" || p.EquipmentID == equipmentID {
			matches = append(matches, p)
		}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) getPrediction(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	for _, p := range s.predictions {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Prediction not found")
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request, userID string) {
	in, ok := decode[inventory.OrderInput](w, r)
	if !ok {
		return
	}
	if msg := checkOrder(in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg := s.checkStock(in.Materials); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	now := s.now()
	order := inventory.Order{
		ID:             newID(),
		GeneratorModel: in.GeneratorModel,
		OrderReference: in.OrderReference,
		ReceiverName:   in.ReceiverName,
		Notes:          in.Notes,
		CreatedBy:      userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	order.Materials = s.issueMaterials(order, in.Materials, userID)
	s.orders = append([]inventory.Order{order}, s.orders...)
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]inventory.Order{}, s.orders...))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.orderIndex(chi.URLParam(r, "id"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	writeJSON(w, http.StatusOK, s.orders[i])
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request, userID string) {
	in, ok := decode[inventory.OrderInput](w, r)
	if !ok {
		return
	}
	if msg := checkOrder(in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.orderIndex(chi.URLParam(r, "id"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}

	order := &s.orders[i]
	s.returnMaterials(*order, userID)
	if msg := s.checkStock(in.Materials); msg != "" {
		s.issueMaterials(*order, materialInputs(order.Materials), userID)
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	order.GeneratorModel = in.GeneratorModel
	order.OrderReference = in.OrderReference
	order.ReceiverName = in.ReceiverName
	order.Notes = in.Notes
	order.UpdatedAt = s.now()
	order.Materials = s.issueMaterials(*order, in.Materials, userID)
	writeJSON(w, http.StatusOK, *order)
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	i := s.orderIndex(id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	s.returnMaterials(s.orders[i], userID)
	s.orders = append(s.orders[:i], s.orders[i+1:]...)

	kept := s.attachments[:0]
	for _, a := range s.attachments {
		if a.OrderID != id {
			kept = append(kept, a)
		}
	}
	s.attachments = kept
	writeMessage(w, http.StatusOK, "Order deleted successfully")
}

func (s *Server) listMovements(w http.ResponseWriter, r *http.Request, _ string) {
	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := []inventory.StockMovement{}
	for _, m := range s.movements {
		if v := q.Get("equipment_id"); v != "" && m.EquipmentID != v {
			continue
		}
		if v := q.Get("type"); v != "" && string(m.Type) != v {
			continue
		}
		if v := q.Get("receiver_name"); v != "" && !strings.Contains(strings.ToLower(utils.Value(m.ReceiverName)), strings.ToLower(v)) {
			continue
		}
		if !inRange(m.CreatedAt, q.Get("start_date"), q.Get("end_date")) {
			continue
		}
		matches = append(matches, m)
	}
	writeJSON(w, http.StatusOK, page(matches, q))
}

func (s *Server) uploadAttachment(w http.ResponseWriter, r *http.Request, userID string) {
	orderID := chi.URLParam(r, "id")
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()
	size, err := io.Copy(io.Discard, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderIndex(orderID) < 0 {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}

	path := fmt.Sprintf("orders/%s/%s", orderID, header.Filename)
	attachment := inventory.OrderAttachment{
		ID:         newID(),
		OrderID:    orderID,
		FileName:   header.Filename,
		FilePath:   path,
		FileSize:   utils.Ptr(size),
		FileType:   utils.NonEmpty(header.Header.Get("Content-Type")),
		UploadedBy: userID,
		CreatedAt:  s.now(),
		FileURL:    "/files/" + path,
	}
	s.attachments = append(s.attachments, attachment)
	writeJSON(w, http.StatusCreated, attachment)
}

func (s *Server) listAttachments(w http.ResponseWriter, r *http.Request, _ string) {
	orderID := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := []inventory.OrderAttachment{}
	for _, a := range s.attachments {
		if a.OrderID == orderID {
			matches = append(matches, a)
		}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) deleteAttachment(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	for i, a := range s.attachments {
		if a.ID == id {
			s.attachments = append(s.attachments[:i], s.attachments[i+1:]...)
			writeMessage(w, http.StatusOK, "Attachment deleted successfully")
			return
		}
	}
	writeError(w, http.StatusNotFound, "Attachment not found")
}
