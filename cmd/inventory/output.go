package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-inventory-client/inventory"
	"github.com/jrsteele09/go-inventory-client/internal/utils"
)

func table(header ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	return w
}

func row(w *tabwriter.Writer, cells ...any) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(w, strings.Join(parts, "\t"))
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func printEquipments(equipments []inventory.Equipment) {
	w := table("ID", "NAME", "TYPE", "AVAILABLE", "TOTAL", "THRESHOLD", "PRICE", "LOCATION", "")
	for _, eq := range equipments {
		flag := ""
		if eq.IsLowStock() {
			flag = "LOW"
		}
		price := "-"
		if eq.UnitPrice != nil {
			price = fmt.Sprintf("%.2f", *eq.UnitPrice)
		}
		row(w, eq.ID, eq.Name, eq.Type, eq.QuantityAvailable, eq.QuantityTotal, eq.MinimumThreshold, price, orDash(eq.Location), flag)
	}
	w.Flush()
}

func printConsumption(records []inventory.Consumption) {
	w := table("ID", "EQUIPMENT", "QUANTITY", "PURPOSE", "USER", "DATE")
	for _, c := range records {
		row(w, c.ID, c.EquipmentID, c.QuantityUsed, orDash(c.Purpose), c.UserID, date(c.Date))
	}
	w.Flush()
}

func printOrders(orders []inventory.Order) {
	w := table("ID", "REFERENCE", "MODEL", "RECEIVER", "MATERIALS", "CREATED")
	for _, o := range orders {
		row(w, o.ID, o.OrderReference, o.GeneratorModel, o.ReceiverName, o.TotalQuantity(), date(o.CreatedAt))
	}
	w.Flush()
}

func printOrder(o inventory.Order, attachments []inventory.OrderAttachment) {
	fmt.Printf("Order %s\n", o.ID)
	fmt.Printf("  Reference: %s\n", o.OrderReference)
	fmt.Printf("  Model:     %s\n", o.GeneratorModel)
	fmt.Printf("  Receiver:  %s\n", o.ReceiverName)
	fmt.Printf("  Notes:     %s\n", orDash(o.Notes))
	fmt.Printf("  Created:   %s\n", date(o.CreatedAt))
	fmt.Println()

	w := table("EQUIPMENT", "QUANTITY", "UNIT")
	for _, m := range o.Materials {
		row(w, m.EquipmentID, m.Quantity, orDash(m.Unit))
	}
	w.Flush()

	if len(attachments) > 0 {
		fmt.Println()
		printAttachments(attachments)
	}
}

func printAttachments(attachments []inventory.OrderAttachment) {
	w := table("ID", "FILE", "TYPE", "SIZE", "URL")
	for _, at := range attachments {
		row(w, at.ID, at.FileName, orDash(at.FileType), utils.Value(at.FileSize), at.FileURL)
	}
	w.Flush()
}

func printMovements(movements []inventory.StockMovement) {
	w := table("DATE", "EQUIPMENT", "TYPE", "QUANTITY", "ORDER", "RECEIVER")
	for _, m := range movements {
		row(w, date(m.CreatedAt), m.EquipmentID, m.Type, m.Quantity, orDash(m.RelatedOrderID), orDash(m.ReceiverName))
	}
	w.Flush()
}

func printNotifications(notifications []inventory.Notification) {
	w := table("ID", "TYPE", "SENT", "MESSAGE", "DATE")
	for _, n := range notifications {
		row(w, n.ID, n.Type, n.Sent, n.Message, date(n.Timestamp))
	}
	w.Flush()
}

func printPredictions(predictions []inventory.Prediction) {
	w := table("ID", "EQUIPMENT", "PREDICTED", "CONFIDENCE", "FOR")
	for _, p := range predictions {
		confidence := "-"
		if p.ConfidenceScore != nil {
			confidence = fmt.Sprintf("%.0f%%", *p.ConfidenceScore*100)
		}
		row(w, p.ID, p.EquipmentID, fmt.Sprintf("%.1f", p.PredictedConsumption), confidence, date(p.PredictionDate))
	}
	w.Flush()
}
