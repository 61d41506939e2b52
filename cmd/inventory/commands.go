package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-inventory-client/internal/utils"
	"github.com/jrsteele09/go-inventory-client/inventory"
	"github.com/jrsteele09/go-inventory-client/resources"
	"github.com/jrsteele09/go-inventory-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type commandFunc func(ctx context.Context, a *app, args []string) error

type command struct {
	summary string
	run     commandFunc
}

var commands = map[string]command{
	"login":                    {"sign in with email and password", login},
	"logout":                   {"sign out and forget the stored session", logout},
	"whoami":                   {"show the signed-in user and role", whoami},
	"dashboard":                {"stock totals and pending notifications", dashboard},
	"equipment list":           {"list equipment (--search, --low)", equipmentList},
	"equipment create":         {"add equipment (admin)", equipmentCreate},
	"equipment update":         {"edit equipment (admin)", equipmentUpdate},
	"equipment delete":         {"delete equipment (admin)", equipmentDelete},
	"equipment low-stock":      {"equipment at or below its threshold", equipmentLowStock},
	"consumption log":          {"record equipment usage", consumptionLog},
	"consumption history":      {"list recorded usage", consumptionHistory},
	"orders list":              {"list orders", ordersList},
	"orders show":              {"show one order with its attachments", ordersShow},
	"orders create":            {"create an order (--material id:qty, --receipt path)", ordersCreate},
	"orders update":            {"edit an order", ordersUpdate},
	"orders delete":            {"delete an order and return its stock", ordersDelete},
	"orders upload":            {"attach a receipt to an order", ordersUpload},
	"orders remove-attachment": {"delete an order attachment", ordersRemoveAttachment},
	"orders movements":         {"stock movement history", ordersMovements},
	"notifications list":       {"list notifications (--sent, --user)", notificationsList},
	"notifications mark-sent":  {"mark a notification as sent", notificationsMarkSent},
	"predictions list":         {"list consumption predictions", predictionsList},
	"predictions show":         {"show one prediction", predictionsShow},
}

func dispatch(ctx context.Context, a *app, args []string) error {
	name, rest := args[0], args[1:]
	if len(rest) > 0 {
		if _, ok := commands[name+" "+rest[0]]; ok {
			name, rest = name+" "+rest[0], rest[1:]
		}
	}

	cmd, ok := commands[name]
	if !ok {
		usage()
		return errors.Errorf("unknown command %q", strings.Join(args, " "))
	}

	log.Debug().Str("command", name).Msg("Running command")
	err := cmd.run(ctx, a, rest)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "Usage: inventory <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-26s %s\n", name, commands[name].summary)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// visited reports which flags were given explicitly.
func visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.Errorf("--%s is required", name)
	}
	return nil
}

func login(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password, prompted when omitted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("email", *email); err != nil {
		return err
	}

	if *password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return errors.Wrap(err, "reading password")
		}
		*password = strings.TrimSpace(line)
	}

	s, err := a.provider.SignInWithPassword(ctx, *email, *password)
	if err != nil {
		return errors.Wrap(err, "sign in failed")
	}
	fmt.Printf("Signed in as %s (%s)\n", s.Email, session.RoleOf(&s.User))
	return nil
}

func logout(ctx context.Context, a *app, _ []string) error {
	if err := a.tracker.SignOut(ctx); err != nil {
		log.Warn().Err(err).Msg("Identity provider did not confirm sign-out")
	}
	fmt.Println("Signed out")
	return nil
}

func whoami(_ context.Context, a *app, _ []string) error {
	state := a.tracker.State()
	if state.User == nil {
		fmt.Println("Not signed in")
		return nil
	}
	fmt.Printf("%s (%s) role=%s\n", state.User.Email, state.User.ID, state.Role)
	return nil
}

func dashboard(ctx context.Context, a *app, _ []string) error {
	h, err := a.equipments(ctx)
	if err != nil {
		return err
	}
	defer h.Close()
	data := h.Snapshot().Data

	unsent := false
	notices := resources.NewNotifications(a.api, inventory.NotificationFilter{Sent: &unsent}, a.retry())
	defer notices.Close()
	if err := notices.Refetch(ctx); err != nil {
		return err
	}

	fmt.Printf("Equipment:             %d\n", len(data))
	fmt.Printf("Low stock:             %d\n", len(inventory.LowStock(data)))
	fmt.Printf("Stock value:           %.2f\n", inventory.StockValue(data))
	fmt.Printf("Pending notifications: %d\n", len(notices.Snapshot().Data))
	return nil
}

func equipmentList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("equipment list")
	search := fs.String("search", "", "filter by name")
	low := fs.Bool("low", false, "only equipment at or below its threshold")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h, err := a.equipments(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	data := h.Snapshot().Data
	if *search != "" {
		matches := make(map[string]bool)
		for _, opt := range inventory.Suggest(inventory.EquipmentOptions(data), *search) {
			matches[opt.Value] = true
		}
		filtered := data[:0]
		for _, eq := range data {
			if matches[eq.ID] {
				filtered = append(filtered, eq)
			}
		}
		data = filtered
	}
	if *low {
		data = inventory.LowStock(data)
	}
	printEquipments(data)
	return nil
}

type equipmentFlags struct {
	fs        *flag.FlagSet
	name      *string
	kind      *string
	quantity  *int
	available *int
	threshold *int
	price     *float64
	location  *string
	supplier  *string
}

func newEquipmentFlags(name, quantityHelp string) *equipmentFlags {
	fs := newFlagSet(name)
	return &equipmentFlags{
		fs:        fs,
		name:      fs.String("name", "", "equipment name"),
		kind:      fs.String("type", "", "electrical or manual"),
		quantity:  fs.Int("quantity", 0, quantityHelp),
		available: fs.Int("available", 0, "available quantity"),
		threshold: fs.Int("threshold", 0, "minimum threshold"),
		price:     fs.Float64("price", 0, "unit price"),
		location:  fs.String("location", "", "storage location"),
		supplier:  fs.String("supplier", "", "supplier id"),
	}
}

// apply copies every explicitly given flag onto form.
func (f *equipmentFlags) apply(form *inventory.EquipmentForm) {
	for name := range visited(f.fs) {
		switch name {
		case "name":
			form.Name = *f.name
		case "type":
			form.Type = inventory.EquipmentType(strings.ToLower(*f.kind))
		case "quantity":
			form.Quantity = *f.quantity
		case "available":
			form.QuantityAvailable = utils.Ptr(*f.available)
		case "threshold":
			form.MinimumThreshold = *f.threshold
		case "price":
			form.UnitPrice = utils.Ptr(*f.price)
		case "location":
			form.Location = utils.NonEmpty(*f.location)
		case "supplier":
			form.SupplierID = utils.NonEmpty(*f.supplier)
		}
	}
}

func equipmentCreate(ctx context.Context, a *app, args []string) error {
	flags := newEquipmentFlags("equipment create", "quantity being added to stock")
	if err := flags.fs.Parse(args); err != nil {
		return err
	}
	if err := a.tracker.RequireAdmin(); err != nil {
		return err
	}

	h, err := a.equipments(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	var form inventory.EquipmentForm
	flags.apply(&form)
	created, err := h.Create(ctx, form)
	if err != nil {
		return err
	}
	printEquipments([]inventory.Equipment{created})
	return nil
}

func equipmentUpdate(ctx context.Context, a *app, args []string) error {
	flags := newEquipmentFlags("equipment update", "new total quantity")
	id := flags.fs.String("id", "", "equipment id")
	if err := flags.fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}
	if err := a.tracker.RequireAdmin(); err != nil {
		return err
	}

	h, err := a.equipments(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	current, err := a.api.Equipment(ctx, *id)
	if err != nil {
		return err
	}
	form := inventory.FormFrom(current)
	form.QuantityAvailable = nil
	flags.apply(&form)

	updated, err := h.Update(ctx, *id, form)
	if err != nil {
		return err
	}
	printEquipments([]inventory.Equipment{updated})
	return nil
}

func equipmentDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("equipment delete")
	id := fs.String("id", "", "equipment id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}
	if err := a.tracker.RequireAdmin(); err != nil {
		return err
	}

	h := resources.NewEquipments(a.api, a.retry())
	defer h.Close()
	if err := h.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Println("Equipment deleted")
	return nil
}

func equipmentLowStock(ctx context.Context, a *app, _ []string) error {
	low, err := a.api.LowStock(ctx)
	if err != nil {
		return err
	}
	printEquipments(low)
	return nil
}

func consumptionLog(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("consumption log")
	equipmentID := fs.String("equipment", "", "equipment id")
	quantity := fs.Int("quantity", 0, "units used")
	purpose := fs.String("purpose", "", "what the units were used for")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := inventory.ConsumptionInput{EquipmentID: *equipmentID, QuantityUsed: *quantity, Purpose: utils.NonEmpty(*purpose)}
	var selected *inventory.Equipment
	if *equipmentID != "" {
		eq, err := a.api.Equipment(ctx, *equipmentID)
		if err != nil {
			return err
		}
		selected = &eq
	}

	h := resources.NewConsumption(a.api, inventory.ConsumptionFilter{EquipmentID: *equipmentID}, a.retry())
	defer h.Close()
	record, err := h.Log(ctx, in, selected)
	if err != nil {
		return err
	}
	fmt.Printf("Logged %d units of %s (%d left)\n", record.QuantityUsed, selected.Name, selected.QuantityAvailable-record.QuantityUsed)
	return nil
}

func consumptionHistory(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("consumption history")
	var filter inventory.ConsumptionFilter
	fs.StringVar(&filter.EquipmentID, "equipment", "", "equipment id")
	fs.StringVar(&filter.UserID, "user", "", "user id")
	fs.StringVar(&filter.StartDate, "from", "", "start date (YYYY-MM-DD)")
	fs.StringVar(&filter.EndDate, "to", "", "end date (YYYY-MM-DD)")
	fs.IntVar(&filter.Limit, "limit", 0, "maximum records")
	fs.IntVar(&filter.Offset, "offset", 0, "records to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h := resources.NewConsumption(a.api, filter, a.retry())
	defer h.Close()
	if err := h.Refetch(ctx); err != nil {
		return err
	}
	printConsumption(h.Snapshot().Data)
	return nil
}

func ordersList(ctx context.Context, a *app, _ []string) error {
	h := resources.NewOrders(a.api, a.retry())
	defer h.Close()
	if err := h.Refetch(ctx); err != nil {
		return err
	}
	printOrders(h.Snapshot().Data)
	return nil
}

func ordersShow(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("orders show")
	id := fs.String("id", "", "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	order, err := a.api.Order(ctx, *id)
	if err != nil {
		return err
	}
	attachments, err := a.api.Attachments(ctx, *id)
	if err != nil {
		return err
	}
	printOrder(order, attachments)
	return nil
}

type orderFlags struct {
	fs        *flag.FlagSet
	model     *string
	reference *string
	receiver  *string
	notes     *string
	materials multiFlag
	receipts  multiFlag
}

func newOrderFlags(name string) *orderFlags {
	fs := newFlagSet(name)
	f := &orderFlags{
		fs:        fs,
		model:     fs.String("model", "", "generator model"),
		reference: fs.String("ref", "", "order reference"),
		receiver:  fs.String("receiver", "", "receiver name"),
		notes:     fs.String("notes", "", "notes"),
	}
	fs.Var(&f.materials, "material", "material as equipment-id:quantity, repeatable")
	fs.Var(&f.receipts, "receipt", "receipt file to attach, repeatable")
	return f
}

func (f *orderFlags) apply(in *inventory.OrderInput) error {
	set := visited(f.fs)
	if set["model"] {
		in.GeneratorModel = *f.model
	}
	if set["ref"] {
		in.OrderReference = *f.reference
	}
	if set["receiver"] {
		in.ReceiverName = *f.receiver
	}
	if set["notes"] {
		in.Notes = utils.NonEmpty(*f.notes)
	}
	if len(f.materials) == 0 {
		return nil
	}

	in.Materials = in.Materials[:0]
	for _, raw := range f.materials {
		m, err := parseMaterial(raw)
		if err != nil {
			return err
		}
		in.Materials = append(in.Materials, m)
	}
	return nil
}

func parseMaterial(raw string) (inventory.MaterialInput, error) {
	id, qty, ok := strings.Cut(raw, ":")
	if !ok {
		return inventory.MaterialInput{}, errors.Errorf("invalid --material %q, expected equipment-id:quantity", raw)
	}
	quantity, err := strconv.Atoi(qty)
	if err != nil {
		return inventory.MaterialInput{}, errors.Errorf("invalid quantity in --material %q", raw)
	}
	return inventory.MaterialInput{EquipmentID: id, Quantity: quantity}, nil
}

func openReceipts(paths []string) ([]inventory.Receipt, func(), error) {
	var receipts []inventory.Receipt
	closeAll := func() {
		for _, r := range receipts {
			r.Close()
		}
	}
	for _, path := range paths {
		r, err := inventory.OpenReceipt(path)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		receipts = append(receipts, r)
	}
	return receipts, closeAll, nil
}

func ordersCreate(ctx context.Context, a *app, args []string) error {
	flags := newOrderFlags("orders create")
	if err := flags.fs.Parse(args); err != nil {
		return err
	}

	var in inventory.OrderInput
	if err := flags.apply(&in); err != nil {
		return err
	}
	receipts, closeReceipts, err := openReceipts(flags.receipts)
	if err != nil {
		return err
	}
	defer closeReceipts()

	stock, err := a.api.Equipments(ctx)
	if err != nil {
		return err
	}

	h := resources.NewOrders(a.api, a.retry())
	defer h.Close()
	created, err := h.Create(ctx, in, stock, receipts...)
	if err != nil {
		if created.Order.ID != "" {
			log.Warn().Str("order", created.Order.ID).Int("uploaded", len(created.Attachments)).Msg("Order created but a receipt upload failed")
		}
		return err
	}
	printOrder(created.Order, created.Attachments)
	return nil
}

func ordersUpdate(ctx context.Context, a *app, args []string) error {
	flags := newOrderFlags("orders update")
	id := flags.fs.String("id", "", "order id")
	if err := flags.fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	current, err := a.api.Order(ctx, *id)
	if err != nil {
		return err
	}
	in := inventory.OrderInputFrom(current)
	if err := flags.apply(&in); err != nil {
		return err
	}
	stock, err := a.api.Equipments(ctx)
	if err != nil {
		return err
	}

	h := resources.NewOrders(a.api, a.retry())
	defer h.Close()
	updated, err := h.Update(ctx, *id, in, stock)
	if err != nil {
		return err
	}
	printOrder(updated, nil)
	return nil
}

func ordersDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("orders delete")
	id := fs.String("id", "", "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	h := resources.NewOrders(a.api, a.retry())
	defer h.Close()
	if err := h.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Println("Order deleted")
	return nil
}

func ordersUpload(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("orders upload")
	id := fs.String("id", "", "order id")
	path := fs.String("receipt", "", "receipt file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}
	if err := required("receipt", *path); err != nil {
		return err
	}

	receipt, err := inventory.OpenReceipt(*path)
	if err != nil {
		return err
	}
	defer receipt.Close()

	attachment, err := a.api.UploadReceipt(ctx, *id, receipt)
	if err != nil {
		return err
	}
	printAttachments([]inventory.OrderAttachment{attachment})
	return nil
}

func ordersRemoveAttachment(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("orders remove-attachment")
	id := fs.String("id", "", "attachment id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}
	if err := a.api.DeleteAttachment(ctx, *id); err != nil {
		return err
	}
	fmt.Println("Attachment deleted")
	return nil
}

func ordersMovements(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("orders movements")
	var filter inventory.MovementFilter
	var kind string
	fs.StringVar(&filter.EquipmentID, "equipment", "", "equipment id")
	fs.StringVar(&kind, "type", "", "IN or OUT")
	fs.StringVar(&filter.ReceiverName, "receiver", "", "receiver name")
	fs.StringVar(&filter.StartDate, "from", "", "start date (YYYY-MM-DD)")
	fs.StringVar(&filter.EndDate, "to", "", "end date (YYYY-MM-DD)")
	fs.IntVar(&filter.Limit, "limit", 0, "maximum records")
	fs.IntVar(&filter.Offset, "offset", 0, "records to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}
	filter.Type = inventory.MovementType(strings.ToUpper(kind))

	movements, err := a.api.StockMovements(ctx, filter)
	if err != nil {
		return err
	}
	printMovements(movements)
	return nil
}

func notificationsList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("notifications list")
	sent := fs.String("sent", "", "true or false")
	user := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := inventory.NotificationFilter{UserID: *user}
	if *sent != "" {
		value, err := strconv.ParseBool(*sent)
		if err != nil {
			return errors.Errorf("invalid --sent %q", *sent)
		}
		filter.Sent = &value
	}

	h := resources.NewNotifications(a.api, filter, a.retry())
	defer h.Close()
	if err := h.Refetch(ctx); err != nil {
		return err
	}
	printNotifications(h.Snapshot().Data)
	return nil
}

func notificationsMarkSent(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("notifications mark-sent")
	id := fs.String("id", "", "notification id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	h := resources.NewNotifications(a.api, inventory.NotificationFilter{}, a.retry())
	defer h.Close()
	updated, err := h.MarkAsSent(ctx, *id)
	if err != nil {
		return err
	}
	printNotifications([]inventory.Notification{updated})
	return nil
}

func predictionsList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("predictions list")
	equipmentID := fs.String("equipment", "", "equipment id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h := resources.NewPredictions(a.api, *equipmentID, a.retry())
	defer h.Close()
	if err := h.Refetch(ctx); err != nil {
		return err
	}
	printPredictions(h.Snapshot().Data)
	return nil
}

func predictionsShow(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("predictions show")
	id := fs.String("id", "", "prediction id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	p, err := a.api.Prediction(ctx, *id)
	if err != nil {
		return err
	}
	printPredictions([]inventory.Prediction{p})
	return nil
}
