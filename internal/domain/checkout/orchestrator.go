package checkout

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/counter-checkout/internal/domain/customer"
	"github.com/xenking/counter-checkout/internal/domain/product"
	"github.com/xenking/counter-checkout/internal/domain/staff"
)

// State is a step of the sale-completion workflow.
type State string

const (
	StateCollectingItems    State = "collecting_items"
	StateNeedsBuyerDetails  State = "needs_buyer_details"
	StateNeedsPaymentMethod State = "needs_payment_method"
	StateReadyToPersist     State = "ready_to_persist"
	StatePersisting         State = "persisting"
	StatePersisted          State = "persisted"
	StateDispatchingReceipt State = "dispatching_receipt"
	StateComplete           State = "complete"
)

// cancellable reports whether the workflow can still be abandoned.
func (s State) cancellable() bool {
	switch s {
	case StateCollectingItems, StateNeedsBuyerDetails, StateNeedsPaymentMethod, StateReadyToPersist:
		return true
	}
	return false
}

// Config holds checkout policy settings.
type Config struct {
	// BuyerDetailsThreshold is the final total above which a retail sale
	// needs buyer details.
	BuyerDetailsThreshold decimal.Decimal
	// DefaultTaxRate seeds the tax rate of every new cart.
	DefaultTaxRate decimal.Decimal
	// PersistTimeout bounds a single sale store call.
	PersistTimeout time.Duration
}

// DefaultConfig returns the stock checkout policy.
func DefaultConfig() Config {
	return Config{
		BuyerDetailsThreshold: decimal.NewFromInt(5000),
		DefaultTaxRate:        decimal.NewFromInt(18),
		PersistTimeout:        10 * time.Second,
	}
}

// Deps bundles the collaborators of an Orchestrator.
type Deps struct {
	Store       SaleStore
	Receipts    ReceiptDispatcher
	Quotations  QuotationGenerator
	Instruments *Instruments
	Clock       func() time.Time
}

// ReceiptRequest is the operator's receipt selection after persistence.
type ReceiptRequest struct {
	Choice ReceiptChoice
	// Email overrides the buyer's saved address.
	Email string
}

// Completion describes a finished sale.
type Completion struct {
	Sale *Sale
	// Warnings holds *NotificationError values for receipts that failed.
	Warnings []error
	// NextQuotation is the number seeded for the next sale, empty if the
	// generator failed and will be retried on the next completion.
	NextQuotation string
}

// Orchestrator drives one register's session through the sale-completion
// workflow. All methods are safe for concurrent use; calls are serialised.
type Orchestrator struct {
	mu      sync.Mutex
	cfg     Config
	deps    Deps
	state   State
	session Session
	pending *Sale
}

// NewOrchestrator opens a session for a register and seeds its first
// quotation number.
func NewOrchestrator(ctx context.Context, cfg Config, deps Deps, registerID string, operator *staff.Member) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("sale store is required")
	}
	if deps.Quotations == nil {
		return nil, errors.New("quotation generator is required")
	}
	if deps.Instruments == nil {
		deps.Instruments = NoopInstruments()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultConfig().PersistTimeout
	}

	quotation, err := deps.Quotations.Next(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "next quotation")
	}

	return &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		state: StateCollectingItems,
		session: Session{
			RegisterID: registerID,
			Operator:   operator,
			Cart:       NewCart(cfg.DefaultTaxRate),
			Buyer:      DefaultBuyerDetails(),
			Quotation:  quotation,
		},
	}, nil
}

// State returns the current workflow state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// editing runs fn against the session if the cart is editable.
func (o *Orchestrator) editing(fn func(s *Session) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateCollectingItems {
		return ErrCheckoutInProgress
	}
	return fn(&o.session)
}

// AddProduct adds one unit of p to the cart.
func (o *Orchestrator) AddProduct(p product.Product) (out Outcome, err error) {
	err = o.editing(func(s *Session) error {
		out, err = s.Cart.Add(p)
		return err
	})
	return out, err
}

// AddProductQuantity adds n units of p to the cart in one stock-checked
// step.
func (o *Orchestrator) AddProductQuantity(p product.Product, n int) (out Outcome, err error) {
	err = o.editing(func(s *Session) error {
		out, err = s.Cart.AddQuantity(p, n)
		return err
	})
	return out, err
}

// ChangeQuantity applies a quantity delta to the line item for sku.
func (o *Orchestrator) ChangeQuantity(sku string, delta int) (out Outcome, err error) {
	err = o.editing(func(s *Session) error {
		out, err = s.Cart.ChangeQuantity(sku, delta)
		return err
	})
	return out, err
}

// SetQuantity sets the quantity of the line item for sku.
func (o *Orchestrator) SetQuantity(sku string, qty int) (out Outcome, err error) {
	err = o.editing(func(s *Session) error {
		out, err = s.Cart.SetQuantity(sku, qty)
		return err
	})
	return out, err
}

// RemoveItem drops the line item for sku.
func (o *Orchestrator) RemoveItem(sku string) error {
	return o.editing(func(s *Session) error {
		return s.Cart.Remove(sku)
	})
}

// SetDiscount applies a typed discount value and reports whether the stored
// discount changed. Values the policy does not accept leave it unchanged.
func (o *Orchestrator) SetDiscount(v decimal.Decimal) (changed bool, err error) {
	err = o.editing(func(s *Session) error {
		if !s.allows(staff.CapApplyDiscount) {
			return ErrForbidden
		}
		changed = s.Cart.SetDiscount(v)
		return nil
	})
	return changed, err
}

// ClearDiscount removes the cart discount.
func (o *Orchestrator) ClearDiscount() error {
	return o.editing(func(s *Session) error {
		s.Cart.ClearDiscount()
		return nil
	})
}

// SetTax toggles tax and sets its rate.
func (o *Orchestrator) SetTax(enabled bool, rate decimal.Decimal) error {
	return o.editing(func(s *Session) error {
		if rate.IsNegative() || rate.GreaterThan(hundred) {
			return newValidationError("tax_rate", "tax rate must be between 0 and 100")
		}
		s.Cart.SetTax(enabled, rate)
		return nil
	})
}

// SetSegment switches the cart between retail and wholesale pricing.
func (o *Orchestrator) SetSegment(seg product.Segment) error {
	return o.editing(func(s *Session) error {
		if !seg.Valid() {
			return newValidationError("segment", "unknown customer segment")
		}
		if seg != s.Cart.Segment {
			s.buyerValidated = false
		}
		s.Cart.SetSegment(seg)
		return nil
	})
}

// SelectCustomer attaches a directory customer to the sale, switching the
// cart to their segment and pre-filling buyer contact details. A nil
// customer detaches the current one.
func (o *Orchestrator) SelectCustomer(c *customer.Customer) error {
	return o.editing(func(s *Session) error {
		s.Customer = c
		s.buyerValidated = false
		if c == nil {
			return nil
		}
		if c.Segment.Valid() {
			s.Cart.SetSegment(c.Segment)
		}
		s.Buyer.Name = c.Name
		s.Buyer.Phone = c.Phone
		s.Buyer.Email = c.Email
		return nil
	})
}

// SetScanningMode toggles barcode scanning mode for the session.
func (o *Orchestrator) SetScanningMode(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session.ScanningMode = on
}

// SetRemote marks the sale as a remote order.
func (o *Orchestrator) SetRemote(remote bool) error {
	return o.editing(func(s *Session) error {
		s.Remote = remote
		return nil
	})
}

// SetBuyerDetails stores a buyer draft without validating it, for example
// a wholesaler's payment terms entered before completing.
func (o *Orchestrator) SetBuyerDetails(d BuyerDetails) error {
	return o.editing(func(s *Session) error {
		if d.Country == "" {
			d.Country = DefaultCountry
		}
		s.Buyer = d
		s.buyerValidated = false
		return nil
	})
}

// Complete starts sale completion, or retries persistence after a
// PersistenceError. It advances until operator input is needed and returns
// the state it stopped in.
func (o *Orchestrator) Complete(ctx context.Context) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateCollectingItems:
		if o.session.Cart.IsEmpty() {
			return o.state, ErrEmptyCart
		}
		if o.session.Quotation == "" {
			q, err := o.deps.Quotations.Next(ctx)
			if err != nil {
				return o.state, errors.Wrap(err, "next quotation")
			}
			o.session.Quotation = q
		}
		return o.advance(ctx)
	case StateReadyToPersist:
		return o.persist(ctx)
	default:
		return o.state, ErrInvalidState
	}
}

// SubmitBuyerDetails validates the buyer form and continues completion.
// Every offending field is reported in a single *ValidationError and the
// workflow stays in the buyer details step.
func (o *Orchestrator) SubmitBuyerDetails(ctx context.Context, d BuyerDetails) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateNeedsBuyerDetails {
		return o.state, ErrInvalidState
	}

	validated, err := validateBuyer(d, o.buyerRequirements(o.session.Cart.Totals(), false))
	if err != nil {
		// Keep the form for correction; it stays unvalidated.
		o.session.Buyer = d
		o.session.buyerValidated = false
		return o.state, err
	}
	if o.session.Cart.Segment == product.SegmentRetailer {
		validated.PaymentStatus = PaymentPaid
	}
	o.session.Buyer = validated
	o.session.buyerValidated = true
	return o.advance(ctx)
}

// SelectPaymentMethod records the tender for a paid sale and continues.
func (o *Orchestrator) SelectPaymentMethod(ctx context.Context, m PaymentMethod) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateNeedsPaymentMethod {
		return o.state, ErrInvalidState
	}
	if !m.Valid() {
		return o.state, newValidationError("payment_method", "select a payment method")
	}
	o.session.Buyer.PaymentMethod = m
	return o.advance(ctx)
}

// DispatchReceipt sends the receipt for the persisted sale, then resets the
// session for the next sale. Delivery failures do not fail the call; they
// are returned as warnings on the Completion.
func (o *Orchestrator) DispatchReceipt(ctx context.Context, req ReceiptRequest) (*Completion, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateDispatchingReceipt {
		return nil, ErrInvalidState
	}
	if !req.Choice.valid() {
		return nil, newValidationError("receipt", "choose print, email, both or none")
	}

	sale := o.pending
	channels := req.Choice.channels()

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = sale.Buyer.Email
	}
	if email == "" && o.session.Customer != nil {
		email = o.session.Customer.Email
	}
	for _, ch := range channels {
		if ch != ChannelEmail {
			continue
		}
		if email == "" {
			return nil, newValidationError("email", "an email address is required")
		}
		if err := validate.Var(email, "email"); err != nil {
			return nil, newValidationError("email", "invalid email address")
		}
	}

	lg := zctx.From(ctx).With(
		zap.String("register", o.session.RegisterID),
		zap.String("quotation", sale.QuotationNumber),
	)

	var warnings []error
	for _, ch := range channels {
		target := o.session.RegisterID
		if ch == ChannelEmail {
			target = email
		}
		if o.deps.Receipts == nil {
			warnings = append(warnings, &NotificationError{Channel: ch, Err: errors.New("no receipt dispatcher configured")})
			continue
		}
		if err := o.deps.Receipts.SendReceipt(ctx, ch, target, sale); err != nil {
			lg.Warn("Receipt delivery failed", zap.String("channel", string(ch)), zap.Error(err))
			o.deps.Instruments.receiptFailures.Add(ctx, 1,
				metric.WithAttributes(attribute.String("channel", string(ch))))
			warnings = append(warnings, &NotificationError{Channel: ch, Err: err})
		}
	}

	o.state = StateComplete
	completion := &Completion{Sale: sale, Warnings: warnings}

	o.reset()
	q, err := o.deps.Quotations.Next(ctx)
	if err != nil {
		lg.Error("Next quotation number failed", zap.Error(err))
	} else {
		o.session.Quotation = q
	}
	completion.NextQuotation = o.session.Quotation

	lg.Info("Sale complete", zap.String("sale_id", sale.ID), zap.Int("receipt_warnings", len(warnings)))
	return completion, nil
}

// Cancel abandons an in-progress completion. The cart and buyer draft are
// kept so the operator can resume. Once persistence has started the sale
// can no longer be cancelled.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.cancellable() {
		return ErrNotCancellable
	}
	if o.state == StateCollectingItems {
		return nil
	}
	if !o.session.allows(staff.CapCancelSale) {
		return ErrForbidden
	}

	// A failed persistence attempt may still have landed; never reuse its
	// quotation number for a different snapshot.
	if o.state == StateReadyToPersist && o.pending != nil {
		o.session.Quotation = ""
		if q, err := o.deps.Quotations.Next(ctx); err == nil {
			o.session.Quotation = q
		} else {
			zctx.From(ctx).Warn("Next quotation number failed", zap.Error(err))
		}
	}

	o.pending = nil
	o.state = StateCollectingItems
	return nil
}

// advance moves from the current pre-persistence state as far as possible.
// The caller holds o.mu.
func (o *Orchestrator) advance(ctx context.Context) (State, error) {
	totals := o.session.Cart.Totals()

	if o.needsBuyerDetails(totals) {
		o.state = StateNeedsBuyerDetails
		return o.state, nil
	}
	if !o.session.buyerValidated {
		// Details entered as a draft still have to be well formed.
		draft, err := validateBuyer(o.session.Buyer, o.buyerRequirements(totals, true))
		if err != nil {
			o.state = StateNeedsBuyerDetails
			return o.state, err
		}
		o.session.Buyer = draft
	}
	if o.needsPaymentMethod() {
		o.state = StateNeedsPaymentMethod
		return o.state, nil
	}

	sale, err := o.assemble(totals)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			o.state = StateNeedsBuyerDetails
		}
		return o.state, err
	}

	o.pending = sale
	o.state = StateReadyToPersist
	return o.persist(ctx)
}

// needsBuyerDetails reports whether the buyer form must be submitted.
// Only details that passed the form check or a directory customer satisfy
// the requirement; a draft never does.
func (o *Orchestrator) needsBuyerDetails(totals Totals) bool {
	s := &o.session
	if s.buyerValidated {
		return false
	}
	if s.Cart.Segment == product.SegmentWholesaler {
		return s.Customer == nil
	}
	return totals.FinalTotal.GreaterThan(o.cfg.BuyerDetailsThreshold)
}

func (o *Orchestrator) buyerRequirements(totals Totals, draft bool) buyerRequirements {
	return buyerRequirements{
		wholesaler: o.session.Cart.Segment == product.SegmentWholesaler,
		finalTotal: totals.Rounded().FinalTotal,
		draft:      draft,
	}
}

func (o *Orchestrator) needsPaymentMethod() bool {
	s := &o.session
	status := s.Buyer.PaymentStatus
	if s.Cart.Segment == product.SegmentRetailer || status == "" {
		status = PaymentPaid
	}
	return settlesNow(status) && !s.Buyer.PaymentMethod.Valid()
}

// assemble freezes the cart, totals and payment into a sale snapshot.
func (o *Orchestrator) assemble(totals Totals) (*Sale, error) {
	s := &o.session
	now := o.deps.Clock().UTC()

	rounded := totals.Rounded()
	payment, err := ResolvePayment(s.Cart.Segment, s.Buyer, rounded.FinalTotal, now)
	if err != nil {
		return nil, err
	}
	if payment.Status != PaymentPaid && !s.allows(staff.CapCreditSale) {
		return nil, newValidationError("payment_status", "operator is not allowed to record credit sales")
	}

	buyer := s.Buyer
	buyer.PaymentStatus = payment.Status
	if s.Cart.Segment == product.SegmentRetailer {
		buyer.Categories = nil
	}

	return &Sale{
		ID:              uuid.New().String(),
		Type:            s.saleType(),
		CustomerID:      s.customerID(),
		QuotationNumber: s.Quotation,
		Segment:         s.Cart.Segment,
		Items:           snapshotItems(s.Cart.Items),
		DiscountValue:   s.Cart.DiscountValue,
		TaxEnabled:      s.Cart.TaxEnabled,
		TaxRate:         s.Cart.TaxRate,
		Totals:          rounded,
		Payment:         payment,
		Buyer:           buyer,
		OperatorID:      s.operatorID(),
		RegisterID:      s.RegisterID,
		CreatedAt:       now,
	}, nil
}

// persist submits the pending snapshot exactly once per call. On failure the
// workflow returns to ReadyToPersist with the snapshot intact. The caller
// holds o.mu.
func (o *Orchestrator) persist(ctx context.Context) (State, error) {
	sale := o.pending
	o.state = StatePersisting

	ctx, span := o.deps.Instruments.tracer.Start(ctx, "checkout.persist",
		trace.WithAttributes(
			attribute.String("pos.register", o.session.RegisterID),
			attribute.String("pos.quotation", sale.QuotationNumber),
		))
	defer span.End()

	lg := zctx.From(ctx).With(
		zap.String("register", o.session.RegisterID),
		zap.String("quotation", sale.QuotationNumber),
	)

	storeCtx, cancel := context.WithTimeout(ctx, o.cfg.PersistTimeout)
	id, err := o.deps.Store.CreateSale(storeCtx, sale)
	cancel()
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timed out after " + o.cfg.PersistTimeout.String()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		o.deps.Instruments.persistFailures.Add(ctx, 1)
		lg.Error("Persist sale failed", zap.Error(err))

		o.state = StateReadyToPersist
		return o.state, &PersistenceError{Reason: reason, Err: err}
	}
	if id != "" {
		sale.ID = id
	}

	o.state = StatePersisted
	o.deps.Instruments.salesCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("segment", string(sale.Segment))))
	lg.Info("Sale persisted",
		zap.String("sale_id", sale.ID),
		zap.String("final_total", sale.Totals.FinalTotal.StringFixed(2)),
		zap.String("payment_status", string(sale.Payment.Status)),
	)

	o.state = StateDispatchingReceipt
	return o.state, nil
}

// reset clears the session for the next sale. The register, operator and
// scanning mode carry over.
func (o *Orchestrator) reset() {
	o.session = Session{
		RegisterID:   o.session.RegisterID,
		Operator:     o.session.Operator,
		ScanningMode: o.session.ScanningMode,
		Cart:         NewCart(o.cfg.DefaultTaxRate),
		Buyer:        DefaultBuyerDetails(),
	}
	o.pending = nil
	o.state = StateCollectingItems
}

// View is a read-only snapshot of the session for display.
type View struct {
	State        State
	RegisterID   string
	Quotation    string
	ScanningMode bool
	Remote       bool
	Customer     *customer.Customer
	Cart         Cart
	Totals       Totals
	Offer        DiscountOffer
	Buyer        BuyerDetails
	// Pending is the assembled sale once completion reaches ReadyToPersist.
	Pending *Sale
}

// View returns a copy of the session state with rounded totals.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.session
	cart := s.Cart
	cart.Items = append([]LineItem(nil), s.Cart.Items...)

	var pending *Sale
	if o.pending != nil {
		p := *o.pending
		pending = &p
	}

	return View{
		State:        o.state,
		RegisterID:   s.RegisterID,
		Quotation:    s.Quotation,
		ScanningMode: s.ScanningMode,
		Remote:       s.Remote,
		Customer:     s.Customer,
		Cart:         cart,
		Totals:       cart.Totals().Rounded(),
		Offer:        cart.DiscountOffer(),
		Buyer:        s.Buyer,
		Pending:      pending,
	}
}
