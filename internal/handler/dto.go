package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
	"github.com/xenking/counter-checkout/internal/domain/customer"
	"github.com/xenking/counter-checkout/internal/domain/product"
)

// money renders amounts with exactly two decimals.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type productResponse struct {
	ID             string `json:"id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Category       string `json:"category,omitempty"`
	Manufacturer   string `json:"manufacturer,omitempty"`
	StockLevel     int    `json:"stock_level"`
	WholesalePrice string `json:"wholesale_price"`
	RetailPrice    string `json:"retail_price"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		Description:    p.Description,
		Category:       p.Category,
		Manufacturer:   p.Manufacturer,
		StockLevel:     p.StockLevel,
		WholesalePrice: money(p.WholesalePrice),
		RetailPrice:    money(p.RetailPrice),
	}
}

type customerResponse struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Phone   string          `json:"phone,omitempty"`
	Email   string          `json:"email,omitempty"`
	Segment product.Segment `json:"segment"`
}

func toCustomerResponse(c customer.Customer) customerResponse {
	return customerResponse(c)
}

type lineItemResponse struct {
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Manufacturer  string `json:"manufacturer,omitempty"`
	Quantity      int    `json:"quantity"`
	StockLevel    int    `json:"stock_level"`
	UnitPrice     string `json:"unit_price"`
	OriginalPrice string `json:"original_price"`
	LineTotal     string `json:"line_total"`
}

type totalsResponse struct {
	Subtotal       string `json:"subtotal"`
	DiscountAmount string `json:"discount_amount"`
	Total          string `json:"total"`
	TaxAmount      string `json:"tax_amount"`
	FinalTotal     string `json:"final_total"`
}

func toTotalsResponse(t checkout.Totals) totalsResponse {
	return totalsResponse{
		Subtotal:       money(t.Subtotal),
		DiscountAmount: money(t.DiscountAmount),
		Total:          money(t.Total),
		TaxAmount:      money(t.TaxAmount),
		FinalTotal:     money(t.FinalTotal),
	}
}

type discountResponse struct {
	Value         string                `json:"value"`
	Mode          checkout.DiscountMode `json:"mode"`
	AllowedValues []string              `json:"allowed_values"`
	Cap           string                `json:"cap,omitempty"`
}

type taxResponse struct {
	Enabled bool   `json:"enabled"`
	Rate    string `json:"rate"`
}

// buyerBody is the buyer form in both directions.
type buyerBody struct {
	Name           string                  `json:"name"`
	Phone          string                  `json:"phone"`
	Email          string                  `json:"email,omitempty"`
	Country        string                  `json:"country,omitempty"`
	DeliveryMethod checkout.DeliveryMethod `json:"delivery_method,omitempty"`
	PaymentStatus  checkout.PaymentStatus  `json:"payment_status,omitempty"`
	PaidAmount     decimal.Decimal         `json:"paid_amount"`
	Categories     []string                `json:"categories,omitempty"`
	PaymentMethod  checkout.PaymentMethod  `json:"payment_method,omitempty"`
}

func (b buyerBody) details() checkout.BuyerDetails {
	return checkout.BuyerDetails{
		Name:           b.Name,
		Phone:          b.Phone,
		Email:          b.Email,
		Country:        b.Country,
		DeliveryMethod: b.DeliveryMethod,
		PaymentStatus:  b.PaymentStatus,
		PaidAmount:     b.PaidAmount,
		Categories:     b.Categories,
		PaymentMethod:  b.PaymentMethod,
	}
}

func toBuyerBody(d checkout.BuyerDetails) buyerBody {
	return buyerBody{
		Name:           d.Name,
		Phone:          d.Phone,
		Email:          d.Email,
		Country:        d.Country,
		DeliveryMethod: d.DeliveryMethod,
		PaymentStatus:  d.PaymentStatus,
		PaidAmount:     d.PaidAmount,
		Categories:     d.Categories,
		PaymentMethod:  d.PaymentMethod,
	}
}

type paymentRecordResponse struct {
	Amount    string                 `json:"amount"`
	Timestamp time.Time              `json:"timestamp"`
	Type      checkout.PaymentType   `json:"type"`
	Method    checkout.PaymentMethod `json:"method,omitempty"`
}

type saleResponse struct {
	ID              string                  `json:"id"`
	Type            checkout.SaleType       `json:"type"`
	QuotationNumber string                  `json:"quotation_number"`
	CustomerID      string                  `json:"customer_id,omitempty"`
	Segment         product.Segment         `json:"segment"`
	Items           []lineItemResponse      `json:"items"`
	Totals          totalsResponse          `json:"totals"`
	PaymentStatus   checkout.PaymentStatus  `json:"payment_status"`
	PaidAmount      string                  `json:"paid_amount"`
	PendingAmount   string                  `json:"pending_amount"`
	Payments        []paymentRecordResponse `json:"payments"`
	Buyer           buyerBody               `json:"buyer"`
	CreatedAt       time.Time               `json:"created_at"`
}

func toSaleResponse(s *checkout.Sale) *saleResponse {
	if s == nil {
		return nil
	}
	items := make([]lineItemResponse, len(s.Items))
	for i, it := range s.Items {
		items[i] = lineItemResponse{
			SKU:           it.SKU,
			Name:          it.Name,
			Manufacturer:  it.Manufacturer,
			Quantity:      it.Quantity,
			UnitPrice:     money(it.UnitPrice),
			OriginalPrice: money(it.OriginalPrice),
			LineTotal:     money(it.LineTotal),
		}
	}
	payments := make([]paymentRecordResponse, len(s.Payment.Payments))
	for i, p := range s.Payment.Payments {
		payments[i] = paymentRecordResponse{
			Amount:    money(p.Amount),
			Timestamp: p.Timestamp,
			Type:      p.Type,
			Method:    p.Method,
		}
	}
	return &saleResponse{
		ID:              s.ID,
		Type:            s.Type,
		QuotationNumber: s.QuotationNumber,
		CustomerID:      s.CustomerID,
		Segment:         s.Segment,
		Items:           items,
		Totals:          toTotalsResponse(s.Totals),
		PaymentStatus:   s.Payment.Status,
		PaidAmount:      money(s.Payment.PaidAmount),
		PendingAmount:   money(s.Payment.PendingAmount),
		Payments:        payments,
		Buyer:           toBuyerBody(s.Buyer),
		CreatedAt:       s.CreatedAt,
	}
}

type sessionResponse struct {
	State        checkout.State     `json:"state"`
	RegisterID   string             `json:"register_id"`
	Quotation    string             `json:"quotation_number"`
	ScanningMode bool               `json:"scanning_mode"`
	Remote       bool               `json:"remote"`
	Segment      product.Segment    `json:"segment"`
	Customer     *customerResponse  `json:"customer,omitempty"`
	Items        []lineItemResponse `json:"items"`
	Discount     discountResponse   `json:"discount"`
	Tax          taxResponse        `json:"tax"`
	Totals       totalsResponse     `json:"totals"`
	Buyer        buyerBody          `json:"buyer"`
	Pending      *saleResponse      `json:"pending_sale,omitempty"`
}

func toSessionResponse(v checkout.View) sessionResponse {
	items := make([]lineItemResponse, len(v.Cart.Items))
	for i, it := range v.Cart.Items {
		items[i] = lineItemResponse{
			SKU:           it.Product.SKU,
			Name:          it.Product.Name,
			Manufacturer:  it.Product.Manufacturer,
			Quantity:      it.Quantity,
			StockLevel:    it.Product.StockLevel,
			UnitPrice:     money(it.UnitPrice),
			OriginalPrice: money(it.OriginalPrice),
			LineTotal:     money(it.LineTotal()),
		}
	}

	allowed := make([]string, len(v.Offer.AllowedValues))
	for i, a := range v.Offer.AllowedValues {
		allowed[i] = a.String()
	}
	discount := discountResponse{
		Value:         v.Cart.DiscountValue.String(),
		Mode:          v.Offer.Mode,
		AllowedValues: allowed,
	}
	if v.Offer.Cap.IsPositive() {
		discount.Cap = v.Offer.Cap.String()
	}

	var cust *customerResponse
	if v.Customer != nil {
		c := toCustomerResponse(*v.Customer)
		cust = &c
	}

	return sessionResponse{
		State:        v.State,
		RegisterID:   v.RegisterID,
		Quotation:    v.Quotation,
		ScanningMode: v.ScanningMode,
		Remote:       v.Remote,
		Segment:      v.Cart.Segment,
		Customer:     cust,
		Items:        items,
		Discount:     discount,
		Tax:          taxResponse{Enabled: v.Cart.TaxEnabled, Rate: v.Cart.TaxRate.String()},
		Totals:       toTotalsResponse(v.Totals),
		Buyer:        toBuyerBody(v.Buyer),
		Pending:      toSaleResponse(v.Pending),
	}
}

type addItemRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity,omitempty"`
}

type editItemRequest struct {
	Delta    *int `json:"delta,omitempty"`
	Quantity *int `json:"quantity,omitempty"`
}

type itemResponse struct {
	Outcome  string          `json:"outcome"`
	Quantity int             `json:"quantity"`
	Session  sessionResponse `json:"session"`
}

type discountRequest struct {
	Value decimal.Decimal `json:"value"`
}

type discountChangeResponse struct {
	Changed bool            `json:"changed"`
	Session sessionResponse `json:"session"`
}

type taxRequest struct {
	Enabled bool             `json:"enabled"`
	Rate    *decimal.Decimal `json:"rate,omitempty"`
}

type segmentRequest struct {
	Segment product.Segment `json:"segment"`
}

type customerRequest struct {
	CustomerID string `json:"customer_id"`
}

type flagsRequest struct {
	ScanningMode *bool `json:"scanning_mode,omitempty"`
	Remote       *bool `json:"remote,omitempty"`
}

type paymentMethodRequest struct {
	Method checkout.PaymentMethod `json:"method"`
}

type receiptRequest struct {
	Choice checkout.ReceiptChoice `json:"choice"`
	Email  string                 `json:"email,omitempty"`
}

type warningResponse struct {
	Channel checkout.Channel `json:"channel"`
	Message string           `json:"message"`
}

type completionResponse struct {
	Sale          *saleResponse     `json:"sale"`
	Warnings      []warningResponse `json:"warnings"`
	NextQuotation string            `json:"next_quotation_number"`
	Session       sessionResponse   `json:"session"`
}

type summaryResponse struct {
	Date    string `json:"date"`
	Sales   int    `json:"sales"`
	Revenue string `json:"revenue"`
	Paid    string `json:"paid"`
	Pending string `json:"pending"`
}
