// Package receipt renders sale receipts and delivers them to a thermal
// printer or by email.
package receipt

import (
	"bytes"
	"context"
	"html/template"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
)

// Header is the store identity printed on every receipt.
type Header struct {
	StoreName string `default:"Counter Checkout" usage:"Store name printed on receipts"`
	Address   string `usage:"Store address printed on receipts"`
	Phone     string `usage:"Store phone printed on receipts"`
	TaxID     string `usage:"GSTIN or other tax registration printed on receipts"`
	Footer    string `default:"Thank you for your purchase!" usage:"Closing line of receipts"`
}

// ErrEmailDisabled is returned for email receipts when no mailer is set.
var ErrEmailDisabled = errors.New("email receipts are not configured")

var _ checkout.ReceiptDispatcher = (*Dispatcher)(nil)

// Dispatcher delivers receipts through a printer and a mailer.
type Dispatcher struct {
	header   Header
	width    int
	printer  Printer
	printers map[string]Printer
	mailer   Mailer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRegisterPrinter routes print receipts of a register to p instead of
// the default printer.
func WithRegisterPrinter(registerID string, p Printer) Option {
	return func(d *Dispatcher) {
		d.printers[registerID] = p
	}
}

// WithMailer enables email receipts.
func WithMailer(m Mailer) Option {
	return func(d *Dispatcher) {
		d.mailer = m
	}
}

// NewDispatcher returns a dispatcher printing width-character receipts on
// printer.
func NewDispatcher(header Header, width int, printer Printer, opts ...Option) *Dispatcher {
	if printer == nil {
		printer = NullPrinter{}
	}
	d := &Dispatcher{
		header:   header,
		width:    width,
		printer:  printer,
		printers: make(map[string]Printer),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SendReceipt prints the receipt on the printer of the target register, or
// emails it to the target address.
func (d *Dispatcher) SendReceipt(ctx context.Context, ch checkout.Channel, target string, sale *checkout.Sale) error {
	lg := zctx.From(ctx).With(
		zap.String("channel", string(ch)),
		zap.String("quotation", sale.QuotationNumber),
	)

	switch ch {
	case checkout.ChannelPrint:
		p := d.printer
		if rp, ok := d.printers[target]; ok {
			p = rp
		}
		if err := p.Print(ctx, Render(sale, d.header, d.width).Bytes()); err != nil {
			return errors.Wrap(err, "print receipt")
		}
		lg.Debug("Receipt printed", zap.String("register", target))
		return nil
	case checkout.ChannelEmail:
		if d.mailer == nil {
			return ErrEmailDisabled
		}
		body, err := RenderHTML(sale, d.header)
		if err != nil {
			return err
		}
		subject := "Your receipt " + sale.QuotationNumber + " from " + d.header.StoreName
		if err := d.mailer.Send(ctx, target, subject, body); err != nil {
			return errors.Wrap(err, "email receipt")
		}
		lg.Debug("Receipt emailed")
		return nil
	default:
		return errors.Errorf("unknown receipt channel %q", ch)
	}
}

// Render lays out a sale as an ESC/POS document.
func Render(sale *checkout.Sale, h Header, width int) *Document {
	doc := NewDocument(width)

	doc.SetAlign(AlignCenter).SetBold(true).SetFontSize(FontDouble).
		Text(h.StoreName).
		SetFontSize(FontNormal).SetBold(false)
	for _, line := range []string{h.Address, h.Phone} {
		if line != "" {
			doc.Text(line)
		}
	}
	if h.TaxID != "" {
		doc.Text("GSTIN: " + h.TaxID)
	}

	doc.SetAlign(AlignLeft).Separator('=').
		KeyValue("Quotation", sale.QuotationNumber).
		KeyValue("Date", sale.CreatedAt.Format("02 Jan 2006 15:04"))
	if sale.Buyer.Name != "" {
		doc.KeyValue("Buyer", sale.Buyer.Name)
	}
	if sale.Buyer.Phone != "" {
		doc.KeyValue("Phone", sale.Buyer.Phone)
	}
	doc.Separator('-')

	for _, item := range sale.Items {
		doc.ItemLine(item.Quantity, item.Name, FormatMoneyASCII(item.LineTotal))
		if item.Quantity > 1 {
			doc.Text("   @ " + FormatMoneyASCII(item.UnitPrice))
		}
	}

	t := sale.Totals
	doc.Separator('-').KeyValue("Subtotal", FormatMoneyASCII(t.Subtotal))
	if t.DiscountAmount.IsPositive() {
		doc.KeyValue("Discount", "-"+FormatMoneyASCII(t.DiscountAmount))
	}
	if sale.TaxEnabled {
		doc.KeyValue("Tax "+sale.TaxRate.String()+"%", FormatMoneyASCII(t.TaxAmount))
	}
	doc.SetBold(true).KeyValue("TOTAL", FormatMoneyASCII(t.FinalTotal)).SetBold(false)

	p := sale.Payment
	doc.Separator('-').KeyValue("Status", paymentLabel(p.Status))
	for _, rec := range p.Payments {
		doc.KeyValue("Paid ("+methodLabel(rec.Method)+")", FormatMoneyASCII(rec.Amount))
	}
	if p.PendingAmount.IsPositive() {
		doc.KeyValue("Balance due", FormatMoneyASCII(p.PendingAmount))
	}

	if h.Footer != "" {
		doc.FeedLines(1).SetAlign(AlignCenter).Text(h.Footer)
	}
	return doc.FeedLines(3).Cut()
}

type htmlLine struct {
	Name     string
	SKU      string
	Quantity int
	Unit     string
	Total    string
}

type htmlReceipt struct {
	Header    Header
	Quotation string
	Date      string
	Buyer     string
	Lines     []htmlLine
	Subtotal  string
	Discount  string
	TaxLabel  string
	Tax       string
	Total     string
	Status    string
	Paid      string
	Pending   string
}

var receiptTemplate = template.Must(template.New("receipt").Parse(receiptHTML))

// RenderHTML renders a sale as an HTML email body.
func RenderHTML(sale *checkout.Sale, h Header) (string, error) {
	data := htmlReceipt{
		Header:    h,
		Quotation: sale.QuotationNumber,
		Date:      sale.CreatedAt.Format("02 Jan 2006 15:04"),
		Buyer:     sale.Buyer.Name,
		Subtotal:  FormatMoney(sale.Totals.Subtotal),
		Total:     FormatMoney(sale.Totals.FinalTotal),
		Status:    paymentLabel(sale.Payment.Status),
		Paid:      FormatMoney(sale.Payment.PaidAmount),
	}
	if sale.Totals.DiscountAmount.IsPositive() {
		data.Discount = FormatMoney(sale.Totals.DiscountAmount)
	}
	if sale.TaxEnabled {
		data.TaxLabel = "Tax (" + sale.TaxRate.String() + "%)"
		data.Tax = FormatMoney(sale.Totals.TaxAmount)
	}
	if sale.Payment.PendingAmount.IsPositive() {
		data.Pending = FormatMoney(sale.Payment.PendingAmount)
	}
	for _, item := range sale.Items {
		data.Lines = append(data.Lines, htmlLine{
			Name:     item.Name,
			SKU:      item.SKU,
			Quantity: item.Quantity,
			Unit:     FormatMoney(item.UnitPrice),
			Total:    FormatMoney(item.LineTotal),
		})
	}

	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "render receipt")
	}
	return buf.String(), nil
}

func paymentLabel(s checkout.PaymentStatus) string {
	switch s {
	case checkout.PaymentPaid:
		return "Paid"
	case checkout.PaymentPartiallyPaid:
		return "Partially paid"
	case checkout.PaymentUnpaid:
		return "Unpaid (credit)"
	default:
		return string(s)
	}
}

func methodLabel(m checkout.PaymentMethod) string {
	switch m {
	case checkout.MethodUPI:
		return "UPI"
	case checkout.MethodBankTransfer:
		return "Bank transfer"
	case "":
		return "-"
	default:
		return strings.ToUpper(string(m[:1])) + string(m[1:])
	}
}

const receiptHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Receipt {{.Quotation}}</title>
</head>
<body style="margin: 0; padding: 24px; font-family: 'Segoe UI', Tahoma, sans-serif; background-color: #f4f7fa;">
    <table role="presentation" style="max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px; border-collapse: collapse; width: 100%;">
        <tr>
            <td style="padding: 24px; text-align: center; border-bottom: 1px solid #e2e8f0;">
                <h1 style="margin: 0; font-size: 22px; color: #1a1a2e;">{{.Header.StoreName}}</h1>
                {{if .Header.Address}}<p style="margin: 4px 0 0; color: #718096; font-size: 13px;">{{.Header.Address}}</p>{{end}}
                {{if .Header.Phone}}<p style="margin: 4px 0 0; color: #718096; font-size: 13px;">{{.Header.Phone}}</p>{{end}}
                {{if .Header.TaxID}}<p style="margin: 4px 0 0; color: #718096; font-size: 13px;">GSTIN: {{.Header.TaxID}}</p>{{end}}
            </td>
        </tr>
        <tr>
            <td style="padding: 16px 24px; color: #4a5568; font-size: 14px;">
                Quotation <strong>{{.Quotation}}</strong> &middot; {{.Date}}{{if .Buyer}}<br>Billed to {{.Buyer}}{{end}}
            </td>
        </tr>
        <tr>
            <td style="padding: 0 24px;">
                <table role="presentation" style="width: 100%; border-collapse: collapse; font-size: 14px; color: #1a1a2e;">
                    <tr style="text-align: left; color: #718096;">
                        <th style="padding: 8px 0;">Item</th><th>Qty</th><th>Price</th><th style="text-align: right;">Total</th>
                    </tr>
                    {{range .Lines}}
                    <tr style="border-top: 1px solid #edf2f7;">
                        <td style="padding: 8px 0;">{{.Name}}<br><span style="color: #a0aec0; font-size: 12px;">{{.SKU}}</span></td>
                        <td>{{.Quantity}}</td>
                        <td>{{.Unit}}</td>
                        <td style="text-align: right;">{{.Total}}</td>
                    </tr>
                    {{end}}
                </table>
            </td>
        </tr>
        <tr>
            <td style="padding: 16px 24px; font-size: 14px; color: #4a5568;">
                <table role="presentation" style="width: 100%;">
                    <tr><td>Subtotal</td><td style="text-align: right;">{{.Subtotal}}</td></tr>
                    {{if .Discount}}<tr><td>Discount</td><td style="text-align: right;">-{{.Discount}}</td></tr>{{end}}
                    {{if .Tax}}<tr><td>{{.TaxLabel}}</td><td style="text-align: right;">{{.Tax}}</td></tr>{{end}}
                    <tr style="font-weight: 600; color: #1a1a2e;"><td>Total</td><td style="text-align: right;">{{.Total}}</td></tr>
                    <tr><td>{{.Status}}</td><td style="text-align: right;">{{.Paid}}</td></tr>
                    {{if .Pending}}<tr><td>Balance due</td><td style="text-align: right;">{{.Pending}}</td></tr>{{end}}
                </table>
            </td>
        </tr>
        {{if .Header.Footer}}
        <tr>
            <td style="padding: 16px 24px; text-align: center; color: #a0aec0; font-size: 13px; border-top: 1px solid #e2e8f0;">{{.Header.Footer}}</td>
        </tr>
        {{end}}
    </table>
</body>
</html>
`
