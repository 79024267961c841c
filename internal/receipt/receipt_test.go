package receipt

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
	"github.com/xenking/counter-checkout/internal/domain/product"
)

// --- Mock implementations ---

type mockPrinter struct {
	jobs [][]byte
	err  error
}

func (m *mockPrinter) Print(_ context.Context, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, append([]byte(nil), data...))
	return nil
}

func (m *mockPrinter) Ping(context.Context) error { return m.err }

type sentMail struct {
	to, subject, body string
}

type mockMailer struct {
	sent []sentMail
	err  error
}

func (m *mockMailer) Send(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

// --- Helpers ---

func testSale() *checkout.Sale {
	return &checkout.Sale{
		ID:              "sale-1",
		Type:            checkout.SaleCounter,
		QuotationNumber: "QTN-20260314-000007",
		Segment:         product.SegmentWholesaler,
		Items: []checkout.SaleItem{
			{SKU: "SAW-1", Name: "Panel Saw", Quantity: 2,
				UnitPrice: decimal.NewFromInt(5000), LineTotal: decimal.NewFromInt(10000)},
		},
		TaxEnabled: true,
		TaxRate:    decimal.NewFromInt(18),
		Totals: checkout.Totals{
			Subtotal:       decimal.NewFromInt(10000),
			DiscountAmount: decimal.NewFromInt(500),
			Total:          decimal.NewFromInt(9500),
			TaxAmount:      decimal.NewFromInt(1710),
			FinalTotal:     decimal.NewFromInt(11210),
		},
		Payment: checkout.Payment{
			PaidAmount:    decimal.NewFromInt(4000),
			PendingAmount: decimal.NewFromInt(7210),
			Status:        checkout.PaymentPartiallyPaid,
			Payments: []checkout.PaymentRecord{{
				Amount: decimal.NewFromInt(4000), Type: checkout.PaymentPartial, Method: checkout.MethodUPI,
			}},
		},
		Buyer:     checkout.BuyerDetails{Name: "Ravi Traders", Phone: "+919876543210"},
		CreatedAt: time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
	}
}

var testHeader = Header{StoreName: "Sharma Hardware", Address: "MG Road", TaxID: "29ABCDE1234F1Z5", Footer: "Thank you"}

// --- Tests ---

func TestRender(t *testing.T) {
	out := string(Render(testSale(), testHeader, Width58mm).Bytes())

	for _, want := range []string{
		"Sharma Hardware",
		"GSTIN: 29ABCDE1234F1Z5",
		"QTN-20260314-000007",
		"2x Panel Saw",
		"@ Rs 5,000.00",
		"-Rs 500.00",
		"Tax 18%",
		"Rs 11,210.00",
		"Partially paid",
		"Paid (UPI)",
		"Balance due",
		"Thank you",
	} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "Quotation    QTN-20260314-000007\n")
}

func TestRenderHTML(t *testing.T) {
	sale := testSale()
	sale.Items[0].Name = "Saw <b>"

	body, err := RenderHTML(sale, testHeader)
	require.NoError(t, err)

	assert.Contains(t, body, "₹11,210.00")
	assert.Contains(t, body, "Balance due")
	assert.Contains(t, body, "₹7,210.00")
	assert.Contains(t, body, "Saw &lt;b&gt;")
	assert.NotContains(t, body, "Saw <b>")
}

func TestDispatcher_SendReceipt(t *testing.T) {
	ctx := context.Background()
	def := &mockPrinter{}
	counter2 := &mockPrinter{}
	mailer := &mockMailer{}
	d := NewDispatcher(testHeader, Width80mm, def,
		WithRegisterPrinter("register-2", counter2),
		WithMailer(mailer),
	)

	require.NoError(t, d.SendReceipt(ctx, checkout.ChannelPrint, "register-1", testSale()))
	require.NoError(t, d.SendReceipt(ctx, checkout.ChannelPrint, "register-2", testSale()))
	require.NoError(t, d.SendReceipt(ctx, checkout.ChannelEmail, "ravi@example.com", testSale()))

	assert.Len(t, def.jobs, 1)
	assert.Len(t, counter2.jobs, 1)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ravi@example.com", mailer.sent[0].to)
	assert.Contains(t, mailer.sent[0].subject, "QTN-20260314-000007")
}

func TestDispatcher_Failures(t *testing.T) {
	ctx := context.Background()

	d := NewDispatcher(testHeader, Width58mm, &mockPrinter{err: errors.New("paper out")})
	err := d.SendReceipt(ctx, checkout.ChannelPrint, "register-1", testSale())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paper out")

	err = d.SendReceipt(ctx, checkout.ChannelEmail, "a@b.c", testSale())
	assert.ErrorIs(t, err, ErrEmailDisabled)

	err = d.SendReceipt(ctx, "fax", "x", testSale())
	assert.Error(t, err)
}

func TestNewPrinter(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PrinterConfig
		wantErr bool
	}{
		{name: "none", cfg: PrinterConfig{Type: "none"}},
		{name: "empty type", cfg: PrinterConfig{}},
		{name: "usb", cfg: PrinterConfig{Type: "usb", USBPath: "/dev/usb/lp0"}},
		{name: "usb without path", cfg: PrinterConfig{Type: "usb"}, wantErr: true},
		{name: "network", cfg: PrinterConfig{Type: "network", Address: "127.0.0.1:9100"}},
		{name: "network without address", cfg: PrinterConfig{Type: "network"}, wantErr: true},
		{name: "unknown", cfg: PrinterConfig{Type: "bluetooth"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPrinter(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

func TestNetworkPrinter(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			data, _ := io.ReadAll(conn)
			_ = conn.Close()
			if len(data) > 0 {
				received <- data
			}
		}
	}()

	p, err := NewPrinter(PrinterConfig{Type: "network", Address: ln.Addr().String()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.Print(ctx, []byte("hello")))

	select {
	case data := <-received:
		assert.Equal(t, "hello", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("printer received nothing")
	}
}

func TestSMTPMailer_BuildMessage(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", FromName: "Sharma Hardware", FromEmail: "shop@example.com"})
	m.now = func() time.Time { return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC) }

	msg := string(m.buildMessage("ravi@example.com", "Your receipt ₹", "<p>hi</p>"))

	assert.Contains(t, msg, "From: Sharma Hardware <shop@example.com>\r\n")
	assert.Contains(t, msg, "To: ravi@example.com\r\n")
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.Contains(t, msg, "Date: Sat, 14 Mar 2026 10:30:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\n<p>hi</p>"))
	assert.True(t, m.cfg.Enabled())
}
