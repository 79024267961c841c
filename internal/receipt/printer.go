package receipt

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/go-faster/errors"
)

// Printer sends raw ESC/POS data to a thermal printer.
type Printer interface {
	Print(ctx context.Context, data []byte) error
	// Ping reports whether the printer is reachable.
	Ping(ctx context.Context) error
}

// PrinterConfig selects and addresses a printer.
type PrinterConfig struct {
	Type    string `default:"none" usage:"Receipt printer type: usb, network or none"`
	USBPath string `default:"/dev/usb/lp0" usage:"Device path of a USB printer"`
	Address string `usage:"host:port of a network printer"`
	Width   int    `default:"32" usage:"Receipt width in characters (32 for 58mm, 48 for 80mm)"`
}

// NewPrinter creates the printer described by cfg.
func NewPrinter(cfg PrinterConfig) (Printer, error) {
	switch cfg.Type {
	case "usb":
		if cfg.USBPath == "" {
			return nil, errors.New("usb printer requires a device path")
		}
		return &usbPrinter{path: cfg.USBPath}, nil
	case "network":
		if cfg.Address == "" {
			return nil, errors.New("network printer requires an address")
		}
		return &networkPrinter{address: cfg.Address, timeout: 5 * time.Second}, nil
	case "none", "":
		return NullPrinter{}, nil
	default:
		return nil, errors.Errorf("unknown printer type %q (use usb, network or none)", cfg.Type)
	}
}

// usbPrinter writes to a device file such as /dev/usb/lp0.
type usbPrinter struct {
	path string
}

func (p *usbPrinter) Print(_ context.Context, data []byte) error {
	f, err := os.OpenFile(p.path, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "open %s", p.path)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return errors.Wrapf(err, "write %s", p.path)
	}
	return nil
}

func (p *usbPrinter) Ping(_ context.Context) error {
	_, err := os.Stat(p.path)
	return err
}

// networkPrinter dials a raw TCP port, usually 9100.
type networkPrinter struct {
	address string
	timeout time.Duration
}

func (p *networkPrinter) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", p.address)
	}
	return conn, nil
}

func (p *networkPrinter) Print(ctx context.Context, data []byte) error {
	conn, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(10 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetWriteDeadline(deadline)

	if _, err := conn.Write(data); err != nil {
		return errors.Wrapf(err, "write %s", p.address)
	}
	return nil
}

func (p *networkPrinter) Ping(ctx context.Context) error {
	conn, err := p.dial(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

// NullPrinter discards output. It is used where no hardware is attached.
type NullPrinter struct{}

func (NullPrinter) Print(context.Context, []byte) error { return nil }

func (NullPrinter) Ping(context.Context) error { return nil }
