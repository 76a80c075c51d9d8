package nonconformance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrNoPrinter is returned when no label printer address is configured.
var ErrNoPrinter = errors.New("printer not configured")

// Label is a 100x122 mm ZPL label for a Zebra printer at 203 dpi.
func Label(r Report) string {
	var b strings.Builder
	b.WriteString("^XA\n^PW800\n^LL976\n^CF0,30\n")
	field := func(y int, name, value string) {
		fmt.Fprintf(&b, "^FO50,%d^FD%s^FS\n^FO300,%d^FD%s^FS\n", y, name, y, zplText(value))
	}
	block := func(y int, name, value string, lines int) {
		fmt.Fprintf(&b, "^FO50,%d^FD%s^FS\n^FO300,%d^FB600,%d,N,10^FD%s^FS\n", y, name, y, lines, zplText(value))
	}
	field(50, "NF-e:", strconv.Itoa(r.Notice))
	field(100, "Date:", r.DisplayDate())
	field(150, "Representative:", truncate(r.Representative, 20))
	field(200, "Supplier:", truncate(r.Supplier, 20))
	field(250, "Item:", r.Item)
	field(300, "Qty received:", strconv.Itoa(r.QtyReceived))
	field(350, "Qty defective:", strconv.Itoa(r.QtyDefective))
	block(400, "Defect:", r.DefectDescription, 6)
	field(650, "Urgency:", string(r.Urgency))
	block(720, "Action:", r.RecommendedAction, 3)
	field(830, "Status:", string(r.Status))
	b.WriteString("^XZ\n")
	return b.String()
}

// zplText keeps field data from being read as ZPL commands.
func zplText(s string) string {
	return strings.NewReplacer("^", " ", "~", " ", "\r", " ", "\n", " ").Replace(s)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Printer sends raw ZPL to a network label printer.
type Printer struct {
	Addr    string
	Timeout time.Duration
	// Dial is swapped out in tests.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Print sends the label for r.
func (p *Printer) Print(ctx context.Context, r Report) error {
	if p == nil || p.Addr == "" {
		return ErrNoPrinter
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dial := p.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	conn, err := dial(ctx, "tcp", p.Addr)
	if err != nil {
		return fmt.Errorf("connect to printer %s: %w", p.Addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write([]byte(Label(r))); err != nil {
		return fmt.Errorf("send label: %w", err)
	}
	return nil
}
