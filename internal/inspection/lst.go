package inspection

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

// UnknownSupplier is used when the supplier column has no name part.
const UnknownSupplier = "UNKNOWN"

const lstColumns = 9

var (
	columnSep = regexp.MustCompile(`\s{2,}`)
	wordSep   = regexp.MustCompile(`\s+`)
)

// ParseLST reads a fixed-width receiving report (.lst). Lines that do not
// parse are skipped; only read errors are returned. Input that is not valid
// UTF-8 is decoded as Windows-1252.
func ParseLST(r io.Reader) ([]Row, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read lst: %w", err)
	}
	if !utf8.Valid(raw) {
		raw, err = charmap.Windows1252.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decode lst: %w", err)
		}
	}

	var rows []Row
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		row, ok := parseLSTLine(sc.Text())
		if ok {
			rows = append(rows, row)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan lst: %w", err)
	}
	return rows, nil
}

func parseLSTLine(line string) (Row, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Row{}, false
	}
	fields := columnSep.Split(line, -1)
	if len(fields) < lstColumns {
		return Row{}, false
	}
	// Descriptions may themselves contain wide gaps; fold the overflow back.
	for len(fields) > lstColumns {
		fields[3] = fields[3] + " " + fields[4]
		fields = append(fields[:4], fields[5:]...)
	}

	notice, err := strconv.Atoi(fields[1])
	if err != nil {
		return Row{}, false
	}

	item := strings.TrimSpace(fields[2])
	if parts := wordSep.Split(item, 2); len(parts) > 1 {
		item = strings.TrimSpace(parts[1])
	}

	qty, err := decimal.NewFromString(strings.ReplaceAll(fields[5], ",", "."))
	if err != nil {
		return Row{}, false
	}

	supplier := UnknownSupplier
	if parts := wordSep.Split(fields[6], 2); len(parts) == 2 {
		supplier = parts[1]
	}

	po, err := strconv.Atoi(strings.TrimSpace(fields[len(fields)-1]))
	if err != nil || po == 0 {
		return Row{}, false
	}

	return Row{
		EntryDate:     fields[0],
		Notice:        notice,
		Item:          item,
		Description:   fields[3],
		QtyReceived:   qty,
		Supplier:      supplier,
		PurchaseOrder: po,
		Status:        StatusPending,
	}, true
}
