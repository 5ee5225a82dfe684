package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"main/internal/bus"
	"main/internal/schema"
)

// CSVTrades reads a trade tape with columns ts,symbol,side,price,qty.
// Prices and quantities are decimal strings converted to each instrument's
// scale; timestamps are unix nanos.
type CSVTrades struct {
	path     string
	source   schema.SourceID
	registry *schema.Registry
}

// NewCSVTrades creates a CSV trade source.
func NewCSVTrades(path string, source schema.SourceID, reg *schema.Registry) *CSVTrades {
	return &CSVTrades{path: path, source: source, registry: reg}
}

// Run parses the file and pushes one trade event per row.
func (c *CSVTrades) Run(ctx context.Context, queue *bus.Queue) error {
	file, err := os.Open(c.path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 5
	reader.TrimLeadingSpace = true

	var tradeID uint64
	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s:%d: %w", c.path, line, err)
		}
		if line == 1 && row[0] == "ts" {
			continue
		}

		trade, ts, err := c.parseRow(row)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", c.path, line, err)
		}
		tradeID++
		trade.TradeID = tradeID

		msg := bus.Message{
			Header:  schema.NewHeader(schema.EventTrade, c.source, 0, ts, ts),
			Payload: trade,
		}
		if err := queue.Publish(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *CSVTrades) parseRow(row []string) (schema.Trade, int64, error) {
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return schema.Trade{}, 0, fmt.Errorf("parse ts %q: %w", row[0], err)
	}

	instID, ok := c.registry.InstrumentIDBySymbol(row[1])
	if !ok {
		return schema.Trade{}, 0, fmt.Errorf("unknown symbol %q", row[1])
	}
	inst, _ := c.registry.Instrument(instID)

	var side schema.Side
	switch row[2] {
	case "buy":
		side = schema.SideBuy
	case "sell":
		side = schema.SideSell
	default:
		return schema.Trade{}, 0, fmt.Errorf("unknown side %q", row[2])
	}

	price, err := schema.ParseScaled(row[3], inst.PriceScale)
	if err != nil {
		return schema.Trade{}, 0, fmt.Errorf("parse price %q: %w", row[3], err)
	}
	qty, err := schema.ParseScaled(row[4], inst.QtyScale)
	if err != nil {
		return schema.Trade{}, 0, fmt.Errorf("parse qty %q: %w", row[4], err)
	}

	return schema.Trade{
		InstrumentID:  instID,
		AggressorSide: side,
		Price:         schema.Price(price),
		Qty:           schema.Quantity(qty),
	}, ts, nil
}
