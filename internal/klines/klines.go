// Package klines implements C3: fetching a daily kline archive and
// parsing its single CSV row into the aggregate fields (spec.md §4.3).
package klines

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sawpanic/klinewatch/internal/venue"
)

// Aggregates holds the nine parsed numeric fields for one (symbol, date).
type Aggregates struct {
	Open, High, Low, Close    float64
	QuoteVolumeUSDT           float64
	TradeCount                int64
	VolumeBase                float64
	TakerBuyVolumeBase        float64
	TakerBuyQuoteVolumeUSDT   float64
}

// ParseError is raised for an archive whose CSV has the wrong arity or an
// unparseable numeric field. It is fatal for the (symbol, date) pair.
type ParseError struct {
	Symbol, Date, Field, Value string
	Cause                      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %s: field %q value %q: %v", e.Symbol, e.Date, e.Field, e.Value, e.Cause)
}
func (e *ParseError) Unwrap() error { return e.Cause }

// Reader fetches and parses daily kline archives.
type Reader struct {
	client     *http.Client
	bucketRoot string
	timeout    time.Duration
}

// New constructs a Reader. client is typically internal/httpclient.Pool.Client().
func New(client *http.Client, bucketRoot string, timeout time.Duration) *Reader {
	return &Reader{client: client, bucketRoot: bucketRoot, timeout: timeout}
}

// Fetch retrieves the daily kline zip for (symbol, date) and parses its one
// data row. A 404 is not an error and returns (nil, nil). Any other status,
// transport failure, or malformed row returns an error.
func (r *Reader) Fetch(ctx context.Context, symbol, dateISO string) (*Aggregates, error) {
	url := venue.KlineURL(r.bucketRoot, symbol, venue.Interval1m, dateISO)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", symbol, dateISO, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", symbol, dateISO, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s %s: unexpected status %d", symbol, dateISO, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: reading body: %w", symbol, dateISO, err)
	}

	return parseArchive(symbol, dateISO, body)
}

// fieldOrder is fixed by the upstream publisher (spec.md §4.3).
const (
	fOpenTime = iota
	fOpen
	fHigh
	fLow
	fClose
	fVolume
	fCloseTime
	fQuoteVolume
	fCount
	fTakerBuyVolume
	fTakerBuyQuoteVolume
	fIgnore
	fieldCount
)

func parseArchive(symbol, dateISO string, zipBytes []byte) (*Aggregates, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("parse %s %s: opening zip: %w", symbol, dateISO, err)
	}
	if len(zr.File) != 1 {
		return nil, fmt.Errorf("parse %s %s: expected exactly one file in archive, got %d", symbol, dateISO, len(zr.File))
	}

	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("parse %s %s: opening csv entry: %w", symbol, dateISO, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	row, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("parse %s %s: reading csv row: %w", symbol, dateISO, err)
	}
	if len(row) != fieldCount {
		return nil, &ParseError{
			Symbol: symbol, Date: dateISO, Field: "row", Value: strconv.Itoa(len(row)),
			Cause: fmt.Errorf("expected %d csv fields, got %d", fieldCount, len(row)),
		}
	}

	parseFloat := func(name string, idx int) (float64, error) {
		v, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			return 0, &ParseError{Symbol: symbol, Date: dateISO, Field: name, Value: row[idx], Cause: err}
		}
		return v, nil
	}
	parseInt := func(name string, idx int) (int64, error) {
		v, err := strconv.ParseInt(row[idx], 10, 64)
		if err != nil {
			return 0, &ParseError{Symbol: symbol, Date: dateISO, Field: name, Value: row[idx], Cause: err}
		}
		return v, nil
	}

	var agg Aggregates
	var perr error
	if agg.Open, perr = parseFloat("open", fOpen); perr != nil {
		return nil, perr
	}
	if agg.High, perr = parseFloat("high", fHigh); perr != nil {
		return nil, perr
	}
	if agg.Low, perr = parseFloat("low", fLow); perr != nil {
		return nil, perr
	}
	if agg.Close, perr = parseFloat("close", fClose); perr != nil {
		return nil, perr
	}
	if agg.VolumeBase, perr = parseFloat("volume", fVolume); perr != nil {
		return nil, perr
	}
	if agg.QuoteVolumeUSDT, perr = parseFloat("quote_volume", fQuoteVolume); perr != nil {
		return nil, perr
	}
	if agg.TradeCount, perr = parseInt("count", fCount); perr != nil {
		return nil, perr
	}
	if agg.TakerBuyVolumeBase, perr = parseFloat("taker_buy_volume", fTakerBuyVolume); perr != nil {
		return nil, perr
	}
	if agg.TakerBuyQuoteVolumeUSDT, perr = parseFloat("taker_buy_quote_volume", fTakerBuyQuoteVolume); perr != nil {
		return nil, perr
	}

	return &agg, nil
}
