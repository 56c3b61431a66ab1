package store

import "time"

// Row is the Go realization of DailyAvailability (spec.md §3). Nullable
// aggregate/size columns are pointer fields rather than a stringly-typed
// map, per SPEC_FULL.md's re-architecture note; I2 is reinforced by
// IsAvailable rather than trusted to be set consistently by callers.
type Row struct {
	Date         string // YYYY-MM-DD
	Symbol       string
	StatusCode   int
	FileSizeBytes *uint64
	LastModified  *string
	URL           string
	ProbeTimestamp time.Time

	QuoteVolumeUSDT         *float64
	TradeCount              *int64
	VolumeBase              *float64
	TakerBuyVolumeBase      *float64
	TakerBuyQuoteVolumeUSDT *float64
	OpenPrice               *float64
	HighPrice               *float64
	LowPrice                *float64
	ClosePrice              *float64
}

// IsAvailable enforces I2 structurally: available iff status is 200 and a
// size was recorded.
func (r Row) IsAvailable() bool {
	return r.StatusCode == 200 && r.FileSizeBytes != nil
}

// F64 and U64 and I64 are small pointer constructors used throughout
// callers assembling Row values from probe/klines results.
func F64(v float64) *float64 { return &v }
func U64(v uint64) *uint64   { return &v }
func I64(v int64) *int64     { return &v }
func Str(v string) *string   { return &v }
