// Package lister implements C2: enumerating every dated archive object
// under a symbol's daily prefix in one consolidated, paginated sequence
// (spec.md §4.2). Built directly on the bucket's unauthenticated
// S3-style listing contract (net/http + encoding/xml) — no example repo
// in the corpus targets unauthenticated public-bucket enumeration, so
// this stays on the standard library by design (see DESIGN.md).
package lister

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/klinewatch/internal/venue"
)

// Entry is one listed archive object.
type Entry struct {
	Date         string // YYYY-MM-DD, parsed from the object key
	SizeBytes    uint64
	LastModified string // RFC3339, as returned by the bucket
}

// listBucketResult mirrors the subset of the S3 ListObjectsV2 XML response
// this lister needs.
type listBucketResult struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	IsTruncated           bool     `xml:"IsTruncated"`
	NextContinuationToken string   `xml:"NextContinuationToken"`
	Contents              []struct {
		Key          string `xml:"Key"`
		Size         uint64 `xml:"Size"`
		LastModified string `xml:"LastModified"`
	} `xml:"Contents"`
}

// Lister enumerates a symbol's archives via the bucket's public listing endpoint.
type Lister struct {
	client     *http.Client
	bucketRoot string
	interval   venue.Interval
}

// New constructs a Lister. client is typically internal/httpclient.Pool.Client().
func New(client *http.Client, bucketRoot string, interval venue.Interval) *Lister {
	return &Lister{client: client, bucketRoot: bucketRoot, interval: interval}
}

// ListPrefix enumerates all objects under the symbol's daily prefix,
// following pagination transparently, and returns them sorted ascending
// by date. An empty result is valid (a newly listed symbol with no
// archives yet); enumeration failure is an error.
func (l *Lister) ListPrefix(ctx context.Context, symbol string) ([]Entry, error) {
	prefix := venue.PrefixPath(symbol, l.interval)

	var entries []Entry
	token := ""
	for {
		page, next, err := l.fetchPage(ctx, prefix, token)
		if err != nil {
			return nil, fmt.Errorf("listing prefix %s: %w", prefix, err)
		}
		entries = append(entries, page...)
		if next == "" {
			break
		}
		token = next
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Date < entries[j].Date })
	return entries, nil
}

func (l *Lister) fetchPage(ctx context.Context, prefix, continuationToken string) ([]Entry, string, error) {
	url := fmt.Sprintf("%s/?list-type=2&prefix=%s", l.bucketRoot, prefix)
	if continuationToken != "" {
		url += "&continuation-token=" + continuationToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d listing %s", resp.StatusCode, url)
	}

	var parsed listBucketResult
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, "", fmt.Errorf("decoding bucket listing: %w", err)
	}

	entries := make([]Entry, 0, len(parsed.Contents))
	for _, c := range parsed.Contents {
		date, ok := dateFromKey(c.Key)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Date: date, SizeBytes: c.Size, LastModified: c.LastModified})
	}

	next := ""
	if parsed.IsTruncated {
		next = parsed.NextContinuationToken
	}
	return entries, next, nil
}

// dateFromKey extracts YYYY-MM-DD from an object key of the form
// .../<symbol>-<interval>-YYYY-MM-DD.zip.
func dateFromKey(key string) (string, bool) {
	base := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		base = key[i+1:]
	}
	base = strings.TrimSuffix(base, ".zip")
	parts := strings.Split(base, "-")
	if len(parts) < 4 {
		return "", false
	}
	date := strings.Join(parts[len(parts)-3:], "-")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", false
	}
	return date, true
}

// sizeString is used by tests constructing fixture XML.
func sizeString(n uint64) string { return strconv.FormatUint(n, 10) }
