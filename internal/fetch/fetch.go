package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Mickaeljc/app-bofip/internal/store"
	"go.uber.org/zap"
)

// ErrPageLimit stops a sync that reached Request.MaxPages without
// seeing an empty page.
var ErrPageLimit = errors.New("page limit reached before end of data")

// TransportError is a connection-level failure on one page.
type TransportError struct {
	Offset int
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("page at offset %d: %v", e.Offset, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-200 response on one page.
type StatusError struct {
	Offset int
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("page at offset %d: http %d: %s", e.Offset, e.Code, e.Body)
}

// DecodeError is a 200 response whose body is not a results page.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("page at offset %d: decoding response: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Request describes one full sync against a records endpoint.
type Request struct {
	Endpoint string
	// Filters are extra query parameters (where, refine, ...). Empty values
	// are dropped. limit and offset are always set by the fetcher.
	Filters  map[string]string
	Select   []string
	Lang     string
	PageSize int
	// MaxPages bounds the sync; 0 means no bound.
	MaxPages int
}

// Result is what a sync produced. Err is set, and Complete is false, when
// the loop stopped before an empty page.
type Result struct {
	Records  []store.Record
	Complete bool
	Pages    int
	Err      error
}

// Dataset wraps the result for persistence.
func (r Result) Dataset(source string, fetchedAt time.Time) store.Dataset {
	return store.Dataset{
		Records:   r.Records,
		Complete:  r.Complete,
		Source:    source,
		FetchedAt: fetchedAt,
	}
}

type Fetcher struct {
	client *http.Client
	names  store.FieldNames
	logger *zap.Logger
}

func New(client *http.Client, names store.FieldNames, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, names: names, logger: logger}
}

// FetchAll requests pages of req.PageSize records until a page comes back
// empty. Any failure ends the loop and returns what was collected so far.
func (f *Fetcher) FetchAll(ctx context.Context, req Request) Result {
	var result Result
	if req.PageSize <= 0 {
		result.Err = fmt.Errorf("page size must be positive, got %d", req.PageSize)
		return result
	}

	log := f.logger.With(zap.String("endpoint", req.Endpoint), zap.Int("page_size", req.PageSize))
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}
		if req.MaxPages > 0 && result.Pages >= req.MaxPages {
			result.Err = ErrPageLimit
			break
		}

		records, err := f.fetchPage(ctx, req, offset)
		if err != nil {
			result.Err = err
			break
		}
		result.Pages++
		log.Debug("fetched page", zap.Int("offset", offset), zap.Int("records", len(records)))

		if len(records) == 0 {
			result.Complete = true
			break
		}
		result.Records = append(result.Records, records...)
		offset += req.PageSize
	}

	if result.Complete {
		log.Info("sync complete", zap.Int("records", len(result.Records)), zap.Int("pages", result.Pages))
	} else {
		log.Warn("sync stopped early", zap.Int("records", len(result.Records)), zap.Error(result.Err))
	}
	return result
}

type page struct {
	Results *[]map[string]json.RawMessage `json:"results"`
}

func (f *Fetcher) fetchPage(ctx context.Context, req Request, offset int) ([]store.Record, error) {
	pageURL, err := buildURL(req, offset)
	if err != nil {
		return nil, &TransportError{Offset: offset, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &TransportError{Offset: offset, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Offset: offset, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Offset: offset, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, &DecodeError{Offset: offset, Err: err}
	}
	if p.Results == nil {
		return nil, &DecodeError{Offset: offset, Err: errors.New("response has no results array")}
	}

	records := make([]store.Record, 0, len(*p.Results))
	for _, item := range *p.Results {
		records = append(records, f.names.DecodeRecord(item))
	}
	return records, nil
}

func buildURL(req Request, offset int) (string, error) {
	u, err := url.Parse(req.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	for k, v := range req.Filters {
		if v == "" {
			q.Del(k)
			continue
		}
		q.Set(k, v)
	}
	if len(req.Select) > 0 {
		q.Set("select", strings.Join(req.Select, ","))
	}
	if req.Lang != "" {
		q.Set("lang", req.Lang)
	}
	q.Set("limit", strconv.Itoa(req.PageSize))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
