// Package remote talks to data stores over the catalog HTTP API and serves
// that API for any store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rtm0/ccicube/internal/cube"
	"github.com/rtm0/ccicube/internal/metrics"
	"github.com/rtm0/ccicube/internal/schema"
	"github.com/rtm0/ccicube/internal/store"
)

const netcdfContentType = "application/x-netcdf"

// Client is a DataStore backed by a remote catalog server.
type Client struct {
	logger        *slog.Logger
	httpCli       *http.Client
	baseURL       *url.URL
	id            string
	cache         *store.Cache
	metrics       *metrics.Metrics
	concurrency   int
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithStoreID sets the store name reported in DataRefs.
func WithStoreID(id string) Option { return func(c *Client) { c.id = id } }

// WithCache sets the descriptor cache.
func WithCache(cache *store.Cache) Option { return func(c *Client) { c.cache = cache } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

// WithConcurrency bounds the number of variables fetched in parallel and the
// connections kept to the server.
func WithConcurrency(n int) Option { return func(c *Client) { c.concurrency = n } }

// WithRetry sets how often and how soon failed requests are retried.
func WithRetry(maxRetries int, interval time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryInterval = interval
	}
}

// WithTimeout limits the duration of a single HTTP request.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// NewClient creates a client for the catalog API rooted at endpoint.
func NewClient(logger *slog.Logger, endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q: scheme must be http or https", endpoint)
	}
	c := &Client{
		logger:        logger,
		baseURL:       u,
		id:            "esa-cci",
		cache:         store.NewCache(0),
		concurrency:   1,
		maxRetries:    3,
		retryInterval: 200 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	c.httpCli = &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        c.concurrency,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: c.concurrency,
			MaxConnsPerHost:     c.concurrency,
		},
	}
	return c, nil
}

// ID implements store.DataStore.
func (c *Client) ID() string { return c.id }

// ListDataIDs implements store.DataStore.
func (c *Client) ListDataIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.getJSON(ctx, "list", c.url(nil, "datasets"), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SearchData implements store.DataStore.
func (c *Client) SearchData(ctx context.Context, f store.Filter) ([]store.DataRef, error) {
	q := url.Values{}
	if f.Variable != "" {
		q.Set("variable", f.Variable)
	}
	if f.ECV != "" {
		q.Set("ecv", f.ECV)
	}
	var refs []store.DataRef
	if err := c.getJSON(ctx, "search", c.url(q, "datasets", "search"), &refs); err != nil {
		return nil, err
	}
	for i := range refs {
		refs[i].StoreID = c.id
	}
	return refs, nil
}

// DescribeData implements store.DataStore.
func (c *Client) DescribeData(ctx context.Context, dataID string) (*store.DatasetDescriptor, error) {
	if d, ok := c.cache.Get(dataID); ok {
		return d, nil
	}
	var d store.DatasetDescriptor
	if err := c.getJSON(ctx, "describe", c.url(nil, "datasets", dataID), &d); err != nil {
		return nil, fmt.Errorf("describe %s: %w", dataID, err)
	}
	c.cache.Add(&d)
	return &d, nil
}

// GetOpenDataParamsSchema implements store.DataStore.
func (c *Client) GetOpenDataParamsSchema(ctx context.Context, dataID string) (*schema.Schema, error) {
	if d, ok := c.cache.Get(dataID); ok && d.OpenParamsSchema != nil {
		return d.OpenParamsSchema, nil
	}
	var s schema.Schema
	if err := c.getJSON(ctx, "schema", c.url(nil, "datasets", dataID, "schema"), &s); err != nil {
		return nil, fmt.Errorf("schema of %s: %w", dataID, err)
	}
	return &s, nil
}

// OpenData implements store.DataStore. Parameters are validated before any
// data is requested. Variables are fetched concurrently, one request each,
// and merged.
func (c *Client) OpenData(ctx context.Context, dataID string, params schema.Params) (*cube.Dataset, error) {
	s, err := c.GetOpenDataParamsSchema(ctx, dataID)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(s, params); err != nil {
		return nil, fmt.Errorf("open %s: %w", dataID, err)
	}
	op, err := schema.Decode(params)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dataID, err)
	}
	vars := op.VariableNames
	if len(vars) == 0 && c.concurrency > 1 {
		d, err := c.DescribeData(ctx, dataID)
		if err != nil {
			return nil, err
		}
		vars = d.VarNames()
	}

	var ds *cube.Dataset
	if c.concurrency <= 1 || len(vars) <= 1 {
		ds, err = c.fetch(ctx, dataID, params)
	} else {
		ds, err = c.fetchEach(ctx, dataID, params, vars)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dataID, err)
	}
	c.metrics.IncDatasetsOpened(c.id)
	c.logger.Info("Opened dataset", append([]any{"dataID", dataID}, ds.Summary()...)...)
	return ds, nil
}

func (c *Client) fetchEach(ctx context.Context, dataID string, params schema.Params, vars []string) (*cube.Dataset, error) {
	parts := make([]*cube.Dataset, len(vars))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, v := range vars {
		p := schema.Params{}
		for k, val := range params {
			p[k] = val
		}
		p[schema.VariableNames] = []string{v}
		g.Go(func() error {
			ds, err := c.fetch(gctx, dataID, p)
			if err != nil {
				return fmt.Errorf("variable %q: %w", v, err)
			}
			parts[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cube.Merge(parts...)
}

// fetch posts params to the data endpoint and decodes the NetCDF response
// through a temporary file.
func (c *Client) fetch(ctx context.Context, dataID string, params schema.Params) (*cube.Dataset, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	res, err := c.do(ctx, "open", http.MethodPost, c.url(nil, "datasets", dataID, "data"), body, netcdfContentType)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	f, err := os.CreateTemp("", "ccicube-*.nc")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	n, err := io.Copy(f, res.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	c.metrics.AddBytesReceived(n)
	return cube.Read(ctx, f.Name(), cube.ReadOptions{})
}

func (c *Client) url(q url.Values, elems ...string) string {
	escaped := make([]string, len(elems))
	for i, e := range elems {
		escaped[i] = url.PathEscape(e)
	}
	u := c.baseURL.JoinPath(escaped...)
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, op, u string, v any) error {
	res, err := c.do(ctx, op, http.MethodGet, u, nil, "application/json")
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// do sends a request, retrying transport errors and 5xx responses with
// exponential backoff. 4xx responses fail immediately with an *APIError.
func (c *Client) do(ctx context.Context, op, method, u string, body []byte, accept string) (*http.Response, error) {
	start := time.Now()
	var res *http.Response
	attempt := 0
	send := func() error {
		if attempt > 0 {
			c.metrics.IncRetries()
		}
		attempt++
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("X-Request-ID", uuid.NewString())
		req.Header.Set("Accept", accept)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		r, err := c.httpCli.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		switch {
		case r.StatusCode >= http.StatusInternalServerError:
			return readAPIError(r)
		case r.StatusCode >= http.StatusBadRequest:
			return backoff.Permanent(readAPIError(r))
		}
		res = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	var policy backoff.BackOff = backoff.WithContext(b, ctx)
	if c.maxRetries >= 0 {
		policy = backoff.WithMaxRetries(policy, uint64(c.maxRetries))
	}
	err := backoff.RetryNotify(send, policy, func(err error, d time.Duration) {
		c.logger.Warn("Retrying request", "op", op, "url", u, "in", d, "err", err)
	})
	c.metrics.ObserveStoreRequest(c.id, op, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// APIError is an error response of the catalog API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote store: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps error codes to the sentinel errors of the store and schema
// packages.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case codeNotFound:
		return store.ErrNotFound
	case codeInvalidParams:
		return schema.ErrInvalidParams
	}
	return nil
}

func readAPIError(r *http.Response) *APIError {
	defer r.Body.Close()
	e := &APIError{Status: r.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err := json.Unmarshal(b, e); err != nil || e.Message == "" {
		e.Message = http.StatusText(r.StatusCode)
	}
	if e.Code == "" {
		e.Code = codeForStatus(r.StatusCode)
	}
	return e
}
