package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// REST is a PostgREST client for the hosted project API (<project>/rest/v1).
type REST struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

type RESTOption func(*REST)

func WithHTTPClient(c *http.Client) RESTOption {
	return func(r *REST) { r.httpClient = c }
}

func NewREST(projectURL, apiKey string, opts ...RESTOption) (*REST, error) {
	projectURL = strings.TrimSpace(projectURL)
	u, err := url.Parse(projectURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid project url: %q", projectURL)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	r := &REST{
		baseURL:    u,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *REST) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	params := url.Values{}
	if len(q.Columns) > 0 {
		params.Set("select", strings.Join(q.Columns, ","))
	} else {
		params.Set("select", "*")
	}
	addFilterParams(params, q.Filters)
	if q.Order != "" {
		params.Set("order", q.Order+".asc")
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var out []Row
	if _, err := r.do(ctx, http.MethodGet, table, params, nil, nil, &out); err != nil {
		return nil, errors.Wrapf(err, "select %s", table)
	}
	return out, nil
}

func (r *REST) Insert(ctx context.Context, table string, rows []Row) ([]Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	headers := http.Header{"Prefer": []string{"return=representation"}}
	var out []Row
	if _, err := r.do(ctx, http.MethodPost, table, nil, headers, rows, &out); err != nil {
		return nil, errors.Wrapf(err, "insert %s", table)
	}
	return out, nil
}

func (r *REST) Upsert(ctx context.Context, table string, rows []Row, onConflict []string) ([]Row, error) {
	if len(onConflict) == 0 {
		return nil, errors.New("upsert requires conflict columns")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	params := url.Values{"on_conflict": []string{strings.Join(onConflict, ",")}}
	headers := http.Header{"Prefer": []string{"resolution=merge-duplicates,return=representation"}}
	var out []Row
	if _, err := r.do(ctx, http.MethodPost, table, params, headers, rows, &out); err != nil {
		return nil, errors.Wrapf(err, "upsert %s", table)
	}
	return out, nil
}

func (r *REST) Update(ctx context.Context, table string, values Row, filters ...Filter) error {
	if len(values) == 0 {
		return nil
	}
	params := url.Values{}
	addFilterParams(params, filters)
	headers := http.Header{"Prefer": []string{"return=minimal"}}
	if _, err := r.do(ctx, http.MethodPatch, table, params, headers, values, nil); err != nil {
		return errors.Wrapf(err, "update %s", table)
	}
	return nil
}

func (r *REST) Delete(ctx context.Context, table string, filters ...Filter) error {
	if len(filters) == 0 {
		return ErrUnfilteredDelete
	}
	params := url.Values{}
	addFilterParams(params, filters)
	headers := http.Header{"Prefer": []string{"return=minimal"}}
	if _, err := r.do(ctx, http.MethodDelete, table, params, headers, nil, nil); err != nil {
		return errors.Wrapf(err, "delete %s", table)
	}
	return nil
}

func (r *REST) Count(ctx context.Context, table string, filters ...Filter) (int64, error) {
	params := url.Values{"select": []string{"*"}}
	addFilterParams(params, filters)
	headers := http.Header{"Prefer": []string{"count=exact"}}
	resp, err := r.do(ctx, http.MethodHead, table, params, headers, nil, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", table)
	}
	n, err := parseContentRangeTotal(resp.Get("Content-Range"))
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", table)
	}
	return n, nil
}

func (r *REST) do(ctx context.Context, method, table string, params url.Values, headers http.Header, reqBody any, out any) (http.Header, error) {
	u := *r.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/rest/v1/" + table
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, errors.Wrap(err, "json marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "http request")
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http do")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "http read")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		if jErr := json.Unmarshal(respBody, apiErr); jErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return resp.Header, apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return resp.Header, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.Header, errors.Wrap(err, "json unmarshal response")
	}
	return resp.Header, nil
}

func addFilterParams(params url.Values, filters []Filter) {
	for _, f := range filters {
		switch f.Op {
		case OpEq:
			if f.Value == nil {
				params.Add(f.Column, "is.null")
				continue
			}
			params.Add(f.Column, "eq."+formatValue(f.Value))
		case OpNeq:
			params.Add(f.Column, "neq."+formatValue(f.Value))
		case OpIn:
			quoted := make([]string, len(f.Values))
			for i, v := range f.Values {
				quoted[i] = quoteListValue(v)
			}
			params.Add(f.Column, "in.("+strings.Join(quoted, ",")+")")
		case OpIsNull:
			params.Add(f.Column, "is.null")
		case OpNotNull:
			params.Add(f.Column, "not.is.null")
		}
	}
}

func formatValue(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(v)
	}
}

// quoteListValue double-quotes values containing PostgREST list delimiters.
func quoteListValue(v string) string {
	if !strings.ContainsAny(v, `,()" \`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

// parseContentRangeTotal reads the total from "0-24/3573" or "*/0".
func parseContentRangeTotal(v string) (int64, error) {
	idx := strings.LastIndex(v, "/")
	if idx < 0 {
		return 0, errors.Errorf("missing total in content-range %q", v)
	}
	total := strings.TrimSpace(v[idx+1:])
	if total == "*" {
		return 0, errors.Errorf("server did not report an exact count (%q)", v)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse content-range %q", v)
	}
	return n, nil
}
