// Package campussvc adapts the college admin REST backend to the fee repositories.
package campussvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method rest.Method
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, strings.TrimSpace(e.Body))
}

func isNotFound(err error) bool {
	se, ok := errors.Cause(err).(*StatusError)
	return ok && se.Code == http.StatusNotFound
}

// Client talks to the campus backend. It implements every fee repository.
type Client struct {
	baseURL string
	apiKey  string
	rest    *rest.Client
	logger  core.Logger
}

var (
	_ fee.ProfileRepository      = (*Client)(nil)
	_ fee.StructureRepository    = (*Client)(nil)
	_ fee.AcademicYearRepository = (*Client)(nil)
	_ fee.InvoiceRepository      = (*Client)(nil)
	_ fee.LedgerRepository       = (*Client)(nil)
)

func NewClient(conf core.CampusConfig, logger core.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(conf.BaseURL, "/"),
		apiKey:  conf.APIKey,
		rest:    &rest.Client{HTTPClient: &http.Client{Timeout: conf.Timeout}},
		logger:  logger,
	}
}

func NewRepositories(c *Client) fee.Repositories {
	return fee.Repositories{
		Profiles:      c,
		Structures:    c,
		AcademicYears: c,
		Invoices:      c,
		Ledger:        c,
	}
}

// do sends a request and decodes a 2xx JSON answer into out (if not nil).
func (c *Client) do(ctx context.Context, method rest.Method, path string, query map[string]string, body, out interface{}) error {
	req := rest.Request{
		Method:      method,
		BaseURL:     c.baseURL + path,
		Headers:     map[string]string{"Accept": "application/json"},
		QueryParams: query,
	}
	if c.apiKey != "" {
		req.Headers["Authorization"] = "Bearer " + c.apiKey
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "encoding %s %s body", method, path)
		}
		req.Body = data
		req.Headers["Content-Type"] = "application/json"
	}

	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return errors.Wrapf(err, "building %s %s", method, path)
	}
	httpRes, err := c.rest.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	res, err := rest.BuildResponse(httpRes)
	if err != nil {
		return errors.Wrapf(err, "reading %s %s answer", method, path)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, Code: res.StatusCode, Body: res.Body}
	}
	if out == nil || strings.TrimSpace(res.Body) == "" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewBufferString(res.Body))
	dec.UseNumber()
	if err = dec.Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s %s answer", method, path)
	}
	return nil
}

// list fetches path and returns its records, unwrapping {"data": [...]}-like envelopes.
func (c *Client) list(ctx context.Context, path string, query map[string]string) ([]record, error) {
	var payload interface{}
	if err := c.do(ctx, rest.Get, path, query, nil, &payload); err != nil {
		return nil, err
	}
	return records(payload), nil
}

// attempt is one way of writing to the backend.
type attempt struct {
	method rest.Method
	path   string
	body   interface{}
}

// firstSuccess runs the attempts in order until one is accepted.
func (c *Client) firstSuccess(ctx context.Context, what string, attempts []attempt) error {
	var errs []string
	for _, a := range attempts {
		err := c.do(ctx, a.method, a.path, nil, a.body, nil)
		if err == nil {
			return nil
		}
		errs = append(errs, err.Error())
	}
	return errors.Errorf("%s: no endpoint accepted the update: %s", what, strings.Join(errs, "; "))
}

// updateStudent writes fields onto the student through the legacy update endpoints,
// trying each endpoint with each payload shape.
func (c *Client) updateStudent(ctx context.Context, studentID string, fields map[string]interface{}) error {
	camel := make(map[string]interface{}, len(fields)+1)
	snake := make(map[string]interface{}, len(fields)+1)
	camel["studentId"] = studentID
	snake["student_id"] = studentID
	for k, v := range fields {
		camel[k] = v
		snake[toSnake(k)] = v
	}
	payloads := []interface{}{camel, snake, map[string]interface{}{"student": camel}}

	endpoints := []struct {
		method rest.Method
		path   string
	}{
		{rest.Patch, "/students/" + studentID},
		{rest.Put, "/students/" + studentID},
		{rest.Post, "/students/" + studentID + "/update"},
		{rest.Post, "/students/update"},
	}

	attempts := make([]attempt, 0, len(endpoints)*len(payloads))
	for _, ep := range endpoints {
		for _, p := range payloads {
			attempts = append(attempts, attempt{method: ep.method, path: ep.path, body: p})
		}
	}
	return c.firstSuccess(ctx, "updating student "+studentID, attempts)
}
