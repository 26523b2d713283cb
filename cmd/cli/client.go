package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenk/backoff"
)

// APIError is a non-2xx reply from the registry.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// retryable reports whether a GET may be repeated.
func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Client talks to the registry HTTP API.
type Client struct {
	base       string
	http       *http.Client
	maxRetries uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

// WithMaxRetries sets how often idempotent requests are retried.
func WithMaxRetries(n uint64) Option { return func(cl *Client) { cl.maxRetries = n } }

// NewClient returns a client for the registry at base, e.g. http://localhost:8080.
func NewClient(base string, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		http:       &http.Client{Timeout: 2 * time.Minute},
		maxRetries: 3,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if b, ok := out.(*[]byte); ok {
		*b = body
		return nil
	}
	return json.Unmarshal(body, out)
}

// get retries on 429 and 5xx with exponential backoff.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	target := c.base + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		err = c.do(req, out)
		var apiErr *APIError
		if err != nil && errors.As(err, &apiErr) && !apiErr.retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
}

func (c *Client) postForm(ctx context.Context, method, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// ---- replies ----

type reply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Session is a login or signup reply.
type Session struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	Packages   []map[string]any `json:"packages"`
	TotalPages int              `json:"total_pages"`
}

// ---- auth ----

func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	err := c.postForm(ctx, http.MethodPost, "/auth/login", url.Values{"email": {email}, "password": {password}}, &s)
	return s, err
}

func (c *Client) Signup(ctx context.Context, username, email, password string) (Session, error) {
	var s Session
	err := c.postForm(ctx, http.MethodPost, "/auth/signup",
		url.Values{"username": {username}, "email": {email}, "password": {password}}, &s)
	return s, err
}

func (c *Client) Logout(ctx context.Context, uuid string) error {
	return c.postForm(ctx, http.MethodPost, "/auth/logout", url.Values{"uuid": {uuid}}, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.postForm(ctx, http.MethodPost, "/auth/forgot-password", url.Values{"email": {email}}, nil)
}

// ---- packages ----

func (c *Client) Search(ctx context.Context, query string, page int, sortedBy string, desc bool) (SearchPage, error) {
	q := url.Values{"query": {query}, "page": {fmt.Sprint(page)}}
	if sortedBy != "" {
		q.Set("sorted_by", sortedBy)
	}
	if desc {
		q.Set("sort", "desc")
	}
	var p SearchPage
	err := c.get(ctx, "/packages", q, &p)
	return p, err
}

// Info returns the package document, or one version of it when version is set.
func (c *Client) Info(ctx context.Context, namespace, name, version string) (map[string]any, error) {
	path := "/packages/" + url.PathEscape(namespace) + "/" + url.PathEscape(name)
	if version != "" {
		path += "/" + url.PathEscape(version)
	}
	var r struct {
		Data map[string]any `json:"data"`
	}
	err := c.get(ctx, path, nil, &r)
	return r.Data, err
}

// Upload publishes a tarball with the given form fields.
func (c *Client) Upload(ctx context.Context, fields map[string]string, filename string, tarball []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return "", err
		}
	}
	fw, err := w.CreateFormFile("tarball", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(tarball); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/packages", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var r reply
	err = c.do(req, &r)
	return r.Message, err
}

func (c *Client) SetDeprecated(ctx context.Context, uuid, namespace, name string, deprecated bool) error {
	return c.postForm(ctx, http.MethodPut, "/packages", url.Values{
		"uuid":         {uuid},
		"namespace":    {namespace},
		"name":         {name},
		"isDeprecated": {fmt.Sprint(deprecated)},
	}, nil)
}

// Download fetches the tarball behind a download url such as /tarballs/<id>.
func (c *Client) Download(ctx context.Context, downloadURL string) ([]byte, error) {
	var b []byte
	err := c.get(ctx, downloadURL, nil, &b)
	return b, err
}

// ---- tokens ----

type tokenReply struct {
	UploadToken string `json:"uploadToken"`
}

// NamespaceToken issues a token for new packages in namespace.
func (c *Client) NamespaceToken(ctx context.Context, uuid, namespace string) (string, error) {
	var r tokenReply
	err := c.postJSON(ctx, "/namespaces/"+url.PathEscape(namespace)+"/uploadToken", map[string]string{"uuid": uuid}, &r)
	return r.UploadToken, err
}

// PackageToken issues a token for new versions of namespace/name.
func (c *Client) PackageToken(ctx context.Context, uuid, namespace, name string) (string, error) {
	var r tokenReply
	path := "/packages/" + url.PathEscape(namespace) + "/" + url.PathEscape(name) + "/uploadToken"
	err := c.postJSON(ctx, path, map[string]string{"uuid": uuid}, &r)
	return r.UploadToken, err
}
