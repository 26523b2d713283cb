package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/pkg-registry/internal/model"
	"github.com/and161185/pkg-registry/internal/service"
)

// Stubs embed the service interfaces; calling a method a test did not set
// panics, which the recover middleware turns into a 500.

type authStub struct {
	service.AuthService
	login  func(email, password, ip string) (model.Session, error)
	signup func(in service.SignupInput) (model.Session, error)
	logout func(token string) error
}

func (a authStub) Login(_ context.Context, email, password, ip string) (model.Session, error) {
	return a.login(email, password, ip)
}

func (a authStub) Signup(_ context.Context, in service.SignupInput) (model.Session, error) {
	return a.signup(in)
}

func (a authStub) Logout(_ context.Context, token string) error { return a.logout(token) }

type packagesStub struct {
	service.PackageService
	upload        func(in service.UploadInput) error
	setDeprecated func(session, ns, name string, deprecated bool) error
	del           func(session, ns, name string) error
	search        func(q model.SearchQuery) (model.SearchResult, error)
	get           func(ns, name string) (*model.PackageDetails, error)
	checkCached   func(ns, name string, cached []string) (*model.PackageDetails, bool, error)
	download      func(id model.BlobID) (*model.Blob, error)
}

func (p packagesStub) Upload(_ context.Context, in service.UploadInput) error { return p.upload(in) }

func (p packagesStub) SetDeprecated(_ context.Context, session, ns, name string, deprecated bool) error {
	return p.setDeprecated(session, ns, name, deprecated)
}

func (p packagesStub) Delete(_ context.Context, session, ns, name string) error {
	return p.del(session, ns, name)
}

func (p packagesStub) Search(_ context.Context, q model.SearchQuery) (model.SearchResult, error) {
	return p.search(q)
}

func (p packagesStub) Get(_ context.Context, ns, name string) (*model.PackageDetails, error) {
	return p.get(ns, name)
}

func (p packagesStub) CheckCached(_ context.Context, ns, name string, cached []string) (*model.PackageDetails, bool, error) {
	return p.checkCached(ns, name, cached)
}

func (p packagesStub) Download(_ context.Context, id model.BlobID) (*model.Blob, error) {
	return p.download(id)
}

type tokensStub struct {
	service.TokenService
	issueNamespace func(session, ns string) (string, error)
}

func (t tokensStub) IssueNamespaceToken(_ context.Context, session, ns string) (string, error) {
	return t.issueNamespace(session, ns)
}

type usersStub struct {
	service.UserService
	invitations func(session, username string) ([]model.Invitation, error)
	resolve     func(session, username, ns, name string, accept bool) error
}

func (u usersStub) Invitations(_ context.Context, session, username string) ([]model.Invitation, error) {
	return u.invitations(session, username)
}

func (u usersStub) ResolveInvitation(_ context.Context, session, username, ns, name string, accept bool) error {
	return u.resolve(session, username, ns, name, accept)
}

// --- helpers ---

func newServer(t *testing.T, svc Services) (*Server, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	return New(svc, zap.New(core), 0), logs
}

func jsonRequest(method, target string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// do runs req and decodes the JSON body.
func do(t *testing.T, s *Server, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp, body
}
