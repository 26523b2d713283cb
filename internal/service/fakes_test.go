package service

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/limiter"
	"github.com/and161185/pkg-registry/internal/mail"
	"github.com/and161185/pkg-registry/internal/model"
	"github.com/and161185/pkg-registry/internal/repository"
)

// memDB backs the fake repositories with plain maps.
type memDB struct {
	mu         sync.Mutex
	users      map[model.UserID]*model.User
	namespaces map[model.NamespaceID]*model.Namespace
	packages   map[model.PackageID]*model.Package
	tokens     map[string]model.UploadToken
	blobs      map[model.BlobID]*model.Blob

	casFailures  int  // ReplaceVersions calls to fail with a conflict
	beforeCreate func(p *model.Package) // runs once ahead of the next package insert
	deleteNoRows bool // Delete reports zero rows
}

func newMemDB() *memDB {
	return &memDB{
		users:      map[model.UserID]*model.User{},
		namespaces: map[model.NamespaceID]*model.Namespace{},
		packages:   map[model.PackageID]*model.Package{},
		tokens:     map[string]model.UploadToken{},
		blobs:      map[model.BlobID]*model.Blob{},
	}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.PwdHash = slices.Clone(u.PwdHash)
	c.AuthorOf = slices.Clone(u.AuthorOf)
	c.MaintainerOf = slices.Clone(u.MaintainerOf)
	c.PendingRequests = slices.Clone(u.PendingRequests)
	return &c
}

func cloneNamespace(ns *model.Namespace) *model.Namespace {
	c := *ns
	c.Admins = slices.Clone(ns.Admins)
	c.Maintainers = slices.Clone(ns.Maintainers)
	c.Packages = slices.Clone(ns.Packages)
	return &c
}

func clonePackage(p *model.Package) *model.Package {
	c := *p
	c.Maintainers = slices.Clone(p.Maintainers)
	c.Tags = slices.Clone(p.Tags)
	c.Versions = slices.Clone(p.Versions)
	return &c
}

/************ users ************/

type fakeUsers struct{ db *memDB }

var _ repository.UserRepository = fakeUsers{}

func (f fakeUsers) find(pred func(*model.User) bool) (*model.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, u := range f.db.users {
		if pred(u) {
			return cloneUser(u), nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f fakeUsers) update(id model.UserID, fn func(*model.User)) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	fn(u)
	return nil
}

func (f fakeUsers) Create(_ context.Context, u *model.User) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, o := range f.db.users {
		if o.Username == u.Username || o.Email == u.Email {
			return errs.ErrAlreadyExists
		}
	}
	f.db.users[u.ID] = cloneUser(u)
	return nil
}

func (f fakeUsers) GetByID(_ context.Context, id model.UserID) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id })
}

func (f fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Username == username })
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Email == email })
}

func (f fakeUsers) GetBySessionToken(_ context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, errs.ErrNotFound
	}
	return f.find(func(u *model.User) bool { return u.SessionToken == token })
}

func (f fakeUsers) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	_, err := f.find(func(u *model.User) bool { return u.Username == username || u.Email == email })
	return err == nil, nil
}

func (f fakeUsers) SessionTokenExists(_ context.Context, token string) (bool, error) {
	_, err := f.find(func(u *model.User) bool { return u.SessionToken == token })
	return err == nil, nil
}

func (f fakeUsers) Login(_ context.Context, id model.UserID, candidate string, at time.Time) (string, int, error) {
	var (
		tok string
		n   int
	)
	err := f.update(id, func(u *model.User) {
		if u.LoginCount == 0 {
			u.SessionToken = candidate
		}
		u.LoginCount++
		u.LoginAt = &at
		tok, n = u.SessionToken, u.LoginCount
	})
	return tok, n, err
}

func (f fakeUsers) Logout(_ context.Context, id model.UserID, at time.Time) (int, error) {
	var n int
	err := f.update(id, func(u *model.User) {
		if u.LoginCount <= 1 {
			u.SessionToken = ""
		}
		u.LoginCount = max(u.LoginCount-1, 0)
		u.LogoutAt = &at
		n = u.LoginCount
	})
	return n, err
}

func (f fakeUsers) SetSession(_ context.Context, id model.UserID, token string, count int) error {
	return f.update(id, func(u *model.User) { u.SessionToken, u.LoginCount = token, count })
}

func (f fakeUsers) SetPassword(_ context.Context, id model.UserID, hash []byte) error {
	return f.update(id, func(u *model.User) { u.PwdHash, u.SessionToken, u.LoginCount = hash, "", 0 })
}

func (f fakeUsers) SetEmail(_ context.Context, id model.UserID, email string) error {
	if _, err := f.GetByEmail(context.Background(), email); err == nil {
		return errs.ErrAlreadyExists
	}
	return f.update(id, func(u *model.User) { u.Email = email })
}

func appendUnique(ids []model.PackageID, id model.PackageID) []model.PackageID {
	if model.ContainsPackage(ids, id) {
		return ids
	}
	return append(ids, id)
}

func (f fakeUsers) AddAuthorOf(_ context.Context, id model.UserID, pkgID model.PackageID) error {
	return f.update(id, func(u *model.User) { u.AuthorOf = appendUnique(u.AuthorOf, pkgID) })
}

func (f fakeUsers) AddMaintainerOf(_ context.Context, id model.UserID, pkgID model.PackageID) error {
	return f.update(id, func(u *model.User) { u.MaintainerOf = appendUnique(u.MaintainerOf, pkgID) })
}

func (f fakeUsers) AddPendingRequest(_ context.Context, id model.UserID, pkgID model.PackageID) error {
	return f.update(id, func(u *model.User) { u.PendingRequests = appendUnique(u.PendingRequests, pkgID) })
}

func (f fakeUsers) RemovePendingRequest(_ context.Context, id model.UserID, pkgID model.PackageID) error {
	return f.update(id, func(u *model.User) {
		u.PendingRequests = slices.DeleteFunc(u.PendingRequests, func(p model.PackageID) bool { return p == pkgID })
	})
}

func (f fakeUsers) Delete(_ context.Context, id model.UserID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.users[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.db.users, id)
	return nil
}

/************ namespaces ************/

type fakeNamespaces struct{ db *memDB }

var _ repository.NamespaceRepository = fakeNamespaces{}

func (f fakeNamespaces) Create(_ context.Context, ns *model.Namespace) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, o := range f.db.namespaces {
		if o.Name == ns.Name {
			return errs.ErrAlreadyExists
		}
	}
	f.db.namespaces[ns.ID] = cloneNamespace(ns)
	return nil
}

func (f fakeNamespaces) GetByID(_ context.Context, id model.NamespaceID) (*model.Namespace, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	ns, ok := f.db.namespaces[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cloneNamespace(ns), nil
}

func (f fakeNamespaces) GetByName(_ context.Context, name string) (*model.Namespace, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, ns := range f.db.namespaces {
		if ns.Name == name {
			return cloneNamespace(ns), nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f fakeNamespaces) AddPackage(_ context.Context, id model.NamespaceID, pkgID model.PackageID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if ns, ok := f.db.namespaces[id]; ok {
		ns.Packages = appendUnique(ns.Packages, pkgID)
	}
	return nil
}

/************ packages ************/

type fakePackages struct{ db *memDB }

var _ repository.PackageRepository = fakePackages{}

func (f fakePackages) Create(_ context.Context, p *model.Package) error {
	if hook := f.db.beforeCreate; hook != nil {
		f.db.beforeCreate = nil
		hook(p)
	}
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, o := range f.db.packages {
		if o.NamespaceID == p.NamespaceID && o.Name == p.Name {
			return errs.ErrAlreadyExists
		}
	}
	p.Rev = 1
	f.db.packages[p.ID] = clonePackage(p)
	return nil
}

func (f fakePackages) GetByID(_ context.Context, id model.PackageID) (*model.Package, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.packages[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return clonePackage(p), nil
}

func (f fakePackages) GetByName(_ context.Context, nsID model.NamespaceID, name string) (*model.Package, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, p := range f.db.packages {
		if p.NamespaceID == nsID && p.Name == name {
			return clonePackage(p), nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f fakePackages) ReplaceVersions(_ context.Context, id model.PackageID, baseRev int64, versions []model.Version) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.packages[id]
	if !ok || p.Rev != baseRev {
		return 0, errs.ErrVersionConflict
	}
	if f.db.casFailures > 0 {
		f.db.casFailures--
		p.Rev++ // someone else wrote in between
		return 0, errs.ErrVersionConflict
	}
	p.Versions = slices.Clone(versions)
	p.Rev++
	return p.Rev, nil
}

func (f fakePackages) SetDeprecated(_ context.Context, id model.PackageID, deprecated bool) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.packages[id]
	if !ok {
		return errs.ErrNotFound
	}
	p.Deprecated = deprecated
	return nil
}

func (f fakePackages) AddMaintainer(_ context.Context, id model.PackageID, userID model.UserID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if p, ok := f.db.packages[id]; ok && !model.ContainsUser(p.Maintainers, userID) {
		p.Maintainers = append(p.Maintainers, userID)
	}
	return nil
}

func (f fakePackages) IncrementDownloads(_ context.Context, id model.PackageID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if p, ok := f.db.packages[id]; ok {
		p.Downloads++
	}
	return nil
}

func (f fakePackages) Delete(_ context.Context, id model.PackageID) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.deleteNoRows {
		return 0, nil
	}
	if _, ok := f.db.packages[id]; !ok {
		return 0, nil
	}
	delete(f.db.packages, id)
	drop := func(ids []model.PackageID) []model.PackageID {
		return slices.DeleteFunc(ids, func(p model.PackageID) bool { return p == id })
	}
	for _, ns := range f.db.namespaces {
		ns.Packages = drop(ns.Packages)
	}
	for _, u := range f.db.users {
		u.AuthorOf, u.MaintainerOf, u.PendingRequests = drop(u.AuthorOf), drop(u.MaintainerOf), drop(u.PendingRequests)
	}
	return 1, nil
}

func (f fakePackages) summaries(pred func(*model.Package) bool) []model.PackageSummary {
	out := []model.PackageSummary{}
	for _, p := range f.db.packages {
		if !pred(p) {
			continue
		}
		s := model.PackageSummary{Name: p.Name, Description: p.Description, Tags: p.Tags, Downloads: p.Downloads}
		if ns, ok := f.db.namespaces[p.NamespaceID]; ok {
			s.Namespace = ns.Name
		}
		if u, ok := f.db.users[p.AuthorID]; ok {
			s.Author = u.Username
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func page(all []model.PackageSummary, n int) []model.PackageSummary {
	lo := min(max(n, 0)*model.PageSize, len(all))
	hi := min(lo+model.PageSize, len(all))
	return all[lo:hi]
}

func (f fakePackages) Search(_ context.Context, q model.SearchQuery) (model.SearchResult, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	term := strings.ToLower(q.Query)
	all := f.summaries(func(p *model.Package) bool {
		return !p.Deprecated && (strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.Description), term) || slices.Contains(p.Tags, term))
	})
	return model.SearchResult{
		Packages:   page(all, q.Page),
		TotalPages: (len(all) + model.PageSize - 1) / model.PageSize,
	}, nil
}

func (f fakePackages) List(_ context.Context, n int) ([]model.PackageSummary, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return page(f.summaries(func(*model.Package) bool { return true }), n), nil
}

func (f fakePackages) ListByUser(_ context.Context, userID model.UserID) ([]model.PackageSummary, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.summaries(func(p *model.Package) bool {
		return p.AuthorID == userID || model.ContainsUser(p.Maintainers, userID)
	}), nil
}

/************ tokens & blobs ************/

type fakeTokens struct{ db *memDB }

var _ repository.TokenRepository = fakeTokens{}

func (f fakeTokens) Add(_ context.Context, t model.UploadToken) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.tokens[t.Token]; !ok {
		f.db.tokens[t.Token] = t
	}
	return nil
}

func (f fakeTokens) Get(_ context.Context, token string) (*model.UploadToken, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.tokens[token]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &t, nil
}

type fakeBlobs struct{ db *memDB }

var _ repository.BlobRepository = fakeBlobs{}

func (f fakeBlobs) Put(_ context.Context, b *model.Blob) (model.BlobID, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if b.ID.IsNil() {
		b.ID = model.NewBlobID()
	}
	c := *b
	f.db.blobs[b.ID] = &c
	return b.ID, nil
}

func (f fakeBlobs) SetPackage(_ context.Context, id model.BlobID, pkg model.PackageID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b, ok := f.db.blobs[id]
	if !ok {
		return errs.ErrNotFound
	}
	b.PackageID = pkg
	return nil
}

func (f fakeBlobs) Get(_ context.Context, id model.BlobID) (*model.Blob, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b, ok := f.db.blobs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *b
	return &c, nil
}

/************ limiter & mail ************/

type fakeLimiter struct {
	allowOK     bool
	allowErr    error
	failBlocked bool
	failErr     error
	successErr  error

	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

type fakeMail struct {
	sent []mail.Message
	err  error
}

func (m *fakeMail) Send(_ context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

/************ wiring ************/

type env struct {
	db         *memDB
	mail       *fakeMail
	lim        *fakeLimiter
	logs       *observer.ObservedLogs
	auth       *AuthServiceImpl
	tokens     *TokenServiceImpl
	packages   *PackageServiceImpl
	namespaces *NamespaceServiceImpl
	users      *UserServiceImpl
}

func newEnv() *env {
	db := newMemDB()
	core, logs := observer.New(zap.DebugLevel)
	e := &env{db: db, mail: &fakeMail{}, lim: &fakeLimiter{allowOK: true}, logs: logs}
	users, nss, pkgs := fakeUsers{db}, fakeNamespaces{db}, fakePackages{db}
	e.auth = NewAuthService(users, e.lim, e.mail, AuthConfig{Salt: "salt", AdminPassword: "bootstrap", Host: "https://registry.test"}, zap.New(core))
	e.tokens = NewTokenService(users, nss, pkgs, fakeTokens{db})
	e.packages = NewPackageService(users, nss, pkgs, fakeBlobs{db}, e.tokens)
	e.namespaces = NewNamespaceService(users, nss, pkgs)
	e.users = NewUserService(users, nss, pkgs, e.auth)
	return e
}

// signup registers a logged-in user and returns the session token.
func (e *env) signup(name string) string {
	s, err := e.auth.Signup(context.Background(), SignupInput{Username: name, Email: name + "@example.com", Password: "pw-" + name})
	if err != nil {
		panic(err)
	}
	return s.Token
}

func (e *env) user(name string) *model.User {
	u, err := fakeUsers{e.db}.GetByUsername(context.Background(), name)
	if err != nil {
		panic(err)
	}
	return u
}

func (e *env) makeAdmin(name string) {
	_ = fakeUsers{e.db}.update(e.user(name).ID, func(u *model.User) { u.Roles |= model.RoleAdmin })
}

func (e *env) pkg(ns, name string) *model.Package {
	n, err := fakeNamespaces{e.db}.GetByName(context.Background(), ns)
	if err != nil {
		panic(err)
	}
	p, err := fakePackages{e.db}.GetByName(context.Background(), n.ID, name)
	if err != nil {
		panic(err)
	}
	return p
}
