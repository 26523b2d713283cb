package convert

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/and161185/pkg-registry/internal/model"
)

func details() *model.PackageDetails {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &model.PackageDetails{
		Namespace: "stdlib",
		Author:    "alice",
		Package: &model.Package{
			Name:      "left-pad",
			License:   "MIT",
			CreatedAt: created,
			UpdatedAt: created,
			Versions: []model.Version{
				{Version: "1.0.0", Tarball: "left-pad-1.0.0.tar.gz", CreatedAt: created},
				{Version: "1.2.0", Tarball: "left-pad-1.2.0.tar.gz", CreatedAt: created},
			},
		},
	}
}

func TestPURL(t *testing.T) {
	t.Parallel()

	if got := PURL("stdlib", "left-pad", "1.2.0"); got != "pkg:generic/stdlib/left-pad@1.2.0" {
		t.Fatalf("versioned purl = %q", got)
	}
	if got := PURL("stdlib", "left-pad", ""); got != "pkg:generic/stdlib/left-pad" {
		t.Fatalf("package purl = %q", got)
	}
}

func TestToPackage(t *testing.T) {
	t.Parallel()

	p := ToPackage(details())
	if p.Latest == nil || p.Latest.Version != "1.2.0" {
		t.Fatalf("latest = %+v", p.Latest)
	}
	if len(p.VersionHistory) != 2 || p.VersionHistory[0].Version != "1.0.0" {
		t.Fatalf("history = %+v", p.VersionHistory)
	}
	if p.VersionHistory[0].PURL != "pkg:generic/stdlib/left-pad@1.0.0" {
		t.Fatalf("history purl = %q", p.VersionHistory[0].PURL)
	}
	if p.Tags == nil {
		t.Fatalf("tags must encode as an empty list")
	}
	if p.VersionData != nil {
		t.Fatalf("version_data must be empty on the full view")
	}
}

func TestToPackageLatestAndVersion(t *testing.T) {
	t.Parallel()

	d := details()
	l := ToPackageLatest(d)
	if l.VersionHistory != nil || l.Latest.Version != "1.2.0" {
		t.Fatalf("latest view = %+v", l)
	}

	v := ToPackageVersion(d, &d.Package.Versions[0])
	if v.VersionData == nil || v.VersionData.Version != "1.0.0" || v.Latest != nil {
		t.Fatalf("version view = %+v", v)
	}

	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "version_history") || !strings.Contains(string(b), `"version_data"`) {
		t.Fatalf("unexpected json: %s", b)
	}
}

func TestToPackage_NoVersions(t *testing.T) {
	t.Parallel()

	d := details()
	d.Package.Versions = nil
	if p := ToPackage(d); p.Latest != nil || len(p.VersionHistory) != 0 {
		t.Fatalf("empty history must have no latest: %+v", p)
	}
}

func TestToAccount_HidesCredentials(t *testing.T) {
	t.Parallel()

	login := time.Date(2024, 3, 2, 0, 0, 0, 0, time.FixedZone("x", 3600))
	u := &model.User{
		Username:     "alice",
		Email:        "a@b.com",
		PwdHash:      []byte("secret-hash"),
		SessionToken: "tok",
		Roles:        model.RoleUser | model.RoleAdmin,
		LoginCount:   2,
		LoginAt:      &login,
		AuthorOf:     []model.PackageID{model.NewPackageID()},
	}
	a := ToAccount(u)
	if a.LoginAt == nil || a.LoginAt.Location() != time.UTC {
		t.Fatalf("login time must be utc: %v", a.LoginAt)
	}
	if a.LogoutAt != nil {
		t.Fatalf("logout time must be empty")
	}
	if a.Authored != 1 || len(a.Roles) != 2 {
		t.Fatalf("account = %+v", a)
	}

	b, _ := json.Marshal(a)
	if strings.Contains(string(b), "secret-hash") || strings.Contains(string(b), `"tok"`) {
		t.Fatalf("credentials leaked: %s", b)
	}
}

func TestToNamespaceAndInvitations(t *testing.T) {
	t.Parallel()

	ns := ToNamespace(&model.NamespaceDetails{Namespace: &model.Namespace{Name: "stdlib"}})
	if ns.Name != "stdlib" || ns.Packages == nil {
		t.Fatalf("namespace = %+v", ns)
	}

	inv := ToInvitations([]model.Invitation{{Namespace: "stdlib", Package: "left-pad"}})
	if len(inv) != 1 || inv[0].Package != "left-pad" {
		t.Fatalf("invitations = %+v", inv)
	}
	if got := ToInvitations(nil); got == nil || len(got) != 0 {
		t.Fatalf("nil invitations must convert to an empty list")
	}

	p := ToProfile(&model.Profile{Username: "bob"})
	if p.Packages == nil {
		t.Fatalf("profile packages must encode as an empty list")
	}
}
