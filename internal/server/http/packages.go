package httpserver

import (
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/and161185/pkg-registry/internal/convert"
	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/model"
	"github.com/and161185/pkg-registry/internal/service"
)

// --- Search / list ---

type searchQuery struct {
	Query    string `query:"query"`
	Page     int    `query:"page"`
	SortedBy string `query:"sorted_by"`
	Sort     string `query:"sort"`
}

type searchReply struct {
	reply
	Packages   []convert.Summary `json:"packages"`
	TotalPages int               `json:"total_pages"`
}

func (s *Server) searchPackages(c *fiber.Ctx) error {
	var q searchQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed query")
	}
	res, err := s.svc.Packages.Search(c.UserContext(), model.SearchQuery{
		Query:  q.Query,
		Page:   q.Page,
		SortBy: q.SortedBy,
		Desc:   strings.EqualFold(q.Sort, "desc"),
	})
	if err != nil {
		return err
	}
	return c.JSON(searchReply{
		reply:      ok("packages found"),
		Packages:   convert.ToSummaries(res.Packages),
		TotalPages: res.TotalPages,
	})
}

type pageQuery struct {
	Page int `query:"page"`
}

func (s *Server) listPackages(c *fiber.Ctx) error {
	var q pageQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed query")
	}
	list, err := s.svc.Packages.List(c.UserContext(), q.Page)
	if err != nil {
		return err
	}
	return c.JSON(searchReply{reply: ok("packages listed"), Packages: convert.ToSummaries(list)})
}

// --- Upload / update ---

type uploadForm struct {
	Token        string `form:"upload_token"`
	Name         string `form:"package_name"`
	Version      string `form:"package_version"`
	License      string `form:"package_license"`
	Description  string `form:"package_description"`
	Copyright    string `form:"package_copyright"`
	Tags         string `form:"package_tags"`
	Dependencies string `form:"dependencies"`
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// readTarball returns nil when the form has no tarball part.
func readTarball(c *fiber.Ctx) ([]byte, error) {
	fh, err := c.FormFile("tarball")
	if err != nil {
		return nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open tarball: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) upload(c *fiber.Ctx) error {
	var f uploadForm
	if err := bind(c, &f); err != nil {
		return err
	}
	data, err := readTarball(c)
	if err != nil {
		return err
	}
	err = s.svc.Packages.Upload(c.UserContext(), service.UploadInput{
		Token:        f.Token,
		Name:         f.Name,
		Version:      f.Version,
		License:      f.License,
		Tarball:      data,
		Description:  f.Description,
		Copyright:    f.Copyright,
		Tags:         splitTags(f.Tags),
		Dependencies: f.Dependencies,
	})
	if err != nil {
		return err
	}
	return c.JSON(ok("package uploaded successfully"))
}

type updateForm struct {
	UUID       string `json:"uuid" form:"uuid"`
	Name       string `json:"name" form:"name"`
	Namespace  string `json:"namespace" form:"namespace"`
	Deprecated flag   `json:"isDeprecated" form:"isDeprecated"`
}

func (s *Server) updatePackage(c *fiber.Ctx) error {
	var f updateForm
	if err := bind(c, &f); err != nil {
		return err
	}
	if err := s.svc.Packages.SetDeprecated(c.UserContext(), f.UUID, f.Namespace, f.Name, bool(f.Deprecated)); err != nil {
		return err
	}
	return c.JSON(ok("package updated successfully"))
}

// --- Read ---

func (s *Server) getPackage(c *fiber.Ctx) error {
	d, err := s.svc.Packages.Get(c.UserContext(), c.Params("namespace"), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(dataReply{reply: ok("package found"), Data: convert.ToPackage(d)})
}

type cachedForm struct {
	Versions []string `json:"cached_versions" form:"cached_versions"`
}

func (s *Server) checkCached(c *fiber.Ctx) error {
	var f cachedForm
	if err := bind(c, &f); err != nil {
		return err
	}
	d, upToDate, err := s.svc.Packages.CheckCached(c.UserContext(), c.Params("namespace"), c.Params("name"), f.Versions)
	if err != nil {
		return err
	}
	if upToDate {
		return c.JSON(ok("latest version is already there in local registry"))
	}
	return c.JSON(dataReply{reply: ok("newer version available"), Data: convert.ToPackageLatest(d)})
}

func (s *Server) getVersion(c *fiber.Ctx) error {
	d, v, err := s.svc.Packages.GetVersion(c.UserContext(), c.Params("namespace"), c.Params("name"), c.Params("version"))
	if err != nil {
		return err
	}
	return c.JSON(dataReply{reply: ok("version found"), Data: convert.ToPackageVersion(d, v)})
}

func (s *Server) download(c *fiber.Ctx) error {
	id, err := model.ParseBlobID(c.Params("id"))
	if err != nil {
		return fmt.Errorf("tarball %q: %w", c.Params("id"), errs.ErrNotFound)
	}
	b, err := s.svc.Packages.Download(c.UserContext(), id)
	if err != nil {
		return err
	}
	c.Attachment(b.Filename)
	c.Set(fiber.HeaderContentType, b.ContentType)
	return c.Send(b.Data)
}

// --- Delete ---

func (s *Server) deletePackage(c *fiber.Ctx) error {
	var f sessionForm
	if err := bind(c, &f); err != nil {
		return err
	}
	if err := s.svc.Packages.Delete(c.UserContext(), f.UUID, c.Params("namespace"), c.Params("name")); err != nil {
		return err
	}
	return c.JSON(ok("package deleted successfully"))
}

func (s *Server) deleteVersion(c *fiber.Ctx) error {
	var f sessionForm
	if err := bind(c, &f); err != nil {
		return err
	}
	err := s.svc.Packages.DeleteVersion(c.UserContext(), f.UUID, c.Params("namespace"), c.Params("name"), c.Params("version"))
	if err != nil {
		return err
	}
	return c.JSON(ok("package version deleted successfully"))
}

// --- Tokens / maintainers ---

type tokenReply struct {
	reply
	UploadToken string `json:"uploadToken"`
}

func (s *Server) packageToken(c *fiber.Ctx) error {
	var f sessionForm
	if err := bind(c, &f); err != nil {
		return err
	}
	tok, err := s.svc.Tokens.IssuePackageToken(c.UserContext(), f.UUID, c.Params("namespace"), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(tokenReply{reply: ok("upload token created successfully"), UploadToken: tok})
}

type inviteForm struct {
	UUID     string `json:"uuid" form:"uuid"`
	Username string `json:"username" form:"username"`
}

func (s *Server) inviteMaintainer(c *fiber.Ctx) error {
	var f inviteForm
	if err := bind(c, &f); err != nil {
		return err
	}
	err := s.svc.Packages.InviteMaintainer(c.UserContext(), f.UUID, c.Params("namespace"), c.Params("name"), f.Username)
	if err != nil {
		return err
	}
	return c.JSON(ok("maintainer invitation sent"))
}
