// Command registry is a CLI client for the package registry.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	addr    string
	timeout time.Duration
}

func (a *app) client() *Client { return NewClient(a.addr) }

func (a *app) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	defAddr := os.Getenv("REGISTRY_ADDR")
	if defAddr == "" {
		defAddr = "http://localhost:8080"
	}

	root := &cobra.Command{
		Use:          "registry",
		Short:        "Package registry client.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.addr, "addr", defAddr, "registry base url")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the client version.",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "registry %s (%s)\n", version, buildDate)
			},
		},
		a.loginCmd(),
		a.logoutCmd(),
		a.signupCmd(),
		a.forgotCmd(),
		a.searchCmd(),
		a.infoCmd(),
		a.uploadCmd(),
		a.tokenCmd(),
		a.deprecateCmd(),
		a.downloadCmd(),
	)
	return root
}

// ---- auth ----

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			s, err := a.client().Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := saveSession(sessionFile{Addr: a.addr, UUID: s.UUID, Username: s.Username}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", s.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the saved session.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			err = a.client().Logout(ctx, s.UUID)
			var apiErr *APIError
			if err != nil && !(errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound) {
				return err
			}
			if err := clearSession(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func (a *app) signupCmd() *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and save the session.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			s, err := a.client().Signup(ctx, username, email, password)
			if err != nil {
				return err
			}
			if s.UUID == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "account created, check your email to set a password")
				return nil
			}
			if err := saveSession(sessionFile{Addr: a.addr, UUID: s.UUID, Username: s.Username}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed up as %s\n", s.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	return cmd
}

func (a *app) forgotCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Send a password reset link.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			if err := a.client().ForgotPassword(ctx, email); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reset link sent")
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

// ---- packages ----

func (a *app) searchCmd() *cobra.Command {
	var page int
	var sortBy string
	var desc bool
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search packages by name, description or tag.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q string
			if len(args) == 1 {
				q = args[0]
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			res, err := a.client().Search(ctx, q, page, sortBy, desc)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number, from 0")
	cmd.Flags().StringVar(&sortBy, "sort-by", "", "name, author, createdat, updatedat or downloads")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	return cmd
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <namespace> <name> [version]",
		Short: "Show a package or one of its versions.",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v string
			if len(args) == 3 {
				v = args[2]
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			doc, err := a.client().Info(ctx, args[0], args[1], v)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), doc)
			return nil
		},
	}
}

func (a *app) uploadCmd() *cobra.Command {
	var token, name, ver, license, desc, copyright, tags, deps string
	cmd := &cobra.Command{
		Use:   "upload <file.tar.gz|->",
		Short: "Publish a tarball.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readAll(args[0])
			if err != nil {
				return err
			}
			if err := checkGzip(data); err != nil {
				return err
			}
			if n, v, ok := splitTarballName(args[0]); ok {
				if name == "" {
					name = n
				}
				if ver == "" {
					ver = v
				}
			}
			if name == "" || ver == "" {
				return errors.New("cannot infer name and version from the file name; pass --name and --version")
			}

			ctx, cancel := a.ctx(cmd)
			defer cancel()
			msg, err := a.client().Upload(ctx, map[string]string{
				"upload_token":        token,
				"package_name":        name,
				"package_version":     ver,
				"package_license":     license,
				"package_description": desc,
				"package_copyright":   copyright,
				"package_tags":        tags,
				"dependencies":        deps,
			}, filepath.Base(name+"-"+ver+tarballExt), data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&token, "token", "t", os.Getenv("REGISTRY_UPLOAD_TOKEN"), "upload token")
	f.StringVar(&name, "name", "", "package name (default: from file name)")
	f.StringVar(&ver, "version", "", "package version (default: from file name)")
	f.StringVarP(&license, "license", "l", "", "SPDX license expression")
	f.StringVar(&desc, "description", "", "package description")
	f.StringVar(&copyright, "copyright", "", "copyright notice")
	f.StringVar(&tags, "tags", "", "comma separated tags")
	f.StringVar(&deps, "dependencies", "", "dependencies descriptor")
	return cmd
}

func (a *app) tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <namespace> [name]",
		Short: "Issue an upload token for a namespace or a package.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			var tok string
			if len(args) == 2 {
				tok, err = a.client().PackageToken(ctx, s.UUID, args[0], args[1])
			} else {
				tok, err = a.client().NamespaceToken(ctx, s.UUID, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}

func (a *app) deprecateCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "deprecate <namespace> <name>",
		Short: "Mark a package deprecated.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			if err := a.client().SetDeprecated(ctx, s.UUID, args[0], args[1], !undo); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "remove the deprecation")
	return cmd
}

func (a *app) downloadCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <namespace> <name> [version]",
		Short: "Download a package tarball (latest by default).",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v string
			if len(args) == 3 {
				v = args[2]
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			c := a.client()
			doc, err := c.Info(ctx, args[0], args[1], v)
			if err != nil {
				return err
			}
			key := "latest_version_data"
			if v != "" {
				key = "version_data"
			}
			vd, _ := doc[key].(map[string]any)
			link, _ := vd["download_url"].(string)
			tarball, _ := vd["tarball"].(string)
			if link == "" {
				return errors.New("registry returned no download url")
			}
			data, err := c.Download(ctx, link)
			if err != nil {
				return err
			}
			if out == "" {
				out = tarball
			}
			if out == "" {
				out = args[1] + tarballExt
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default: tarball name)")
	return cmd
}
