package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// ---- session store ----

type sessionFile struct {
	Addr     string `json:"addr"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
}

var errNoSession = errors.New("not logged in (run login first)")

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "pkg-registry")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pkg-registry")
}

func sessionPath() string { return filepath.Join(cfgDir(), "session.json") }

func saveSession(s sessionFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sessionPath(), b, 0o600)
}

func loadSession() (sessionFile, error) {
	b, err := os.ReadFile(sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return sessionFile{}, errNoSession
	}
	if err != nil {
		return sessionFile{}, err
	}
	var s sessionFile
	if err := json.Unmarshal(b, &s); err != nil {
		return sessionFile{}, err
	}
	if s.UUID == "" {
		return sessionFile{}, errNoSession
	}
	return s, nil
}

func clearSession() error {
	err := os.Remove(sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
