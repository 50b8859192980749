// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func resetStore() {
	once = sync.Once{}
	system = nil
	loadErr = nil
}

func TestDefaultsWrittenOnFirstLoad(t *testing.T) {
	t.Setenv("TEXELOG_CONFIG_DIR", t.TempDir())
	resetStore()

	cfg := System()
	if got := cfg.GetInt64(SectionStream, "max_stored", 0); got != 2000 {
		t.Fatalf("expected stream max_stored 2000, got %d", got)
	}
	if got := cfg.GetInt64(SectionSearch, "trigger", 0); got != 1000 {
		t.Fatalf("expected search trigger 1000, got %d", got)
	}

	path, err := systemConfigPath()
	if err != nil {
		t.Fatalf("systemConfigPath: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var disk Config
	if err := json.Unmarshal(data, &disk); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if disk.Section(SectionHighlight) == nil {
		t.Fatalf("expected %s section on disk", SectionHighlight)
	}
}

func TestPartialFileGetsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEXELOG_CONFIG_DIR", dir)
	resetStore()

	if err := writeConfig(filepath.Join(dir, systemConfigName), Config{
		SectionStream: map[string]interface{}{"max_stored": 5000},
	}); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := System()
	if err := Err(); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if got := cfg.GetInt64(SectionStream, "max_stored", 0); got != 5000 {
		t.Fatalf("expected override 5000, got %d", got)
	}
	if got := cfg.GetInt64(SectionStream, "max_request", 0); got != 2000 {
		t.Fatalf("expected default max_request 2000, got %d", got)
	}
	if got := cfg.GetDuration(SectionSearch, "request_delay_ms", 0); got != 50*time.Millisecond {
		t.Fatalf("expected search delay 50ms, got %v", got)
	}
}

func TestBrokenFileReportsError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEXELOG_CONFIG_DIR", dir)
	resetStore()

	if err := os.WriteFile(filepath.Join(dir, systemConfigName), []byte("{"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := System()
	if Err() == nil {
		t.Fatalf("expected parse error")
	}
	if got := cfg.GetInt64(SectionStream, "trigger", 0); got != 400 {
		t.Fatalf("expected defaults after a broken file, got trigger %d", got)
	}
}

func TestSaveSystemWritesUpdates(t *testing.T) {
	t.Setenv("TEXELOG_CONFIG_DIR", t.TempDir())
	resetStore()

	SetSystem(Config{
		SectionHighlight: map[string]interface{}{
			"filters": []interface{}{"ERROR", "WARN"},
		},
	})
	if err := SaveSystem(); err != nil {
		t.Fatalf("SaveSystem: %v", err)
	}
	if err := Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	filters := System().GetStrings(SectionHighlight, "filters")
	if len(filters) != 2 || filters[0] != "ERROR" || filters[1] != "WARN" {
		t.Fatalf("unexpected filters after reload: %v", filters)
	}
	if got := System().GetString(SectionHighlight, "chroma_style", ""); got != "catppuccin-mocha" {
		t.Fatalf("expected default chroma_style, got %q", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	src := Config{
		"a": map[string]interface{}{"list": []interface{}{"x"}},
	}
	dup := Clone(src)
	dup.Section("a")["list"].([]interface{})[0] = "y"
	if got := src.GetStrings("a", "list"); got[0] != "x" {
		t.Fatalf("clone shares list storage with source: %v", got)
	}
}

func TestTypedGetters(t *testing.T) {
	cfg := Config{
		"s": map[string]interface{}{
			"n":    json.Number("7"),
			"f":    1.5,
			"b":    "true",
			"str":  "v",
			"one":  "solo",
			"ms":   float64(250),
			"bad":  "x",
			"zero": 0,
		},
	}
	if got := cfg.GetInt("s", "n", 0); got != 7 {
		t.Fatalf("GetInt json.Number = %d", got)
	}
	if got := cfg.GetFloat("s", "f", 0); got != 1.5 {
		t.Fatalf("GetFloat = %v", got)
	}
	if !cfg.GetBool("s", "b", false) {
		t.Fatalf("GetBool string true")
	}
	if cfg.GetBool("s", "zero", true) {
		t.Fatalf("GetBool zero should be false")
	}
	if got := cfg.GetInt("s", "bad", 3); got != 3 {
		t.Fatalf("GetInt fallback = %d", got)
	}
	if got := cfg.GetDuration("s", "ms", 0); got != 250*time.Millisecond {
		t.Fatalf("GetDuration = %v", got)
	}
	if got := cfg.GetStrings("s", "one"); len(got) != 1 || got[0] != "solo" {
		t.Fatalf("GetStrings single = %v", got)
	}
	if got := cfg.GetString("missing", "k", "d"); got != "d" {
		t.Fatalf("GetString missing section = %q", got)
	}
}
