package main

import "testing"

func TestLoadConfigDataDir(t *testing.T) {
	dir := t.TempDir()
	cmd, _, err := newRootCmd().Find([]string{"presets"})
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.ParseFlags([]string{"--data-dir", dir, "--codec", "msgpack"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DataDir != dir {
		t.Errorf("expected data dir %s, got %s", dir, cfg.DataDir)
	}
	if cfg.Engine.Codec != "msgpack" {
		t.Errorf("expected codec msgpack, got %s", cfg.Engine.Codec)
	}
}
