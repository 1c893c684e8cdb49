package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPreviewCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clip.mp4")
	font := filepath.Join(dir, "font.ttf")
	for _, p := range []string{input, font} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"preview", "-i", input, "--font", font, "--text", "Hello", "--speed", "1.5", "--anchor", "top"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("preview: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"overlay: caption",
		"scale=1080:1920",
		"atempo=1.5",
		"Dialogue:",
		"Hello",
		"-vf",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("preview output missing %q:\n%s", want, got)
		}
	}
}

func TestShellJoin(t *testing.T) {
	got := shellJoin("ffmpeg", []string{"-i", "my clip.mp4", "-y"})
	if got != `ffmpeg -i "my clip.mp4" -y` {
		t.Errorf("shellJoin = %s", got)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp4")
	dst := filepath.Join(dir, "nested", "b.mp4")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := moveFile(src, dst); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(dst); string(data) != "data" {
		t.Errorf("dst = %q", data)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("src should be gone")
	}
}
