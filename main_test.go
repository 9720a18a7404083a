package main

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/soocke/board-calibrator-go/config"
	"github.com/soocke/board-calibrator-go/domain/geometry"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		" warn": slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := parseLevel(in)
		if err != nil || got != want {
			t.Errorf("parseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewLogger_FiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, slog.LevelWarn)
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestParseQuad(t *testing.T) {
	q, err := parseQuad("1,2; 3.5,4;5,6;7,8")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q[geometry.TopRight] != geometry.Pt(3.5, 4) || q[geometry.BottomLeft] != geometry.Pt(7, 8) {
		t.Fatalf("unexpected quad %v", q)
	}
	for _, bad := range []string{"", "1,2;3,4;5,6", "1,2;3,4;5,6;x,8", "1;3,4;5,6;7,8"} {
		if _, err := parseQuad(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibrator.json")
	if _, err := execute(t, "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := execute(t, "--config", path, "config", "init"); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if _, err := execute(t, "--config", path, "config", "init", "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil || cfg.BoardWidth != config.DefaultConfig().BoardWidth {
		t.Fatalf("load written config: %+v %v", cfg, err)
	}
}

func TestRectifyCommand_WithQuad(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(img, image.Rect(0, 0, 50, 100), image.NewUniform(color.RGBA{255, 0, 0, 255}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(50, 0, 100, 100), image.NewUniform(color.RGBA{0, 255, 0, 255}), image.Point{}, draw.Src)
	if err := imaging.Save(img, in); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "--config", filepath.Join(dir, "none.json"),
		"rectify", in, "--quad", "0,0;100,0;100,100;0,100", "--board", "40x20", "-o", out)
	if err != nil {
		t.Fatalf("rectify: %v", err)
	}
	got, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	if b := got.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Fatalf("unexpected output size %v", b)
	}
	if r, g, _, _ := got.At(5, 10).RGBA(); r>>8 < 200 || g>>8 > 50 {
		t.Fatalf("left half should be red, got r=%d g=%d", r>>8, g>>8)
	}
	if r, g, _, _ := got.At(35, 10).RGBA(); g>>8 < 200 || r>>8 > 50 {
		t.Fatalf("right half should be green, got r=%d g=%d", r>>8, g>>8)
	}
}

func TestRectifyCommand_NoMarkers(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "blank.png")
	if err := imaging.Save(imaging.New(60, 60, color.White), in); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--config", filepath.Join(dir, "none.json"), "rectify", in, "-o", filepath.Join(dir, "o.png")); err == nil {
		t.Fatalf("expected recognition miss")
	}
}
