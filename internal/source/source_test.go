package source

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/storage"
)

func TestListFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore("")
	for _, k := range []string{"b.png", "notes.txt", "a.JPG", "c.jpeg", "d.webp", "e.svg"} {
		if err := store.Write(ctx, k, []byte("x"), ""); err != nil {
			t.Fatal(err)
		}
	}
	src := New(store)

	tests := []struct {
		max  int
		want []string
	}{
		{max: 0, want: []string{"a.JPG", "b.png", "c.jpeg", "d.webp"}},
		{max: -1, want: []string{"a.JPG", "b.png", "c.jpeg", "d.webp"}},
		{max: 2, want: []string{"a.JPG", "b.png"}},
		{max: 10, want: []string{"a.JPG", "b.png", "c.jpeg", "d.webp"}},
	}
	for _, tt := range tests {
		got, err := src.List(ctx, tt.max)
		if err != nil {
			t.Fatalf("List(%d): %v", tt.max, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("List(%d) = %v, want %v", tt.max, got, tt.want)
		}
	}
}

func TestLoadDerivesMetadata(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore("")
	if err := store.Write(ctx, "distracted_boyfriend-2.png", []byte("png"), ""); err != nil {
		t.Fatal(err)
	}

	a, err := New(store).Load(ctx, "distracted_boyfriend-2.png")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Name != "Viral Meme NFT #distracted_boyfriend-2" {
		t.Errorf("Name = %q", a.Name)
	}
	if a.Filename != "distracted_boyfriend-2.png" || a.Path != "distracted_boyfriend-2.png" {
		t.Errorf("Filename = %q, Path = %q", a.Filename, a.Path)
	}
	if string(a.Data) != "png" {
		t.Errorf("Data = %q", a.Data)
	}
	if a.Description != DefaultDescription {
		t.Errorf("Description = %q", a.Description)
	}
	if len(a.Attributes) != 1 || a.Attributes[0].TraitType != "Meme Template" || a.Attributes[0].Value != "distracted boyfriend 2" {
		t.Errorf("Attributes = %+v", a.Attributes)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := New(storage.NewMemStore("")).Load(context.Background(), "nope.png")
	if err == nil {
		t.Fatal("expected error for a missing asset")
	}
}

func TestTemplateName(t *testing.T) {
	tests := map[string]string{
		"doge":            "doge",
		"__this_is_fine":  "this is fine",
		"galaxy-brain.v2": "galaxy brain v2",
		"!!!":             "",
	}
	for in, want := range tests {
		if got := templateName(in); got != want {
			t.Errorf("templateName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenLocalDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "one.png"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	keys, err := src.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"one.png"}) {
		t.Errorf("keys = %v", keys)
	}

	assets, err := src.LoadAll(ctx, keys)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 1 || string(assets[0].Data) != "1" {
		t.Errorf("assets = %+v", assets)
	}
}

func TestOpenRejectsMissingDir(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for a missing directory")
	}
	if _, err := Open(ctx, ""); err == nil {
		t.Error("expected error for an empty location")
	}

	file := filepath.Join(t.TempDir(), "f.png")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(ctx, file); err == nil {
		t.Error("expected error for a file location")
	}
}
