package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePairSpec(t *testing.T) {
	tests := map[string]struct {
		spec     string
		wantSrc  string
		wantDest string
		wantErr  bool
	}{
		"valid":        {spec: "/src=/dest", wantSrc: "/src", wantDest: "/dest"},
		"spaces":       {spec: " /src = /dest ", wantSrc: "/src", wantDest: "/dest"},
		"missing sep":  {spec: "/src", wantErr: true},
		"missing dest": {spec: "/src=", wantErr: true},
		"missing src":  {spec: "=/dest", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			src, dest, err := ParsePairSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePairSpec() error = %v, wantErr %v", err, tt.wantErr)
			}
			if src != tt.wantSrc || dest != tt.wantDest {
				t.Errorf("ParsePairSpec() = (%q, %q), want (%q, %q)", src, dest, tt.wantSrc, tt.wantDest)
			}
		})
	}
}

func TestScaffoldNewSyncfile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dest := filepath.Join(dir, "backup", "dest")
	if err := os.MkdirAll(src, 0o750); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "syncfile.json")

	res, err := Scaffold(path, map[string]string{src: dest})
	if err != nil {
		t.Fatalf("Scaffold() error = %v", err)
	}

	if !res.Created {
		t.Error("expected a new syncfile")
	}
	if len(res.Destinations) != 1 || res.Destinations[0] != dest {
		t.Errorf("Destinations = %v, want [%s]", res.Destinations, dest)
	}
	wantCache := filepath.Join(dest, "cache")
	if len(res.Caches) != 1 || res.Caches[0] != wantCache {
		t.Errorf("Caches = %v, want [%s]", res.Caches, wantCache)
	}
	if info, err := os.Stat(dest); err != nil || !info.IsDir() {
		t.Errorf("destination should be created: %v", err)
	}
	data, err := os.ReadFile(wantCache)
	if err != nil {
		t.Fatalf("cache file should be created: %v", err)
	}
	if string(data) != "{}\n" {
		t.Errorf("cache content = %q, want empty object", string(data))
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sf, err := doc.Syncfile()
	if err != nil {
		t.Fatalf("Syncfile() error = %v", err)
	}
	if sf.Pairs[src] != dest {
		t.Errorf("Pairs[src] = %q, want %q", sf.Pairs[src], dest)
	}
	if sf.CacheDirs[src] != filepath.ToSlash(wantCache) {
		t.Errorf("CacheDirs[src] = %q, want %q", sf.CacheDirs[src], wantCache)
	}
}

func TestScaffoldKeepsExistingEntries(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "dest")
	customCache := filepath.Join(dir, "custom.cache")
	if err := os.MkdirAll(dest, 0o750); err != nil {
		t.Fatal(err)
	}
	writeFile(t, customCache, `{"/a.txt":["x","1.0"]}`)

	path := filepath.Join(dir, "syncfile.yaml")
	sf := New()
	sf.Pairs["/src"] = dest
	sf.CacheDirs["/src"] = customCache
	sf.Ignore = []string{".git"}
	if err := sf.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	res, err := Scaffold(path, nil)
	if err != nil {
		t.Fatalf("Scaffold() error = %v", err)
	}

	if res.Created {
		t.Error("existing syncfile should not be reported as created")
	}
	if len(res.Destinations) != 0 || len(res.Caches) != 0 {
		t.Errorf("nothing should be created, got %+v", res)
	}
	if res.Syncfile.CacheDirs["/src"] != customCache {
		t.Errorf("custom cache file should be kept, got %q", res.Syncfile.CacheDirs["/src"])
	}
	data, err := os.ReadFile(customCache)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"/a.txt":["x","1.0"]}` {
		t.Error("existing cache file should not be overwritten")
	}
}
