package checker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"sidecheck/internal/diag"
	"sidecheck/internal/project"
)

const goMod = "module example.com/demo\n\ngo 1.22\n"

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func newChecker(t *testing.T, opts Options) *Go {
	t.Helper()
	g, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func allFiles(t *testing.T, root string) []string {
	t.Helper()
	files, err := project.ListGoFiles(root)
	if err != nil {
		t.Fatalf("ListGoFiles: %v", err)
	}
	return files
}

func check(t *testing.T, g *Go, req Request) []diag.Diagnostic {
	t.Helper()
	out, err := g.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	return out
}

func TestCheckReportsTypeErrors(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod":   goMod,
		"a/a.go":   "package a\n\nvar X int = \"text\"\n",
		"b/b.go":   "package b\n\nfunc F() int { return 1 }\n",
		"main.go":  "package main\n\nfunc main() { undefinedCall() }\n",
		"a/doc.go": "// Package a is fine.\npackage a\n",
	})
	g := newChecker(t, Options{Root: root})
	out := check(t, g, Request{Files: allFiles(t, root)})

	if len(out) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d: %v", len(out), out)
	}
	if out[0].File != "a/a.go" || out[0].Line != 3 || out[0].Code != diag.TypeError {
		t.Fatalf("unexpected first diagnostic: %+v", out[0])
	}
	if !strings.Contains(out[0].Message, "cannot use") {
		t.Fatalf("unexpected message: %q", out[0].Message)
	}
	if out[1].File != "main.go" || !strings.Contains(out[1].Message, "undefinedCall") {
		t.Fatalf("unexpected second diagnostic: %+v", out[1])
	}
	for _, d := range out {
		if d.Source != diag.SourceTypeCheck || d.Severity != diag.SevError {
			t.Fatalf("type errors must be typecheck errors: %+v", d)
		}
	}
}

func TestCheckOnlyReportsRequestedFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod":     goMod,
		"a/a.go":     "package a\n\nvar X int = \"a\"\n",
		"a/other.go": "package a\n\nvar Y int = \"b\"\n",
	})
	g := newChecker(t, Options{Root: root})
	out := check(t, g, Request{Files: []string{"a/other.go"}})
	if len(out) != 1 || out[0].File != "a/other.go" {
		t.Fatalf("expected only a/other.go, got %v", out)
	}
}

func TestIncrementalRecheckFollowsDependents(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod":         goMod,
		"lib/lib.go":     "package lib\n\nfunc Value() int { return 1 }\n",
		"app/app.go":     "package app\n\nimport \"example.com/demo/lib\"\n\nvar N int = lib.Value()\n",
		"other/other.go": "package other\n\nconst K = 1\n",
	})
	g := newChecker(t, Options{Root: root})
	files := allFiles(t, root)
	if out := check(t, g, Request{Files: files}); len(out) != 0 {
		t.Fatalf("expected a clean project, got %v", out)
	}
	if got := g.LastStats().Checked; got != 3 {
		t.Fatalf("first request should check every package, checked %d", got)
	}

	writeTree(t, root, map[string]string{
		"lib/lib.go": "package lib\n\nfunc Value() string { return \"one\" }\n",
	})
	out := check(t, g, Request{Files: files, Changed: []string{"lib/lib.go"}})
	if len(out) != 1 {
		t.Fatalf("expected the dependent to break, got %v", out)
	}
	if out[0].File != "app/app.go" || out[0].Code != diag.TypeError {
		t.Fatalf("unexpected diagnostic: %+v", out[0])
	}
	if got := g.LastStats().Checked; got != 2 {
		t.Fatalf("only lib and app should be re-checked, checked %d", got)
	}
}

func TestNoOpCheckIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod": goMod,
		"a/a.go": "package a\n\nvar X int = \"a\"\n",
	})
	g := newChecker(t, Options{Root: root})
	files := allFiles(t, root)
	first := check(t, g, Request{Files: files})
	second := check(t, g, Request{Files: files, Changed: []string{"a/a.go"}})

	if !slices.Equal(first, second) {
		t.Fatalf("repeated check differs:\n%v\n%v", first, second)
	}
	if st := g.LastStats(); st.Checked != 0 || st.Invalidated != 0 {
		t.Fatalf("an unchanged file must not trigger work: %+v", st)
	}
}

func TestImportCycleReportedOnEveryMember(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod": goMod,
		"a/a.go": "package a\n\nimport \"example.com/demo/b\"\n\nvar A = b.B\n",
		"b/b.go": "package b\n\nimport \"example.com/demo/a\"\n\nvar B = a.A\n",
	})
	full := check(t, newChecker(t, Options{Root: root}), Request{Files: []string{"a/a.go", "b/b.go"}})
	if len(full) != 2 {
		t.Fatalf("expected one cycle diagnostic per member, got %v", full)
	}
	for _, d := range full {
		if d.Code != diag.TypeImportCycle {
			t.Fatalf("expected ImportCycle, got %+v", d)
		}
	}
	if full[0].Message != "import cycle not allowed: example.com/demo/a -> example.com/demo/b -> example.com/demo/a" {
		t.Fatalf("unexpected message: %q", full[0].Message)
	}

	// each member checked on its own gives the same answer
	onlyA := check(t, newChecker(t, Options{Root: root}), Request{Files: []string{"a/a.go"}})
	onlyB := check(t, newChecker(t, Options{Root: root}), Request{Files: []string{"b/b.go"}})
	if !slices.Equal(append(onlyA, onlyB...), full) {
		t.Fatalf("split checks differ:\n%v\n%v\n%v", onlyA, onlyB, full)
	}
}

func TestSyntaxErrorsHideTypeErrors(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod": goMod,
		"a/a.go": "package a\n\nfunc F( {\n",
		"a/b.go": "package a\n\nvar X int = \"a\"\n",
	})
	out := check(t, newChecker(t, Options{Root: root}), Request{Files: allFiles(t, root)})
	if len(out) == 0 {
		t.Fatal("expected syntax errors")
	}
	for _, d := range out {
		if d.Code != diag.SynError || d.File != "a/a.go" {
			t.Fatalf("only syntax errors expected, got %+v", d)
		}
	}
}

func TestLintFindingsAreWarnings(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod":     goMod,
		"a/a.go":     "package a\n\nfunc F() int {\n\tx := 1\n\tx = x\n\treturn x\n}\n",
		"b/b.go":     "package b\n\nfunc G(v int) bool {\n\treturn v == 1 || v == 1\n}\n",
		"bad/bad.go": "package bad\n\nfunc H() int {\n\tx := 1\n\tx = x\n\treturn \"no\"\n}\n",
	})
	g := newChecker(t, Options{Root: root, EnableLint: true})
	out := check(t, g, Request{Files: allFiles(t, root)})

	var lint, typeErrs int
	for _, d := range out {
		switch d.Source {
		case diag.SourceLint:
			lint++
			if d.Severity != diag.SevWarning || d.File == "bad/bad.go" {
				t.Fatalf("unexpected lint finding: %+v", d)
			}
		case diag.SourceTypeCheck:
			typeErrs++
		}
	}
	if lint != 2 {
		t.Fatalf("expected assign and bools findings, got %d in %v", lint, out)
	}
	if typeErrs != 1 {
		t.Fatalf("expected the type error of bad/bad.go, got %v", out)
	}
	if !strings.HasPrefix(out[0].Message, "assign: self-assignment of x") {
		t.Fatalf("unexpected first finding: %+v", out[0])
	}
}

func TestDeletedDependencyBreaksImporter(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod":     goMod,
		"lib/lib.go": "package lib\n\nconst V = 1\n",
		"app/app.go": "package app\n\nimport \"example.com/demo/lib\"\n\nconst W = lib.V\n",
	})
	g := newChecker(t, Options{Root: root})
	if out := check(t, g, Request{Files: allFiles(t, root)}); len(out) != 0 {
		t.Fatalf("expected clean project, got %v", out)
	}
	if err := os.RemoveAll(filepath.Join(root, "lib")); err != nil {
		t.Fatal(err)
	}
	out := check(t, g, Request{Files: allFiles(t, root), Changed: []string{"lib/lib.go"}})
	if len(out) == 0 || out[0].Code != diag.TypeMissingImport || out[0].File != "app/app.go" {
		t.Fatalf("expected a missing import on app, got %v", out)
	}
}

func TestFullRebuildDropsState(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod": goMod,
		"a/a.go": "package a\n\nconst A = 1\n",
		"b/b.go": "package b\n\nconst B = 2\n",
	})
	g := newChecker(t, Options{Root: root})
	files := allFiles(t, root)
	check(t, g, Request{Files: files})
	check(t, g, Request{Files: files, FullRebuild: true})
	if st := g.LastStats(); st.Checked != 2 || st.FilesRead != 2 {
		t.Fatalf("full rebuild must re-read and re-check everything: %+v", st)
	}
}

func TestRepeatedReparsesResetFileSet(t *testing.T) {
	old := reparseLimit
	reparseLimit = 2
	t.Cleanup(func() { reparseLimit = old })

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod": goMod,
		"a/a.go": "package a\n\nconst A = 1\n",
		"b/b.go": "package b\n\nvar B int = \"x\"\n",
	})
	g := newChecker(t, Options{Root: root})
	files := allFiles(t, root)
	check(t, g, Request{Files: files})
	fset := g.fset

	for i := range 2 {
		writeTree(t, root, map[string]string{"a/a.go": fmt.Sprintf("package a\n\nconst A = %d\n", i+2)})
		check(t, g, Request{Files: files, Changed: []string{"a/a.go"}})
		if g.fset != fset {
			t.Fatalf("edit %d: file set replaced before the limit", i+1)
		}
	}

	out := check(t, g, Request{Files: files})
	if g.fset == fset {
		t.Fatalf("file set kept after %d re-parses", reparseLimit)
	}
	if st := g.LastStats(); st.FilesRead != 2 || g.reparsed != 0 {
		t.Fatalf("reset must re-read every file: %+v, reparsed %d", st, g.reparsed)
	}
	if len(out) != 1 || out[0].File != "b/b.go" {
		t.Fatalf("diagnostics changed across the reset: %v", out)
	}
}

func TestProjectWithoutGoMod(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.go": "package demo\n\nvar N int = \"x\"\n",
	})
	out := check(t, newChecker(t, Options{Root: root}), Request{Files: allFiles(t, root)})
	if len(out) == 0 || out[0].File != "index.go" {
		t.Fatalf("expected a diagnostic on index.go, got %v", out)
	}
}

func TestThirdPartyImportsResolveOutsideProjectDir(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "app")
	writeTree(t, base, map[string]string{
		"dep/go.mod":  "module example.com/dep\n\ngo 1.22\n",
		"dep/dep.go":  "package dep\n\nfunc Answer() int { return 42 }\n",
		"app/go.mod":  goMod + "\nrequire example.com/dep v0.0.0\n\nreplace example.com/dep => ../dep\n",
		"app/main.go": "package demo\n\nimport \"example.com/dep\"\n\nvar N int = dep.Answer()\n",
	})
	t.Setenv("GOWORK", "off")
	t.Setenv("GOFLAGS", "")
	t.Chdir("/")

	out := check(t, newChecker(t, Options{Root: root}), Request{Files: allFiles(t, root)})
	if len(out) != 0 {
		t.Fatalf("expected no diagnostics when checking from outside the project, got %v", out)
	}
}

func TestDiskCacheServesUnchangedPackages(t *testing.T) {
	root := t.TempDir()
	cacheDir := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod":     goMod,
		"lib/lib.go": "package lib\n\nvar L int = \"lib\"\n",
		"app/app.go": "package app\n\nimport \"example.com/demo/lib\"\n\nvar A = lib.L\n",
	})
	files := allFiles(t, root)

	cold := newChecker(t, Options{Root: root, CacheDir: cacheDir})
	want := check(t, cold, Request{Files: files})

	warm := newChecker(t, Options{Root: root, CacheDir: cacheDir})
	got := check(t, warm, Request{Files: files})
	if !slices.Equal(got, want) {
		t.Fatalf("cached diagnostics differ:\n%v\n%v", got, want)
	}
	if st := warm.LastStats(); st.CacheHits != 2 || st.Checked != 0 {
		t.Fatalf("expected every package from cache: %+v", st)
	}

	rebuild := newChecker(t, Options{Root: root, CacheDir: cacheDir, FullRebuildOnInit: true})
	check(t, rebuild, Request{Files: files})
	if st := rebuild.LastStats(); st.CacheHits != 0 || st.Checked != 2 {
		t.Fatalf("fullRebuildOnInit must ignore the cache: %+v", st)
	}

	// a dirty importer of a cached package needs its types, not only its diagnostics
	writeTree(t, root, map[string]string{
		"app/app.go": "package app\n\nimport \"example.com/demo/lib\"\n\nvar A string = lib.L\n",
	})
	out := check(t, warm, Request{Files: files, Changed: []string{"app/app.go"}})
	if len(out) != 2 {
		t.Fatalf("expected lib error plus app mismatch, got %v", out)
	}
}
