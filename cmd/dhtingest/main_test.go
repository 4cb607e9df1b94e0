package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/jaxxstorm/dhtingest/internal/integrity"
)

func TestParseRequiresDirectory(t *testing.T) {
	cli := CLI{}
	if _, err := kong.Must(&cli).Parse(nil); err == nil {
		t.Fatalf("expected an error when no directory is given")
	}
}

func TestParseIngestIsDefault(t *testing.T) {
	cli := CLI{}
	ctx, err := kong.Must(&cli).Parse([]string{"exp1", "exp2", "--compress", "zstd"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ctx.Selected() == nil || ctx.Selected().Name != "ingest" {
		t.Fatalf("expected ingest command, got %v", ctx.Command())
	}
	if len(cli.Ingest.Dirs) != 2 || cli.Ingest.Dirs[1] != "exp2" || cli.Ingest.Compress != "zstd" {
		t.Fatalf("unexpected flags: %#v", cli.Ingest)
	}
}

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	if err := os.WriteFile(path, []byte("out_dir: /from/file\ncompression: gzip\nparallelism: 4\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := resolveConfig(IngestCmd{Config: path, Out: "/from/flag", Unresolved: "keep"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.OutDir != "/from/flag" || cfg.Compression != "gzip" || cfg.Parallelism != 4 || cfg.UnresolvedCIDs != "keep" {
		t.Fatalf("unexpected config: %#v", cfg)
	}
}

func TestResolveConfigRejectsBadValues(t *testing.T) {
	if _, err := resolveConfig(IngestCmd{Compress: "rar"}); err == nil {
		t.Fatalf("expected error for unknown compression")
	}
}

func TestReportFailureNamesInvariant(t *testing.T) {
	ierr := integrity.Violation(integrity.KindTooManyProviders, "A-lookup-times.log", 4, `{"cid":"x"}`, "cid x has 2 providers")
	ierr.Dir = "/exp/1"

	var buf bytes.Buffer
	reportFailure(&buf, fmt.Errorf("experiment 1: %w", ierr))
	out := buf.String()
	for _, want := range []string{"TOO_MANY_PROVIDERS", "at most one provider", "/exp/1", `{"cid":"x"}`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}
