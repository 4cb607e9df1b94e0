package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jaxxstorm/dhtingest/internal/model"
	"github.com/jaxxstorm/dhtingest/internal/schema"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

func ParseCompression(value string) (Compression, error) {
	switch Compression(value) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, CompressionZstd:
		return Compression(value), nil
	default:
		return "", fmt.Errorf("unsupported compression %q", value)
	}
}

func (c Compression) Suffix() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

type WriteOptions struct {
	Compression Compression
}

// TableFile is a table written to disk.
type TableFile struct {
	Table schema.Table
	Path  string
	Rows  int
}

// WriteTables writes the three tables into dir with a fixed column order.
func WriteTables(dir string, tables model.Tables, opts WriteOptions) ([]TableFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	writers := []struct {
		table schema.Table
		rows  int
		write func(io.Writer) error
	}{
		{schema.Lookups, len(tables.Lookups), func(w io.Writer) error { return WriteLookups(w, tables.Lookups) }},
		{schema.Snapshots, len(tables.Snapshots), func(w io.Writer) error { return WriteSnapshots(w, tables.Snapshots) }},
		{schema.Publishes, len(tables.Publishes), func(w io.Writer) error { return WritePublishes(w, tables.Publishes) }},
	}

	files := make([]TableFile, 0, len(writers))
	for _, tw := range writers {
		path := filepath.Join(dir, tw.table.File+opts.Compression.Suffix())
		if err := writeFile(path, opts.Compression, tw.write); err != nil {
			return nil, fmt.Errorf("write %s: %w", tw.table.Name, err)
		}
		files = append(files, TableFile{Table: tw.table, Path: path, Rows: tw.rows})
	}
	return files, nil
}

func writeFile(path string, compression Compression, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	var (
		w     io.Writer = file
		flush           = func() error { return nil }
	)
	switch compression {
	case CompressionGzip:
		zw := gzip.NewWriter(file)
		w, flush = zw, zw.Close
	case CompressionZstd:
		zw, err := zstd.NewWriter(file)
		if err != nil {
			file.Close()
			return err
		}
		w, flush = zw, zw.Close
	}

	if err := write(w); err != nil {
		file.Close()
		return err
	}
	if err := flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func WriteLookups(w io.Writer, rows []model.LookupRecord) error {
	return writeCSV(w, schema.Lookups, len(rows), func(i int) []string { return LookupRow(rows[i]) })
}

func WriteSnapshots(w io.Writer, rows []model.SnapshotEntry) error {
	return writeCSV(w, schema.Snapshots, len(rows), func(i int) []string { return SnapshotRow(rows[i]) })
}

func WritePublishes(w io.Writer, rows []model.PublishEntry) error {
	return writeCSV(w, schema.Publishes, len(rows), func(i int) []string { return PublishRow(rows[i]) })
}

func writeCSV(w io.Writer, table schema.Table, n int, row func(int) []string) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(table.Header()); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		record := row(i)
		if len(record) != len(table.Columns) {
			return fmt.Errorf("%s row %d has %d fields, want %d", table.Name, i, len(record), len(table.Columns))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func LookupRow(r model.LookupRecord) []string {
	return []string{
		r.Source,
		r.SourceVariant.String(),
		r.CID,
		r.CIDVariant.String(),
		strconv.FormatInt(r.ElapsedMs, 10),
		strconv.Itoa(r.Providers),
		strconv.Itoa(r.Queries),
		strconv.Itoa(r.Experiment),
	}
}

func SnapshotRow(s model.SnapshotEntry) []string {
	return []string{
		s.Source,
		s.SourceVariant.String(),
		s.Dest,
		s.DestVariant.String(),
		strconv.Itoa(s.Snapshot),
		strconv.Itoa(s.Bucket),
		strconv.Itoa(s.Experiment),
	}
}

// PublishRow leaves the storage cells empty for records with no storage node.
func PublishRow(p model.PublishEntry) []string {
	node, variant := "", ""
	if p.Storage != nil {
		node, variant = p.Storage.Node, p.Storage.Variant.String()
	}
	return []string{
		p.CID,
		p.Source,
		p.SourceVariant.String(),
		strconv.Itoa(p.Queries),
		strconv.FormatInt(p.DurationMs, 10),
		node,
		variant,
		strconv.Itoa(p.Experiment),
	}
}
