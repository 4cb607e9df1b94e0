package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaxxstorm/dhtingest/internal/model"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTables() model.Tables {
	return model.Tables{
		Lookups: []model.LookupRecord{
			{Source: "A", SourceVariant: model.VariantSecure, CID: "c1", CIDVariant: model.VariantNormal, ElapsedMs: 120, Providers: 1, Queries: 3, Experiment: 0},
		},
		Snapshots: []model.SnapshotEntry{
			{Source: "A", SourceVariant: model.VariantSecure, Dest: "boot", DestVariant: model.VariantBootstrap, Snapshot: 2, Bucket: 5, Experiment: 1},
		},
		Publishes: []model.PublishEntry{
			{CID: "x", Source: "B", SourceVariant: model.VariantNormal, Queries: 2, DurationMs: 900},
			{CID: "y", Source: "B", SourceVariant: model.VariantNormal, Queries: 1, DurationMs: 10, Storage: &model.StorageRef{Node: "A", Variant: model.VariantSecure}},
		},
	}
}

func TestWritePublishesNullStorage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePublishes(&buf, sampleTables().Publishes))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"cid", "src-pid", "src-dht", "queries-nr", "duration-time (ms)", "storage-node", "storage-dht", "exp-id"}, records[0])
	assert.Equal(t, []string{"x", "B", "Normal", "2", "900", "", "", "0"}, records[1])
	assert.Equal(t, []string{"y", "B", "Normal", "1", "10", "A", "Secure", "0"}, records[2])
}

func TestWriteTablesPlain(t *testing.T) {
	dir := t.TempDir()
	files, err := WriteTables(dir, sampleTables(), WriteOptions{Compression: CompressionNone})
	require.NoError(t, err)
	require.Len(t, files, 3)

	data, err := os.ReadFile(filepath.Join(dir, "snapshots.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "src-pid,src-dht,dst-pid,dst-dht,snapshot-nr,bucket-nr,exp-id", lines[0])
	assert.Equal(t, "A,Secure,boot,Bootstrap,2,5,1", lines[1])

	data, err = os.ReadFile(filepath.Join(dir, "lookups.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "A,Secure,c1,Normal,120,1,3,0")
}

func TestWriteTablesZstd(t *testing.T) {
	dir := t.TempDir()
	files, err := WriteTables(dir, sampleTables(), WriteOptions{Compression: CompressionZstd})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lookups.csv.zst"), files[0].Path)

	f, err := os.Open(files[0].Path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "pid,peer-dht,cid,"))
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)
	assert.Equal(t, ".gz", CompressionGzip.Suffix())
	_, err = ParseCompression("lz4")
	assert.Error(t, err)
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()
	files, err := WriteTables(dir, sampleTables(), WriteOptions{})
	require.NoError(t, err)

	summary := model.RunSummary{RunID: "run-1", Experiments: []model.ExperimentSummary{{ID: 0, Dir: "/a"}, {ID: 1, Dir: "/b"}}}
	path, err := WriteManifest(dir, NewManifest(summary, files))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "run-1", m.RunID)
	require.Len(t, m.Experiments, 2)
	assert.Equal(t, "/b", m.Experiments[1].Dir)
	require.Len(t, m.Tables, 3)
	assert.Equal(t, "publishes.csv", m.Tables[2].File)
	assert.Equal(t, 2, m.Tables[2].Rows)
}

func TestRenderSummary(t *testing.T) {
	summary := model.RunSummary{
		RunID: "run-1",
		Experiments: []model.ExperimentSummary{
			{ID: 0, Dir: "/a", Nodes: 2, FailedNodes: []string{"C"}, Lookups: 4, Skipped: map[model.SkipReason]int{model.SkipUnresolvedCID: 1}},
		},
	}
	pretty := RenderPretty(summary)
	assert.Contains(t, pretty, "lookups=4")
	assert.Contains(t, pretty, "failed: C")
	assert.Contains(t, pretty, "unresolved_cid=1")

	rendered, err := RenderJSON(summary)
	require.NoError(t, err)
	assert.Contains(t, rendered, `"run_id": "run-1"`)
}
