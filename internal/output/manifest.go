package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/jaxxstorm/dhtingest/internal/model"
	"github.com/jaxxstorm/dhtingest/internal/schema"
)

const ManifestFile = "manifest.json"

type Manifest struct {
	RunID       string               `json:"run_id"`
	CreatedAt   time.Time            `json:"created_at"`
	Experiments []ManifestExperiment `json:"experiments"`
	Tables      []ManifestTable      `json:"tables"`
}

type ManifestExperiment struct {
	ID  int    `json:"exp_id"`
	Dir string `json:"dir"`
}

type ManifestTable struct {
	Name    string          `json:"name"`
	File    string          `json:"file"`
	Rows    int             `json:"rows"`
	Columns []schema.Column `json:"columns"`
}

func NewManifest(summary model.RunSummary, files []TableFile) Manifest {
	m := Manifest{RunID: summary.RunID, CreatedAt: time.Now().UTC()}
	for _, exp := range summary.Experiments {
		m.Experiments = append(m.Experiments, ManifestExperiment{ID: exp.ID, Dir: exp.Dir})
	}
	for _, f := range files {
		m.Tables = append(m.Tables, ManifestTable{
			Name:    f.Table.Name,
			File:    filepath.Base(f.Path),
			Rows:    f.Rows,
			Columns: f.Table.Columns,
		})
	}
	return m
}

func WriteManifest(dir string, m Manifest) (string, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ManifestFile)
	return path, os.WriteFile(path, append(b, '\n'), 0o644)
}
