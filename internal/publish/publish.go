package publish

import (
	"encoding/json"
	"io"
	"math"

	"github.com/jaxxstorm/dhtingest/internal/integrity"
	"github.com/jaxxstorm/dhtingest/internal/logfs"
	"github.com/jaxxstorm/dhtingest/internal/model"
)

// Participants resolves the surviving nodes of an experiment. Failed nodes
// are not participants.
type Participants interface {
	Node(id string) (model.Node, bool)
}

type record struct {
	CID        string   `json:"cid"`
	TimeMs     float64  `json:"time_ms"`
	Queries    []string `json:"queries"`
	StoreNodes []string `json:"store_nodes,omitempty"`
}

// Ingest reads one node's publish log. Each record expands into one row per
// storage node, or a single row with no storage node.
func Ingest(r io.Reader, name string, src model.Node, peers Participants, experiment int) ([]model.PublishEntry, error) {
	rows := []model.PublishEntry{}
	err := logfs.EachLine(r, func(n int, line string) error {
		expanded, err := Expand(line, src, peers, experiment)
		if err != nil {
			if ierr, ok := integrity.As(err); ok {
				ierr.File = name
				ierr.Line = n
			}
			return err
		}
		rows = append(rows, expanded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Expand turns one publish line into its table rows.
func Expand(line string, src model.Node, peers Participants, experiment int) ([]model.PublishEntry, error) {
	var rec record
	if err := json.Unmarshal([]byte(logfs.Payload(line)), &rec); err != nil {
		return nil, integrity.Violation(integrity.KindMalformedRecord, "", 0, line, "decode publish: %v", err)
	}

	base := model.PublishEntry{
		CID:           rec.CID,
		Source:        src.ID,
		SourceVariant: src.Variant,
		Queries:       len(rec.Queries),
		DurationMs:    int64(math.Round(rec.TimeMs)),
		Experiment:    experiment,
	}
	if len(rec.StoreNodes) == 0 {
		return []model.PublishEntry{base}, nil
	}

	rows := make([]model.PublishEntry, 0, len(rec.StoreNodes))
	for _, node := range rec.StoreNodes {
		peer, ok := peers.Node(node)
		if !ok {
			return nil, integrity.Violation(integrity.KindUnknownStorageNode, "", 0, line,
				"cid %s stored on %s, which is not a surviving participant", rec.CID, node)
		}
		row := base
		row.Storage = &model.StorageRef{Node: peer.ID, Variant: peer.Variant}
		rows = append(rows, row)
	}
	return rows, nil
}
