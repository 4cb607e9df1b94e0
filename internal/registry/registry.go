package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"

	"github.com/jaxxstorm/dhtingest/internal/integrity"
	"github.com/jaxxstorm/dhtingest/internal/logfs"
	"github.com/jaxxstorm/dhtingest/internal/model"
	"go.uber.org/zap"
)

const (
	LogCIDs    = "cids"
	LogLookups = "lookup-times"
	LogPeers   = "peers"
	LogPublish = "publish"
)

// DefaultRequiredLogs are the per-node logs a node must have written to
// count as having survived the experiment. Other missing logs on a
// surviving node are skipped.
var DefaultRequiredLogs = []string{LogCIDs}

// LogName returns the file name of a node's log of the given kind.
func LogName(id, kind string) string {
	return fmt.Sprintf("%s-%s.log", id, kind)
}

type Config struct {
	RequiredLogs []string
	Logger       *zap.Logger
}

// Registry holds the participants of one experiment.
type Registry struct {
	nodes    map[string]model.Node
	failed   map[string]struct{}
	declared map[string]struct{}
}

type infoFile struct {
	ID   string `json:"id"`
	Mode string `json:"mode"`
}

// Load reads every info file in src and splits the declared nodes into
// survivors and failed nodes.
func Load(src logfs.Source, cfg Config) (*Registry, error) {
	if len(cfg.RequiredLogs) == 0 {
		cfg.RequiredLogs = DefaultRequiredLogs
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	names, err := src.List("*.info")
	if err != nil {
		return nil, fmt.Errorf("list info files: %w", err)
	}

	reg := &Registry{
		nodes:    map[string]model.Node{},
		failed:   map[string]struct{}{},
		declared: map[string]struct{}{},
	}
	for _, name := range names {
		node, err := readInfo(src, name)
		if err != nil {
			return nil, err
		}
		if _, dup := reg.declared[node.ID]; dup {
			return nil, integrity.Violation(integrity.KindDuplicateNode, name, 0, node.ID, "peer %s declared more than once", node.ID)
		}
		reg.declared[node.ID] = struct{}{}

		if missing := missingLogs(src, node.ID, cfg.RequiredLogs); len(missing) > 0 {
			cfg.Logger.Warn("node failed during experiment, removing it",
				zap.String("peer", node.ID),
				zap.Strings("missing", missing),
			)
			reg.failed[node.ID] = struct{}{}
			continue
		}
		reg.nodes[node.ID] = node
	}

	cfg.Logger.Debug("registry loaded",
		zap.String("source", src.Name()),
		zap.Int("nodes", len(reg.nodes)),
		zap.Int("failed", len(reg.failed)),
	)
	return reg, nil
}

func readInfo(src logfs.Source, name string) (model.Node, error) {
	rc, err := src.Open(name)
	if err != nil {
		return model.Node{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return model.Node{}, fmt.Errorf("read %s: %w", name, err)
	}
	var info infoFile
	if err := json.Unmarshal(data, &info); err != nil {
		return model.Node{}, integrity.Violation(integrity.KindMalformedRecord, name, 0, string(data), "decode info: %v", err)
	}
	info.ID = strings.TrimSpace(info.ID)
	if info.ID == "" {
		return model.Node{}, integrity.Violation(integrity.KindMalformedRecord, name, 0, string(data), "info file without peer id")
	}
	variant, err := model.ParseVariant(info.Mode)
	if err != nil {
		return model.Node{}, integrity.Violation(integrity.KindBadMode, name, 0, string(data), "peer %s: %v", info.ID, err)
	}
	return model.Node{ID: info.ID, Variant: variant}, nil
}

func missingLogs(src logfs.Source, id string, kinds []string) []string {
	missing := []string{}
	for _, kind := range kinds {
		if !logfs.Exists(src, LogName(id, kind)) {
			missing = append(missing, LogName(id, kind))
		}
	}
	return missing
}

// IDs returns the surviving peer ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Node(id string) (model.Node, bool) {
	node, ok := r.nodes[id]
	return node, ok
}

func (r *Registry) Len() int {
	return len(r.nodes)
}

func (r *Registry) IsFailed(id string) bool {
	_, ok := r.failed[id]
	return ok
}

// Failed returns the failed peer ids in sorted order.
func (r *Registry) Failed() []string {
	ids := make([]string, 0, len(r.failed))
	for id := range r.failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Destination classifies a routing-table reference. Failed peers are
// reported with ok=false; unknown peers are bootstrap peers.
func (r *Registry) Destination(id string) (model.Variant, bool) {
	if r.IsFailed(id) {
		return 0, false
	}
	if node, ok := r.nodes[id]; ok {
		return node.Variant, true
	}
	return model.VariantBootstrap, true
}

// OpenLog opens a node's log of the given kind. A missing log yields an
// error satisfying IsMissing.
func OpenLog(src logfs.Source, id, kind string) (io.ReadCloser, error) {
	return src.Open(LogName(id, kind))
}

func IsMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
