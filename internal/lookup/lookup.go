package lookup

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/jaxxstorm/dhtingest/internal/integrity"
	"github.com/jaxxstorm/dhtingest/internal/logfs"
	"github.com/jaxxstorm/dhtingest/internal/model"
	"go.uber.org/zap"
)

// Policy decides what happens to lookups of cids no surviving node owns.
type Policy string

const (
	PolicyDrop Policy = "drop"
	PolicyKeep Policy = "keep"
)

func ParsePolicy(value string) (Policy, error) {
	switch Policy(value) {
	case PolicyDrop, PolicyKeep:
		return Policy(value), nil
	case "":
		return PolicyDrop, nil
	default:
		return "", fmt.Errorf("unknown unresolved cid policy %q", value)
	}
}

// Owners resolves a cid to the variant of the node that originated it.
type Owners interface {
	Lookup(cid string) (model.Variant, bool)
}

type Config struct {
	Unresolved Policy
	Experiment int
	Logger     *zap.Logger
}

type record struct {
	CID       string   `json:"cid"`
	TimeMs    float64  `json:"time_ms"`
	Providers []string `json:"providers"`
	Queries   []string `json:"queries"`
	Type      string   `json:"type,omitempty"`
}

// Outcome is the result of one log line: either a row or a skip.
type Outcome struct {
	Record *model.LookupRecord
	Skip   *model.Skip
}

// Ingest reads one node's lookup log.
func Ingest(r io.Reader, name string, src model.Node, owners Owners, cfg Config) ([]model.LookupRecord, []model.Skip, error) {
	if cfg.Unresolved == "" {
		cfg.Unresolved = PolicyDrop
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	rows := []model.LookupRecord{}
	skips := []model.Skip{}
	err := logfs.EachLine(r, func(n int, line string) error {
		out, err := Classify(line, src, owners, cfg)
		if err != nil {
			if ierr, ok := integrity.As(err); ok {
				ierr.File = name
				ierr.Line = n
			}
			return err
		}
		if out.Skip != nil {
			out.Skip.File = name
			out.Skip.Line = n
			cfg.Logger.Debug("discarding lookup record", zap.String("file", name), zap.Int("line", n), zap.String("reason", string(out.Skip.Reason)))
			skips = append(skips, *out.Skip)
			return nil
		}
		rows = append(rows, *out.Record)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return rows, skips, nil
}

// Classify validates a single lookup line against the ownership index.
func Classify(line string, src model.Node, owners Owners, cfg Config) (Outcome, error) {
	var rec record
	if err := json.Unmarshal([]byte(logfs.Payload(line)), &rec); err != nil {
		return Outcome{}, integrity.Violation(integrity.KindMalformedRecord, "", 0, line, "decode lookup: %v", err)
	}

	owner, ok := owners.Lookup(rec.CID)
	if !ok {
		if len(rec.Providers) != 0 {
			return Outcome{}, integrity.Violation(integrity.KindUnresolvedWithProviders, "", 0, line,
				"cid %s has no owner but %d providers", rec.CID, len(rec.Providers))
		}
		if cfg.Unresolved == PolicyDrop {
			return Outcome{Skip: &model.Skip{Reason: model.SkipUnresolvedCID, Detail: rec.CID}}, nil
		}
		owner = model.VariantUnresolved
	} else if rec.Type != "" && owner != model.VariantDefault {
		declared, err := model.ParseVariant(rec.Type)
		if err != nil {
			return Outcome{}, integrity.Violation(integrity.KindBadMode, "", 0, line, "cid %s: %v", rec.CID, err)
		}
		if declared != owner {
			return Outcome{}, integrity.Violation(integrity.KindCIDTypeMismatch, "", 0, line,
				"cid %s reported as %s but owned by a %s node", rec.CID, declared, owner)
		}
	}

	if len(rec.Providers) > 1 {
		return Outcome{}, integrity.Violation(integrity.KindTooManyProviders, "", 0, line,
			"cid %s has %d providers", rec.CID, len(rec.Providers))
	}

	return Outcome{Record: &model.LookupRecord{
		Source:        src.ID,
		SourceVariant: src.Variant,
		CID:           rec.CID,
		CIDVariant:    owner,
		ElapsedMs:     int64(math.Round(rec.TimeMs)),
		Providers:     len(rec.Providers),
		Queries:       len(rec.Queries),
		Experiment:    cfg.Experiment,
	}}, nil
}
