package model

import (
	"fmt"
	"strings"
)

// Variant is the DHT configuration a peer runs, plus the two sentinels
// introduced while reconciling references across nodes.
type Variant uint8

const (
	VariantSecure Variant = iota
	VariantNormal
	VariantDefault
	VariantBootstrap
	VariantUnresolved
)

var variantNames = map[Variant]string{
	VariantSecure:     "Secure",
	VariantNormal:     "Normal",
	VariantDefault:    "Default",
	VariantBootstrap:  "Bootstrap",
	VariantUnresolved: "Unresolved",
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Variant(%d)", uint8(v))
}

// Participant reports whether v is a mode a node can declare.
func (v Variant) Participant() bool {
	return v == VariantSecure || v == VariantNormal || v == VariantDefault
}

func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// ParseVariant maps a declared node mode to a Variant. Only the three
// participant modes are accepted.
func ParseVariant(mode string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "secure":
		return VariantSecure, nil
	case "normal":
		return VariantNormal, nil
	case "default":
		return VariantDefault, nil
	default:
		return 0, fmt.Errorf("invalid dht mode %q", mode)
	}
}

type Node struct {
	ID      string  `json:"id"`
	Variant Variant `json:"variant"`
}

type LookupRecord struct {
	Source        string
	SourceVariant Variant
	CID           string
	CIDVariant    Variant
	ElapsedMs     int64
	Providers     int
	Queries       int
	Experiment    int
}

type SnapshotEntry struct {
	Source        string
	SourceVariant Variant
	Dest          string
	DestVariant   Variant
	Snapshot      int
	Bucket        int
	Experiment    int
}

// StorageRef is a peer that ended up storing a provider record.
type StorageRef struct {
	Node    string
	Variant Variant
}

type PublishEntry struct {
	CID           string
	Source        string
	SourceVariant Variant
	Queries       int
	DurationMs    int64
	Storage       *StorageRef
	Experiment    int
}

type Tables struct {
	Lookups   []LookupRecord
	Snapshots []SnapshotEntry
	Publishes []PublishEntry
}

// Append concatenates other onto t, preserving order.
func (t *Tables) Append(other Tables) {
	t.Lookups = append(t.Lookups, other.Lookups...)
	t.Snapshots = append(t.Snapshots, other.Snapshots...)
	t.Publishes = append(t.Publishes, other.Publishes...)
}

type SkipReason string

const (
	SkipUnresolvedCID       SkipReason = "unresolved_cid"
	SkipFailedPeerReference SkipReason = "failed_peer_reference"
	SkipPartialBlock        SkipReason = "partial_block"
	SkipMalformedPeerLine   SkipReason = "malformed_peer_line"
	SkipMissingLog          SkipReason = "missing_log"
)

// Skip records input that was deliberately left out of the tables.
type Skip struct {
	Reason SkipReason `json:"reason"`
	File   string     `json:"file,omitempty"`
	Line   int        `json:"line,omitempty"`
	Detail string     `json:"detail,omitempty"`
}

type ExperimentSummary struct {
	ID          int                `json:"id"`
	Dir         string             `json:"dir"`
	Nodes       int                `json:"nodes"`
	FailedNodes []string           `json:"failed_nodes,omitempty"`
	CIDs        int                `json:"cids"`
	Lookups     int                `json:"lookups"`
	Snapshots   int                `json:"snapshots"`
	Publishes   int                `json:"publishes"`
	Skipped     map[SkipReason]int `json:"skipped,omitempty"`
}

// AddSkips folds skips into the per-reason counters.
func (s *ExperimentSummary) AddSkips(skips []Skip) {
	if len(skips) == 0 {
		return
	}
	if s.Skipped == nil {
		s.Skipped = map[SkipReason]int{}
	}
	for _, skip := range skips {
		s.Skipped[skip.Reason]++
	}
}

type RunSummary struct {
	RunID       string              `json:"run_id"`
	Experiments []ExperimentSummary `json:"experiments"`
}

// Totals sums row counts over every experiment.
func (r RunSummary) Totals() ExperimentSummary {
	total := ExperimentSummary{ID: -1, Dir: "all"}
	for _, exp := range r.Experiments {
		total.Nodes += exp.Nodes
		total.FailedNodes = append(total.FailedNodes, exp.FailedNodes...)
		total.CIDs += exp.CIDs
		total.Lookups += exp.Lookups
		total.Snapshots += exp.Snapshots
		total.Publishes += exp.Publishes
		for reason, n := range exp.Skipped {
			if total.Skipped == nil {
				total.Skipped = map[SkipReason]int{}
			}
			total.Skipped[reason] += n
		}
	}
	return total
}
