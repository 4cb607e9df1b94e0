package snapshot

import (
	"fmt"
	"io"

	"github.com/jaxxstorm/dhtingest/internal/model"
)

// Resolver classifies routing-table destinations. ok=false means the
// reference must be dropped.
type Resolver interface {
	Destination(id string) (model.Variant, bool)
}

// Resolve expands a dump into one entry per surviving destination reference.
func Resolve(src model.Node, dump Dump, resolver Resolver, experiment int, name string) ([]model.SnapshotEntry, []model.Skip) {
	entries := []model.SnapshotEntry{}
	skips := []model.Skip{}
	for snap, block := range dump {
		for bucket, peers := range block {
			for _, peer := range peers {
				variant, ok := resolver.Destination(peer)
				if !ok {
					skips = append(skips, model.Skip{
						Reason: model.SkipFailedPeerReference,
						File:   name,
						Detail: fmt.Sprintf("snapshot %d bucket %d references failed peer %s", snap, bucket, peer),
					})
					continue
				}
				entries = append(entries, model.SnapshotEntry{
					Source:        src.ID,
					SourceVariant: src.Variant,
					Dest:          peer,
					DestVariant:   variant,
					Snapshot:      snap,
					Bucket:        bucket,
					Experiment:    experiment,
				})
			}
		}
	}
	return entries, skips
}

// Ingest parses and resolves one node's peers log.
func Ingest(r io.Reader, name string, src model.Node, resolver Resolver, experiment int) ([]model.SnapshotEntry, []model.Skip, error) {
	dump, skips, err := Parse(r, name)
	if err != nil {
		return nil, nil, err
	}
	entries, dropped := Resolve(src, dump, resolver, experiment, name)
	return entries, append(skips, dropped...), nil
}
