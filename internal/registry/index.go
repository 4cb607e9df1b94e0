package registry

import (
	"encoding/json"
	"fmt"

	"github.com/jaxxstorm/dhtingest/internal/integrity"
	"github.com/jaxxstorm/dhtingest/internal/logfs"
	"github.com/jaxxstorm/dhtingest/internal/model"
)

// Index maps every cid to the variant of the node that originated it.
// It is read-only once BuildIndex returns.
type Index struct {
	owners   map[string]string
	variants map[string]model.Variant
}

// BuildIndex reads the cids log of every surviving node in reg.
func BuildIndex(src logfs.Source, reg *Registry) (*Index, error) {
	idx := &Index{
		owners:   map[string]string{},
		variants: map[string]model.Variant{},
	}
	for _, id := range reg.IDs() {
		node, _ := reg.Node(id)
		cids, err := readCIDs(src, id)
		if err != nil {
			return nil, err
		}
		for _, cid := range cids {
			if err := idx.add(cid, node); err != nil {
				return nil, err
			}
		}
	}
	return idx, nil
}

func (i *Index) add(cid string, node model.Node) error {
	if owner, ok := i.owners[cid]; ok {
		if owner == node.ID {
			return nil
		}
		return integrity.Violation(integrity.KindDuplicateCID, LogName(node.ID, LogCIDs), 0, cid,
			"cid %s owned by both %s and %s", cid, owner, node.ID)
	}
	i.owners[cid] = node.ID
	i.variants[cid] = node.Variant
	return nil
}

func readCIDs(src logfs.Source, id string) ([]string, error) {
	name := LogName(id, LogCIDs)
	rc, err := OpenLog(src, id, LogCIDs)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	cids := []string{}
	err = logfs.EachLine(rc, func(n int, line string) error {
		var batch []string
		if err := json.Unmarshal([]byte(logfs.Payload(line)), &batch); err != nil {
			return integrity.Violation(integrity.KindMalformedRecord, name, n, line, "decode cid list: %v", err)
		}
		cids = append(cids, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cids, nil
}

// Lookup returns the owning variant of cid.
func (i *Index) Lookup(cid string) (model.Variant, bool) {
	v, ok := i.variants[cid]
	return v, ok
}

// Owner returns the peer that originated cid.
func (i *Index) Owner(cid string) (string, bool) {
	id, ok := i.owners[cid]
	return id, ok
}

func (i *Index) Len() int {
	return len(i.variants)
}

// Variants returns a copy of the cid to variant map.
func (i *Index) Variants() map[string]model.Variant {
	out := make(map[string]model.Variant, len(i.variants))
	for k, v := range i.variants {
		out[k] = v
	}
	return out
}
