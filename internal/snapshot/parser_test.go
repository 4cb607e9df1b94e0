package snapshot

import (
	"reflect"
	"strings"
	"testing"

	"github.com/jaxxstorm/dhtingest/internal/model"
)

const scenarioC = `2023/06/01 10:00:00 routing table dump
xxx-start-xxx
Routing table of A
bucket: 0
  0 peerB 12ms
  1 peerX 40ms
bucket: 1
  0 peerC 8ms
xxx-end-xxx
2023/06/01 10:01:00 something else
`

type fakeResolver struct {
	nodes  map[string]model.Variant
	failed map[string]bool
}

func (f fakeResolver) Destination(id string) (model.Variant, bool) {
	if f.failed[id] {
		return 0, false
	}
	if v, ok := f.nodes[id]; ok {
		return v, true
	}
	return model.VariantBootstrap, true
}

func TestParseScenarioC(t *testing.T) {
	dump, skips, err := Parse(strings.NewReader(scenarioC), "A-peers.log")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(skips) != 0 {
		t.Fatalf("unexpected skips: %#v", skips)
	}
	want := Dump{Block{Bucket{"peerB", "peerX"}, Bucket{"peerC"}}}
	if !reflect.DeepEqual(dump, want) {
		t.Fatalf("unexpected dump: %#v", dump)
	}

	src := model.Node{ID: "A", Variant: model.VariantSecure}
	resolver := fakeResolver{nodes: map[string]model.Variant{"peerB": model.VariantNormal, "peerC": model.VariantDefault}}
	entries, _ := Resolve(src, dump, resolver, 4, "A-peers.log")
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	buckets := map[int]int{}
	for _, e := range entries {
		buckets[e.Bucket]++
		if e.Snapshot != 0 || e.Experiment != 4 || e.Source != "A" {
			t.Fatalf("unexpected entry: %#v", e)
		}
	}
	if buckets[0] != 2 || buckets[1] != 1 {
		t.Fatalf("unexpected bucket split: %v", buckets)
	}
	if entries[1].Dest != "peerX" || entries[1].DestVariant != model.VariantBootstrap {
		t.Fatalf("expected bootstrap peerX, got %#v", entries[1])
	}
}

func TestParseIsRestartable(t *testing.T) {
	first, _, err := Parse(strings.NewReader(scenarioC+scenarioC), "p")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	second, _, err := Parse(strings.NewReader(scenarioC+scenarioC), "p")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("parses differ")
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(first))
	}
}

func TestResolveDropsFailedPeers(t *testing.T) {
	dump, _, err := Parse(strings.NewReader(scenarioC), "p")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	resolver := fakeResolver{failed: map[string]bool{"peerB": true}}
	entries, skips := Resolve(model.Node{ID: "A"}, dump, resolver, 0, "p")
	for _, e := range entries {
		if e.Dest == "peerB" {
			t.Fatalf("failed peer leaked into output")
		}
	}
	if len(entries) != 2 || len(skips) != 1 || skips[0].Reason != model.SkipFailedPeerReference {
		t.Fatalf("entries=%d skips=%#v", len(entries), skips)
	}
}

func TestParseEdgeCases(t *testing.T) {
	input := strings.Join([]string{
		"xxx-start-xxx",
		"bucket: 0",
		"bucket: 1",
		"  0 peerA",
		"  orphan",
		"xxx-end-xxx",
		"xxx-start-xxx",
		"xxx-end-xxx",
		"xxx-start-xxx",
		"bucket: 0",
		"  0 lost",
		"xxx-start-xxx",
		"bucket: 0",
		"  0 peerB",
		"xxx-end-xxx",
		"xxx-start-xxx",
		"bucket: 0",
		"  0 trailing",
	}, "\n")

	dump, skips, err := Parse(strings.NewReader(input), "p")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Dump{
		Block{Bucket{}, Bucket{"peerA"}},
		Block{},
		Block{Bucket{"peerB"}},
	}
	if !reflect.DeepEqual(dump, want) {
		t.Fatalf("unexpected dump: %#v", dump)
	}

	reasons := map[model.SkipReason]int{}
	for _, s := range skips {
		reasons[s.Reason]++
	}
	if reasons[model.SkipPartialBlock] != 2 || reasons[model.SkipMalformedPeerLine] != 1 {
		t.Fatalf("unexpected skips: %#v", skips)
	}
	if dump.Peers() != 2 {
		t.Fatalf("expected 2 peers, got %d", dump.Peers())
	}
}

func TestParseIgnoresTextOutsideBlocks(t *testing.T) {
	dump, skips, err := Parse(strings.NewReader("bucket: 0\n 0 peerA\nhello\n"), "p")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(dump) != 0 || len(skips) != 0 {
		t.Fatalf("expected nothing, got %#v %#v", dump, skips)
	}
}

func TestStateNames(t *testing.T) {
	if awaitingBlock.String() != "AwaitingBlock" || inBucket.String() != "InBucket" {
		t.Fatalf("unexpected state names")
	}
}

func TestParseAcceptsLongPeerLines(t *testing.T) {
	long := "  0 peerB " + strings.Repeat("x", 5<<20)
	log := "xxx-start-xxx\nbucket: 0\n" + long + "\nxxx-end-xxx\n"
	dump, skips, err := Parse(strings.NewReader(log), "A-peers.log")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(skips) != 0 || len(dump) != 1 || !reflect.DeepEqual(dump[0], Block{{"peerB"}}) {
		t.Fatalf("unexpected dump %v skips %v", dump, skips)
	}
}
