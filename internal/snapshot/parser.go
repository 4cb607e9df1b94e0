package snapshot

import (
	"fmt"
	"io"
	"strings"

	"github.com/jaxxstorm/dhtingest/internal/logfs"
	"github.com/jaxxstorm/dhtingest/internal/model"
)

const (
	StartMarker = "xxx-start-xxx"
	EndMarker   = "xxx-end-xxx"
	BucketToken = "bucket:"
)

// Bucket holds the peer ids listed in one routing-table bucket, in file order.
type Bucket []string

// Block is one routing-table dump; bucket numbers are slice positions.
type Block []Bucket

// Dump is a node's snapshot history; snapshot numbers are slice positions.
type Dump []Block

type state int

const (
	awaitingBlock state = iota
	inBlock
	inBucket
)

func (s state) String() string {
	switch s {
	case awaitingBlock:
		return "AwaitingBlock"
	case inBlock:
		return "InBlock"
	case inBucket:
		return "InBucket"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type parser struct {
	name    string
	state   state
	current Block
	opened  int
	dump    Dump
	skips   []model.Skip
}

// Parse reads a peers log and returns every complete marker-delimited
// block. It keeps no state between calls.
func Parse(r io.Reader, name string) (Dump, []model.Skip, error) {
	p := &parser{name: name}
	err := logfs.EachLine(r, func(n int, line string) error {
		p.feed(n, line)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", name, err)
	}
	if p.state != awaitingBlock {
		p.skip(model.SkipPartialBlock, p.opened, "block not terminated before end of file")
	}
	return p.dump, p.skips, nil
}

func (p *parser) feed(n int, raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}

	if strings.Contains(line, StartMarker) {
		if p.state != awaitingBlock {
			p.skip(model.SkipPartialBlock, p.opened, "block reopened before its end marker")
		}
		p.current = Block{}
		p.opened = n
		p.state = inBlock
		return
	}

	switch p.state {
	case awaitingBlock:
		return
	case inBlock, inBucket:
		if strings.Contains(line, EndMarker) {
			p.dump = append(p.dump, p.current)
			p.current = nil
			p.state = awaitingBlock
			return
		}
		if strings.Contains(line, BucketToken) {
			p.current = append(p.current, Bucket{})
			p.state = inBucket
			return
		}
		if p.state == inBlock {
			return
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			p.skip(model.SkipMalformedPeerLine, n, line)
			return
		}
		last := len(p.current) - 1
		p.current[last] = append(p.current[last], fields[1])
	}
}

func (p *parser) skip(reason model.SkipReason, line int, detail string) {
	p.skips = append(p.skips, model.Skip{Reason: reason, File: p.name, Line: line, Detail: detail})
}

// Peers returns how many peer references the dump holds.
func (d Dump) Peers() int {
	total := 0
	for _, block := range d {
		for _, bucket := range block {
			total += len(bucket)
		}
	}
	return total
}
