// Package schema defines the columns of the three output tables. Every
// writer and reader of the tables goes through these definitions.
package schema

type ColumnKind string

const (
	KindString  ColumnKind = "string"
	KindInt     ColumnKind = "int"
	KindVariant ColumnKind = "variant"
)

type Column struct {
	Name     string     `json:"name"`
	Kind     ColumnKind `json:"kind"`
	Nullable bool       `json:"nullable,omitempty"`
}

type Table struct {
	Name    string   `json:"name"`
	File    string   `json:"file"`
	Columns []Column `json:"columns"`
}

// Header returns the column names in write order.
func (t Table) Header() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

const (
	ColPID         = "pid"
	ColPeerDHT     = "peer-dht"
	ColCID         = "cid"
	ColCIDType     = "cid-type"
	ColLookupTime  = "lookup-time (ms)"
	ColProviders   = "providers-nr"
	ColQueries     = "queries-nr"
	ColExpID       = "exp-id"
	ColSrcPID      = "src-pid"
	ColSrcDHT      = "src-dht"
	ColDstPID      = "dst-pid"
	ColDstDHT      = "dst-dht"
	ColSnapshotNr  = "snapshot-nr"
	ColBucketNr    = "bucket-nr"
	ColDuration    = "duration-time (ms)"
	ColStorageNode = "storage-node"
	ColStorageDHT  = "storage-dht"
)

var Lookups = Table{
	Name: "lookups",
	File: "lookups.csv",
	Columns: []Column{
		{Name: ColPID, Kind: KindString},
		{Name: ColPeerDHT, Kind: KindVariant},
		{Name: ColCID, Kind: KindString},
		{Name: ColCIDType, Kind: KindVariant},
		{Name: ColLookupTime, Kind: KindInt},
		{Name: ColProviders, Kind: KindInt},
		{Name: ColQueries, Kind: KindInt},
		{Name: ColExpID, Kind: KindInt},
	},
}

var Snapshots = Table{
	Name: "snapshots",
	File: "snapshots.csv",
	Columns: []Column{
		{Name: ColSrcPID, Kind: KindString},
		{Name: ColSrcDHT, Kind: KindVariant},
		{Name: ColDstPID, Kind: KindString},
		{Name: ColDstDHT, Kind: KindVariant},
		{Name: ColSnapshotNr, Kind: KindInt},
		{Name: ColBucketNr, Kind: KindInt},
		{Name: ColExpID, Kind: KindInt},
	},
}

var Publishes = Table{
	Name: "publishes",
	File: "publishes.csv",
	Columns: []Column{
		{Name: ColCID, Kind: KindString},
		{Name: ColSrcPID, Kind: KindString},
		{Name: ColSrcDHT, Kind: KindVariant},
		{Name: ColQueries, Kind: KindInt},
		{Name: ColDuration, Kind: KindInt},
		{Name: ColStorageNode, Kind: KindString, Nullable: true},
		{Name: ColStorageDHT, Kind: KindVariant, Nullable: true},
		{Name: ColExpID, Kind: KindInt},
	},
}

// All lists the tables in the order they are written.
var All = []Table{Lookups, Snapshots, Publishes}
