// Package graphid allocates and decodes the identifiers of a distributed graph
// database.
//
// Every vertex, relation and schema type gets a 63-bit identifier that packs
// its kind, its partition and a counter. Counters come from blocks reserved
// through an authority shared by all graph instances, so allocating an id is
// a local atomic increment almost all of the time.
//
// # Quick Start
//
// Single process, in-memory authority:
//
//	ctx := context.Background()
//	m, _ := graphid.New(memory.New(), graphid.WithPartitionBits(5))
//	defer m.Close()
//
//	v, _ := m.NewVertexID(ctx, 3)
//	e, _ := m.NewRelationIDFor(ctx, v)    // same partition as v
//	pk, _ := m.NewPropertyKeyID(ctx)     // schema types are never partitioned
//
//	d, _ := m.Decode(v) // {Kind: Vertex, Partition: 3, Counter: 1}
//
// Several processes sharing DynamoDB:
//
//	auth, _ := ddb.NewFromConfig(ctx, "graph-ids")
//	m, _ := graphid.New(auth,
//	    graphid.WithPartitionBits(5),
//	    graphid.WithGrowingBlockSize(1000, 100000),
//	    graphid.WithCloseAuthority(),
//	)
//
// # Authorities
//
// The authority subpackages implement the block protocol on different
// backends:
//
//   - authority/memory: in-process, for tests and single-process graphs
//   - authority/local: a flock-guarded counter file per counter space
//   - authority/bolt: a bbolt database file
//   - authority/blob: a claim chain on any conditional blob store (S3, MinIO, local disk)
//   - authority/ddb: DynamoDB conditional updates
//   - authority/etcd: etcd transactions
//   - authority/redis: Redis WATCH/MULTI transactions
//
// # Failures
//
// Temporary authority failures are retried with exponential backoff up to
// a ceiling (WithMaxRenewAttempts) and then surface as ErrAuthorityTemporary.
// Permanent failures, including an exhausted counter space (ErrExhausted),
// are returned at once and keep being returned for that pool.
//
// # Storage Format
//
// The layout configuration and the variable-length encoding in package varint
// are part of the storage format. Keys produced by Key sort like their ids,
// with all ids of a partition contiguous.
package graphid
