// Package authority defines the contract between an id pool and the shared
// store that hands out counter blocks.
//
// An Authority grants half-open blocks [Start, End) per (partition,
// namespace). Blocks granted for the same pair never overlap, across all
// processes that talk to the same backing store. Backends live in
// subpackages:
//
//   - memory: in-process, for tests and single-node deployments
//   - ddb: DynamoDB conditional counters
//   - etcd: etcd transactions
//   - redis: Redis optimistic transactions (WATCH/MULTI)
//   - bolt: a bbolt database file
//   - blob: claim chains on any conditional blob store (S3, MinIO, local disk)
//   - local: a counter file guarded by an advisory lock
//
// Every backend embeds Base, which owns the BlockSizer lifecycle: the sizer
// must be set exactly once, before the first block is requested.
package authority
