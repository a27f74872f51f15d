// Package vecdb is an embedded single-node vector-search collection
// engine: schema-defined typed fields, IVF_FLAT approximate
// nearest-neighbor search, scalar-filtered hybrid search, and
// primary-key based mutation.
//
// # Quick Start
//
//	ctx := context.Background()
//	client, _ := vecdb.Connect("mem://")
//	defer client.Close()
//
//	_ = client.CreateCollection("books", []schema.FieldDef{
//	    {Name: "id", Type: schema.FieldTypeInt64, IsPrimary: true},
//	    {Name: "year", Type: schema.FieldTypeInt64},
//	    {Name: "embedding", Type: schema.FieldTypeFloatVector, Dim: 8},
//	}, model.ConsistencyStrong)
//
//	_, _ = client.Insert(ctx, "books", rows)
//	_ = client.CreateIndex(ctx, "books", "embedding", vecdb.IndexParams{
//	    Metric: distance.MetricL2,
//	    NList:  64,
//	})
//	_ = client.Load(ctx, "books")
//
//	results, _ := client.Search(ctx, "books", queries, "embedding",
//	    vecdb.SearchParams{NProbe: 8}, 3, "year > 2000", []string{"year"})
//
// Scalar queries work without an index or Load:
//
//	rows, _ := client.Query(ctx, "books", "year in [1999, 2007]", nil)
//
// # Consistency and Staleness
//
// Deletes are tombstones applied on every read path. The collection's
// consistency level decides whether reads wait for in-flight deletes
// (Strong, BoundedStaleness) or race ahead (Eventually). The vector index
// is built from a point-in-time snapshot: rows inserted afterwards are
// visible to Query but reach Search only after the next CreateIndex.
//
// # Snapshots
//
// Collections can be saved to and restored from the snapshot store named
// by the Connect endpoint: a local directory, memory ("mem://"), or any
// S3-compatible bucket via blobstore/minio.
package vecdb
