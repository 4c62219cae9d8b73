// Package config holds the tunables for the indexing engine: tree layout,
// build-pipeline batch sizes, and query cache behavior.
package config

// AppConfig aggregates every tunable group the engine needs.
type AppConfig struct {
	Index *IndexConfig
	Build *BuildConfig
	Query *QueryConfig
}

func New() *AppConfig {
	return &AppConfig{
		Index: NewIndexConfig(),
		Build: NewBuildConfig(),
		Query: NewQueryConfig(),
	}
}

// IndexConfig controls the on-disk tree layout (spec §4.3/§4.4).
type IndexConfig struct {
	// PageSize is the block-alignment granularity for the envelope header
	// and tree region start (spec §4.7: 4096).
	PageSize int

	// MaxEntriesPerNode is the hardcoded entries-per-node ceiling implied
	// by the 1-byte entry count field (spec §4.3/§9): always 255.
	MaxEntriesPerNode int

	// FillFactor is the target fraction of MaxEntriesPerNode used when
	// packing leaves during a rebuild (spec §4.3: "~50% full on rebuild").
	FillFactor float64

	// BuildFillFactor is the fill factor used by the in-memory bulk
	// builder fed by the build pipeline (spec §4.3: "builder defaults to
	// 95%").
	BuildFillFactor float64

	// LeafSlackFraction is the fraction of a leaf's payload left as free
	// space on write so small edits don't require relocation (spec §4.3:
	// "~10%").
	LeafSlackFraction float64

	// MaxKeySize bounds a single encoded key (spec §4.2: strings are
	// truncated to 255 bytes; this is the ceiling across all key types).
	MaxKeySize int
}

func NewIndexConfig() *IndexConfig {
	return &IndexConfig{
		PageSize:          4096,
		MaxEntriesPerNode: 255,
		FillFactor:        0.5,
		BuildFillFactor:   0.95,
		LeafSlackFraction: 0.10,
		MaxKeySize:        255,
	}
}

// BuildConfig controls the external merge-sort build pipeline (spec §4.5).
type BuildConfig struct {
	// MaxValues is the number of distinct keys a Stage B batch holds before
	// it is sorted and spilled to a run file (spec: 100_000); records whose
	// key is already in the batch do not count toward it.
	MaxValues int

	// MaxBatchBase is the base of the per-level wildcard fanout cap
	// max_batch = round(MaxBatchBase^(0.5^wildcards)) (spec: 500).
	MaxBatchBase float64

	// ChunkSize records the sequential-read chunk size (spec §4.1: 512 KiB
	// default). No reader reads this field: pkg/pager's Reader always uses
	// its own DefaultChunkSize constant.
	ChunkSize int
}

func NewBuildConfig() *BuildConfig {
	return &BuildConfig{
		MaxValues:    100_000,
		MaxBatchBase: 500,
		ChunkSize:    512 * 1024,
	}
}

// QueryConfig controls the per-index result cache (spec §4.8).
type QueryConfig struct {
	// TTLSeconds is the default sliding expiry for a cached (op,value)
	// result.
	TTLSeconds int

	// MaxCost is the ristretto cache's byte-cost budget.
	MaxCost int64

	// SweepIntervalSeconds is how often the expiry sweep timer fires.
	SweepIntervalSeconds int
}

func NewQueryConfig() *QueryConfig {
	return &QueryConfig{
		TTLSeconds:           60,
		MaxCost:              64 << 20,
		SweepIntervalSeconds: 30,
	}
}
