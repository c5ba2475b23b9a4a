package database

// HNSW index parameters for CLIP embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so exact re-ranking has enough to choose from.
	HNSWSearchMultiplier = 3

	// HNSWMinCandidates is the lower bound on candidates requested from the graph
	HNSWMinCandidates = 100

	// ExactSearchMaxVectors is the index size up to which MemoryIndex answers
	// queries with an exact scan. Larger indexes rank graph candidates only.
	ExactSearchMaxVectors = 50_000
)
