// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Quality assessment defaults
const (
	// DefaultBlurThreshold is the minimum Laplacian variance for a sharp photo.
	// Lower values = stricter (fewer photos flagged as blurred)
	DefaultBlurThreshold = 25.0

	// DefaultOverexposureThreshold is the fraction of near-white pixels above which
	// a photo is flagged as overexposed
	DefaultOverexposureThreshold = 0.95

	// DefaultUnderexposureThreshold is the fraction of near-black pixels above which
	// a photo is flagged as underexposed
	DefaultUnderexposureThreshold = 0.05

	// DefaultMaxPixels is the pixel count above which images are downscaled before assessment
	DefaultMaxPixels = 500_000

	// DefaultResizeScale is the downscale factor applied to images over DefaultMaxPixels
	DefaultResizeScale = 0.25
)

// Processing constants
const (
	// DefaultMaxWorkers is the default number of parallel per-photo workers
	DefaultMaxWorkers = 2

	// DefaultBatchSize is the default number of embedded photos written to the index at once
	DefaultBatchSize = 10

	// MaxImageSize is the maximum dimension (width or height) sent to the embedding server
	MaxImageSize = 1920
)

// Search constants
const (
	// DefaultSearchLimit is the default number of search results
	DefaultSearchLimit = 10

	// MaxSearchLimit caps the number of search results a caller can request
	MaxSearchLimit = 200
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for task event channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum multipart upload size in bytes (100MB)
	MaxUploadSize = 100 << 20
)
