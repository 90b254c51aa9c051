package history

import "context"

// VendorReader is the vendor side of the historical store as seen by the
// vendor matcher.
type VendorReader interface {
	// VendorByName returns the record whose VendorName equals name exactly.
	// Returns ErrVendorNotFound if there is none.
	VendorByName(ctx context.Context, name string) (*VendorRecord, error)

	// VendorsWithKeywords returns every vendor with a non-empty keyword set,
	// in a single batch read.
	VendorsWithKeywords(ctx context.Context) ([]VendorRecord, error)
}

// PatternReader is the pattern side of the historical store as seen by the
// pattern matcher.
type PatternReader interface {
	// PatternsWithKeywords returns every pattern with a non-empty keyword set,
	// in a single batch read.
	PatternsWithKeywords(ctx context.Context) ([]PatternRecord, error)

	// VendorDescriptionKeywords returns the stored frequent description keywords
	// of the named vendor. Returns ErrVendorNotFound for an unknown vendor.
	VendorDescriptionKeywords(ctx context.Context, vendorName string) ([]string, error)
}

// Writer persists records. Only ingestion and the feedback loop write.
type Writer interface {
	// UpsertVendor creates or replaces the vendor keyed by VendorName.
	UpsertVendor(ctx context.Context, v VendorRecord) error

	// UpsertPattern creates or replaces the pattern keyed by ID.
	UpsertPattern(ctx context.Context, p PatternRecord) error
}

// Store is a complete historical store.
type Store interface {
	VendorReader
	PatternReader
	Writer

	// Close releases the underlying resources.
	Close() error
}
