package transactions

import "context"

// RecordID identifies a record within its collection.
type RecordID int64

// Version identifies a revision of a single record in a versioned collection.
type Version int64

// Epoch identifies the versioning lineage of a collection.
type Epoch int64

// Record is the payload of a create or update operation. Geom is kept
// opaque, its encoding is owned by the record store.
type Record struct {
	Geom   *string                `json:"geom,omitempty"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// Merge returns a copy of r with the parts present in update applied on top.
// A nil Geom keeps the existing geometry, fields are merged key by key.
func (r Record) Merge(update Record) Record {
	merged := Record{
		Geom: r.Geom,
	}
	if update.Geom != nil {
		geom := *update.Geom
		merged.Geom = &geom
	}

	if len(r.Fields) > 0 || len(update.Fields) > 0 {
		merged.Fields = make(map[string]interface{}, len(r.Fields)+len(update.Fields))
		for k, v := range r.Fields {
			merged.Fields[k] = v
		}
		for k, v := range update.Fields {
			merged.Fields[k] = v
		}
	}

	return merged
}

// RecordStore is the single-record interface of a collection that the
// engine drives during commit.
//
// Implementations must wrap ErrRecordNotFound, ErrRecordConflict or
// ErrRecordInvalid for record-level failures. Any other error is treated as
// an infrastructure failure and aborts the commit.
type RecordStore interface {
	// Versioning reports whether the collection is versioned and, if so,
	// its current epoch.
	Versioning(ctx context.Context) (Epoch, bool, error)

	// Create stores a new record and returns the assigned id and, for
	// versioned collections, its initial version.
	Create(ctx context.Context, record Record) (RecordID, Version, error)

	// CurrentVersion returns the current version of a record.
	CurrentVersion(ctx context.Context, id RecordID) (Version, error)

	// Update applies record onto an existing record and returns the new version.
	Update(ctx context.Context, id RecordID, record Record) (Version, error)

	// Delete removes an existing record.
	Delete(ctx context.Context, id RecordID) error
}

// RecordStoreProviderFn returns the RecordStore backing a collection. It
// must wrap ErrCollectionNotFound for unknown collections.
type RecordStoreProviderFn func(collectionID string) (RecordStore, error)
