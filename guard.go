package transactions

import (
	"context"

	"github.com/pkg/errors"
)

// checkEpoch validates the epoch supplied when a transaction is created
// against the versioning state of the collection.
func checkEpoch(ctx context.Context, store RecordStore, epoch *Epoch) error {
	current, versioned, err := store.Versioning(ctx)
	if err != nil {
		return err
	}

	if !versioned {
		if epoch != nil {
			return errors.Wrap(ErrEpochNotApplicable, "collection is not versioned")
		}
		return nil
	}

	if epoch == nil {
		return errors.Wrap(ErrEpochRequired, "collection is versioned")
	}
	if *epoch != current {
		return errors.Wrapf(ErrEpochMismatch, "expected epoch %d, got %d", current, *epoch)
	}

	return nil
}

// checkVersion runs the optimistic version check of an update or delete.
// Without an expected version, or on an unversioned collection, existence is
// left to the record store call itself.
func checkVersion(ctx context.Context, store RecordStore, versioned bool, id RecordID, expected *Version) error {
	if !versioned || expected == nil {
		return nil
	}

	current, err := store.CurrentVersion(ctx, id)
	if err != nil {
		return err
	}
	if current != *expected {
		return errors.Wrapf(ErrRecordConflict, "feature %d is at version %d, expected %d", id, current, *expected)
	}

	return nil
}
