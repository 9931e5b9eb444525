package transactions

// TransactionHooks provides a number of internal hooks used for testing.
// A hook returning an error fails the call as an infrastructure failure.
// Internal: This should never be used and is not supported.
type TransactionHooks interface {
	BeforeOperationCommit(txnID string, opID OpID) error
	AfterOperationCommit(txnID string, opID OpID) error
	BeforeResultPersisted(txnID string) error
	BeforeSubmissionPersisted(txnID string) error
}

// DefaultHooks is default set of noop hooks used within the library.
// Internal: This should never be used and is not supported.
type DefaultHooks struct {
}

// BeforeOperationCommit is called before a staged operation reaches the record store.
func (dh *DefaultHooks) BeforeOperationCommit(txnID string, opID OpID) error {
	return nil
}

// AfterOperationCommit is called after a staged operation was applied to the record store.
func (dh *DefaultHooks) AfterOperationCommit(txnID string, opID OpID) error {
	return nil
}

// BeforeResultPersisted is called before the commit result is written.
func (dh *DefaultHooks) BeforeResultPersisted(txnID string) error {
	return nil
}

// BeforeSubmissionPersisted is called before a merged submission is written.
func (dh *DefaultHooks) BeforeSubmissionPersisted(txnID string) error {
	return nil
}

// CleanUpHooks provides a number of internal hooks used for testing.
// Internal: This should never be used and is not supported.
type CleanUpHooks interface {
	BeforeCleanup(txnID string) error
}

// DefaultCleanupHooks is default set of noop hooks used within the library.
// Internal: This should never be used and is not supported.
type DefaultCleanupHooks struct {
}

// BeforeCleanup is called before an expired transaction is disposed.
func (dh *DefaultCleanupHooks) BeforeCleanup(txnID string) error {
	return nil
}
