package collection

import "errors"

// Sentinel errors returned by ShardedMap and ShardedList operations.
// Callers should compare with errors.Is, not equality, in case a future
// revision wraps these with additional context.
var (
	// ErrKeyNotFound is returned by operations that require an existing
	// key (ShardedMap.Update) when the key is absent.
	ErrKeyNotFound = errors.New("collection: key not found")

	// ErrKeyExists is returned by TryAdd-style operations when the key is
	// already present.
	ErrKeyExists = errors.New("collection: key already exists")

	// ErrUnsupportedOperation is returned when an operation is invoked in
	// a configuration that does not support it, e.g.
	// ShardedList.SetAtGlobalIndex: a list's shard (and therefore its
	// position) is derived from an item's own hash, so positional
	// assignment has no meaning.
	ErrUnsupportedOperation = errors.New("collection: unsupported operation")

	// ErrIndexOutOfRange is returned by ShardedList.GetAtGlobalIndex when
	// the index falls outside [0, Count()).
	ErrIndexOutOfRange = errors.New("collection: index out of range")

	// ErrDisposed is returned by every mutating operation on a container
	// after Close has been called.
	ErrDisposed = errors.New("collection: container disposed")

	// ErrInvalidIndexName is returned by GetItemsBySecondaryIndex and
	// ItemMatchesSecondaryIndex (and their ShardedList counterparts) when
	// name was never registered, or was registered with a derived-key
	// type that does not match the key passed to the lookup.
	ErrInvalidIndexName = errors.New("collection: invalid or unknown index name")
)
