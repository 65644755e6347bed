/*
Package session serializes checkpoint writes.

Checkpoint stores are last-write-wins and do not order concurrent writes to the
same id. The Manager puts a per-id mutex in front of a store and, when given a
ports.DistributedLocker, extends that guarantee across replicas.
*/
package session
