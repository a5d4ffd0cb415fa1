/*
Package ports defines the driven ports (interfaces) of the call flow engines.

These interfaces decouple the core logic from external implementations, allowing
the engines to work with various document backends, credential slots and
presentation layers.

# Key Interfaces

  - DocumentStore: versioned key-value document API with compare-and-swap writes.
  - CredentialStore: device-scoped slot for the write credential and the gate flag.
  - CredentialPrompter: out-of-band request for a credential.
  - Confirmer: explicit user confirmation before unsaved edits are lost.
  - History: the addressable location (push / replace).
  - DistributedLocker: serialises writes to the same key across replicas.
*/
package ports
