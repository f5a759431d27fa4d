/*
Package ports defines the driven ports (interfaces) of the OSDL runtime.

These interfaces decouple the page runtime from its collaborators, allowing
the engine to work with any data transport, cache backend, page source or
host shell.

# Key Interfaces

  - DataSource: Fetches the value of a data requirement (RQL contract calls, mock data).
  - CacheStore: Holds fetched values with their TTL (memory, Redis).
  - PageLoader: Loads page schemas (memory, directory, Loam).
  - ActionDispatcher: Executes non-state actions such as openModal or submitData.
  - ErrorReporter: The host shell's error channel.
  - StateStore: Persists session snapshots of local node state.
  - DistributedLocker: Coordinates concurrent session access across replicas.
*/
package ports
