package storage

import "reelrender/internal/ports"

// Provider is the storage contract used by delivery and the /renders route.
type Provider = ports.StorageProvider
