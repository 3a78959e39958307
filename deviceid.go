package main

import (
	"edittrack/logger"
	"edittrack/storage"

	"github.com/google/uuid"
)

const deviceIDKey = "device_id"

// loadOrCreateDeviceID returns the persistent device ID from the store, or
// generates and saves a new UUID on first run.
func loadOrCreateDeviceID(store *storage.Store) string {
	if store == nil {
		return uuid.New().String()
	}

	if id, ok := store.Get(deviceIDKey); ok && id != "" {
		return id
	}

	id := uuid.New().String()
	if err := store.Set(deviceIDKey, id); err != nil {
		logger.Warn("failed to persist device id: %v", err)
	}
	return id
}
