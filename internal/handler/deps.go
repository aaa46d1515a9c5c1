package handler

import (
	"webcorg/internal/app/presence"
	"webcorg/internal/app/storage"
	"webcorg/internal/configs"
)

// AppDeps bundles the shared dependencies handlers need. StorageService is
// nil when avatar storage is not configured.
type AppDeps struct {
	Broker         *presence.Broker
	Config         *configs.AppConfig
	StorageService storage.StorageService
}
