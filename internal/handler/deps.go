package handler

import (
	"quickchat/internal/app/chat"
	"quickchat/internal/app/storage"
	"quickchat/internal/app/store"
	"quickchat/internal/configs"
)

// AppDeps bundles the shared collaborators every handler closes over.
type AppDeps struct {
	Registry       *chat.Registry
	Router         *chat.Router
	Store          *store.Store
	StorageService storage.StorageService
	Config         *configs.AppConfig
}
