// Package authcfg resolves which authentication configuration applies
// to a request. Configs live at three scope levels - request, folder or
// file, and global - and inheritance is computed at lookup time, never
// copied onto the request.
package authcfg

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
	"github.com/unkn0wn-root/reqstage/internal/storage"
)

type Source string

const (
	SourceNone    Source = ""
	SourceRequest Source = "request"
	SourceFolder  Source = "folder"
	SourceFile    Source = "file"
	SourceGlobal  Source = "global"
)

const (
	keyGlobal        = "auth:global"
	keyRequestPrefix = "auth:request:"
	keyFolderPrefix  = "auth:folder:"
	keyFilePrefix    = "auth:file:"
)

type Registry struct {
	mu       sync.RWMutex
	requests map[string]reqmodel.AuthConfig
	folders  map[string]reqmodel.AuthConfig
	files    map[string]reqmodel.AuthConfig
	global   reqmodel.AuthConfig

	store    storage.Store
	logf     func(format string, args ...any)
	dispatch func(fn func())
}

func NewRegistry(store storage.Store) *Registry {
	return &Registry{
		requests: make(map[string]reqmodel.AuthConfig),
		folders:  make(map[string]reqmodel.AuthConfig),
		files:    make(map[string]reqmodel.AuthConfig),
		store:    store,
		logf:     log.Printf,
		dispatch: func(fn func()) { go fn() },
	}
}

// Resolve walks request scope, then file, then global, returning the
// first scope that holds a config. An explicit none-typed config stops
// the walk: the user said "no auth here", inheriting past it would
// resurrect auth they turned off. Only an absent scope falls through.
func (r *Registry) Resolve(requestID, fileID string) (reqmodel.AuthConfig, Source) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(requestID, "", fileID)
}

// ResolveForRequest additionally walks the request's folder chain
// between request and file scope, for requests organized in collection
// folders.
func (r *Registry) ResolveForRequest(
	req *reqmodel.Request,
	doc *reqmodel.Document,
) (reqmodel.AuthConfig, Source) {
	if req == nil {
		return nil, SourceNone
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	folderID := req.FolderID
	if doc != nil && folderID != "" && doc.FindFolder(folderID) == nil {
		folderID = ""
	}
	return r.resolveLocked(req.ID, folderID, req.FileID)
}

func (r *Registry) resolveLocked(requestID, folderID, fileID string) (reqmodel.AuthConfig, Source) {
	if requestID != "" {
		if cfg, ok := r.requests[requestID]; ok {
			return cfg, SourceRequest
		}
	}
	if folderID != "" {
		if cfg, ok := r.folders[folderID]; ok {
			return cfg, SourceFolder
		}
	}
	if fileID != "" {
		if cfg, ok := r.files[fileID]; ok {
			return cfg, SourceFile
		}
	}
	if r.global != nil {
		return r.global, SourceGlobal
	}
	return nil, SourceNone
}

// Effective reports the config the engine should act on: nil when the
// walk ended on nothing or on an explicit none.
func Effective(cfg reqmodel.AuthConfig) reqmodel.AuthConfig {
	if cfg == nil || cfg.Kind() == reqmodel.AuthNone {
		return nil
	}
	return cfg
}

func (r *Registry) SetRequest(requestID string, cfg reqmodel.AuthConfig) {
	r.mu.Lock()
	r.requests[requestID] = cfg
	r.mu.Unlock()
	r.persistSet(keyRequestPrefix+requestID, cfg)
}

func (r *Registry) SetFolder(folderID string, cfg reqmodel.AuthConfig) {
	r.mu.Lock()
	r.folders[folderID] = cfg
	r.mu.Unlock()
	r.persistSet(keyFolderPrefix+folderID, cfg)
}

func (r *Registry) SetFile(fileID string, cfg reqmodel.AuthConfig) {
	r.mu.Lock()
	r.files[fileID] = cfg
	r.mu.Unlock()
	r.persistSet(keyFilePrefix+fileID, cfg)
}

func (r *Registry) SetGlobal(cfg reqmodel.AuthConfig) {
	r.mu.Lock()
	r.global = cfg
	r.mu.Unlock()
	r.persistSet(keyGlobal, cfg)
}

func (r *Registry) DeleteRequest(requestID string) {
	r.mu.Lock()
	delete(r.requests, requestID)
	r.mu.Unlock()
	r.persistRemove(keyRequestPrefix + requestID)
}

func (r *Registry) DeleteFolder(folderID string) {
	r.mu.Lock()
	delete(r.folders, folderID)
	r.mu.Unlock()
	r.persistRemove(keyFolderPrefix + folderID)
}

func (r *Registry) DeleteFile(fileID string) {
	r.mu.Lock()
	delete(r.files, fileID)
	r.mu.Unlock()
	r.persistRemove(keyFilePrefix + fileID)
}

func (r *Registry) DeleteGlobal() {
	r.mu.Lock()
	r.global = nil
	r.mu.Unlock()
	r.persistRemove(keyGlobal)
}

// Hydrate restores persisted configs. Unreadable entries are dropped
// with a log line, not an error - a corrupt auth row should not keep
// the app from starting.
func (r *Registry) Hydrate(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	keys, err := r.store.Keys(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		if !strings.HasPrefix(key, "auth:") {
			continue
		}
		data, err := r.store.Get(ctx, key)
		if err != nil || data == nil {
			continue
		}
		cfg, err := reqmodel.UnmarshalAuth(data)
		if err != nil {
			r.logf("authcfg: discard unreadable entry %s: %v", key, err)
			continue
		}
		switch {
		case key == keyGlobal:
			r.global = cfg
		case strings.HasPrefix(key, keyRequestPrefix):
			r.requests[key[len(keyRequestPrefix):]] = cfg
		case strings.HasPrefix(key, keyFolderPrefix):
			r.folders[key[len(keyFolderPrefix):]] = cfg
		case strings.HasPrefix(key, keyFilePrefix):
			r.files[key[len(keyFilePrefix):]] = cfg
		}
	}
	return nil
}

func (r *Registry) persistSet(key string, cfg reqmodel.AuthConfig) {
	if r.store == nil {
		return
	}
	data, err := reqmodel.MarshalAuth(cfg)
	if err != nil {
		r.logf("authcfg: encode %s: %v", key, err)
		return
	}
	r.dispatch(func() {
		if err := r.store.Set(context.Background(), key, data); err != nil {
			r.logf("authcfg: persist %s: %v", key, err)
		}
	})
}

func (r *Registry) persistRemove(key string) {
	if r.store == nil {
		return
	}
	r.dispatch(func() {
		if err := r.store.Remove(context.Background(), key); err != nil {
			r.logf("authcfg: remove %s: %v", key, err)
		}
	})
}
