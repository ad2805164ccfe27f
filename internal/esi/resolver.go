package esi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eve-arbitrage/internal/logger"
)

// TypeTTL is how long a persisted type record is trusted.
const TypeTTL = 24 * time.Hour

// TypeStore is a persistent L2 cache for type info.
type TypeStore interface {
	GetType(typeID int32, maxAge time.Duration) (TypeInfo, bool)
	SetType(info TypeInfo)
}

type typeSource interface {
	FetchTypeInfo(ctx context.Context, typeID int32) (TypeInfo, error)
	ResolveTypeID(ctx context.Context, name string) (int32, error)
}

// TypeResolver answers type name/volume lookups through three tiers:
// L1 in-memory, L2 TypeStore, L3 ESI.
type TypeResolver struct {
	src      typeSource
	store    TypeStore
	cache    sync.Map // int32 -> TypeInfo
	names    sync.Map // lower-case name -> int32
	parallel int
}

// NewTypeResolver creates a resolver. store may be nil; parallel bounds the
// number of concurrent L3 lookups in ResolveMany.
func NewTypeResolver(src typeSource, store TypeStore, parallel int) *TypeResolver {
	if parallel < 1 {
		parallel = 1
	}
	return &TypeResolver{src: src, store: store, parallel: parallel}
}

// Lookup answers from L1/L2 only and never touches the network.
func (r *TypeResolver) Lookup(typeID int32) (TypeInfo, bool) {
	if v, ok := r.cache.Load(typeID); ok {
		return v.(TypeInfo), true
	}
	if r.store != nil {
		if info, ok := r.store.GetType(typeID, TypeTTL); ok {
			r.remember(info)
			return info, true
		}
	}
	return TypeInfo{}, false
}

// Resolve always returns something usable: on upstream failure the item is
// named "Item <id>" with a 1 m3 volume. The fallback is not cached at any
// tier, so the next call asks ESI again.
func (r *TypeResolver) Resolve(ctx context.Context, typeID int32) TypeInfo {
	if info, ok := r.Lookup(typeID); ok {
		return info
	}
	info, err := r.src.FetchTypeInfo(ctx, typeID)
	if err != nil || info.Name == "" {
		if err != nil {
			logger.Warn("ESI", fmt.Sprintf("type %d lookup failed: %v", typeID, err))
		}
		return TypeInfo{TypeID: typeID, Name: fmt.Sprintf("Item %d", typeID), Volume: 1}
	}
	r.remember(info)
	if r.store != nil {
		r.store.SetType(info)
	}
	return info
}

// ResolveMany resolves ids concurrently, bounded by the resolver's
// parallelism.
func (r *TypeResolver) ResolveMany(ctx context.Context, ids []int32) map[int32]TypeInfo {
	out := make(map[int32]TypeInfo, len(ids))
	var missing []int32
	for _, id := range ids {
		if info, ok := r.Lookup(id); ok {
			out[id] = info
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for _, id := range missing {
		g.Go(func() error {
			info := r.Resolve(gctx, id)
			mu.Lock()
			out[id] = info
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	logger.Info("ESI", fmt.Sprintf("Resolved %d item types (%d from ESI)", len(out), len(missing)))
	return out
}

// ResolveName maps an item name to its type info. Returns ErrTypeNotFound
// when ESI does not know the name.
func (r *TypeResolver) ResolveName(ctx context.Context, name string) (TypeInfo, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if v, ok := r.names.Load(key); ok {
		return r.Resolve(ctx, v.(int32)), nil
	}
	id, err := r.src.ResolveTypeID(ctx, name)
	if err != nil {
		return TypeInfo{}, err
	}
	r.names.Store(key, id)
	return r.Resolve(ctx, id), nil
}

func (r *TypeResolver) remember(info TypeInfo) {
	r.cache.Store(info.TypeID, info)
	r.names.Store(strings.ToLower(info.Name), info.TypeID)
}
