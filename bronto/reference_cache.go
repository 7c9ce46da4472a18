package bronto

import (
	"context"
	"time"
)

const (
	ReferenceDataTtl = 24 * time.Hour
	fieldsCacheKey   = "bronto_fields"
	listsCacheKey    = "bronto_lists"
)

// ReferenceCache holds Bronto field and list definitions for ReferenceDataTtl.
// Two callers missing the cache at the same time both fetch and store; the last write wins.
type ReferenceCache struct {
	api   IBrontoApi
	store ICacheStore
	ttl   time.Duration
}

func NewReferenceCache(api IBrontoApi, store ICacheStore) *ReferenceCache {
	return &ReferenceCache{
		api:   api,
		store: store,
		ttl:   ReferenceDataTtl,
	}
}

func (rc *ReferenceCache) Fields(ctx context.Context) (fields []*FieldDefinition, err error) {
	var found bool
	if found, err = rc.store.Get(ctx, fieldsCacheKey, &fields); err != nil || found {
		return
	}
	if fields, err = rc.api.ReadFields(ctx, 1); err != nil {
		return
	}
	err = rc.store.Set(ctx, fieldsCacheKey, fields, rc.ttl)
	return
}

func (rc *ReferenceCache) Lists(ctx context.Context) (lists []*MailingList, err error) {
	var found bool
	if found, err = rc.store.Get(ctx, listsCacheKey, &lists); err != nil || found {
		return
	}
	if lists, err = rc.api.ReadLists(ctx, 1); err != nil {
		return
	}
	err = rc.store.Set(ctx, listsCacheKey, lists, rc.ttl)
	return
}
