package cache

import "fmt"

// Key builds a namespaced cache key of the form
// service:entity[:subtype][:id]. Construction is pure and deterministic so
// services sharing one cache never collide; keys are treated as opaque once
// built and are never parsed back.
func Key(service, entity, id, subtype string) string {
	key := service + ":" + entity

	if subtype != "" {
		key += ":" + subtype
	}

	if id != "" {
		key += ":" + id
	}

	return key
}

// KeyInt is Key for numeric identifiers
func KeyInt(service, entity string, id int64, subtype string) string {
	return Key(service, entity, fmt.Sprintf("%d", id), subtype)
}

// TokenKey returns the cache key holding a user's token bundle
func TokenKey(userID string) string {
	return "token:" + userID
}

// BlacklistKey returns the cache key for a revoked refresh token hash
func BlacklistKey(tokenHash string) string {
	return "blacklist:" + tokenHash
}

// SessionKey returns the cache key holding a serialized session
func SessionKey(sessionID string) string {
	return "sess:" + sessionID
}

// EntityKeys produces the common key shapes for one entity type within one
// service namespace, mirroring how the blog and user services cache their
// reads.
type EntityKeys struct {
	service string
	entity  string
}

// NewEntityKeys creates a key builder for the given service and entity
func NewEntityKeys(service, entity string) EntityKeys {
	return EntityKeys{service: service, entity: entity}
}

// Collection returns the key for a filtered collection; filter defaults to "all"
func (k EntityKeys) Collection(filter string) string {
	if filter == "" {
		filter = "all"
	}
	return Key(k.service, k.entity, "", filter)
}

// Single returns the key for one entity instance
func (k EntityKeys) Single(id string) string {
	return Key(k.service, k.entity, id, "")
}

// Sub returns the key for a categorized view of one entity instance
func (k EntityKeys) Sub(id, subtype string) string {
	return Key(k.service, k.entity, id, subtype)
}
