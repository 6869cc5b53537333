// Automod component for caching arbitrary data (as JSON strings) with a fixed TTL and purging.
//
// Includes an interface and implementations using redis and in-process memory.
//
// The engine uses this to remember AI classifier verdicts for recently seen message content.
package cachestore
