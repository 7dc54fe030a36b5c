// Package cache provides a generic in-memory LRU cache with optional expiry.
//
//	prefs := cache.NewLRUCache[string, *Preference](10000, cache.WithTTL(time.Minute))
//	prefs.Put(userID, pref)
//	if p, ok := prefs.Get(userID); ok {
//		// use p
//	}
//
// SetEvictCallback lets owners of closable values release them when they
// fall out of the cache.
package cache
