// Package health reports the health of a cache deployment.
//
// StoreChecker round-trips a probe key through the store client and
// RegionChecker reports the key index size of every region in a registry.
// An Aggregator runs checkers concurrently and the HTTP handlers expose the
// combined status:
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewStoreChecker(client, health.StoreCheckerConfig{}))
//	agg.Register(health.NewRegionChecker(registry, health.RegionCheckerConfig{MaxIndexedKeys: 100000}))
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
package health
