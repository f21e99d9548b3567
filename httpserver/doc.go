// Package httpserver exposes the tiered content store over HTTP.
//
// The server is a thin shell around the hybrid storage backend: request
// handlers read a locator and raw bytes, delegate to storage, and translate
// the typed storage errors into HTTP status codes. No tier selection logic
// lives here.
//
// # Endpoints
//
// Blob API under /api/v1:
//
//	PUT    /api/v1/blobs/{locator}                      store content
//	GET    /api/v1/blobs/{locator}                      read content
//	HEAD   /api/v1/blobs/{locator}                      existence check
//	DELETE /api/v1/blobs/{locator}                      delete from all tiers
//	GET    /api/v1/blobs/{locator}/stat                 metadata only
//	POST   /api/v1/blobs/{locator}/copy                 duplicate content
//	POST   /api/v1/blobs/{locator}/versions             create a version
//	GET    /api/v1/blobs/{locator}/versions             list versions
//	GET    /api/v1/blobs/{locator}/versions/{version_id} read one version
//	POST   /api/v1/blobs/{locator}/presign              presigned URL
//	GET    /api/v1/stats                                tier and access stats
//	POST   /api/v1/tiering                              maintenance pass
//
// Health and diagnostics: /livez, /readyz, /drain, /undrain, and optional
// pprof under /debug.
//
// Prometheus metrics are served on a separate listener so scrapes never
// contend with blob traffic.
package httpserver
