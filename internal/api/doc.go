// Package api hosts the HTTP server, middleware, and REST handlers for the
// tool catalog. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/tools and /v1/tools/{name} for the merged catalog view.
//   - PUT /v1/tools/{name} and POST /v1/tools/{name}/icon for curation.
//   - POST /v1/crawl and GET /v1/crawl/{job_id} for crawl jobs.
//   - GET /v1/favicon, POST /v1/catalog/refresh and GET /v1/news.
//
// Mutating routes sit behind the optional API key.
package api
