package journey

import (
	"context"

	"crossword-loadgen/internal/httpx"
)

// step1CDNResources are the tenant-CDN and external font-library assets
// the browser fetches after loading the date picker in the
// with-static-assets variant.
var step1CDNResources = []string{
	"https://cdn-test.amuselabs.com/pmm/dd97891/css/date-picker-min.css",
	"https://cdn-test.amuselabs.com/pmm/dd97891/js/picker-min.js",
	"https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.2.0/css/all.min.css",
	"https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.2.0/webfonts/fa-solid-900.woff2",
}

// step3CDNResources are the tenant-CDN assets fetched after loading the
// crossword page in the with-static-assets variant.
var step3CDNResources = []string{
	"https://cdn-test.amuselabs.com/pmm/dd97891/css/crossword-player-min.css",
	"https://cdn-test.amuselabs.com/pmm/dd97891/js/c-min.js",
}

// fetchCDNResources fetches each URL in urls sequentially and records a
// CDNResult for each, never returning an error: static-asset failures are
// non-fatal to the journey.
func (j *Journey) fetchCDNResources(ctx context.Context, urls []string) ([]CDNResult, float64) {
	results := make([]CDNResult, 0, len(urls))
	var total float64

	for _, u := range urls {
		start := j.clock.Now()
		resp, _, err := httpx.Get(ctx, j.client, u)
		latencyMs := float64(j.clock.Since(start).Microseconds()) / 1000.0
		total += latencyMs

		cr := CDNResult{URL: u, LatencyMs: latencyMs}
		if err != nil {
			cr.Error = err.Error()
		} else {
			cr.Success = true
			cr.StatusCode = resp.StatusCode
		}
		results = append(results, cr)
	}
	return results, total
}
