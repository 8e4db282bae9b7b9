// Package crawler implements the list-driven harvesting pipeline: URL
// admission, robots.txt permissions, the retrying Colly fetcher, the content
// filter, the on-disk run store, and the engine that ties them together.
package crawler
