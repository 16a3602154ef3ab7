// ABOUTME: Package documentation for the fetch package
// ABOUTME: Describes conditional URL retrieval and GitHub release handling

// Package fetch retrieves remote resource payloads over HTTP.
//
// URL-origin resources are fetched conditionally: the validators cached
// from the previous retrieval (ETag, Last-Modified) are sent back as
// If-None-Match / If-Modified-Since, and a 304 response short-circuits
// without downloading the body. GitHub-release resources compare the
// latest release tag against the cached one instead.
//
// Subscription endpoints often attach quota information through the
// Subscription-Userinfo response header; FetchURL parses it when present
// so the synchronizer can record it alongside the proxy list.
package fetch
