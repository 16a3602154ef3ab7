// ABOUTME: Package documentation for the subsync package
// ABOUTME: Describes the subscription refresh flow

// Package subsync keeps subscription-backed proxy groups in step with
// their remote endpoints.
//
// A refresh reads the subscription row and its cached URL validators,
// fetches the document conditionally, parses it according to the stored
// format, and replaces the group's proxy list atomically through the
// store's batch update. Quota information reported by the endpoint is
// recorded alongside.
package subsync
