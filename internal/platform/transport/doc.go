// Package transport assembles the HTTP stack shared by platform backends:
// bearer-token authentication, retries on 429 and 5xx responses, minimum
// spacing between requests and request counting.
package transport
