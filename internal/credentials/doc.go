// Package credentials holds the platform access token and the helpers that
// keep it out of logs and error text.
//
// Token never renders its value through fmt; Sanitize strips both the known
// token values and any userinfo embedded in URLs from arbitrary text.
package credentials
