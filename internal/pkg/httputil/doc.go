// Package httputil provides the JSON response and request helpers shared
// by the admin API handlers.
//
// Handlers use these instead of raw http.ResponseWriter calls so every
// endpoint emits the same envelope and error structure. The tracking
// service deliberately does not use them: its responses must stay
// byte-identical for resolved and unresolved tokens.
package httputil
