// Package httputil writes the uniform RPC envelope used by every endpoint.
//
// Handlers never write raw http.ResponseWriter payloads; they produce a
// value (plus optional ETag) or an error, and the helpers here serialize
// exactly one of the three envelope shapes: ok+value, ok+notModified, or
// error code+message.
package httputil
