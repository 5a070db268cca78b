// Package api exposes deliveries and subscription management over HTTP.
//
// Every body uses the envelope {"data": ..., "meta": ..., "error": {"code", "message"}}.
// A delivery of an expired event answers 409 with the skipped result in data.
package api
