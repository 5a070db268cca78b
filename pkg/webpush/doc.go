// Package webpush delivers notification events to browser push subscriptions.
//
// A delivery resolves the recipient's subscriptions, authorizes each push
// service origin once with VAPID, encrypts the payload per subscriber with
// aes128gcm and posts it. Subscribers are served in parallel and independently:
// one failing endpoint never affects another.
//
//	store := webpush.NewMemoryStore()
//	dispatcher := webpush.NewDispatcher(webpush.NewResolver(store), signer)
//	cleaner := webpush.NewCleaner(store)
//
//	result, err := dispatcher.Deliver(ctx, event)
//	if errors.Is(err, webpush.ErrEventExpired) {
//	    // result.Skipped is true, nothing was sent
//	}
//	report := cleaner.CleanupInvalidSubscriptions(ctx, result)
//
// # Outcomes
//
// Batch level failures are returned as errors: ErrInvalidEvent,
// ErrEventExpired, ErrPayloadTooLarge and ErrAuthentication. Everything else
// is reported per subscription in DeliveryResult.Attempts with an ErrorCode:
//
//   - 2xx: success
//   - 404, 410: expired_subscription, listed in SubscriptionsToRemove
//   - 429: rate_limited, RetryAfter carries the hint when present
//   - other statuses: provider_error
//   - transport failures and timeouts: network_error
//   - malformed endpoint: invalid_subscription
//   - unusable key material: encryption_error
//
// Only expired_subscription leads to removal. Nothing is retried; callers
// decide what to do with rate_limited and network_error attempts.
//
// The pgstore subpackage provides a PostgreSQL Store.
package webpush
