// Package audit journals ledger events: subscriptions started or extended,
// upgrades, credit movements, catalog edits and treasury withdrawals.
//
// A Logger stamps each event with an id and time and passes it to a Storage.
// MemoryStorage keeps events for inspection, SlogStorage writes them as
// structured log records, and AsyncWriter batches writes to any BatchWriter
// off the request path.
//
//	journal := audit.NewLogger(audit.NewAsyncWriter(audit.NewSlogStorage(log), audit.AsyncOptions{}))
//	_ = journal.Log(ctx, audit.ActionCreditsDeducted,
//		audit.WithSubscriber(addr.String()),
//		audit.WithMetadata("amount", 1),
//	)
package audit
