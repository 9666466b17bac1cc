// Package finance tracks the financial standing of users of a shared,
// federated resource pool and enforces payment on their resources.
//
// Finance is designed as a library, not a service. Import it into the
// process that serves your resource API and call it synchronously from
// request handlers. It provides:
//
//   - Finance plans with pluggable kinds (prepaid credits, postpaid invoices)
//   - Periodic billing of usage records against a per-plan pricing table
//   - Enforcement that stops resources of users who do not pay and resumes
//     them once they do
//   - Lifecycle hooks for audit trails, metrics and event publishing
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/finance"
//	    "github.com/xraph/finance/plankind/postpaid"
//	    "github.com/xraph/finance/plankind/prepaid"
//	    "github.com/xraph/finance/store/postgres"
//	)
//
//	store, err := postgres.New(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eng := finance.New(store,
//	    finance.WithKind(prepaid.Name, prepaid.New),
//	    finance.WithKind(postpaid.Name, postpaid.New),
//	    finance.WithUsageSource(source),
//	    finance.WithActuator(act),
//	)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop(ctx)
//
// # Core Concepts
//
// Plans name a kind and carry its options:
//
//	eng.InstallPlan(ctx, &plan.Plan{
//	    Name: "gold",
//	    Kind: "prepaid",
//	    Options: map[string]string{
//	        "billing_interval": "3600",
//	        "enforcement_wait": "86400",
//	        "pricing":          "compute,2,4,5.0;volume,100,0.1",
//	    },
//	})
//
// Users are keyed by (user, provider) and subscribe to one plan at a time:
//
//	eng.RegisterUser(ctx, user.Key{UserID: "alice", ProviderID: "p1"}, "gold")
//
// Request handlers ask whether an operation is allowed:
//
//	ok, err := eng.IsAuthorized(ctx, key, finance.OpCreate)
//
// Creating resources requires the user to be paid up; every other operation
// is always allowed so that users can inspect and delete what they own.
//
// # Workers
//
// Every installed plan runs a billing worker and an enforcement worker.
// Billing charges each user for the usage accumulated since the last
// billing time once per billing interval. Enforcement moves unpaid users
// through DEFAULT, WAITING_FOR_STOP, STOPPING and STOPPED, and paid users
// back through RESUMING to DEFAULT.
//
// # Errors
//
// Every error wraps one of ErrConfiguration, ErrInvalidParameter or
// ErrInternal. Use IsInvalidParameter, IsConfiguration and IsInternal to
// map them to responses.
package finance
