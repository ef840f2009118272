// Package catalog holds the static pricing tables of a deployment: the plan
// catalog (tier, monthly price, monthly credit grant) and the credit top-up
// catalog (one-off credit bundles).
//
// Both catalogs are plain objects injected into the services that use them.
// The platform owner may edit a plan price or a top-up bundle at runtime; the
// owner check lives in the calling service, the catalog only validates values.
//
// Amounts are integers in the smallest unit of the catalog currency. The
// default catalog is priced in gwei of ETH:
//
//	plans := catalog.DefaultPlans()
//	basic, _ := plans.Plan(catalog.Basic)
//	basic.PriceFor(catalog.Yearly) // 0.5 ETH
//	basic.CreditsFor(catalog.Yearly) // 30000
//
// Catalogs can also be loaded from YAML with LoadFile.
package catalog
