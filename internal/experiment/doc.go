// Package experiment defines the experiment data model and the in-memory
// Catalog that registers definitions for the assignment engine.
//
// # Overview
//
// An Experiment has ordered variants with 0..100 traffic allocations, an
// optional targeting audience (user types, locations, a rollout percentage,
// and an optional CEL rule), and named conversion goals. The Catalog is the
// single source of truth for "is this experiment currently active": lookups
// are concurrent-safe and administrative updates swap a cloned map so
// readers never see partial state.
//
// Definitions can be loaded programmatically or from a JSON file:
//
//	exps, _ := experiment.LoadFile("experiments.json")
//	cat := experiment.NewCatalog()
//	_ = cat.Load(exps)
//	e, ok := cat.Get("checkout-button")
package experiment
