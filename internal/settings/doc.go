// Package settings implements the scope-level configuration store.
//
// Each scope (user or project) keeps a single settings.json whose top-level
// keys are extension kinds mapping to ordered record arrays, plus an
// enabledPlugins map and a repositories map. Unknown top-level keys are
// preserved verbatim, in their original order, across load/save cycles.
//
// Every mutation funnels through [Store.UpdateAtomic]: load, transform,
// structural-validate, atomic-swap write with a .backup on the side. At any
// instant observable from outside a write, the file on disk is parsable
// JSON, either the prior version or the new one.
package settings
