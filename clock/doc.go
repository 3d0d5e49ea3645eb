// Package clock models a device's clock generation network and reconfigures
// it on behalf of competing consumers.
//
// A Tree is an arena of nodes of four kinds. Roots are parentless sources,
// standard nodes derive their rate from one parent, muxes select one of
// several parents, and leaves are the outputs consumers attach to. Hardware
// is reached only through driver interfaces (RootDriver, StandardDriver,
// MuxDriver, Gate).
//
// Every reconfiguration is guarded by a three-phase walk of the affected
// subtree. The Query phase checks the new rates against every leaf's combined
// constraint and every mux's electrical limits. The Pre and Post phases
// surround the single hardware write and reach consumer callbacks. No Pre or
// Post event is sent unless the whole subtree accepted the change in Query.
//
// Consumers request frequency windows through an Output. Requests on the same
// leaf are intersected into a combined constraint, which is recomputed from
// scratch on every change and only committed once the tree has been
// reconfigured to satisfy it. Static output states are tried first; when none
// fits and the tree was built WithSetRate, the tree negotiates a rate at
// runtime, searching mux inputs for the most accurate or cheapest result.
//
// A single mutex serializes every public operation. Callbacks and hooks run
// while it is held and must not call back into the tree.
package clock
