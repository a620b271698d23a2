// Package gate validates compiled plan documents before a build
// workspace is promoted.
//
// Three gates run in sequence. The policy gate evaluates Rego
// policies (built-in plus any project-supplied .rego files) against
// the document. The graph gate rebuilds the dependency graph and
// rejects cyclic plans. The fragment checker confirms that every
// generator fragment a build promised exists and is non-empty.
//
// Violations carry a severity; error and critical violations block
// promotion, info and warning violations are reported but do not.
package gate
