// Package paccerr defines the error taxonomy shared by every pacc component.
//
// Each failure is classified by a [Kind] (validation, configuration,
// filesystem, source, network, security, conflict, timeout) and carries a
// machine-readable code plus an optional context map and suggestion. The
// taxonomy is built on cockroachdb/errors so wrapped errors keep their
// classification through arbitrary call depth:
//
//	err := paccerr.Security("path_traversal", "entry escapes extraction root")
//	...
//	if paccerr.IsKind(err, paccerr.KindSecurity) {
//	    // refuse the install
//	}
//
// The package also provides [ExitError] for mapping failures to process exit
// codes at the CLI boundary:
//
//   - ExitSuccess (0): command completed successfully
//   - ExitUser (1): user-correctable error (bad input, conflicts, validation)
//   - ExitSystem (2): system error (I/O, network, permissions)
package paccerr
