// Package paths resolves the filesystem locations pacc reads and writes.
//
// Two orthogonal storage roots exist: the user scope (one per host, under
// the home directory) and the project scope (anchored at a working-directory
// ancestor containing the project manifest). Both roots keep their
// configuration under a .claude directory:
//
//	~/.claude/settings.json                user-scope configuration
//	<project>/.claude/settings.json        project-scope configuration
//	<scope>/.claude/plugins/config.json    installed-plugins registry
//	<scope>/.claude/pacc/fragments/        fragment storage
//	<project>/pacc.json                    project manifest
//	<project>/pacc.local.json              local override (never committed)
//	<project>/CLAUDE.md                    project memo with fragment block
//
// The package also provides the path-hygiene primitives every component uses
// when composing paths from untrusted input: [Normalize] and
// [IsSafeRelative].
package paths
