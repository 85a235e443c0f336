// Package graph holds the data model carried by semchain blocks: terms,
// subject-predicate-object statements and named graphs, together with the
// canonicalization that gives a graph a digest independent of blank
// identifier naming and statement order.
//
// The package also defines the two collaborators a chain needs around its
// graphs: the StatementStore into which committed graphs are inserted, and
// the Gate that passes or rejects a graph on semantic grounds before a block is
// accepted.
//
// Canonicalization
//
// Each statement is hashed with blank subjects replaced by SUBJ_BLANK and
// blank objects by OBJ_BLANK. A statement that mentions a blank identifier then
// folds in the digests of its one-hop neighbours: the statements where that
// identifier appears in the opposite position. The resulting per-statement
// values are sorted and hashed together.
//
// This is an approximation of graph canonical form. Graphs with several
// structurally symmetric blank identifiers can collide, and the behaviour is
// kept as is so that digests stay compatible across nodes.
package graph
