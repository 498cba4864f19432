// Package workitem defines the work item model: a unit of inbound signal
// represented as a single file whose identity is its filename and whose
// state is the directory that holds it.
//
// An item file is a header block of "key: value" lines, a blank line, and
// a free-text body. The header carries the typed schema (type, service,
// priority, status) plus any decision fields written later in the item's
// life. Unknown header keys are preserved in order and re-emitted
// verbatim; no component re-parses the body for structured data.
//
// Identity is the filename stem <channel>-<timestamp>-<slug>. Children
// synthesized from a cross-channel parent are named
// <channel>--<parentID>, so a terminal child's filename embeds its parent
// reference. This convention is what makes coordinator state
// reconstructable after tracking-store corruption.
package workitem
