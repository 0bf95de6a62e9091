// Package design persists operator-authored charts.
//
// A design is a named chart plus the designer UI's viewport. Nodes and
// edges are stored as the JSON the designer produces; Load decodes them
// into Chart records for execution.
package design
