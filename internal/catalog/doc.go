// Package catalog stores what sfcd knows about the automation server:
// its connection settings, the discovered variable catalog, and which
// variables are tracked during runs or offered to the chart designer.
//
// The catalog is fed by an external discovery tool through
// ReplaceVariables; sfcd never browses the server itself.
package catalog
