// Package vm implements the meta-object protocol of the mop runtime.
//
// This package contains:
//   - Class, field and method descriptors plus the name -> class table
//   - ClassMetadata: the per-class member index built on first use
//   - Overload resolution by argument type distance
//   - The Dispatcher with its fallback chain, properties and categories
//   - The Registry holding metadata snapshots, mixins and extension modules
package vm
