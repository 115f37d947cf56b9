// Package runtime assembles the storage, catalog, engine, and recorder
// components into a single-node instance with a managed lifecycle.
package runtime
