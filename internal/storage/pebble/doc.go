// Package pebblestore provides a thin wrapper around Pebble with fsync
// policy, batches, and point helpers. It backs the server-side assignment
// store and the event sink.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set([]byte("k"), []byte("v"))
//	v, _ := db.Get([]byte("k"))
package pebblestore
