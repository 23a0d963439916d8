// Package scan discovers compiler-emitted metadata sections in every image
// loaded into the current process.
//
// # Overview
//
// A Scanner enumerates the loaded modules once per scan, resolves each one to
// an in-process handle, looks for a fixed PE section in its headers and hands
// every hit to a BlockFunc:
//
//	s := scan.New(scan.DefaultConfig())
//	s.InitializeConformanceLookup(registry.Adder(registry.KindConformances))
//	s.InitializeTypeMetadataLookup(registry.Adder(registry.KindTypeMetadata))
//
// Both operations are meant to run once, early, from the initializing
// goroutine. They may run concurrently with each other but not with
// themselves.
//
// # Failures
//
// Enumeration failures and images without a PE signature are unrecoverable
// and go to Config.Abort, which does not return. A module that fails to
// resolve is skipped. Images loaded after a scan are not picked up.
package scan
