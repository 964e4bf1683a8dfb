// Package clouddrive defines the two-tier file interface the storage core
// works against. A drive pairs a library's local tree with a durable cloud
// copy and exposes presence, hydration, eviction, and enumeration without
// making any policy decisions itself.
//
// Two implementations live in subpackages: fsdrive mirrors the cloud tier
// into a plain directory and is used by tests and local development; s3drive
// stores the cloud tier in an S3-compatible bucket.
package clouddrive
