// Package services holds cross-cutting helpers shared by the storage and task
// subsystems: the sentinel error taxonomy used for failure classification and
// the context keys that thread task/asset identity into logs.
package services
