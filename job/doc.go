// Package job defines the data model shared by the API, the queue and the
// worker: the persisted Job record, its status and verdict enums, the wire
// payload carried by the broker, the structured result produced by the
// sandbox, and the partial-update Patch applied by status reports.
package job
