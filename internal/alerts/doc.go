// Package alerts evaluates per-user alert conditions and decides, through
// persisted triggered-alert records, whether a notice is new.
//
// Each alert kind is a Check. A Check resolves its audience from storage,
// reads upstream snapshots and hands Notices to an Informer. The Informer
// applies one of two policies:
//
//   - OneShot: a notice is sent once per key and never again.
//   - LevelTriggered: a notice is sent on every transition between the
//     overloaded and recovered states; repeats of the current state are quiet.
//
// Records are written after the delivery attempt even when delivery failed,
// so a flapping chat never causes duplicate notices.
package alerts
