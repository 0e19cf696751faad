// Package tape records one live execution of an operation and replays it
// later against a different code revision.
//
// A Recorder wraps functions at four kinds of interception points:
//
//   - WrapOperation: the unit of recording. Each call starts a session
//     that creates a recording, captures the operation result and saves
//     the recording through a cassette.
//   - InterceptInput: a non-deterministic source (clock, randomness,
//     remote read). Recorded by a key derived from its arguments and
//     replayed without calling the source.
//   - InterceptOutput: a sink whose arguments are observable behavior.
//     Its arguments are collected as outputs in both modes; its result is
//     recorded and replayed like an input.
//   - Mute: a call whose value must never be persisted. Replayed as a
//     placeholder.
//
// Play binds a saved recording, runs the operation again and returns the
// outputs observed during replay next to the recorded ones.
//
// Results may be plain values, failures, or a *Deferred that settles
// later. Each is replayed in the same shape: a deferred value comes back
// as an already settled *Deferred, a failure as an error of equivalent
// name, message and fields.
//
// SESSION STATE:
//
// A Recorder is Idle, Recording or in Playback. The state belongs to the
// instance, so a Recorder runs one session at a time and a second one
// fails with ErrCodeSessionState. Parallel operations need one Recorder
// each.
//
// Interception keys:
//
//	output: <alias> #<n>.output    call arguments of the n-th call to alias
//	output: <alias> #<n>.result    result of that call
//	input: <alias> args=<json>     result of an input source
//
// Repeated input keys within one session get a " #<n>" suffix from the
// second occurrence on.
package tape
