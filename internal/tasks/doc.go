// package tasks implements batch operations over the media client.
//
// The core abstraction is PrefetchEngine, which downloads track references
// concurrently into the local media cache. Operations emit progress updates
// via channels for non-blocking status reporting to the CLI layer.
package tasks
