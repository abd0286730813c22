// Package thumbnail supervises the render worker and delivers thumbnails to
// callers.
//
// A Client owns one worker and one request/response pipe pair for its whole
// life. At most one request is outstanding on the pair; further async
// requests wait in a FIFO queue and start automatically as each response
// completes.
//
// Modes:
//   - RenderSync writes a request and blocks until the response is read
//   - RenderAsync returns immediately; the callback runs on the client's loop
//
// Async state (in-flight slot, queue, broken flag) is owned by the loop
// goroutine. RenderAsync, Stats and Close must be called on that goroutine,
// for example via loop.Call.
//
// Failure handling:
//   - Spawn failure → client is broken from the start
//   - EOF or I/O error on either pipe → client is broken
//   - Response timeout (worker.render_timeout) → worker killed, client broken
//   - Broken → every render resolves to a nil image, with no further I/O
//
// A broken client never recovers. There is no respawn and no retry.
package thumbnail
