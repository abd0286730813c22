// Package worker runs inside the isolated thumbnail process.
//
// The worker reads encoded requests from its request pipe, renders each one
// and writes exactly one response frame back before it looks at the next
// request. Rendering never happens concurrently.
//
// Key features:
//   - Chunk-tolerant request decoding (1-byte reads, batched requests)
//   - Dispatch by kind to a render.Renderer
//   - Optional SQLite cache of finished thumbnails
//
// Failure handling:
//   - Unknown kind tag → sentinel response, stream stays aligned
//   - Renderer error or panic → sentinel response, worker keeps serving
//   - Theme not installed → sentinel response
//   - EOF on the request pipe → Serve returns nil
//   - Write failure on the response pipe → Serve returns the error
package worker
