// Package storage writes generated assets (frames, clips, compiled videos)
// somewhere durable and hands back an opaque URL the rest of the system
// never inspects. Two implementations share the Uploader contract: a local
// filesystem store for development and an S3-compatible store for
// production, selected once at startup by whether a bucket is configured.
package storage

import "context"

// Uploader persists data at key and returns a URL identifying it. The URL
// scheme is implementation-defined (file:// for local, s3:// for the bucket
// store); callers must treat it as opaque.
type Uploader interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}
