package blobstore

import "context"

// BlobStore uploads a photo captured on the device and returns the URL the
// remote inventory service should reference. Uploads require connectivity;
// the engine treats failure as non-fatal and drops the photo.
type BlobStore interface {
	Upload(ctx context.Context, localPath string) (remoteURL string, err error)
}
