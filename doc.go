// Package stashbox provides a small multi-tenant blob store. Objects are
// addressed by (owner, bucket, key) and written or read through short-lived
// HMAC capability tokens rather than owner credentials.
//
// An upload is two steps. InitUpload records a pending object and returns a
// presigned URL carrying an upload token. Redeeming that token with Upload
// streams the content to a blob and activates the object. The token is
// single use: a second redemption fails with ErrConflict.
//
// Reads mirror this. GetObject returns a download URL carrying a download
// token, and Download redeems it while the object is still active.
//
// # Key Components
//
//   - StorageService: Coordinates the repository, blob store and token signer
//   - ObjectRepo: Metadata persistence (PostgreSQL, SQLite)
//   - BlobStore: Content storage addressed by blob id (filesystem)
//   - TokenSigner: Signs and verifies capability tokens
//
// # Example Usage
//
//	signer, err := stashbox.NewTokenSigner(secret)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	service, err := stashbox.NewStorageService(repo, blobs, signer, stashbox.ServiceConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ticket, err := service.InitUpload(ctx, "u1", stashbox.InitUploadRequest{
//	    Bucket:   "avatars",
//	    Key:      "u1.png",
//	    MimeType: "image/png",
//	})
//
//	token := strings.TrimPrefix(ticket.PresignedURL, stashbox.DefaultUploadPath)
//	obj, err := service.Upload(ctx, token, file)
//
// Deleting an object hides it immediately. Its blob stays on disk until
// Tombstone runs.
//
// See the http package for the REST API and the database package for the
// metadata backends.
package stashbox
