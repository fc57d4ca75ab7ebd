// Package http exposes a StorageService over HTTP using chi.
//
// # Routes
//
//	GET    /healthz                        liveness and database ping
//	GET    /metrics                        Prometheus metrics (when a Gatherer is set)
//	POST   /storage/init-upload            reserve an object, returns a presigned URL
//	PUT    /storage/upload/{token}         write the content of a reserved object
//	GET    /storage/objects?bucket&key     download ticket for one object
//	GET    /storage/objects?bucket&prefix  list the caller's objects
//	DELETE /storage/objects?bucket&key     soft delete
//	GET    /storage/downloads/{token}      stream object content
//
// Routes under /storage/objects and /storage/init-upload require an owner
// bearer JWT, checked by AuthMiddleware with an OwnerVerifier such as
// OwnerAuth. The upload and download routes carry their authority in the
// capability token and need no header.
//
// # Usage
//
//	auth, err := http.NewOwnerAuth(jwtSecret, "stashbox")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	handler := http.NewHandler(&http.HandlerConfig{Auth: auth}, service)
//	http.ListenAndServe(":5708", handler.Router())
//
// Errors are JSON bodies of the form {"error": code, "message": text}.
// Token failures all map to 401 with the same message.
package http
