// Package services wraps the external systems the harmonizer depends on.
//
// # ML Transform Service
//
// [TransformService] posts a clip as multipart field "audio_file" to POST {ML_SERVICE_URL}/generate
// and returns the response body, which is the harmonized WAV.
//
// Transient failures (network errors, 5xx, 429) are retried with exponential backoff via retry-go.
// Any other non-2xx status fails immediately with a [StatusError].
//
// # Object Storage
//
// [StorageService] talks to Supabase Storage through its S3-compatible endpoint using path-style requests.
// Objects are written under "<userID>/<ksuid>_<filename>" and addressed by public URL:
//
//	{public_url}/{bucket}/{key}
//
// # Google Login
//
// [GoogleService] runs the OAuth2 authorization-code flow and reads the OpenID userinfo profile
// so the auth package can link or create an account.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrTransformFailed] : ML service answered with an error status or empty body
//   - [shared.ErrServiceUnavailable] : ML service or Google unreachable
//   - [shared.ErrStorage] : bucket or object operation failed
//   - [shared.ErrFileTooLarge] : upload above the configured limit
//   - [shared.ErrInvalidCredentials] : OAuth code exchange or profile lookup rejected
package services
