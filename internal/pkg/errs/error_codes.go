/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both internally
within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Avatar Upload Errors
const (
	// ErrFileSizeTooLarge indicates that the avatar file exceeds the size limit.
	ErrFileSizeTooLarge = 2101

	// ErrFileTypeInvalid indicates that the avatar file name or MIME type is not an accepted image format.
	ErrFileTypeInvalid = 2102

	// ErrAvatarKeyInvalid indicates that the requested object key is outside the avatar namespace.
	ErrAvatarKeyInvalid = 2103

	// ErrFileStorageFailed indicates that the storage backend rejected the presign request.
	ErrFileStorageFailed = 2104

	// ErrStorageDisabled indicates that avatar storage is not configured on this deployment.
	ErrStorageDisabled = 2105
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
