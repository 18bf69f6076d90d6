package importapp

import "github.com/textile/backend/internal/domain/shared"

// Classification failures. Rate limiting and payment problems are reported
// separately so callers can tell the user what to do about them.
var (
	ErrRateLimited          = shared.NewDomainError("RATE_LIMITED", "Classification service rate limit reached, try again later")
	ErrPaymentRequired      = shared.NewDomainError("PAYMENT_REQUIRED", "Classification service requires payment")
	ErrClassificationFailed = shared.NewDomainError("CLASSIFICATION_FAILED", "Could not recognise the columns of the file")
)

// ErrUnsupportedFile is returned for uploads with an extension outside the allow-list
var ErrUnsupportedFile = shared.NewDomainError("UNSUPPORTED_FILE_TYPE", "Unsupported file type")
