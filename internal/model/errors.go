// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, rate_limit, provider, system
	Action   string // ユーザー向け対処方法

	// レート制限時のみ設定される
	Reason            RateLimitReason
	RetryAfterSeconds int
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeInvalidEmail         = "INVALID_EMAIL"
	ErrCodeInvalidPhone         = "INVALID_PHONE"
	ErrCodeMissingCallbackToken = "MISSING_CALLBACK_TOKEN"
	ErrCodeUnsupportedCallback  = "UNSUPPORTED_CALLBACK_TYPE"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInvalidOrExpired     = "INVALID_OR_EXPIRED"
	ErrCodeInvalidCode          = "INVALID_CODE"
	ErrCodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderRateLimited  = "PROVIDER_RATE_LIMITED"
	ErrCodeProviderMisconfig    = "PROVIDER_MISCONFIGURED"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeHandleTaken          = "HANDLE_TAKEN"
	ErrCodeNotFound             = "NOT_FOUND"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Check the highlighted field and try again.",
	}
}

// NewInvalidEmailError は不正なメールアドレスのエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "Invalid email address",
		Category: "validation",
		Action:   "Enter an address like name@example.com.",
	}
}

// NewInvalidPhoneError は不正な電話番号のエラーを生成する。
func NewInvalidPhoneError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPhone,
		Message:  "Invalid phone number",
		Category: "validation",
		Action:   "Enter a 10-digit US phone number.",
	}
}

// NewMissingCallbackTokenError はコールバックトークン欠落のエラーを生成する。
func NewMissingCallbackTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCallbackToken,
		Message:  "Missing callback token",
		Category: "validation",
		Action:   "Open the sign-in link from your email again.",
	}
}

// NewUnsupportedCallbackError は未対応のコールバック種別のエラーを生成する。
func NewUnsupportedCallbackError() *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedCallback,
		Message:  "Unsupported callback type",
		Category: "validation",
		Action:   "Request a new sign-in link.",
	}
}

// NewRateLimitedError はマジックリンク発行のレート制限エラーを生成する。
func NewRateLimitedError(d RateLimitDecision) *APIError {
	return &APIError{
		Code:              ErrCodeRateLimited,
		Message:           fmt.Sprintf("Too many attempts. Try again in %ds.", d.RetryAfterSeconds),
		Category:          "rate_limit",
		Action:            "Wait before requesting another link.",
		Reason:            d.Reason,
		RetryAfterSeconds: d.RetryAfterSeconds,
	}
}

// NewInvalidOrExpiredError は資格情報の検証失敗エラーを生成する。
// 期限切れ・使用済み・存在しないの区別は呼び出し元に返さない。
func NewInvalidOrExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrExpired,
		Message:  "Invalid or expired link",
		Category: "auth",
		Action:   "Request a new sign-in link.",
	}
}

// NewInvalidCodeError はOTPコード不一致のエラーを生成する。
func NewInvalidCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCode,
		Message:  "Invalid code",
		Category: "auth",
		Action:   "Request a new code and try again.",
	}
}

// NewProviderUnavailableError は配信・検証プロバイダの一時的な失敗エラーを生成する。
func NewProviderUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  "Verification service is temporarily unavailable",
		Category: "provider",
		Action:   "Try again in a moment.",
	}
}

// NewProviderRateLimitedError はプロバイダ側のレート制限エラーを生成する。
func NewProviderRateLimitedError(retryAfterSeconds int) *APIError {
	return &APIError{
		Code:              ErrCodeProviderRateLimited,
		Message:           fmt.Sprintf("Email provider rate limit reached. Please wait %ds and try again.", retryAfterSeconds),
		Category:          "provider",
		Action:            "Wait and try again.",
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// NewProviderMisconfiguredError はプロバイダ未設定エラーを生成する。
func NewProviderMisconfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderMisconfig,
		Message:  "Sign-in is not available right now",
		Category: "system",
		Action:   "Contact support if this keeps happening.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewHandleTakenError はハンドル重複エラーを生成する。
func NewHandleTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeHandleTaken,
		Message:  "That handle is taken.",
		Category: "validation",
		Action:   "Choose a different handle.",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "Not found",
		Category: "system",
		Action:   "Refresh the page.",
	}
}
