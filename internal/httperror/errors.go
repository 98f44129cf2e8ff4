package httperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/park285/directory-assistant-go/internal/assistant"
	"github.com/park285/directory-assistant-go/internal/budget"
	"github.com/park285/directory-assistant-go/internal/conversation"
	"github.com/park285/directory-assistant-go/internal/gemini"
	"github.com/park285/directory-assistant-go/internal/ratelimit"
	"github.com/park285/directory-assistant-go/internal/settings"
	"github.com/park285/directory-assistant-go/internal/usage"
)

// ErrorCode 는 API 오류 코드다.
type ErrorCode string

const (
	// ErrorCodeInternal 는 내부 오류 코드다.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeValidation 는 검증 오류 코드다.
	ErrorCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrorCodeUnauthorized 는 인증 오류 코드다.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeHTTPRateLimit 는 HTTP 계층 요청 제한 오류 코드다.
	ErrorCodeHTTPRateLimit ErrorCode = "HTTP_RATE_LIMIT"
	// ErrorCodeInvalidInput 는 입력 오류 코드다.
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeMissingField 는 필드 누락 코드다.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrorCodeTimeout 는 처리 시간 초과 코드다.
	ErrorCodeTimeout ErrorCode = "TIMEOUT"

	ErrorCodeAssistantDisabled     ErrorCode = "ASSISTANT_DISABLED"
	ErrorCodeAssistantRateLimited  ErrorCode = "ASSISTANT_RATE_LIMITED"
	ErrorCodeAssistantBudget       ErrorCode = "ASSISTANT_BUDGET_EXCEEDED"
	ErrorCodeAssistantUnavailable  ErrorCode = "ASSISTANT_UNAVAILABLE"
	ErrorCodeAssistantInvalidInput ErrorCode = "ASSISTANT_INVALID_QUESTION"
	ErrorCodeSessionNotFound       ErrorCode = "SESSION_NOT_FOUND"
	ErrorCodeUsageNotFound         ErrorCode = "USAGE_NOT_FOUND"
)

// ErrorResponse 는 API 오류 응답 본문이다.
type ErrorResponse struct {
	ErrorCode string         `json:"error_code"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	RequestID *string        `json:"request_id"`
	Details   map[string]any `json:"details"`
}

// Error 는 내부 표준 오류 타입이다.
type Error struct {
	Code    ErrorCode
	Status  int
	Type    string
	Message string
	Details map[string]any
	// RetryAfter 가 0 보다 크면 Retry-After 헤더(초)로 내보낸다.
	RetryAfter int
}

// Error 는 오류 메시지를 반환한다.
func (e *Error) Error() string {
	return e.Message
}

// Response 는 오류를 HTTP 응답으로 변환한다.
func Response(err error, requestID string) (int, ErrorResponse) {
	apiErr := FromError(err)
	if apiErr == nil {
		apiErr = NewInternalError("unknown error")
	}
	return apiErr.Status, payload(apiErr, requestID)
}

func payload(apiErr *Error, requestID string) ErrorResponse {
	var requestIDPtr *string
	if requestID != "" {
		requestIDPtr = &requestID
	}
	return ErrorResponse{
		ErrorCode: string(apiErr.Code),
		ErrorType: apiErr.Type,
		Message:   apiErr.Message,
		RequestID: requestIDPtr,
		Details:   apiErr.Details,
	}
}

// FromError 는 오류를 내부 오류 타입으로 변환한다.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, assistant.ErrDisabled) {
		return NewAssistantDisabled()
	}

	var limited *assistant.RateLimitedError
	if errors.As(err, &limited) {
		return NewAssistantRateLimited(limited)
	}

	var exceeded *assistant.BudgetExceededError
	if errors.As(err, &exceeded) {
		return NewAssistantBudgetExceeded(exceeded)
	}

	if errors.Is(err, ratelimit.ErrStoreUnavailable) || errors.Is(err, budget.ErrSpendUnavailable) {
		return NewAssistantUnavailable()
	}

	if errors.Is(err, assistant.ErrEmptyQuestion) {
		return NewInvalidQuestion("La pregunta no puede estar vacía.", map[string]any{"field": "question"})
	}

	var tooLong *assistant.QuestionTooLongError
	if errors.As(err, &tooLong) {
		return NewInvalidQuestion(
			fmt.Sprintf("La pregunta es demasiado larga (máximo %d caracteres).", tooLong.Max),
			map[string]any{"field": "question", "max": tooLong.Max, "length": tooLong.Length},
		)
	}

	if errors.Is(err, conversation.ErrSessionNotFound) {
		return NewSessionNotFound()
	}

	if errors.Is(err, usage.ErrUsageNotFound) {
		return NewUsageNotFound()
	}

	if errors.Is(err, settings.ErrInvalidSettings) {
		return NewValidationError(err)
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return NewValidationError(err)
	}

	if errors.Is(err, gemini.ErrMissingAPIKey) {
		return NewAssistantUnavailable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("Request timed out")
	}

	return NewInternalError("Internal server error")
}

// NewInternalError 는 내부 오류를 생성한다.
func NewInternalError(message string) *Error {
	return &Error{
		Code:    ErrorCodeInternal,
		Status:  http.StatusInternalServerError,
		Type:    "InternalError",
		Message: message,
	}
}

// NewValidationError 는 검증 오류를 생성한다.
func NewValidationError(err error) *Error {
	return &Error{
		Code:    ErrorCodeValidation,
		Status:  http.StatusUnprocessableEntity,
		Type:    "ValidationError",
		Message: "Input validation failed",
		Details: validationDetails(err),
	}
}

// NewMissingField 는 누락 필드 오류를 생성한다.
func NewMissingField(field string) *Error {
	return &Error{
		Code:    ErrorCodeMissingField,
		Status:  http.StatusBadRequest,
		Type:    "MissingFieldError",
		Message: fmt.Sprintf("Field '%s' required", field),
		Details: map[string]any{"field": field},
	}
}

// NewInvalidInput 는 입력 오류를 생성한다.
func NewInvalidInput(message string) *Error {
	return &Error{
		Code:    ErrorCodeInvalidInput,
		Status:  http.StatusBadRequest,
		Type:    "InvalidInputError",
		Message: message,
	}
}

// NewUnauthorized 는 인증 오류를 생성한다.
func NewUnauthorized(details map[string]any) *Error {
	return &Error{
		Code:    ErrorCodeUnauthorized,
		Status:  http.StatusUnauthorized,
		Type:    "UnauthorizedError",
		Message: "Invalid API key",
		Details: details,
	}
}

// NewRateLimitExceeded 는 HTTP 계층 요청 제한 오류를 생성한다.
func NewRateLimitExceeded(details map[string]any) *Error {
	return &Error{
		Code:    ErrorCodeHTTPRateLimit,
		Status:  http.StatusTooManyRequests,
		Type:    "HTTPRateLimitExceededError",
		Message: "Rate limit exceeded",
		Details: details,
	}
}

// NewTimeoutError 는 처리 시간 초과 오류를 생성한다.
func NewTimeoutError(message string) *Error {
	return &Error{
		Code:    ErrorCodeTimeout,
		Status:  http.StatusGatewayTimeout,
		Type:    "TimeoutError",
		Message: message,
	}
}

// NewAssistantDisabled 는 어시스턴트 비활성 오류를 생성한다.
func NewAssistantDisabled() *Error {
	return &Error{
		Code:    ErrorCodeAssistantDisabled,
		Status:  http.StatusServiceUnavailable,
		Type:    "AssistantDisabledError",
		Message: "El asistente no está disponible en este momento.",
	}
}

// NewAssistantRateLimited 는 질문 빈도 제한 오류를 생성한다.
func NewAssistantRateLimited(e *assistant.RateLimitedError) *Error {
	retry := e.RetryAfterSeconds()
	return &Error{
		Code:    ErrorCodeAssistantRateLimited,
		Status:  http.StatusTooManyRequests,
		Type:    "AssistantRateLimitedError",
		Message: fmt.Sprintf("Has hecho demasiadas preguntas. Intenta de nuevo en %s.", humanizeWait(retry)),
		Details: map[string]any{
			"window":              string(e.Window),
			"limit":               e.Limit,
			"retry_after_seconds": retry,
			"reset_at":            e.ResetAt.UTC().Format(time.RFC3339),
		},
		RetryAfter: retry,
	}
}

// NewAssistantBudgetExceeded 는 예산 초과 오류를 생성한다. 금액은 노출하지 않는다.
func NewAssistantBudgetExceeded(e *assistant.BudgetExceededError) *Error {
	return &Error{
		Code:    ErrorCodeAssistantBudget,
		Status:  http.StatusServiceUnavailable,
		Type:    "AssistantBudgetExceededError",
		Message: "El asistente alcanzó su límite de uso. Intenta más tarde.",
		Details: map[string]any{"period": string(e.Period)},
	}
}

// NewAssistantUnavailable 는 의존 저장소 장애로 처리할 수 없을 때의 오류다.
func NewAssistantUnavailable() *Error {
	return &Error{
		Code:    ErrorCodeAssistantUnavailable,
		Status:  http.StatusServiceUnavailable,
		Type:    "AssistantUnavailableError",
		Message: "El asistente no está disponible en este momento.",
	}
}

// NewInvalidQuestion 은 질문 검증 오류를 생성한다.
func NewInvalidQuestion(message string, details map[string]any) *Error {
	return &Error{
		Code:    ErrorCodeAssistantInvalidInput,
		Status:  http.StatusUnprocessableEntity,
		Type:    "InvalidQuestionError",
		Message: message,
		Details: details,
	}
}

// NewSessionNotFound 는 세션 미존재 오류를 생성한다.
func NewSessionNotFound() *Error {
	return &Error{
		Code:    ErrorCodeSessionNotFound,
		Status:  http.StatusNotFound,
		Type:    "SessionNotFoundError",
		Message: "La conversación expiró. Inicia una nueva.",
	}
}

// NewUsageNotFound 는 usage 미존재 오류를 생성한다.
func NewUsageNotFound() *Error {
	return &Error{
		Code:    ErrorCodeUsageNotFound,
		Status:  http.StatusNotFound,
		Type:    "UsageNotFoundError",
		Message: "Usage record not found",
	}
}

func humanizeWait(seconds int) string {
	switch {
	case seconds < 60:
		return plural(seconds, "segundo")
	case seconds < 3600:
		return plural((seconds+59)/60, "minuto")
	default:
		return plural((seconds+3599)/3600, "hora")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// FieldError 는 필드 오류 상세 정보다.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

func validationDetails(err error) map[string]any {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]FieldError, 0, len(validationErrors))
		for _, validationErr := range validationErrors {
			fields = append(fields, FieldError{
				Field:   validationErr.Field(),
				Message: validationErr.Error(),
				Value:   validationErr.Value(),
			})
		}
		return map[string]any{"errors": fields}
	}

	return map[string]any{
		"errors": []FieldError{
			{
				Field:   "body",
				Message: err.Error(),
				Value:   nil,
			},
		},
	}
}
