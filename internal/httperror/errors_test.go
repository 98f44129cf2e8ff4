package httperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/park285/directory-assistant-go/internal/assistant"
	"github.com/park285/directory-assistant-go/internal/budget"
	"github.com/park285/directory-assistant-go/internal/conversation"
	"github.com/park285/directory-assistant-go/internal/ratelimit"
	"github.com/park285/directory-assistant-go/internal/settings"
	"github.com/park285/directory-assistant-go/internal/usage"
)

func TestFromErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   ErrorCode
		status int
	}{
		{"disabled", assistant.ErrDisabled, ErrorCodeAssistantDisabled, http.StatusServiceUnavailable},
		{"rate limited", &assistant.RateLimitedError{Window: ratelimit.WindowMinute, Limit: 5, RetryAfter: 12 * time.Second}, ErrorCodeAssistantRateLimited, http.StatusTooManyRequests},
		{"budget", &assistant.BudgetExceededError{Period: budget.PeriodMonth, Spend: 101, Cap: 100}, ErrorCodeAssistantBudget, http.StatusServiceUnavailable},
		{"store down", fmt.Errorf("admit: %w", ratelimit.ErrStoreUnavailable), ErrorCodeAssistantUnavailable, http.StatusServiceUnavailable},
		{"spend down", budget.ErrSpendUnavailable, ErrorCodeAssistantUnavailable, http.StatusServiceUnavailable},
		{"empty question", assistant.ErrEmptyQuestion, ErrorCodeAssistantInvalidInput, http.StatusUnprocessableEntity},
		{"long question", &assistant.QuestionTooLongError{Length: 1200, Max: 1000}, ErrorCodeAssistantInvalidInput, http.StatusUnprocessableEntity},
		{"session", fmt.Errorf("session x: %w", conversation.ErrSessionNotFound), ErrorCodeSessionNotFound, http.StatusNotFound},
		{"usage", usage.ErrUsageNotFound, ErrorCodeUsageNotFound, http.StatusNotFound},
		{"settings", fmt.Errorf("%w: bad", settings.ErrInvalidSettings), ErrorCodeValidation, http.StatusUnprocessableEntity},
		{"timeout", context.DeadlineExceeded, ErrorCodeTimeout, http.StatusGatewayTimeout},
		{"generic", errors.New("boom"), ErrorCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromError(tt.err)
			if apiErr == nil || apiErr.Code != tt.code || apiErr.Status != tt.status {
				t.Fatalf("unexpected mapping: %+v", apiErr)
			}
		})
	}
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	apiErr := FromError(&assistant.RateLimitedError{
		Window:     ratelimit.WindowMinute,
		Limit:      2,
		ResetAt:    time.Date(2025, 6, 10, 10, 1, 0, 0, time.UTC),
		RetryAfter: 1500 * time.Millisecond,
	})
	if apiErr.RetryAfter != 2 {
		t.Fatalf("retry after should round up: %d", apiErr.RetryAfter)
	}
	if apiErr.Details["window"] != "minute" || apiErr.Details["reset_at"] != "2025-06-10T10:01:00Z" {
		t.Fatalf("unexpected details: %v", apiErr.Details)
	}
}

func TestBudgetDetailsHideAmounts(t *testing.T) {
	apiErr := FromError(&assistant.BudgetExceededError{Period: budget.PeriodDay, Spend: 5.2, Cap: 5})
	if _, ok := apiErr.Details["spend"]; ok {
		t.Fatal("spend must not be exposed")
	}
	if apiErr.Details["period"] != "day" {
		t.Fatalf("unexpected details: %v", apiErr.Details)
	}
}

func TestHumanizeWait(t *testing.T) {
	tests := map[int]string{
		1:    "1 segundo",
		30:   "30 segundos",
		60:   "1 minuto",
		61:   "2 minutos",
		3600: "1 hora",
		7201: "3 horas",
	}
	for seconds, want := range tests {
		if got := humanizeWait(seconds); got != want {
			t.Fatalf("humanizeWait(%d)=%q want %q", seconds, got, want)
		}
	}
}

func TestValidationErrorsFromValidator(t *testing.T) {
	type payload struct {
		Question string `validate:"required"`
	}
	err := validator.New().Struct(payload{})
	apiErr := FromError(err)
	if apiErr.Code != ErrorCodeValidation {
		t.Fatalf("unexpected code: %s", apiErr.Code)
	}
	fields, ok := apiErr.Details["errors"].([]FieldError)
	if !ok || len(fields) != 1 || fields[0].Field != "Question" {
		t.Fatalf("unexpected details: %v", apiErr.Details)
	}
}

func TestResponseIncludesRequestID(t *testing.T) {
	status, payload := Response(NewMissingField("id"), "req-1")
	if status != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", status)
	}
	if payload.RequestID == nil || *payload.RequestID != "req-1" {
		t.Fatalf("expected request id")
	}
}

func TestResponseWithEmptyRequestID(t *testing.T) {
	status, payload := Response(NewInternalError("test"), "")
	if status != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", status)
	}
	if payload.RequestID != nil {
		t.Fatalf("expected nil request id for empty string")
	}
}

func TestFromErrorNil(t *testing.T) {
	if FromError(nil) != nil {
		t.Fatalf("expected nil for nil input")
	}
}

func TestGenericErrorDoesNotLeakMessage(t *testing.T) {
	apiErr := FromError(errors.New("dial tcp 10.0.0.5:5432: connection refused"))
	if apiErr.Message != "Internal server error" {
		t.Fatalf("internal detail leaked: %q", apiErr.Message)
	}
}
