package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/park285/directory-assistant-go/internal/config"
	"github.com/park285/directory-assistant-go/internal/database"
	"github.com/park285/directory-assistant-go/internal/database/dbtest"
)

func testDefaults() Settings {
	return Defaults(config.AssistantConfig{
		Enabled:              true,
		DailyBudgetUSD:       5,
		MonthlyBudgetUSD:     100,
		RateLimitPerMinute:   5,
		RateLimitPerHour:     30,
		RateLimitPerDay:      100,
		MaxTokensPerQuestion: 1024,
		MaxConversationTurns: 6,
		WelcomeMessage:       "Hola",
	})
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	conn, err := database.NewFromGorm(dbtest.Open(t), Migrate)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewRepository(conn, testDefaults(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRepositoryCreatesDefaultsOnFirstRead(t *testing.T) {
	repo := newTestRepository(t)

	got, err := repo.Get(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Enabled || got.RateLimitPerMinute != 5 || got.WelcomeMessage != "Hola" {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.ID != settingsRowID {
		t.Fatalf("expected row id %d, got %d", settingsRowID, got.ID)
	}
}

func TestRepositoryUpdateAppliesOnlyPatchedFields(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	patch, err := DecodePatch(map[string]any{
		"enabled":          false,
		"daily_budget_usd": "2.5",
	})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	updated, err := repo.Update(ctx, patch)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Enabled || updated.DailyBudgetUSD != 2.5 {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.MonthlyBudgetUSD != 100 || updated.RateLimitPerHour != 30 {
		t.Fatalf("untouched fields changed: %+v", updated)
	}

	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Enabled || got.DailyBudgetUSD != 2.5 {
		t.Fatalf("expected persisted update, got %+v", got)
	}
}

func TestRepositoryUpdateRejectsInvalidValues(t *testing.T) {
	repo := newTestRepository(t)
	negative := -1.0

	_, err := repo.Update(context.Background(), Patch{DailyBudgetUSD: &negative})
	if !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		t.Fatalf("expected validator errors, got %T", err)
	}

	got, err := repo.Get(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.DailyBudgetUSD != 5 {
		t.Fatalf("invalid update must not persist, got %v", got.DailyBudgetUSD)
	}
}

func TestDecodePatch(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]any
		wantErr bool
		check   func(Patch) bool
	}{
		{
			name:  "json numbers",
			input: map[string]any{"rate_limit_per_minute": float64(10)},
			check: func(p Patch) bool { return p.RateLimitPerMinute != nil && *p.RateLimitPerMinute == 10 },
		},
		{
			name:  "weak string",
			input: map[string]any{"max_conversation_turns": "4", "welcome_message": "Bienvenido"},
			check: func(p Patch) bool {
				return p.MaxConversationTurns != nil && *p.MaxConversationTurns == 4 &&
					p.WelcomeMessage != nil && *p.WelcomeMessage == "Bienvenido"
			},
		},
		{
			name:    "unknown field",
			input:   map[string]any{"temperature": 0.5},
			wantErr: true,
		},
		{
			name:  "empty",
			input: map[string]any{},
			check: func(p Patch) bool { return p.IsEmpty() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, err := DecodePatch(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSettings) {
					t.Fatalf("expected ErrInvalidSettings, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(patch) {
				t.Fatalf("unexpected patch: %+v", patch)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	s := testDefaults()
	if err := Validate(s); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}

	s.WelcomeMessage = ""
	if err := Validate(s); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected empty welcome message rejected, got %v", err)
	}

	s = testDefaults()
	s.MaxTokensPerQuestion = 10
	if err := Validate(s); err == nil {
		t.Fatalf("expected token cap below minimum rejected")
	}
}
