package validator_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/posnotify/pkg/validator"
)

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("all rules pass", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("template_id", "bill_created"),
			validator.RequiredSlice("channels", []string{"EMAIL"}),
		)
		assert.NoError(t, err)
	})

	t.Run("collects every failure", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("template_id", "  "),
			validator.RequiredSlice("channels", []string(nil)),
			validator.InList("priority", "URGENT", []string{"LOW", "HIGH"}),
			validator.RequiredString("subject", "ok"),
		)
		require.Error(t, err)
		assert.True(t, validator.IsValidationError(err))

		verrs := validator.ExtractValidationErrors(err)
		assert.Equal(t, []string{"template_id", "channels", "priority"}, verrs.Fields())
		assert.True(t, verrs.Has("channels"))
		assert.False(t, verrs.Has("subject"))
		assert.Equal(t, []string{"field is required"}, verrs.Get("template_id"))
		assert.Equal(t, "validation failed: template_id: field is required; channels: field is required; priority: must be one of: [LOW HIGH]", err.Error())
	})

	t.Run("survives wrapping", func(t *testing.T) {
		t.Parallel()
		sentinel := errors.New("no recipients")
		err := errors.Join(sentinel, validator.Apply(validator.RequiredString("recipients", "")))

		assert.ErrorIs(t, err, sentinel)
		assert.True(t, validator.IsValidationError(fmt.Errorf("send: %w", err)))
		assert.True(t, validator.ExtractValidationErrors(err).Has("recipients"))
	})

	t.Run("plain errors are not validation errors", func(t *testing.T) {
		t.Parallel()
		assert.False(t, validator.IsValidationError(errors.New("boom")))
		assert.False(t, validator.IsValidationError(nil))
		assert.Nil(t, validator.ExtractValidationErrors(errors.New("boom")))
	})
}

func TestRules(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		rule validator.Rule
		ok   bool
	}{
		{"required string", validator.RequiredString("f", "x"), true},
		{"required string blank", validator.RequiredString("f", " \t"), false},
		{"max len at limit", validator.MaxLenString("f", "abc", 3), true},
		{"max len over", validator.MaxLenString("f", "abcd", 3), false},
		{"required comparable", validator.RequiredComparable("f", from), true},
		{"required comparable zero", validator.RequiredComparable("f", time.Time{}), false},
		{"required slice", validator.RequiredSlice("f", []int{1}), true},
		{"required slice empty", validator.RequiredSlice("f", []int{}), false},
		{"max len slice", validator.MaxLenSlice("f", []int{1, 2}, 2), true},
		{"max len slice over", validator.MaxLenSlice("f", []int{1, 2, 3}, 2), false},
		{"in list", validator.InList("f", 2, []int{1, 2}), true},
		{"not in list", validator.InList("f", 3, []int{1, 2}), false},
		{"in list string", validator.InListString("platform", "ios", []string{"android", "ios", "web"}), true},
		{"not in list string", validator.InListString("platform", "symbian", []string{"android", "ios", "web"}), false},
		{"date after", validator.DateAfter("to", from.Add(time.Hour), from), true},
		{"date equal", validator.DateAfter("to", from, from), false},
		{"email", validator.ValidEmail("f", "owner@shop.example.com"), true},
		{"email without domain dot", validator.ValidEmail("f", "owner@localhost"), false},
		{"email empty label", validator.ValidEmail("f", "owner@shop..com"), false},
		{"email with display name", validator.ValidEmail("f", "Owner <owner@shop.com>"), false},
		{"email empty", validator.ValidEmail("f", ""), false},
		{"phone e164", validator.ValidPhone("f", "+15550000001"), true},
		{"phone with separators", validator.ValidPhone("f", "+1 555-000-0001"), true},
		{"phone leading zero", validator.ValidPhone("f", "+0123456789"), false},
		{"phone too short", validator.ValidPhone("f", "+12345"), false},
		{"phone letters", validator.ValidPhone("f", "+1555CALLNOW"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.ok, tt.rule.Check())
		})
	}
}

func TestRuleErrors(t *testing.T) {
	t.Parallel()

	rule := validator.MaxLenString("subject", "", 500)
	assert.Equal(t, "subject", rule.Error.Field)
	assert.Equal(t, "validation.max_length", rule.Error.TranslationKey)
	assert.Equal(t, map[string]any{"field": "subject", "max": 500}, rule.Error.TranslationValues)

	rule = validator.InListString("platform", "x", []string{"android", "ios"})
	assert.Equal(t, "must be one of: android, ios", rule.Error.Message)
}
