package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	t.Run("strong password passes", func(t *testing.T) {
		res := ValidatePasswordStrength("Tr1p-Log!")
		assert.True(t, res.Valid)
		assert.Empty(t, res.Errors)
	})

	t.Run("reports every violated rule in order", func(t *testing.T) {
		res := ValidatePasswordStrength("abc")
		require.False(t, res.Valid)
		assert.Equal(t, []string{
			"password must be at least 8 characters long",
			"password must contain an uppercase letter",
			"password must contain a number",
			"password must contain a special character",
		}, res.Errors)
	})

	t.Run("empty password violates everything", func(t *testing.T) {
		res := ValidatePasswordStrength("")
		assert.False(t, res.Valid)
		assert.Len(t, res.Errors, 5)
	})

	t.Run("too long", func(t *testing.T) {
		res := ValidatePasswordStrength("Aa1!" + strings.Repeat("x", DefaultMaxPasswordLength))
		require.False(t, res.Valid)
		assert.Equal(t, []string{"password must be at most 128 characters long"}, res.Errors)
	})

	t.Run("length counts runes", func(t *testing.T) {
		res := ValidatePasswordStrength("Ää1!ßßßß")
		assert.True(t, res.Valid, res.Errors)
	})
}

func TestPolicy_Overrides(t *testing.T) {
	p := Policy{MinLength: 12, RequireDigit: true}

	res := p.ValidatePasswordStrength("short")
	assert.Equal(t, []string{
		"password must be at least 12 characters long",
		"password must contain a number",
	}, res.Errors)

	res = p.ValidatePasswordStrength("alllowercase1")
	assert.True(t, res.Valid)
}

func TestPolicy_ValidateLoginPassword(t *testing.T) {
	p := DefaultPolicy()
	assert.ErrorIs(t, p.ValidateLoginPassword(""), ErrPasswordRequired)
	assert.ErrorContains(t, p.ValidateLoginPassword("12345"), "at least 6 characters")
	assert.NoError(t, p.ValidateLoginPassword("123456"))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{MinLength: 10, MaxLength: 5}.Validate())
	assert.Error(t, Policy{MinLength: -1}.Validate())
}
