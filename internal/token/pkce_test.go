package token_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fr-mccarty/outwardsign-sub009/internal/token"
)

func TestNewPKCEService(t *testing.T) {
	service := token.NewPKCEService()
	require.NotNil(t, service)
}

func TestPKCEServiceGenerateCodeVerifier(t *testing.T) {
	service := token.NewPKCEService()

	verifiers := make([]string, 10)
	for i := range verifiers {
		verifier, err := service.GenerateCodeVerifier()
		require.NoError(t, err)
		assert.NotEmpty(t, verifier)

		assert.GreaterOrEqual(t, len(verifier), token.CodeVerifierMinLength)
		assert.LessOrEqual(t, len(verifier), token.CodeVerifierMaxLength)

		// URL-safe base64 without padding
		assert.NotContains(t, verifier, "/")
		assert.NotContains(t, verifier, "+")
		assert.NotContains(t, verifier, "=")

		require.NoError(t, service.ValidateCodeVerifier(verifier))

		verifiers[i] = verifier
	}

	for i := range verifiers {
		for j := i + 1; j < len(verifiers); j++ {
			assert.NotEqual(t, verifiers[i], verifiers[j], "code verifiers should be unique")
		}
	}
}

func TestPKCEServiceGenerateCodeChallenge(t *testing.T) {
	service := token.NewPKCEService()

	codeVerifier, err := service.GenerateCodeVerifier()
	require.NoError(t, err)

	tests := []struct {
		name         string
		codeVerifier string
		method       string
		wantErr      bool
		validate     func(t *testing.T, challenge string)
	}{
		{
			name:         "plain_method",
			codeVerifier: codeVerifier,
			method:       token.CodeChallengeMethodPlain,
			wantErr:      false,
			validate: func(t *testing.T, challenge string) {
				assert.Equal(t, codeVerifier, challenge)
			},
		},
		{
			name:         "s256_method",
			codeVerifier: codeVerifier,
			method:       token.CodeChallengeMethodS256,
			wantErr:      false,
			validate: func(t *testing.T, challenge string) {
				assert.NotEqual(t, codeVerifier, challenge)
				assert.GreaterOrEqual(t, len(challenge), token.CodeChallengeMinLength)
				assert.LessOrEqual(t, len(challenge), token.CodeChallengeMaxLength)
				assert.NotContains(t, challenge, "/")
				assert.NotContains(t, challenge, "+")
			},
		},
		{
			name:         "invalid_verifier_too_short",
			codeVerifier: "short",
			method:       token.CodeChallengeMethodPlain,
			wantErr:      true,
		},
		{
			name:         "invalid_verifier_too_long",
			codeVerifier: strings.Repeat("a", token.CodeVerifierMaxLength+1),
			method:       token.CodeChallengeMethodPlain,
			wantErr:      true,
		},
		{
			name:         "invalid_method",
			codeVerifier: codeVerifier,
			method:       "invalid",
			wantErr:      true,
		},
		{
			name:         "empty_method",
			codeVerifier: codeVerifier,
			method:       "",
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			challenge, genErr := service.GenerateCodeChallenge(tt.codeVerifier, tt.method)

			if tt.wantErr {
				require.Error(t, genErr)
				assert.Empty(t, challenge)
				return
			}

			require.NoError(t, genErr)
			assert.NotEmpty(t, challenge)

			if tt.validate != nil {
				tt.validate(t, challenge)
			}
		})
	}
}

func TestPKCEServiceValidateCodeChallenge(t *testing.T) {
	service := token.NewPKCEService()

	codeVerifier, err := service.GenerateCodeVerifier()
	require.NoError(t, err)

	plainChallenge, err := service.GenerateCodeChallenge(codeVerifier, token.CodeChallengeMethodPlain)
	require.NoError(t, err)

	s256Challenge, err := service.GenerateCodeChallenge(codeVerifier, token.CodeChallengeMethodS256)
	require.NoError(t, err)

	tests := []struct {
		name          string
		codeVerifier  string
		codeChallenge string
		method        string
		expected      bool
	}{
		{
			name:          "valid_plain_method",
			codeVerifier:  codeVerifier,
			codeChallenge: plainChallenge,
			method:        token.CodeChallengeMethodPlain,
			expected:      true,
		},
		{
			name:          "valid_s256_method",
			codeVerifier:  codeVerifier,
			codeChallenge: s256Challenge,
			method:        token.CodeChallengeMethodS256,
			expected:      true,
		},
		{
			name:          "wrong_verifier",
			codeVerifier:  "wrong-verifier-that-is-long-enough-to-pass-length-validation",
			codeChallenge: plainChallenge,
			method:        token.CodeChallengeMethodPlain,
			expected:      false,
		},
		{
			name:          "wrong_challenge",
			codeVerifier:  codeVerifier,
			codeChallenge: "wrong-challenge",
			method:        token.CodeChallengeMethodPlain,
			expected:      false,
		},
		{
			name:          "wrong_method",
			codeVerifier:  codeVerifier,
			codeChallenge: plainChallenge,
			method:        token.CodeChallengeMethodS256,
			expected:      false,
		},
		{
			name:          "invalid_verifier_too_short",
			codeVerifier:  "short",
			codeChallenge: plainChallenge,
			method:        token.CodeChallengeMethodPlain,
			expected:      false,
		},
		{
			name:          "invalid_method",
			codeVerifier:  codeVerifier,
			codeChallenge: plainChallenge,
			method:        "invalid",
			expected:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := service.ValidateCodeChallenge(tt.codeVerifier, tt.codeChallenge, tt.method)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestPKCEServiceValidateCodeVerifier(t *testing.T) {
	service := token.NewPKCEService()

	tests := []struct {
		name         string
		codeVerifier string
		wantErr      bool
	}{
		{
			name:         "valid_verifier",
			codeVerifier: strings.Repeat("a", token.CodeVerifierMinLength),
			wantErr:      false,
		},
		{
			name:         "valid_verifier_max_length",
			codeVerifier: strings.Repeat("a", token.CodeVerifierMaxLength),
			wantErr:      false,
		},
		{
			name:         "valid_verifier_with_special_chars",
			codeVerifier: "abcDEF123-._~" + strings.Repeat("a", token.CodeVerifierMinLength-13),
			wantErr:      false,
		},
		{
			name:         "empty_verifier",
			codeVerifier: "",
			wantErr:      true,
		},
		{
			name:         "too_short_verifier",
			codeVerifier: strings.Repeat("a", token.CodeVerifierMinLength-1),
			wantErr:      true,
		},
		{
			name:         "too_long_verifier",
			codeVerifier: strings.Repeat("a", token.CodeVerifierMaxLength+1),
			wantErr:      true,
		},
		{
			name:         "invalid_character_space",
			codeVerifier: "verifier-with-a-space " + strings.Repeat("a", token.CodeVerifierMinLength-22),
			wantErr:      true,
		},
		{
			name:         "invalid_character_plus",
			codeVerifier: "verifier-with-a+plus" + strings.Repeat("a", token.CodeVerifierMinLength-20),
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.ValidateCodeVerifier(tt.codeVerifier)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPKCEServiceValidateCodeChallengeMethod(t *testing.T) {
	service := token.NewPKCEService()

	tests := []struct {
		name    string
		method  string
		wantErr bool
	}{
		{
			name:    "valid_plain_method",
			method:  token.CodeChallengeMethodPlain,
			wantErr: false,
		},
		{
			name:    "valid_s256_method",
			method:  token.CodeChallengeMethodS256,
			wantErr: false,
		},
		{
			name:    "empty_method",
			method:  "",
			wantErr: true,
		},
		{
			name:    "invalid_method",
			method:  "invalid",
			wantErr: true,
		},
		{
			name:    "case_sensitive_plain",
			method:  "Plain",
			wantErr: true,
		},
		{
			name:    "case_sensitive_s256",
			method:  "s256",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.ValidateCodeChallengeMethod(tt.method)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseCodeChallengeMethod(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain_method",
			input:    token.CodeChallengeMethodPlain,
			expected: token.CodeChallengeMethodPlain,
		},
		{
			name:     "s256_method",
			input:    token.CodeChallengeMethodS256,
			expected: token.CodeChallengeMethodS256,
		},
		{
			name:     "empty_defaults_to_plain",
			input:    "",
			expected: token.CodeChallengeMethodPlain,
		},
		{
			name:     "whitespace_defaults_to_plain",
			input:    "  ",
			expected: token.CodeChallengeMethodPlain,
		},
		{
			name:     "method_with_whitespace",
			input:    "  S256  ",
			expected: token.CodeChallengeMethodS256,
		},
		{
			// Unsupported values pass through so the caller can reject them
			// as invalid_request rather than silently substituting a default.
			name:     "unsupported_method_passes_through",
			input:    "S512",
			expected: "S512",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := token.ParseCodeChallengeMethod(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
