package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveNameFromEmail(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{"jane.doe@example.com", "Jane Doe"},
		{"m_oliveira@firm.example", "M Oliveira"},
		{"counsel@firm.example", "Counsel"},
		{"a+billing@x.example", "A Billing"},
		{"@example.com", "Recipient"},
		{"", "Recipient"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DeriveNameFromEmail(tc.email), tc.email)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("jane@example.com"))
	assert.False(t, Valid("janeexample.com"))
	assert.False(t, Valid("jane@"))
	assert.False(t, Valid("@example.com"))
	assert.False(t, Valid("jane doe@example.com"))
}
