package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOTPEmail(t *testing.T) {
	t.Parallel()

	body := OTPEmail("Verify your email", "Jo", "123456", 2)
	assert.Contains(t, body, "Verify your email")
	assert.Contains(t, body, "Hi Jo,")
	assert.Contains(t, body, "123456")
	assert.Contains(t, body, "expires in 2 minutes")
}

func TestOTPEmailEscapesInput(t *testing.T) {
	t.Parallel()

	body := OTPEmail("Reset", `<script>alert("x")</script>`, "123456", 2)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}
