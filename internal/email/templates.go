package email

import (
	"fmt"
	"html"
)

// OTPEmail renders the HTML body for a one-time-code email. Title and name
// come from untrusted input and are escaped.
func OTPEmail(title, receiverName, code string, expiryMinutes int) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background-color:#f4f4f7;font-family:Arial,Helvetica,sans-serif;">
  <table role="presentation" width="100%%" cellpadding="0" cellspacing="0">
    <tr><td align="center" style="padding:32px 16px;">
      <table role="presentation" width="480" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;overflow:hidden;">
        <tr><td style="background:#4f46e5;padding:20px 32px;">
          <h1 style="margin:0;color:#ffffff;font-size:20px;">%s</h1>
        </td></tr>
        <tr><td style="padding:32px;">
          <p style="margin:0 0 16px;color:#333333;font-size:15px;">Hi %s,</p>
          <p style="margin:0 0 24px;color:#333333;font-size:15px;">Use the code below to continue. It expires in %d minutes.</p>
          <p style="margin:0 0 24px;text-align:center;">
            <span style="display:inline-block;padding:12px 28px;background:#eef2ff;border-radius:6px;color:#4f46e5;font-size:28px;font-weight:bold;letter-spacing:6px;">%s</span>
          </p>
          <p style="margin:0;color:#8a8a8a;font-size:13px;">If you did not request this, you can safely ignore this email.</p>
        </td></tr>
      </table>
    </td></tr>
  </table>
</body>
</html>`, html.EscapeString(title), html.EscapeString(receiverName), expiryMinutes, html.EscapeString(code))
}
