package mailer

import (
	"fmt"
	"net/url"
)

func verificationEmail(baseURL, email, code string) (subject, html string) {
	link := fmt.Sprintf("%s/verify-email?email=%s&code=%s", baseURL, url.QueryEscape(email), code)
	subject = "Verify your email address"
	html = fmt.Sprintf(`
      <div style="font-family: sans-serif; text-align: center; color: #333;">
        <h2>Welcome!</h2>
        <p>Thanks for registering. Use the following code or click the button to verify your email address:</p>
        <div style="font-size: 24px; font-weight: bold; letter-spacing: 4px; padding: 15px; background-color: #f0f0f0; border-radius: 8px; display: inline-block; margin-bottom: 20px;">
          %s
        </div>
        <p>
          <a href="%s" style="display: inline-block; padding: 12px 24px; background-color: #007bff; color: white; text-decoration: none; border-radius: 5px; font-weight: bold;">
            Verify email address
          </a>
        </p>
        <p>The code is valid for <b>10 minutes</b>.</p>
        <p>If you did not register, you can ignore this email.</p>
      </div>`, code, link)
	return subject, html
}

func passwordResetEmail(baseURL, token string) (subject, html string) {
	link := fmt.Sprintf("%s/reset-password?token=%s", baseURL, url.QueryEscape(token))
	subject = "Password Reset"
	html = fmt.Sprintf(`<p>Hello,</p>
               <p>You have requested a password reset.</p>
               <p>Click the following link to reset your password:</p>
               <a href="%s">Reset Password</a>
               <p>This link is valid for one hour.</p>
               <p>If you did not request this, please ignore this email.</p>`, link)
	return subject, html
}
