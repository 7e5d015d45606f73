/*
Package authsdk holds the wire contract of the StudyHub user-service
authentication API and a small Go client for it.

# Login

Login is a multi-step exchange. The response to POST /v1/auth/login is one
of three shapes:

  - a full session (Token, RefreshToken, User)
  - TwoFARequired with a TempToken, to be exchanged for a session through
    POST /v1/auth/login-2fa together with a TOTP code
  - RequireTwoFASetup with a SetupToken, which authorises
    POST /v1/auth/2fa/setup and /2fa/verify until two-factor authentication
    is enabled; the user then logs in again

	client := authsdk.NewClient("https://api.studyhub.example")
	res, err := client.Login(ctx, authsdk.LoginRequest{Email: email, Password: pw})
	switch {
	case err != nil:
		var apiErr *authsdk.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusLocked {
			// account locked, an unlock email is on its way
		}
	case res.TwoFARequired:
		res, err = client.LoginTwoFA(ctx, res.TempToken, code)
	case res.RequireTwoFASetup:
		setup, err := client.SetupTwoFA(ctx, res.SetupToken)
		// render setup.QRCode, then client.VerifyTwoFA(ctx, res.SetupToken, code)
	}

# Errors

Every non-2xx response carries {"error", "error_description"} and, for some
errors, extra fields such as lockedUntil or attemptsRemaining. The client
surfaces these as *APIError.
*/
package authsdk
