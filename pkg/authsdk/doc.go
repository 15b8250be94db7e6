/*
Package authsdk is the client side of the passport identity service: it signs
users in, keeps their session alive and runs the OAuth consent handshake for
third-party applications.

# Overview

An SDK value is one authentication context. It owns a Session (the
observable record UIs render from), the Sign-In state machine, the Token
Lifecycle manager and any number of Consent state machines. Nothing is global;
two SDK values only share state when they share a tokenstore.Store.

	sdk, err := authsdk.New(authsdk.Config{
		BaseURL: "https://id.example.com",
		Store:   tokenstore.NewEcho(store),
	})
	if err != nil {
		return err
	}
	defer sdk.Close()

	if err := sdk.Init(ctx); err != nil {
		return err
	}

Init hydrates the session from the store, adopts a sid/refresh_token pair
passed in the page URL, refreshes an expired token and starts fetching the
remote configuration. Wait blocks other goroutines until that is done.

# Sign-in

Transitions return an ErrorCode for expected failures and an error only for
misuse (no active sign-in, illegal step, SDK not initialized):

	signIn := sdk.SignIn()

	code, err := signIn.CreateSignIn(ctx, "user@example.com")
	if err != nil {
		return err // programmer error
	}
	if code != "" {
		// Rendered from Session().Snapshot().Errors as well.
		return nil
	}

	code, err = signIn.AuthenticateWithPassword(ctx, password)
	switch code {
	case "":
		// step is now authenticated
	case authsdk.CodeMissingRequiredFields:
		// step is missing-fields; fill sdk.Profile() and SubmitMissingFields
	}

While a transition is in flight the session's Loading flag is set and further
transitions return request_in_flight. Responses that land after Restart,
Logout or a step change are dropped.

# Tokens

Other features obtain credentials only through Tokens:

	token, err := sdk.Tokens().GetToken(ctx)
	if authsdk.IsAuthError(err, authsdk.TokenExpired) {
		// sign in again
	}

GetToken returns a valid token or an *AuthError, refreshing on the way when
needed. A timer refreshes proactively RefreshLeadTime before expiry. Tokens
also implements oauth2.TokenSource and SDK.HTTPClient wraps it for plain
net/http use.

# Consent

	consent := sdk.OAuth(authsdk.OAuthConfig{ClientID: "shop", RedirectURI: "https://shop.example.com/cb"})
	code, err := consent.Connect(ctx)
	if consent.State().Step == authsdk.ConsentRequired {
		consent.SetFieldValue("phone", authsdk.StringValue("+61..."))
		code, err = consent.Submit(ctx)
	}
	target, err := consent.RedirectURL() // single use

# Observing state

	unsubscribe := sdk.Session().OnChange(authsdk.KeyStep, func(st authsdk.State) {
		render(st.Step)
	})
	defer unsubscribe()

Callbacks run synchronously after each update, outside the record's lock.
*/
package authsdk
