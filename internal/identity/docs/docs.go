// Package docs registers the identity service OpenAPI document with swag.
// Regenerate with: swag init -g internal/identity/http/router.go -o internal/identity/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/passport"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/livez": {"get": {"tags": ["Health"], "summary": "Health Check Endpoint", "produces": ["application/json"], "responses": {"200": {"description": "status, uptime, version"}}}},
        "/v1/config": {"get": {"tags": ["System"], "summary": "Public client configuration", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/v1/auth/sign_ins": {"post": {"tags": ["SignIn"], "summary": "Create sign-in", "responses": {"201": {"description": "Created"}, "400": {"description": "invalid_request, captcha_required"}, "404": {"description": "account_not_found"}}}},
        "/v1/auth/sign_ins/password": {"post": {"tags": ["SignIn"], "summary": "Authenticate with password", "responses": {"200": {"description": "OK"}, "401": {"description": "invalid_password"}, "403": {"description": "account_locked"}, "422": {"description": "missing_required_fields"}}}},
        "/v1/auth/sign_ins/magic_code/send": {"post": {"tags": ["SignIn"], "summary": "Send magic code", "responses": {"200": {"description": "OK"}, "409": {"description": "magic_code_recently_created"}}}},
        "/v1/auth/sign_ins/magic_code": {"post": {"tags": ["SignIn"], "summary": "Authenticate with magic code", "responses": {"200": {"description": "OK"}, "401": {"description": "not_valid, used, expired"}}}},
        "/v1/auth/sign_ins/passkey/options": {"post": {"tags": ["SignIn"], "summary": "Passkey assertion options", "responses": {"200": {"description": "OK"}, "404": {"description": "passkey_not_found"}}}},
        "/v1/auth/sign_ins/passkey": {"post": {"tags": ["SignIn"], "summary": "Authenticate with passkey", "responses": {"200": {"description": "OK"}, "401": {"description": "passkey_rejected"}}}},
        "/v1/auth/sign_ins/reset_password": {"post": {"tags": ["SignIn"], "summary": "Send reset password email", "responses": {"200": {"description": "Email sent"}}}},
        "/v1/auth/sign_ins/missing_fields": {"patch": {"tags": ["SignIn"], "summary": "Submit missing profile fields", "responses": {"200": {"description": "OK"}, "409": {"description": "sign_in_not_verified"}, "422": {"description": "missing_required_fields"}}}},
        "/v1/auth/tokens/refresh": {"post": {"tags": ["Tokens"], "summary": "Refresh session token", "responses": {"200": {"description": "OK"}, "401": {"description": "invalid_refresh_token, refresh_token_revoked"}}}},
        "/v1/oauth/consent": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["OAuth"], "summary": "Check consent", "responses": {"200": {"description": "OK"}, "401": {"description": "not_authenticated"}, "404": {"description": "application_not_found"}}},
            "patch": {"security": [{"BearerAuth": []}], "tags": ["OAuth"], "summary": "Update profile fields for an application", "responses": {"200": {"description": "OK"}, "422": {"description": "invalid_user_updates"}}},
            "post": {"security": [{"BearerAuth": []}], "tags": ["OAuth"], "summary": "Grant consent", "responses": {"200": {"description": "OK"}, "422": {"description": "missing_required_fields"}}}
        },
        "/v1/oauth/connect": {"post": {"security": [{"BearerAuth": []}], "tags": ["OAuth"], "summary": "Connect", "responses": {"200": {"description": "kind=token"}, "403": {"description": "kind=consent, consent_not_granted"}, "422": {"description": "kind=consent, missing_required_fields"}}}},
        "/one_time_login": {"get": {"tags": ["OAuth"], "summary": "Redeem one-time login token", "responses": {"302": {"description": "Redirect to the relying party"}, "400": {"description": "invalid_token, invalid_redirect_uri"}}}}
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Session token. Format: \"Bearer {token}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Passport Identity Service API",
	Description:      "Reference identity service for the passport SDK: sign-in, token refresh and OAuth consent.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
