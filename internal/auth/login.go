package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// DeviceLogin runs the OAuth2 device authorization grant and adopts the
// resulting token. prompt is called once with the code the user must
// confirm in a browser.
func (p *Provider) DeviceLogin(ctx context.Context, prompt func(*oauth2.DeviceAuthResponse)) error {
	if p.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}
	var opts []oauth2.AuthCodeOption
	if p.audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", p.audience))
	}
	resp, err := p.oauth.DeviceAuth(ctx, opts...)
	if err != nil {
		return &CredentialError{Op: "device authorization", Err: err}
	}
	prompt(resp)
	tok, err := p.oauth.DeviceAccessToken(ctx, resp)
	if err != nil {
		return &CredentialError{Op: "device token", Err: err}
	}
	if err := p.Adopt(tok); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}
