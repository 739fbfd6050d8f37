package auth

import (
	"context"
	"io"

	"github.com/johnsto/go-passwordless"
)

// in development the PIN is written to the log instead of sent by email
func (a *Auth) getTransport() string {
	if a.Environment == EnvProduction {
		return "Email"
	}
	return "Log"
}

// Request sends a login PIN to the owner's (or admin's) email address
func (a *Auth) Request(ctx context.Context, uid, recipient string) error {
	return a.pw.RequestToken(ctx, a.getTransport(), uid, recipient)
}

// Verify checks that the login PIN is valid and belongs to the user. An
// expired or mistyped PIN is not an error, just not valid
func (a *Auth) Verify(ctx context.Context, uid, token string) (bool, error) {
	valid, err := a.pw.VerifyToken(ctx, uid, token)
	switch err {
	case passwordless.ErrNoResponseWriter, passwordless.ErrNoStore, passwordless.ErrNoTransport, passwordless.ErrNotValidForContext:
		return valid, err
	default:
		return valid, nil
	}
}

func composeFuncGetter(options EmailOption) passwordless.ComposerFunc {
	return func(ctx context.Context, token, uid, recipient string, w io.Writer) error {
		e := &passwordless.Email{
			Subject: "Sign in to " + options.Name,
			To:      recipient,
		}

		link := options.LinkGenerator(uid, token)

		text := "Someone (hopefully you) asked to sign in to " + options.Name +
			" to manage listings with this email address.\n\n" +
			"Your sign-in code (expires in 15 minutes) is " + token + " - or use the following link: " +
			link + "\n\n" +
			"(If you did not request this email, you can safely ignore it.)"
		html := "<!doctype html><html><body>" +
			"<p>Someone (hopefully you) asked to sign in to " + options.Name +
			" to manage listings with this email address.</p>" +
			"<p>Your sign-in code (expires in 15 minutes) is <b>" + token + "</b> - or <a href=\"" + link + "\">" +
			"click here</a> to sign in automatically.</p>" +
			"<p>(If you did not request this email, you can safely ignore it.)</p></body></html>"

		e.AddBody("text/plain", text)
		e.AddBody("text/html", html)

		_, err := e.Write(w)

		return err
	}
}
