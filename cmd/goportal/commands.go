package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	goPortal "github.com/MrEthical07/goPortal"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, c *goPortal.Client, args []string) error
}

var commandOrder = []string{"login", "logout", "whoami", "2fa", "profile", "verify-account"}

var commands = map[string]command{
	"login":          {summary: "sign in with email, password and TOTP code", run: runLogin},
	"logout":         {summary: "sign out and forget the stored token", run: runLogout},
	"whoami":         {summary: "show the signed-in user", run: runWhoami},
	"2fa":            {summary: "status | enable | disable two-factor authentication", run: runTwoFactor},
	"profile":        {summary: "update profile fields", run: runProfile},
	"verify-account": {summary: "send the account verification email", run: runVerifyAccount},
}

const maxCodeAttempts = 3

func runLogin(ctx context.Context, a *app, c *goPortal.Client, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	email := fs.String("email", "", "account email; prompted when empty")
	passwordFile := fs.String("password-file", "", "read the password from this file instead of the terminal")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	var err error
	if *email == "" {
		if *email, err = a.prompt("Email: "); err != nil {
			return err
		}
	}
	password, err := a.password(*passwordFile)
	if err != nil {
		return err
	}

	flow, err := c.NewLoginFlow(nil)
	if err != nil {
		return err
	}
	st, err := flow.SubmitCredentials(ctx, *email, password)
	if err != nil {
		return err
	}
	for attempt := 1; st.Phase() == goPortal.PhaseSecondFactorRequired; attempt++ {
		code, err := a.prompt("Authentication code: ")
		if err != nil {
			return err
		}
		st, err = flow.SubmitSecondFactor(ctx, strings.TrimSpace(code))
		if err == nil {
			break
		}
		if st.Phase() != goPortal.PhaseSecondFactorRequired || attempt == maxCodeAttempts {
			return err
		}
		fmt.Fprintln(a.errOut, err)
	}

	auth, ok := st.(goPortal.LoginAuthenticated)
	if !ok {
		return fmt.Errorf("login ended in %s", st.Phase())
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", displayName(auth.Session.User))
	return nil
}

func (a *app) password(file string) (string, error) {
	if file == "" || file == "-" {
		return a.readSecret("Password: ")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func runLogout(ctx context.Context, _ *app, c *goPortal.Client, _ []string) error {
	return c.Logout(ctx)
}

type whoami struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	AccountVerified bool      `json:"accountVerified"`
	Admin           bool      `json:"admin"`
	TokenExpiresAt  time.Time `json:"tokenExpiresAt,omitzero"`
}

func runWhoami(ctx context.Context, a *app, c *goPortal.Client, args []string) error {
	fs := pflag.NewFlagSet("whoami", pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	asJSON := fs.Bool("json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	id, err := c.LoadIdentity(ctx)
	if err != nil {
		return err
	}
	admin, err := c.IsAdmin(ctx)
	if err != nil {
		return err
	}
	out := whoami{
		ID:              id.ID,
		Name:            displayName(id),
		Email:           id.Email,
		AccountVerified: id.AccountVerified,
		Admin:           admin,
	}
	if id.Phone != nil {
		out.Phone = *id.Phone
	}
	if claims, err := c.TokenInfo(); err == nil {
		out.TokenExpiresAt = claims.ExpiresAt
	}

	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	fmt.Fprintf(a.out, "%s <%s>\n", out.Name, out.Email)
	fmt.Fprintf(a.out, "verified: %t\nadmin: %t\n", out.AccountVerified, out.Admin)
	if !out.TokenExpiresAt.IsZero() {
		fmt.Fprintf(a.out, "session expires: %s\n", out.TokenExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func runTwoFactor(ctx context.Context, a *app, c *goPortal.Client, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	flow, err := c.NewTwoFactorFlow(ctx, nil)
	if err != nil {
		return err
	}

	switch args[0] {
	case "status":
		state := "disabled"
		if flow.Enabled() {
			state = "enabled"
		}
		fmt.Fprintf(a.out, "two-factor authentication is %s\n", state)
		return nil
	case "enable":
		return a.enableTwoFactor(ctx, flow)
	case "disable":
		return a.disableTwoFactor(ctx, flow)
	default:
		return fmt.Errorf("%w: unknown 2fa action %q", errUsage, args[0])
	}
}

func (a *app) enableTwoFactor(ctx context.Context, flow *goPortal.TwoFactorFlow) error {
	st, err := flow.RequestSetup(ctx)
	if err != nil {
		return err
	}
	awaiting, ok := st.(goPortal.TwoFactorAwaitingSetup)
	if !ok {
		return fmt.Errorf("setup ended in %s", st.Phase())
	}
	m := awaiting.Material()
	fmt.Fprintf(a.out, "Add this account to your authenticator app:\n  %s\n", m.SecretDisplay)
	fmt.Fprintf(a.out, "or enter the key manually: %s\n", m.ManualEntryKey)

	for attempt := 1; ; attempt++ {
		code, err := a.prompt("Authentication code: ")
		if err != nil {
			flow.Cancel()
			return err
		}
		st, err = flow.ConfirmSetup(ctx, strings.TrimSpace(code))
		if err == nil {
			fmt.Fprintln(a.out, "two-factor authentication enabled")
			return nil
		}
		if st.Phase() != goPortal.PhaseAwaitingSetup || attempt == maxCodeAttempts {
			flow.Cancel()
			return err
		}
		fmt.Fprintln(a.errOut, err)
	}
}

func (a *app) disableTwoFactor(ctx context.Context, flow *goPortal.TwoFactorFlow) error {
	if _, err := flow.RequestDisable(); err != nil {
		if errors.Is(err, goPortal.ErrInvalidState) {
			return errors.New("two-factor authentication is not enabled")
		}
		return err
	}
	for attempt := 1; ; attempt++ {
		code, err := a.prompt("Authentication code: ")
		if err != nil {
			flow.Cancel()
			return err
		}
		st, err := flow.ConfirmDisable(ctx, strings.TrimSpace(code))
		if err == nil {
			fmt.Fprintln(a.out, "two-factor authentication disabled")
			return nil
		}
		if st.Phase() != goPortal.PhaseAwaitingDisable || attempt == maxCodeAttempts {
			flow.Cancel()
			return err
		}
		fmt.Fprintln(a.errOut, err)
	}
}

func runProfile(ctx context.Context, a *app, c *goPortal.Client, args []string) error {
	if len(args) == 0 || args[0] != "update" {
		return errUsage
	}
	fs := pflag.NewFlagSet("profile update", pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	firstName := fs.String("first-name", "", "new first name")
	lastName := fs.String("last-name", "", "new last name")
	email := fs.String("email", "", "new email address")
	phone := fs.String("phone", "", "new phone number")
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}

	var patch goPortal.IdentityPatch
	if fs.Changed("first-name") {
		patch.FirstName = firstName
	}
	if fs.Changed("last-name") {
		patch.LastName = lastName
	}
	if fs.Changed("email") {
		patch.Email = email
	}
	if fs.Changed("phone") {
		patch.Phone = phone
	}

	id, err := c.UpdateProfile(ctx, patch)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "profile updated: %s <%s>\n", displayName(id), id.Email)
	if patch.Email != nil && !id.AccountVerified {
		fmt.Fprintln(a.out, "run verify-account to confirm the new address")
	}
	return nil
}

func runVerifyAccount(ctx context.Context, a *app, c *goPortal.Client, _ []string) error {
	if err := c.RequestAccountVerification(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "verification email sent")
	return nil
}

func displayName(id goPortal.Identity) string {
	name := strings.TrimSpace(id.FirstName + " " + id.LastName)
	if name == "" {
		return id.Email
	}
	return name
}
