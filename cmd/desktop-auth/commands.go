package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/brizzai/desktop-auth/internal/auth"
	"github.com/brizzai/desktop-auth/internal/auth/autherr"
	"github.com/brizzai/desktop-auth/internal/session"
	"github.com/brizzai/desktop-auth/internal/tui"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to your account",
	}

	var plain bool
	google := &cobra.Command{
		Use:   "google",
		Short: "Sign in with Google in the system browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, rt *cliApp, current *session.Session) error {
				if current != nil {
					pterm.Info.Printfln("Currently signed in as %s, signing in again replaces this session", current.Email)
				}
				var (
					sess *session.Session
					err  error
				)
				if plain {
					sess, err = googlePlain(ctx, rt.service)
				} else {
					sess, err = tui.RunSignIn(ctx, rt.service, "Sign in with Google", os.Stderr, rt.service.SignInWithGoogle)
				}
				if err != nil {
					return err
				}
				printSignedIn(sess)
				return nil
			})
		},
	}
	google.Flags().BoolVar(&plain, "plain", false, "Print progress lines instead of the interactive view")

	var email, password string
	emailCmd := &cobra.Command{
		Use:   "email",
		Short: "Sign in with an email address and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, rt *cliApp, _ *session.Session) error {
				var err error
				if email, err = promptIfEmpty(email, "Email", false); err != nil {
					return err
				}
				if password, err = promptIfEmpty(password, "Password", true); err != nil {
					return err
				}
				sess, err := rt.service.SignInWithEmail(ctx, email, password)
				if err != nil {
					return err
				}
				printSignedIn(sess)
				return nil
			})
		},
	}
	emailCmd.Flags().StringVar(&email, "email", "", "Email address")
	emailCmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")

	cmd.AddCommand(google, emailCmd)
	return cmd
}

func signupCmd() *cobra.Command {
	var email, password, displayName string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account with an email address and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, rt *cliApp, _ *session.Session) error {
				var err error
				if email, err = promptIfEmpty(email, "Email", false); err != nil {
					return err
				}
				if password, err = promptIfEmpty(password, "Password", true); err != nil {
					return err
				}
				res, err := rt.service.SignUpWithEmail(ctx, email, password, displayName)
				if err != nil {
					return err
				}
				if res.PendingConfirmation {
					pterm.Info.Printfln("Check %s for a confirmation link, then run %s",
						pterm.LightCyan(res.Email), pterm.LightGreen("desktop-auth login email"))
					return nil
				}
				printSignedIn(res.Session)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, rt *cliApp, current *session.Session) error {
				// A record restore could not verify is still on disk, so sign
				// out even when nothing is active.
				if err := rt.service.SignOut(ctx); err != nil {
					return err
				}
				if current == nil {
					pterm.Success.Println("Signed out")
					return nil
				}
				pterm.Success.Printfln("Signed out %s", current.Email)
				return nil
			})
		},
	}
}

type statusView struct {
	Phase   string           `yaml:"phase"`
	Session *session.Session `yaml:"session,omitempty"`
}

func statusCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the restored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch output {
			case "text", "yaml":
			default:
				return fmt.Errorf("unsupported output format %q, use text or yaml", output)
			}
			return withApp(cmd, func(ctx context.Context, rt *cliApp, current *session.Session) error {
				snap := rt.service.Snapshot()
				if output == "yaml" {
					out, err := yaml.Marshal(statusView{Phase: snap.Phase.String(), Session: current})
					if err != nil {
						return err
					}
					fmt.Print(string(out))
					return nil
				}
				if current == nil {
					pterm.Info.Println("Not signed in")
					return nil
				}
				printSession(current)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text|yaml)")
	return cmd
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch the signed-in user's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, rt *cliApp, current *session.Session) error {
				if current == nil {
					pterm.Info.Println("Not signed in")
					return nil
				}
				sess, err := rt.service.RefreshUser(ctx)
				if err != nil {
					return err
				}
				printSession(sess)
				return nil
			})
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and backend reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			check := func(name string, err error) {
				if err != nil {
					failed = true
					pterm.Error.Printfln("%s: %v", name, err)
					return
				}
				pterm.Success.Println(name)
			}

			check("Google sign-in configuration", cfg.ValidateGoogle())
			check("Identity backend configuration", cfg.ValidateIdentity())

			if cfg.Backend.BaseURL != "" {
				err := withApp(cmd, func(ctx context.Context, rt *cliApp, _ *session.Session) error {
					return rt.linker.Health(ctx)
				})
				check("Backend health", err)
			}

			if failed {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}

// googlePlain runs the browser sign-in without the interactive view.
func googlePlain(ctx context.Context, svc *auth.Service) (*session.Session, error) {
	spinner, _ := pterm.DefaultSpinner.Start("Starting sign-in...")
	shown := false
	unsubscribe := svc.Subscribe(func(s auth.Snapshot) {
		if s.AuthURL == "" || shown {
			return
		}
		shown = true
		spinner.UpdateText("Waiting for you to finish signing in in the browser...")
		pterm.Info.Printfln("If the browser did not open, visit %s", s.AuthURL)
	})
	defer unsubscribe()

	sess, err := svc.SignInWithGoogle(ctx)
	if err != nil {
		spinner.Fail("Sign-in failed")
		return nil, err
	}
	spinner.Success("Signed in")
	return sess, nil
}

func promptIfEmpty(value, label string, secret bool) (string, error) {
	if value != "" {
		return value, nil
	}
	input := pterm.DefaultInteractiveTextInput
	if secret {
		input = *input.WithMask("*")
	}
	v, err := input.Show(label)
	if err != nil {
		return "", autherr.Wrap(autherr.CodeCancelled, "input cancelled", err)
	}
	return normalizeInput(v, secret), nil
}

// normalizeInput trims typed values. Secrets are kept as typed so a prompted
// password matches the same value passed with --password.
func normalizeInput(v string, secret bool) string {
	if secret {
		return v
	}
	return strings.TrimSpace(v)
}

func printSignedIn(sess *session.Session) {
	if sess == nil {
		return
	}
	pterm.Success.Printfln("Signed in as %s (%s)", pterm.LightGreen(sess.DisplayName), sess.Email)
	if sess.OnboardingCompleted != nil && !*sess.OnboardingCompleted {
		pterm.Info.Println("Finish onboarding in the desktop app to get started")
	}
}

func printSession(sess *session.Session) {
	onboarding := "unknown"
	if sess.OnboardingCompleted != nil {
		onboarding = fmt.Sprintf("%t", *sess.OnboardingCompleted)
	}
	data := pterm.TableData{
		{"User ID", sess.UserID},
		{"Email", sess.Email},
		{"Name", sess.DisplayName},
		{"Method", string(sess.AuthMethod)},
		{"Onboarding completed", onboarding},
	}
	if sess.AvatarURL != "" {
		data = append(data, []string{"Avatar", sess.AvatarURL})
	}
	_ = pterm.DefaultTable.WithData(data).Render()
}
