package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sakif/campus-client/internal/model"
)

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			var err error
			if email, err = p.IfEmpty(email, "Email"); err != nil {
				return err
			}
			if password == "" {
				if password, err = p.Password("Password"); err != nil {
					return err
				}
			}

			u, err := a.client.Session.Login(a.ctx(cmd), email, password)
			if err != nil {
				return fmt.Errorf("login failed: %s", userMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", u.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func (a *app) registerCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			var err error
			if name, err = p.IfEmpty(name, "Name"); err != nil {
				return err
			}
			if email, err = p.IfEmpty(email, "Email"); err != nil {
				return err
			}
			if password == "" {
				if password, err = p.Password("Password"); err != nil {
					return err
				}
			}

			u, err := a.client.Session.Register(a.ctx(cmd), name, email, password)
			if err != nil {
				return fmt.Errorf("registration failed: %s", userMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! You are signed in.\n", u.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.client.Session.Logout(a.ctx(cmd))
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Session.RequireAuth(a.ctx(cmd), "/profile"); err != nil {
				return err
			}
			u, _ := a.client.Session.User()
			printUser(cmd.OutOrStdout(), u)
			return nil
		},
	}
}

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile [user-id]",
		Short: "Show a user's profile and questions (yours by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)

			var id int64
			if len(args) == 1 {
				n, err := parseID(args[0])
				if err != nil {
					return err
				}
				id = n
			} else {
				if err := a.client.Session.RequireAuth(ctx, "/profile"); err != nil {
					return err
				}
				u, _ := a.client.Session.User()
				id = u.ID
			}

			view := a.client.Views.NewProfileQuestions()
			defer view.Close()
			u, qs, err := view.Load(ctx, id)
			if err != nil {
				return fmt.Errorf("loading profile: %s", userMessage(err))
			}

			out := cmd.OutOrStdout()
			printUser(out, u)
			fmt.Fprintf(out, "\n%s\n", plural(len(qs), "question"))
			for _, q := range qs {
				printQuestionLine(out, q)
			}
			return nil
		},
	}

	var name, role string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change your display name or role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			if err := a.client.Session.RequireAuth(ctx, "/profile"); err != nil {
				return err
			}
			if name == "" {
				cur, _ := a.client.Session.User()
				name = cur.Name
			}
			u, err := a.client.Session.UpdateProfile(ctx, model.ProfileUpdate{Name: name, Role: role})
			if err != nil {
				return fmt.Errorf("updating profile: %s", userMessage(err))
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		},
	}
	update.Flags().StringVarP(&name, "name", "n", "", "new display name")
	update.Flags().StringVar(&role, "role", "", "new role")
	cmd.AddCommand(update)
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a valid id", s)
	}
	return id, nil
}
