package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avolkov/coursekit/client"
)

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Authenticate and store tokens locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		fmt.Fprint(os.Stderr, "Password: ")
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		user, err := c.Login(ctx, args[0], strings.TrimSpace(password))
		if err != nil {
			return err
		}
		if user != nil {
			fmt.Printf("Logged in as %s %s (%s)\n", user.FirstName, user.LastName, user.Username)
		} else {
			fmt.Println("Logged in")
		}
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <username> <email> <first-name> <last-name>",
	Short: "Create a new student account",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		fmt.Fprint(os.Stderr, "Password: ")
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		err = c.Register(ctx, client.RegisterParams{
			Username:  args[0],
			Email:     args[1],
			Password:  strings.TrimSpace(password),
			FirstName: args[2],
			LastName:  args[3],
		})
		if err != nil {
			return err
		}
		fmt.Println("Account created, you can log in now")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		if err := c.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		user, src, err := c.CurrentUser(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s <%s> role=%s%s\n", user.FirstName, user.LastName, user.Email, user.Role, sourceSuffix(src))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
}
