package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrlokans/campuslib/internal/config"
	"github.com/mrlokans/campuslib/internal/membership"
)

type createStudentOptions struct {
	Name   string
	Email  string
	RollNo string
}

func newCreateStudentCommand(loadConfig func() *config.Config) *cobra.Command {
	var opts createStudentOptions

	cmd := &cobra.Command{
		Use:   "create-student",
		Short: "Register a student account",
		Long: `Register a student account without going through the HTTP API.

The password is read from the terminal without echo, or from the first
line of stdin when stdin is not a terminal.`,
		Example: `  campuslib create-student --name "Ada Lovelace" --email ada@campus.edu
  echo 's3cret-pass' | campuslib create-student --name Ada --email ada@campus.edu --roll-no CS-042`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(loadConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			return createStudent(cmd.Context(), app.Members, opts, password, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Full name (required)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "Email address used to log in (required)")
	cmd.Flags().StringVar(&opts.RollNo, "roll-no", "", "Campus roll number")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func createStudent(ctx context.Context, members *membership.Service, opts createStudentOptions, password string, out io.Writer) error {
	student, err := members.Signup(ctx, membership.SignupInput{
		Name:     opts.Name,
		Email:    opts.Email,
		RollNo:   opts.RollNo,
		Password: password,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Created student %d: %s <%s>\n", student.ID, student.Name, student.Email)
	return nil
}

// readPassword prompts on a terminal with masking; piped input is read as
// a single line.
func readPassword(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytePassword)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
