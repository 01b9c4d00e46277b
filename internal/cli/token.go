package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mrlokans/sheetloader/internal/auth"
)

// TokenCommand generates an API token for the HTTP server.
type TokenCommand struct {
	Out io.Writer
}

func NewTokenCommand() *TokenCommand {
	return &TokenCommand{Out: os.Stdout}
}

func (cmd *TokenCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s token\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate an API token and the hash to configure the server with.\n")
	}
	return fs.Parse(args)
}

func (cmd *TokenCommand) Run() error {
	token, hash, err := auth.GenerateAPIToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Fprintf(cmd.Out, "Token: %s\n", token)
	fmt.Fprintf(cmd.Out, "Hash:  %s\n\n", hash)
	fmt.Fprintln(cmd.Out, "Start the server with AUTH_TOKEN_HASH set to the hash and send")
	fmt.Fprintln(cmd.Out, "the token as 'Authorization: Bearer <token>'. The token is not stored anywhere.")
	return nil
}
