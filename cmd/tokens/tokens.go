package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/paularlott/cli"

	"github.com/vistrive/assetnext/internal/token"
)

func secretFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "jwt-secret",
		Usage:    "HS256 secret the server signs tokens with",
		EnvVars:  []string{"ASSETNEXT_JWT_SECRET"},
		Required: true,
	}
}

// OperatorCommand mints an operator session token, useful for bootstrapping
// and for driving the API from scripts.
func OperatorCommand() *cli.Command {
	return &cli.Command{
		Name:        "operator",
		Usage:       "Issue an operator session token",
		Description: "Sign an operator JWT for the given user and tenant",
		Flags: []cli.Flag{
			secretFlag(),
			&cli.StringFlag{
				Name:     "user-id",
				Usage:    "User ID to embed in the token",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "tenant-id",
				Usage:    "Tenant ID to embed in the token",
				Required: true,
			},
			&cli.StringFlag{
				Name:         "role",
				Usage:        "Role claim (admin or member)",
				DefaultValue: "member",
			},
			&cli.IntFlag{
				Name:         "ttl-hours",
				Usage:        "Token lifetime in hours",
				DefaultValue: 24,
			},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			role := cmd.GetString("role")
			if role != "admin" && role != "member" {
				return fmt.Errorf("invalid role %q", role)
			}

			svc := token.NewService(cmd.GetString("jwt-secret"))
			lifetime := time.Duration(cmd.GetInt("ttl-hours")) * time.Hour
			signed, err := svc.IssueOperatorToken(cmd.GetString("user-id"), cmd.GetString("tenant-id"), role, lifetime)
			if err != nil {
				return err
			}

			fmt.Println(signed)
			return nil
		},
	}
}

// InspectCommand verifies an operator token and prints its claims.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:        "inspect",
		Usage:       "Verify an operator token and print its claims",
		Description: "Check the signature and expiry of an operator token",
		Flags: []cli.Flag{
			secretFlag(),
			&cli.StringFlag{
				Name:     "token",
				Usage:    "The token to inspect",
				Required: true,
			},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			svc := token.NewService(cmd.GetString("jwt-secret"))
			claims, err := svc.VerifyOperator(cmd.GetString("token"))
			if err != nil {
				return fmt.Errorf("token is not valid: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
}

// Commands returns the token management commands.
func Commands() []*cli.Command {
	return []*cli.Command{
		OperatorCommand(),
		InspectCommand(),
	}
}
