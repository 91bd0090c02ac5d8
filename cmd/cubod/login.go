package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cubohome/cubod/pkg/client"
	"github.com/cubohome/cubod/pkg/config"
	"github.com/cubohome/cubod/pkg/session"
	"github.com/cubohome/cubod/pkg/utils"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the CuboAI cloud and store credentials",
	Long: `Log in to the CuboAI cloud and store the token pair on disk.

Credentials can be supplied through the CUBO_EMAIL and CUBO_PASSWORD
environment variables; otherwise they are prompted for interactively.
Accounts with MFA enabled are asked for the verification code.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	setLogLevel(cfg.Log.Level)

	store := session.NewStore(cfg.Data.Dir)
	if err := store.Load(); err != nil {
		return err
	}

	restClient := client.NewCuboClient(store)
	if cfg.Cubo.APIBase != "" {
		restClient.APIBase = cfg.Cubo.APIBase
	}
	if cfg.Cubo.MobileAPIBase != "" {
		restClient.MobileAPIBase = cfg.Cubo.MobileAPIBase
	}

	email := utils.EnvVarStr("CUBO_EMAIL", "")
	password := utils.EnvVarStr("CUBO_PASSWORD", "")

	if email == "" || password == "" {
		email, password, err = promptCredentials()
		fmt.Print("\n")
		if err != nil {
			return err
		}
	}

	ctx := context.Background()

	err = restClient.Login(ctx, email, password)

	var mfaErr *client.MFARequiredError
	if errors.As(err, &mfaErr) {
		fmt.Printf("MFA is enabled (%s)\n", mfaErr.Challenge)

		code, promptErr := promptMFACode()
		if promptErr != nil {
			return promptErr
		}

		err = restClient.LoginMFA(ctx, mfaErr, code)
	}

	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	pair := store.Pair()
	log.Info().
		Str("access_token", utils.AnonymizeToken(pair.AccessToken, 4)).
		Str("data_dir", cfg.Data.Dir).
		Msg("Login successful, tokens stored")

	return nil
}

func promptCredentials() (string, string, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Enter Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	email = strings.TrimSpace(email)

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(syscall.Stdin)
	if err != nil {
		return "", "", err
	}

	return email, string(bytePassword), nil
}

func promptMFACode() (string, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Enter MFA code: ")
	code, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(code), nil
}
