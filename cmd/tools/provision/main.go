// Command provision creates a sandbox API user and key for the collection
// product and verifies them with a token exchange. Run it once per
// environment and put the printed values into MOMO_USER_ID and MOMO_API_KEY.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/noah-isme/momo-gateway/internal/config"
	"github.com/noah-isme/momo-gateway/internal/momo"
	"github.com/noah-isme/momo-gateway/internal/obs"
	"github.com/noah-isme/momo-gateway/internal/resilience"
)

func main() {
	callbackHost := flag.String("callback-host", "", "provider callback host (defaults to MOMO_CALLBACK_HOST)")
	verify := flag.Bool("verify", true, "exchange the new credentials for a token to confirm they work")
	flag.Parse()

	logger := obs.NewLogger("console", "info")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	host := *callbackHost
	if host == "" {
		host = cfg.MomoCallbackHost
	}

	client := &momo.Client{
		BaseURL:           cfg.MomoBaseURL,
		SubscriptionKey:   cfg.MomoSubKey,
		TargetEnvironment: cfg.MomoEnvironment,
		CallbackHost:      host,
		HTTP: &resilience.HTTPClient{
			Client:      &http.Client{},
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseBackoff: cfg.RetryBaseBackoff,
			Timeout:     cfg.ProviderTimeout,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	userID, err := client.CreateAPIUser(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("create api user")
	}
	logger.Info().Str("user_id", userID.String()).Msg("api user created")

	if _, err := client.GetAPIUser(ctx, userID); err != nil {
		logger.Fatal().Err(err).Msg("confirm api user")
	}

	apiKey, err := client.CreateAPIKey(ctx, userID)
	if err != nil {
		logger.Fatal().Err(err).Msg("create api key")
	}

	if *verify {
		token, err := client.FetchToken(ctx, momo.Credentials{UserID: userID.String(), APIKey: apiKey})
		if err != nil {
			logger.Fatal().Err(err).Msg("verify credentials")
		}
		logger.Info().Time("expires_at", token.ExpiresAt).Msg("credentials verified")
	}

	fmt.Fprintf(os.Stdout, "MOMO_USER_ID=%s\nMOMO_API_KEY=%s\n", userID, apiKey)
}
