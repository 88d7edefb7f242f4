package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"dingbot/internal/platform/auth"
	"dingbot/internal/platform/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	subject := flag.String("subject", "", "Token subject, e.g. the calling system")
	scopes := flag.String("scopes", auth.ScopeNotify, "Comma-separated scopes (notify, robots:admin)")
	ttl := flag.Duration("ttl", 0, "Token lifetime (defaults to jwt.access_token_ttl)")
	flag.Parse()

	if *subject == "" {
		log.Fatal().Msg("--subject is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var scopeList []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopeList = append(scopeList, s)
		}
	}

	token, err := auth.NewTokenService(cfg.JWT).GenerateToken(*subject, scopeList, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate token")
	}
	fmt.Println(token)
}
