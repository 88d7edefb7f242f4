// Command notify sends a single message straight to a robot webhook, without
// the server, registry or queue.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"dingbot/internal/engine/dingtalk"
	"dingbot/internal/pkg/logger"
	"dingbot/internal/platform/config"
)

func main() {
	webhook := flag.String("webhook", os.Getenv("DINGTALK_WEBHOOK"), "Robot webhook URL including access_token")
	secret := flag.String("secret", os.Getenv("DINGTALK_SECRET"), "Robot signing secret (optional)")
	robot := flag.String("robot", "", "Send to this robot from the config file instead of --webhook")
	configPath := flag.String("config", "configs/config.yaml", "Config file used with --robot")
	msgType := flag.String("type", "text", "Message type: text, markdown, link, actionCard")
	title := flag.String("title", "", "Message title")
	message := flag.String("message", "", "Message body")
	link := flag.String("url", "", "Link or action card target URL")
	picURL := flag.String("picurl", "", "Link picture URL")
	at := flag.String("at", "", "Comma-separated mobile numbers to mention")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger.Init(config.LoggingConfig{Level: *level, Format: "text"})

	endpoint, err := resolveEndpoint(*webhook, *secret, *robot, *configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("no robot to send to")
	}

	inv := dingtalk.Invocation{
		Message: *message,
		Title:   *title,
		Data:    &dingtalk.InvocationData{Type: *msgType, URL: *link, PicURL: *picURL},
	}
	for _, m := range strings.Split(*at, ",") {
		if m = strings.TrimSpace(m); m != "" {
			inv.Target = append(inv.Target, m)
		}
	}

	n, err := inv.Notification()
	if err != nil {
		log.Fatal().Err(err).Msg("unsupported message type")
	}

	client := dingtalk.NewClient(
		endpoint,
		dingtalk.WithLogger(log.Logger),
	)

	ack, err := client.Notify(context.Background(), n)
	if err != nil {
		log.Fatal().Err(err).Str("kind", dingtalk.ErrorKind(err)).Msg("notification failed")
	}
	log.Info().Int("errcode", ack.ErrCode).Str("errmsg", ack.ErrMsg).Msg("notification sent")
}

// resolveEndpoint prefers a robot named in the config file over the
// --webhook/--secret pair.
func resolveEndpoint(webhook, secret, robot, configPath string) (dingtalk.Endpoint, error) {
	if robot == "" {
		if strings.TrimSpace(webhook) == "" {
			return dingtalk.Endpoint{}, errors.New("--webhook, DINGTALK_WEBHOOK or --robot is required")
		}
		return dingtalk.NewEndpoint(webhook, secret), nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return dingtalk.Endpoint{}, fmt.Errorf("load config: %w", err)
	}
	rc, ok := cfg.Robot(robot)
	if !ok {
		return dingtalk.Endpoint{}, fmt.Errorf("robot %q is not configured in %s", robot, configPath)
	}
	return dingtalk.NewEndpoint(rc.Webhook, rc.Secret), nil
}
