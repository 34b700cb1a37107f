package main

import (
	"net/http"
	"os/signal"
	"syscall"

	"payment-ledger/internal/adapter/queue"
	"payment-ledger/internal/service"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued customer notifications",
		Long: `Consume notification tasks (receipts, status changes, refunds) from the
queue and POST them, HMAC-signed, to notification.webhook_url. Failed
deliveries are retried by the queue up to queue.max_retry times.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Notification.WebhookURL == "" {
				log.Warn().Msg("notification.webhook_url is empty, deliveries will fail")
			}

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deliverer := service.NewNotificationService(
				cfg.Notification.WebhookURL,
				cfg.Notification.SigningSecret,
				service.NewHMACSignatureService(),
				&http.Client{Timeout: cfg.Notification.Timeout},
				log,
			)
			return queue.NewWorker(cfg.Queue, deliverer, log).Run(ctx)
		},
	}
}
