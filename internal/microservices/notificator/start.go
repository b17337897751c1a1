package notificator

import (
	"context"
	"os"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/config"
	"restaurant-pos/internal/connections/rabbitmq"
	"restaurant-pos/internal/microservices/notificator/service"
)

func Start(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	client, err := rabbitmq.Dial(ctx, cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer client.Close()

	lg.Info("rabbitmq_connected", map[string]any{"host": cfg.RabbitMQ.Host, "exchange": cfg.RabbitMQ.Exchange})
	svc := service.New(client, cfg.RabbitMQ.Exchange, os.Stdout, lg)
	return svc.NotificatorService.Notify(ctx)
}
