package service

import (
	"io"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/connections/rabbitmq"
)

type Service struct {
	NotificatorService *NotificatorService
}

func New(client *rabbitmq.Client, exchange string, out io.Writer, lg *logger.Logger) *Service {
	return &Service{NotificatorService: NewNotificatorService(client, exchange, out, lg)}
}
