package notify

import (
	"errors"

	"FinPulse/internal/domain/service"
	"FinPulse/pkg/config"
	xhttp "FinPulse/pkg/http"
)

// Deps carries the clients channels are built on. Producer and Queue are
// only needed when the kafka and redis_queue channels are enabled.
type Deps struct {
	HTTP     *xhttp.Client
	Producer publisher
	Queue    enqueuer
}

// Build returns the enabled channels in a fixed order: telegram, wechat,
// webhooks, kafka, redis_queue.
func Build(cfg config.NotificationsConfig, deps Deps) ([]service.Channel, error) {
	if deps.HTTP == nil {
		deps.HTTP = xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout))
	}
	var out []service.Channel
	if cfg.Telegram.Enabled {
		out = append(out, NewTelegram(cfg.Telegram, deps.HTTP.HTTPClient()))
	}
	if cfg.WeChat.Enabled {
		out = append(out, NewWeChat(cfg.WeChat.Webhook, deps.HTTP))
	}
	for _, w := range cfg.Webhooks {
		out = append(out, NewWebhook(w.Name, w.URL, deps.HTTP))
	}
	if cfg.Kafka.Enabled {
		if deps.Producer == nil {
			return nil, errors.New("notifications.kafka: enabled without kafka brokers")
		}
		out = append(out, NewKafka(deps.Producer, cfg.Kafka.Topic))
	}
	if cfg.RedisQueue.Enabled {
		if deps.Queue == nil {
			return nil, errors.New("notifications.redis_queue: enabled without redis")
		}
		out = append(out, NewQueue(deps.Queue))
	}
	return out, nil
}
