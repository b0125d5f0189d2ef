package main

import (
	"fmt"

	"github.com/diewo77/go-purchases/internal/config"
	"github.com/diewo77/go-purchases/internal/notify"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// buildNotifier selects the alert channel from ALERT_NOTIFIER.
// The returned close func releases broker connections.
func buildNotifier(cfg config.NotifierConfig, logger logrus.FieldLogger) (notify.Notifier, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	amqpNotifier := func() (notify.Notifier, error) {
		conn, ch, err := notify.SetupAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() {
			_ = ch.Close()
			_ = conn.Close()
		})
		return notify.NewAMQPNotifier(ch, cfg.AMQPExchange), nil
	}
	redisNotifier := func() notify.Notifier {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, func() { _ = client.Close() })
		return notify.NewRedisNotifier(client, cfg.RedisChannel)
	}

	logNotifier := notify.NewLogNotifier(logger)
	switch cfg.Kind {
	case "", "log":
		return logNotifier, closeAll, nil
	case "amqp":
		n, err := amqpNotifier()
		if err != nil {
			return nil, closeAll, err
		}
		return notify.Multi{logNotifier, n}, closeAll, nil
	case "redis":
		return notify.Multi{logNotifier, redisNotifier()}, closeAll, nil
	case "multi":
		n, err := amqpNotifier()
		if err != nil {
			return nil, closeAll, err
		}
		return notify.Multi{logNotifier, n, redisNotifier()}, closeAll, nil
	default:
		return nil, closeAll, fmt.Errorf("unknown ALERT_NOTIFIER %q", cfg.Kind)
	}
}
