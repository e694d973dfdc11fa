package config

import "strings"

// Broker RabbitMQ 配置，上传确认后投递 asset.uploaded 事件给下游（缩略图、水印等）
type Broker struct {
	URL        string `yaml:"url" json:"url"`
	Exchange   string `yaml:"exchange" json:"exchange"`
	RoutingKey string `yaml:"routing_key" json:"routing_key"`
}

func (b Broker) URLOrEnv() string {
	return envOr(b.URL, "AMQP_URL")
}

func (b Broker) ExchangeOrDefault() string {
	if e := strings.TrimSpace(b.Exchange); e != "" {
		return e
	}
	return "assets"
}

func (b Broker) RoutingKeyOrDefault() string {
	if k := strings.TrimSpace(b.RoutingKey); k != "" {
		return k
	}
	return "asset.uploaded"
}
