package link

import (
	"net/url"
	"strings"

	"github.com/John-Robertt/subhub/internal/model"
)

// decodeVless handles vless://uuid@host:port?security=tls|reality&type=ws&...#name.
func decodeVless(s string) (model.Fields, error) {
	u := splitURI(s)
	uuid, hostPort, ok := u.authority()
	if !ok || strings.TrimSpace(uuid) == "" {
		return nil, newDecodeError(s, "DECODE_ERROR", "vless 缺少 uuid", nil)
	}
	server, port, err := parseHostPort(hostPort)
	if err != nil {
		return nil, newDecodeError(s, "DECODE_ERROR", "服务器地址或端口不合法", err)
	}

	q := u.query
	security := strings.ToLower(firstQuery(q, "security"))
	reality := security == "reality"
	sni := firstQuery(q, "sni", "peer")

	cfg := model.Fields{
		{Key: "name", Value: firstNonEmpty(u.fragment, "VLESS "+server)},
		{Key: "type", Value: "vless"},
		{Key: "server", Value: server},
		{Key: "port", Value: port},
		{Key: "uuid", Value: strings.TrimSpace(uuid)},
		{Key: "tls", Value: security == "tls" || reality},
	}
	if sni != "" {
		cfg = cfg.Set("servername", sni)
	}
	if flow := firstQuery(q, "flow"); flow != "" {
		cfg = cfg.Set("flow", flow)
	}
	cfg = cfg.Set("skip-cert-verify", insecure(q))
	cfg = applyTransport(cfg, q, sni, false)

	if reality {
		if fp := firstQuery(q, "fp"); fp != "" {
			cfg = cfg.Set("client-fingerprint", fp)
		}
		opts := model.Fields{}
		if pbk := firstQuery(q, "pbk"); pbk != "" {
			opts = opts.Set("public-key", pbk)
		}
		if sid := firstQuery(q, "sid"); sid != "" {
			opts = opts.Set("short-id", sid)
		}
		if len(opts) > 0 {
			cfg = cfg.Set("reality-opts", opts)
		}
	}
	return cfg, nil
}

// decodeTrojan handles trojan://password@host:port?sni=x&type=ws&...#name.
// The network key is left out when it is the default tcp.
func decodeTrojan(s string) (model.Fields, error) {
	u := splitURI(s)
	password, hostPort, ok := u.authority()
	if !ok || password == "" {
		return nil, newDecodeError(s, "DECODE_ERROR", "trojan 缺少密码", nil)
	}
	server, port, err := parseHostPort(hostPort)
	if err != nil {
		return nil, newDecodeError(s, "DECODE_ERROR", "服务器地址或端口不合法", err)
	}

	q := u.query
	sni := firstQuery(q, "sni", "peer")

	cfg := model.Fields{
		{Key: "name", Value: firstNonEmpty(u.fragment, "Trojan "+server)},
		{Key: "type", Value: "trojan"},
		{Key: "server", Value: server},
		{Key: "port", Value: port},
		{Key: "password", Value: password},
	}
	if sni != "" {
		cfg = cfg.Set("sni", sni)
	}
	cfg = cfg.Set("skip-cert-verify", insecure(q))
	return applyTransport(cfg, q, sni, true), nil
}

// applyTransport sets network plus ws-opts / grpc-opts from type|network,
// path, host and serviceName.
func applyTransport(cfg model.Fields, q url.Values, sni string, omitTCP bool) model.Fields {
	network := strings.ToLower(firstNonEmpty(firstQuery(q, "type", "network"), "tcp"))
	if !(omitTCP && network == "tcp") {
		cfg = cfg.Set("network", network)
	}

	switch network {
	case "ws":
		opts := model.Fields{{Key: "path", Value: firstNonEmpty(firstQuery(q, "path"), "/")}}
		if host := firstNonEmpty(firstQuery(q, "host"), sni); host != "" {
			opts = opts.Set("headers", model.Fields{{Key: "Host", Value: host}})
		}
		cfg = cfg.Set("ws-opts", opts)
	case "grpc":
		if name := firstQuery(q, "serviceName", "path"); name != "" {
			cfg = cfg.Set("grpc-opts", model.Fields{{Key: "grpc-service-name", Value: name}})
		}
	}
	return cfg
}
