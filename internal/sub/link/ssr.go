package link

import (
	"strings"

	"github.com/John-Robertt/subhub/internal/model"
)

// decodeSSR handles ssr://b64url(server:port:protocol:method:obfs:b64url(password)[/?params]).
// obfsparam, protoparam and remarks in params are each b64url encoded.
func decodeSSR(s string) (model.Fields, error) {
	_, body, _ := strings.Cut(s, "://")
	body, _, _ = strings.Cut(body, "#")

	decoded, err := decodeURLSafeB64(removeSpaceTabCRLF(body))
	if err != nil {
		return nil, newDecodeError(s, "DECODE_ERROR", "ssr base64 解码失败", err)
	}

	main, params, hasParams := strings.Cut(decoded, "/?")
	if !hasParams {
		main, params, _ = strings.Cut(decoded, "?")
	}

	parts := strings.Split(main, ":")
	if len(parts) < 6 {
		return nil, newDecodeError(s, "DECODE_ERROR", "ssr 字段数量不足（需要 6 段）", nil)
	}
	// Count from the right so an unbracketed IPv6 server still parses.
	n := len(parts)
	server := strings.Join(parts[:n-5], ":")
	protocol, method, obfs := parts[n-4], parts[n-3], parts[n-2]
	if strings.TrimSpace(server) == "" {
		return nil, newDecodeError(s, "DECODE_ERROR", "ssr 缺少服务器地址", nil)
	}
	port, err := parsePort(parts[n-5])
	if err != nil {
		return nil, newDecodeError(s, "DECODE_ERROR", "ssr 端口不合法", err)
	}
	password, err := decodeURLSafeB64(parts[n-1])
	if err != nil {
		return nil, newDecodeError(s, "DECODE_ERROR", "ssr 密码 base64 解码失败", err)
	}

	q := parseQuery(params)
	param := func(key string) string {
		raw := firstQuery(q, key)
		if raw == "" {
			return ""
		}
		v, err := decodeURLSafeB64(raw)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	}

	cfg := model.Fields{
		{Key: "name", Value: firstNonEmpty(param("remarks"), "SSR "+server)},
		{Key: "type", Value: "ssr"},
		{Key: "server", Value: server},
		{Key: "port", Value: port},
		{Key: "cipher", Value: method},
		{Key: "password", Value: password},
		{Key: "protocol", Value: protocol},
		{Key: "obfs", Value: obfs},
	}
	if v := param("protoparam"); v != "" {
		cfg = cfg.Set("protocol-param", v)
	}
	if v := param("obfsparam"); v != "" {
		cfg = cfg.Set("obfs-param", v)
	}
	return cfg, nil
}
