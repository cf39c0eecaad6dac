package link

import (
	"errors"
	"strings"

	"github.com/John-Robertt/subhub/internal/model"
	"github.com/tidwall/gjson"
)

// decodeVmess handles the v2rayN form: vmess://b64(json).
// port and aid may be JSON numbers or numeric strings.
func decodeVmess(s string) (model.Fields, error) {
	_, body, _ := strings.Cut(s, "://")
	body, _, _ = strings.Cut(body, "#")
	body, _, _ = strings.Cut(body, "?")

	raw, err := decodeB64ToBytes(removeSpaceTabCRLF(body))
	if err != nil {
		return nil, newDecodeError(s, "DECODE_ERROR", "vmess base64 解码失败", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, newDecodeError(s, "DECODE_ERROR", "vmess JSON 解析失败", errors.New("invalid json"))
	}
	j := gjson.ParseBytes(raw)
	if !j.IsObject() {
		return nil, newDecodeError(s, "DECODE_ERROR", "vmess JSON 必须是对象", nil)
	}

	server := strings.TrimSpace(j.Get("add").String())
	if server == "" {
		return nil, newDecodeError(s, "DECODE_ERROR", "vmess 缺少 add 字段", nil)
	}
	port, err := parsePort(j.Get("port").String())
	if err != nil {
		return nil, newDecodeError(s, "DECODE_ERROR", "vmess port 不合法", err)
	}

	host := strings.TrimSpace(j.Get("host").String())
	network := strings.ToLower(firstNonEmpty(strings.TrimSpace(j.Get("net").String()), "tcp"))

	cfg := model.Fields{
		{Key: "name", Value: firstNonEmpty(strings.TrimSpace(j.Get("ps").String()), "Vmess "+server)},
		{Key: "type", Value: "vmess"},
		{Key: "server", Value: server},
		{Key: "port", Value: port},
		{Key: "uuid", Value: strings.TrimSpace(j.Get("id").String())},
		{Key: "alterId", Value: int(j.Get("aid").Int())},
		{Key: "cipher", Value: firstNonEmpty(strings.TrimSpace(j.Get("scy").String()), "auto")},
		{Key: "network", Value: network},
		{Key: "tls", Value: strings.EqualFold(j.Get("tls").String(), "tls")},
	}
	if sn := firstNonEmpty(strings.TrimSpace(j.Get("sni").String()), host); sn != "" {
		cfg = cfg.Set("servername", sn)
	}

	path := strings.TrimSpace(j.Get("path").String())
	switch network {
	case "ws":
		opts := model.Fields{{Key: "path", Value: firstNonEmpty(path, "/")}}
		if host != "" {
			opts = opts.Set("headers", model.Fields{{Key: "Host", Value: host}})
		}
		cfg = cfg.Set("ws-opts", opts)
	case "grpc":
		if path != "" {
			cfg = cfg.Set("grpc-opts", model.Fields{{Key: "grpc-service-name", Value: path}})
		}
	}
	return cfg, nil
}
