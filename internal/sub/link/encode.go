package link

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/subhub/internal/model"
	"github.com/tidwall/sjson"
)

var ErrUnsupportedType = errors.New("unsupported proxy type")

// Encode renders a proxy back into a share-link that Decode accepts.
// Only the keys Decode understands are carried over.
func Encode(p model.Proxy) (string, error) {
	c := p.Config
	server := c.GetString("server")
	port := model.ScalarInt(valueOf(c, "port"))
	if server == "" || port <= 0 {
		return "", fmt.Errorf("encode %q: missing server or port", p.Name)
	}
	hostPort := net.JoinHostPort(server, strconv.Itoa(port))
	name := c.GetString("name")

	switch strings.ToLower(p.Type) {
	case "ss":
		return encodeSS(c, hostPort, name), nil
	case "ssr":
		return encodeSSR(c, server, port, name), nil
	case "vmess":
		return encodeVmess(c, server, port, name)
	case "vless":
		return encodeVless(c, hostPort, name), nil
	case "trojan":
		return encodeTrojan(c, hostPort, name), nil
	case "hysteria2":
		if ports := c.GetString("ports"); ports != "" {
			hostPort = net.JoinHostPort(server, ports)
		}
		return encodeHysteria2(c, hostPort, name), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, p.Type)
	}
}

func encodeSS(c model.Fields, hostPort, name string) string {
	userinfo := base64.RawURLEncoding.EncodeToString([]byte(c.GetString("cipher") + ":" + c.GetString("password")))

	var q queryBuilder
	if plugin := c.GetString("plugin"); plugin != "" {
		opts := nestedFields(c, "plugin-opts")
		if plugin == "obfs" {
			plugin = "obfs-local"
			opts = renameKey(opts.Clone(), "mode", "obfs")
			opts = renameKey(opts, "host", "obfs-host")
		}
		segs := []string{plugin}
		for _, kv := range opts {
			if b, ok := kv.Value.(bool); ok {
				if b {
					segs = append(segs, kv.Key)
				}
				continue
			}
			segs = append(segs, kv.Key+"="+fmt.Sprint(kv.Value))
		}
		q.add("plugin", strings.Join(segs, ";"))
	}
	return "ss://" + userinfo + "@" + hostPort + q.String() + fragment(name)
}

func encodeSSR(c model.Fields, server string, port int, name string) string {
	b64 := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	main := strings.Join([]string{
		server,
		strconv.Itoa(port),
		c.GetString("protocol"),
		c.GetString("cipher"),
		c.GetString("obfs"),
		b64(c.GetString("password")),
	}, ":")

	var params []string
	if v := c.GetString("obfs-param"); v != "" {
		params = append(params, "obfsparam="+b64(v))
	}
	if v := c.GetString("protocol-param"); v != "" {
		params = append(params, "protoparam="+b64(v))
	}
	if name != "" {
		params = append(params, "remarks="+b64(name))
	}
	if len(params) > 0 {
		main += "/?" + strings.Join(params, "&")
	}
	return "ssr://" + b64(main)
}

func encodeVmess(c model.Fields, server string, port int, name string) (string, error) {
	network := firstNonEmpty(c.GetString("network"), "tcp")
	tls := ""
	if b, _ := valueOf(c, "tls").(bool); b {
		tls = "tls"
	}

	var path, host string
	switch network {
	case "ws":
		ws := nestedFields(c, "ws-opts")
		path = ws.GetString("path")
		host = nestedFields(ws, "headers").GetString("Host")
	case "grpc":
		path = nestedFields(c, "grpc-opts").GetString("grpc-service-name")
	}

	js := "{}"
	var err error
	for _, kv := range []model.Field{
		{Key: "v", Value: "2"},
		{Key: "ps", Value: name},
		{Key: "add", Value: server},
		{Key: "port", Value: port},
		{Key: "id", Value: c.GetString("uuid")},
		{Key: "aid", Value: model.ScalarInt(valueOf(c, "alterId"))},
		{Key: "scy", Value: firstNonEmpty(c.GetString("cipher"), "auto")},
		{Key: "net", Value: network},
		{Key: "tls", Value: tls},
		{Key: "sni", Value: c.GetString("servername")},
		{Key: "host", Value: host},
		{Key: "path", Value: path},
	} {
		js, err = sjson.Set(js, kv.Key, kv.Value)
		if err != nil {
			return "", fmt.Errorf("encode vmess %q: %w", name, err)
		}
	}
	return "vmess://" + base64.StdEncoding.EncodeToString([]byte(js)), nil
}

func encodeVless(c model.Fields, hostPort, name string) string {
	var q queryBuilder
	reality := nestedFields(c, "reality-opts")
	switch {
	case len(reality) > 0:
		q.add("security", "reality")
	case isTrue(c, "tls"):
		q.add("security", "tls")
	}
	q.add("sni", c.GetString("servername"))
	q.add("flow", c.GetString("flow"))
	q.add("fp", c.GetString("client-fingerprint"))
	q.add("pbk", reality.GetString("public-key"))
	q.add("sid", reality.GetString("short-id"))
	addTransport(&q, c)
	if isTrue(c, "skip-cert-verify") {
		q.add("allowInsecure", "1")
	}
	return "vless://" + escape(c.GetString("uuid")) + "@" + hostPort + q.String() + fragment(name)
}

func encodeTrojan(c model.Fields, hostPort, name string) string {
	var q queryBuilder
	q.add("sni", c.GetString("sni"))
	addTransport(&q, c)
	if isTrue(c, "skip-cert-verify") {
		q.add("allowInsecure", "1")
	}
	return "trojan://" + escape(c.GetString("password")) + "@" + hostPort + q.String() + fragment(name)
}

func encodeHysteria2(c model.Fields, hostPort, name string) string {
	var q queryBuilder
	q.add("sni", c.GetString("sni"))
	if isTrue(c, "skip-cert-verify") {
		q.add("insecure", "1")
	}
	q.add("obfs", c.GetString("obfs"))
	q.add("obfs-password", c.GetString("obfs-password"))
	return "hysteria2://" + escape(c.GetString("password")) + "@" + hostPort + "/" + q.String() + fragment(name)
}

func addTransport(q *queryBuilder, c model.Fields) {
	network := c.GetString("network")
	q.add("type", network)
	switch network {
	case "ws":
		ws := nestedFields(c, "ws-opts")
		q.add("path", ws.GetString("path"))
		q.add("host", nestedFields(ws, "headers").GetString("Host"))
	case "grpc":
		q.add("serviceName", nestedFields(c, "grpc-opts").GetString("grpc-service-name"))
	}
}

type queryBuilder []string

func (b *queryBuilder) add(key, value string) {
	if value == "" {
		return
	}
	*b = append(*b, key+"="+escape(value))
}

func (b queryBuilder) String() string {
	if len(b) == 0 {
		return ""
	}
	return "?" + strings.Join(b, "&")
}

// escape percent-encodes everything reserved, spaces included as %20, so
// parseQuery's PathUnescape restores the exact value.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func fragment(name string) string {
	if name == "" {
		return ""
	}
	return "#" + escape(name)
}

func valueOf(c model.Fields, key string) any {
	v, _ := c.Get(key)
	return v
}

func nestedFields(c model.Fields, key string) model.Fields {
	f, _ := valueOf(c, key).(model.Fields)
	return f
}

func isTrue(c model.Fields, key string) bool {
	b, _ := valueOf(c, key).(bool)
	return b
}
