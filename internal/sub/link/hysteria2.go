package link

import (
	"net"
	"strings"

	"github.com/John-Robertt/subhub/internal/model"
)

const hysteria2DefaultPort = 443

// decodeHysteria2 handles hysteria2:// and hy2://.
//
//	hysteria2://password@host:port/?sni=x&insecure=1&obfs=salamander&obfs-password=y#name
//
// A port-hopping range ("host:20000-30000" or "443,1000-2000") keeps the
// first port as port and the raw range under "ports".
func decodeHysteria2(s string) (model.Fields, error) {
	u := splitURI(s)
	password, hostPort, _ := u.authority()
	if hostPort == "" {
		return nil, newDecodeError(s, "DECODE_ERROR", "hysteria2 缺少服务器地址", nil)
	}

	server, port, ports, err := hysteria2HostPort(hostPort)
	if err != nil {
		return nil, newDecodeError(s, "DECODE_ERROR", "服务器地址或端口不合法", err)
	}

	cfg := model.Fields{
		{Key: "name", Value: firstNonEmpty(u.fragment, "Hysteria2 "+server)},
		{Key: "type", Value: "hysteria2"},
		{Key: "server", Value: server},
		{Key: "port", Value: port},
	}
	if ports != "" {
		cfg = cfg.Set("ports", ports)
	}
	cfg = cfg.Set("password", password)
	if sni := firstQuery(u.query, "sni", "peer"); sni != "" {
		cfg = cfg.Set("sni", sni)
	}
	cfg = cfg.Set("skip-cert-verify", insecure(u.query))
	if obfs := firstQuery(u.query, "obfs"); obfs != "" {
		cfg = cfg.Set("obfs", obfs)
	}
	if obfsPassword := firstQuery(u.query, "obfs-password"); obfsPassword != "" {
		cfg = cfg.Set("obfs-password", obfsPassword)
	}
	return cfg, nil
}

func hysteria2HostPort(hostPort string) (server string, port int, ports string, err error) {
	host, portStr, splitErr := net.SplitHostPort(hostPort)
	if splitErr != nil {
		// No port at all: bare host or bracketed IPv6.
		host = strings.TrimSuffix(strings.TrimPrefix(hostPort, "["), "]")
		if host == "" || strings.ContainsAny(host, "[]") {
			return "", 0, "", splitErr
		}
		return host, hysteria2DefaultPort, "", nil
	}
	if host == "" {
		return "", 0, "", net.InvalidAddrError("empty host")
	}

	if p, perr := parsePort(portStr); perr == nil {
		return host, p, "", nil
	}

	first := portStr
	if idx := strings.IndexAny(first, ",-"); idx > 0 {
		first = first[:idx]
	}
	p, perr := parsePort(first)
	if perr != nil {
		return "", 0, "", perr
	}
	return host, p, portStr, nil
}
