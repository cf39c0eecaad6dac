package link

import (
	"errors"
	"net/url"
	"strings"

	"github.com/John-Robertt/subhub/internal/model"
	"github.com/tidwall/gjson"
)

// decodeSS accepts three userinfo shapes:
//
//	ss://method:password@host:port           plain userinfo
//	ss://b64(method:password)@host:port      SIP002
//	ss://b64(method:password@host:port)      legacy, whole authority encoded
func decodeSS(s string) (model.Fields, error) {
	u := splitURI(s)
	if u.body == "" {
		return nil, newDecodeError(s, "DECODE_ERROR", "ss:// 后缺少内容", nil)
	}

	var method, password, hostPort string
	if userinfo, hp, ok := u.authority(); ok {
		hostPort = hp
		if m, p, hasColon := strings.Cut(userinfo, ":"); hasColon {
			method, password = m, p
		} else {
			m, p, err := decodeMethodPassword(userinfo)
			if err != nil {
				return nil, newDecodeError(s, "DECODE_ERROR", "ss userinfo base64 解码失败", err)
			}
			method, password = m, p
		}
	} else {
		decoded, err := decodeB64ToString(u.body)
		if err != nil {
			decoded, err = decodeB64ToString(strings.TrimRight(u.body, "/"))
		}
		if err != nil {
			return nil, newDecodeError(s, "DECODE_ERROR", "ss base64 解码失败", err)
		}
		at := strings.LastIndex(decoded, "@")
		if at < 0 {
			return nil, newDecodeError(s, "DECODE_ERROR", "ss base64 解码结果缺少 @ 分隔符", nil)
		}
		hostPort = trimPath(decoded[at+1:])
		m, p, ok := strings.Cut(decoded[:at], ":")
		if !ok {
			return nil, newDecodeError(s, "DECODE_ERROR", "ss base64 解码结果缺少 cipher:password", nil)
		}
		method, password = m, p
	}

	method = strings.TrimSpace(method)
	if method == "" || password == "" {
		return nil, newDecodeError(s, "DECODE_ERROR", "cipher 或 password 不能为空", nil)
	}
	if strings.ContainsAny(method, "\r\n\x00") || strings.ContainsAny(password, "\r\n\x00") {
		return nil, newDecodeError(s, "DECODE_ERROR", "cipher 或 password 包含非法控制字符", nil)
	}

	server, port, err := parseHostPort(hostPort)
	if err != nil {
		return nil, newDecodeError(s, "DECODE_ERROR", "服务器地址或端口不合法", err)
	}

	cfg := model.Fields{
		{Key: "name", Value: firstNonEmpty(u.fragment, "SS "+server)},
		{Key: "type", Value: "ss"},
		{Key: "server", Value: server},
		{Key: "port", Value: port},
		{Key: "cipher", Value: method},
		{Key: "password", Value: password},
	}
	return applySSPlugin(cfg, u.query), nil
}

func decodeMethodPassword(userB64 string) (string, string, error) {
	decoded, err := decodeB64ToString(userB64)
	if err != nil {
		return "", "", err
	}
	method, password, ok := strings.Cut(decoded, ":")
	if !ok {
		return "", "", errors.New("missing ':'")
	}
	return method, password, nil
}

// applySSPlugin maps the SIP002 "plugin" parameter (name;k=v;flag) and the
// JSON "plugin-opts" parameter onto Clash plugin / plugin-opts keys. JSON
// options win over inline ones. Unparseable plugin options are ignored.
func applySSPlugin(cfg model.Fields, q url.Values) model.Fields {
	var name string
	var opts model.Fields

	if raw := strings.TrimSpace(q.Get("plugin")); raw != "" {
		segs := strings.Split(raw, ";")
		name = strings.TrimSpace(segs[0])
		for _, seg := range segs[1:] {
			k, v, hasEq := strings.Cut(seg, "=")
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if !hasEq {
				opts = opts.Set(k, true)
				continue
			}
			opts = opts.Set(k, v)
		}
		if name == "simple-obfs" || name == "obfs-local" {
			name = "obfs"
			opts = renameKey(opts, "obfs", "mode")
			opts = renameKey(opts, "obfs-host", "host")
		}
	}

	if raw := strings.TrimSpace(q.Get("plugin-opts")); raw != "" {
		if !gjson.Valid(raw) {
			if unescaped, err := url.QueryUnescape(raw); err == nil {
				raw = unescaped
			}
		}
		if r := gjson.Parse(raw); gjson.Valid(raw) && r.IsObject() {
			if parsed, ok := jsonValue(r).(model.Fields); ok {
				for _, kv := range parsed {
					opts = opts.Set(kv.Key, kv.Value)
				}
			}
		}
	}

	if name != "" {
		cfg = cfg.Set("plugin", name)
	}
	if len(opts) > 0 {
		cfg = cfg.Set("plugin-opts", opts)
	}
	return cfg
}

func renameKey(f model.Fields, from, to string) model.Fields {
	for i := range f {
		if f[i].Key == from {
			f[i].Key = to
		}
	}
	return f
}
