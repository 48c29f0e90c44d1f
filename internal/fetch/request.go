package fetch

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Request 是一次被拦截请求的描述（方法、绝对 URL、Accept 等），构造后只读。
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// NewRequest 根据方法与绝对 URL 构造请求描述，header 会被复制，避免调用方后续修改。
func NewRequest(method, rawURL string, header http.Header) (*Request, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, errors.New("request url must be absolute")
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if header == nil {
		header = http.Header{}
	}
	return &Request{
		Method: method,
		URL:    parsed,
		Header: header.Clone(),
	}, nil
}

// MustRequest 与 NewRequest 相同，但在失败时 panic，便于测试与静态清单构造。
func MustRequest(method, rawURL string, header http.Header) *Request {
	req, err := NewRequest(method, rawURL, header)
	if err != nil {
		panic(err)
	}
	return req
}

// WithBody 返回携带请求体的副本，原描述保持不变。
func (r *Request) WithBody(body []byte) *Request {
	clone := *r
	clone.Body = append([]byte(nil), body...)
	return &clone
}

// Hostname 返回不含端口的小写主机名。
func (r *Request) Hostname() string {
	return strings.ToLower(r.URL.Hostname())
}

// Path 返回 URL 路径，空路径视为 "/"。
func (r *Request) Path() string {
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// Extension 返回路径的小写扩展名（含点号），查询串不参与判断。
func (r *Request) Extension() string {
	return strings.ToLower(path.Ext(r.Path()))
}

// Accept 解析 Accept 头中的媒体类型列表，去掉参数部分。
func (r *Request) Accept() []string {
	var out []string
	for _, raw := range r.Header.Values("Accept") {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			mediaType, _, err := mime.ParseMediaType(part)
			if err != nil {
				mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]))
			}
			if mediaType != "" {
				out = append(out, mediaType)
			}
		}
	}
	return out
}

// AcceptsHTML 判断 Accept 是否声明了 text/html。
func (r *Request) AcceptsHTML() bool {
	for _, mediaType := range r.Accept() {
		if mediaType == "text/html" {
			return true
		}
	}
	return false
}

// Key 返回缓存键，同一方法 + URL 总是得到相同的键。
func (r *Request) Key() string {
	return r.Method + " " + r.URL.String()
}

// KeyFor 在没有完整请求描述时计算缓存键。
func KeyFor(method, rawURL string) (string, error) {
	req, err := NewRequest(method, rawURL, nil)
	if err != nil {
		return "", err
	}
	return req.Key(), nil
}
