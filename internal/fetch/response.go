package fetch

import (
	"net/http"
	"strconv"
	"time"
)

// Response 是完整缓冲的响应快照，正文可以被多次读取。
// 同时用于“返回给调用方”和“写入缓存”时，必须先 Clone。
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	URL      string
	StoredAt time.Time
}

// NewResponse 构造一个本地合成的响应（占位图、空列表等回退结果）。
func NewResponse(status int, contentType string, body []byte) *Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &Response{
		Status: status,
		Header: header,
		Body:   body,
	}
}

// Clone 深拷贝 Header 与 Body，返回的副本与原响应互不影响。
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Header = r.Header.Clone()
	if clone.Header == nil {
		clone.Header = http.Header{}
	}
	clone.Body = append([]byte(nil), r.Body...)
	return &clone
}

// OK 表示状态码处于 2xx。
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Cacheable 表示该响应允许写入缓存：仅 200。
func (r *Response) Cacheable() bool {
	return r != nil && r.Status == http.StatusOK
}

// ContentType 返回 Content-Type 头。
func (r *Response) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}
