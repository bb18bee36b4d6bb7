package utils

import "net/http"

// AudioWriter 在写出第一个字节时才提交 200 和 Content-Type，
// 之前失败的话调用方仍可以改写状态码。每次写入后立即 flush。
type AudioWriter struct {
	w           http.ResponseWriter
	flusher     http.Flusher
	contentType string
	started     bool
}

// NewAudioWriter 包装 w。
func NewAudioWriter(w http.ResponseWriter, contentType string) *AudioWriter {
	flusher, _ := w.(http.Flusher)
	return &AudioWriter{w: w, flusher: flusher, contentType: contentType}
}

func (a *AudioWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !a.started {
		a.w.Header().Set("Content-Type", a.contentType)
		a.w.WriteHeader(http.StatusOK)
		a.started = true
	}
	n, err := a.w.Write(p)
	if a.flusher != nil {
		a.flusher.Flush()
	}
	return n, err
}

// Started 表示响应头是否已经发出。
func (a *AudioWriter) Started() bool {
	return a.started
}
