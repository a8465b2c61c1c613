package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// BenchmarkClientGetJSON 基准测试：基础客户端GET JSON
func BenchmarkClientGetJSON(b *testing.B) {
	// 创建测试服务器
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "success",
			"status":  "ok",
		})
	}))
	defer server.Close()

	client := NewClient()
	ctx := context.Background()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		var result map[string]string
		client.GetJSON(ctx, server.URL, &result)
	}
}

