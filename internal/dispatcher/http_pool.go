package dispatcher

import (
	"crypto/tls"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/NexusBot-official/Nexus/internal/logging"
)

// HTTPPool round-robins over a few keep-alive clients so one slow
// connection does not serialize every mitigation.
type HTTPPool struct {
	clients []*fasthttp.Client
	next    uint32
}

func NewHTTPPool(size int, timeout time.Duration, dial fasthttp.DialFunc) *HTTPPool {
	if size <= 0 {
		size = 1
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ClientSessionCache: tls.NewLRUClientSessionCache(128),
	}

	clients := make([]*fasthttp.Client, size)
	for i := range clients {
		clients[i] = &fasthttp.Client{
			Name:                          "DiscordBot (https://github.com/NexusBot-official/Nexus, 1.0)",
			MaxConnsPerHost:               256,
			MaxIdleConnDuration:           90 * time.Second,
			ReadTimeout:                   timeout,
			WriteTimeout:                  timeout,
			MaxConnWaitTimeout:            timeout,
			MaxResponseBodySize:           4 * 1024 * 1024,
			DisableHeaderNamesNormalizing: true,
			MaxIdemponentCallAttempts:     1,
			TLSConfig:                     tlsConfig,
			Dial:                          dial,
		}
	}

	return &HTTPPool{clients: clients}
}

func (hp *HTTPPool) GetClient() *fasthttp.Client {
	n := atomic.AddUint32(&hp.next, 1)
	return hp.clients[int(n-1)%len(hp.clients)]
}

func (hp *HTTPPool) Size() int {
	return len(hp.clients)
}

// Warmup opens a connection on every client so the first mitigation does
// not pay for the TLS handshake. It reports how many clients answered.
func (hp *HTTPPool) Warmup(url string) int {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	ok := 0
	for i, client := range hp.clients {
		req.Reset()
		resp.Reset()
		req.SetRequestURI(url)
		req.Header.SetMethod(fasthttp.MethodGet)

		if err := client.DoTimeout(req, resp, 2*time.Second); err != nil {
			logging.Debug("[DISPATCH] Warmup of client %d failed: %v", i, err)
			continue
		}
		ok++
	}
	return ok
}
