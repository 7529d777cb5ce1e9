// Package httpx is a small HTTP/1.1 client built for auditability.
//
// Highlights
//   - ConnectionPool: per (host, port) idle stores with a fixed bound,
//     lazy idle expiry, oldest-first eviction and optional per-host
//     connection limits and dial pacing.
//   - Client: request serialization with Content-Length or chunked
//     framing, strict status line and header parsing, request ID and
//     trace context propagation.
//   - Response: pull-based body streaming over fixed-length, chunked or
//     close-delimited framing. A connection goes back to the pool only
//     when its body was read to the end.
//   - Observability: plug-in Logger and Meter interfaces.
//
// Quick start:
//
//	c := httpx.NewClient(httpx.DefaultConfig())
//	defer c.Close()
//	res, err := c.Get(ctx, "http://127.0.0.1:8080/")
//	if err != nil { log.Fatal(err) }
//	b, err := res.ReadAll(1 << 20)
//	_ = c.Release(res)
//	if err != nil { log.Fatal(err) }
//	fmt.Println(res.StatusCode, string(b))
//
// The client never retries, never follows redirects and does not speak
// TLS itself; supply a Dialer that returns TLS streams to reach https URLs.
package httpx
