package querycache

import "github.com/krisalay/query-cache/api"

var (
	_ api.QueryClient[string, int] = (*Client[string, int])(nil)
	_ api.Subscription[int]        = (*Observer[string, int])(nil)
)
