package pagecache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// keyPrefix namespaces every page cache key in Redis.
const keyPrefix = "esi:pager"

// Key identifies one cached page of a paginated source.
type Key struct {
	// Endpoint is the source path (e.g., "/v1/markets/10000002/orders/")
	Endpoint string

	// Query holds the fixed query parameters (e.g., {"order_type": "sell"})
	Query url.Values

	// Page is the page index as passed to the fetcher.
	Page int

	// PageSize is the iterator's page size.
	PageSize int
}

// String generates a deterministic cache key string.
// Format: esi:pager:endpoint:query1=a,b:query2=c:size=N:page=N
//
// Example:
//
//	esi:pager:v1/markets/10000002/orders:order_type=sell:size=1000:page=3
func (k Key) String() string {
	return k.base(false) + fmt.Sprintf(":size=%d:page=%d", k.PageSize, k.Page)
}

// Pattern matches the keys of every page of the same source, across page
// sizes. Glob metacharacters in the endpoint and query are escaped.
func (k Key) Pattern() string {
	return k.base(true) + ":size=*"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func (k Key) base(escape bool) string {
	quote := func(s string) string { return s }
	if escape {
		quote = globEscaper.Replace
	}

	parts := []string{keyPrefix}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, quote(endpoint))
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			if name == "page" {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, quote(fmt.Sprintf("%s=%s", name, strings.Join(k.Query[name], ","))))
		}
	}

	return strings.Join(parts, ":")
}
